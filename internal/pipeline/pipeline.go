// Package pipeline sequences one ETL run: extract, read, profile, clean,
// normalize, export and load. The first fatal error stops the run and is
// reported in the Summary together with the stage that raised it.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/salesetl/internal/config"
	"github.com/JonMunkholm/salesetl/internal/core"
	"github.com/JonMunkholm/salesetl/internal/export"
	"github.com/JonMunkholm/salesetl/internal/loader"
	"github.com/JonMunkholm/salesetl/internal/logging"
	"github.com/JonMunkholm/salesetl/internal/metrics"
	"github.com/JonMunkholm/salesetl/internal/normalize"
	"github.com/JonMunkholm/salesetl/internal/quality"
	"github.com/JonMunkholm/salesetl/internal/source"
)

// Fetcher provides the raw source file.
type Fetcher interface {
	Ensure(ctx context.Context, force bool) (*source.Result, error)
}

// Loader persists normalized tables and records run audits.
type Loader interface {
	Load(ctx context.Context, t *normalize.Tables) (*loader.Result, error)
	RecordRun(ctx context.Context, r loader.RunRecord) error
}

// Deps are the collaborators of a run. Loader may be nil when loading is
// skipped; Metrics may be nil.
type Deps struct {
	Fetcher Fetcher
	Loader  Loader
	Metrics *metrics.Registry
}

// Options control a single run.
type Options struct {
	// ForceExtract re-fetches the source even when the cached copy is valid.
	ForceExtract bool

	// InputPath reads this file instead of the cached source; extraction
	// is skipped.
	InputPath string

	// RulesFile overrides the configured quality rules file.
	RulesFile string

	// SkipLoad stops the run after export.
	SkipLoad bool
}

// Pipeline runs the ETL stages.
type Pipeline struct {
	cfg  *config.Config
	deps Deps
	opts Options
	now  func() time.Time
}

// New returns a pipeline over cfg.
func New(cfg *config.Config, deps Deps, opts Options) *Pipeline {
	return &Pipeline{cfg: cfg, deps: deps, opts: opts, now: time.Now}
}

// Run executes every stage and returns the summary. It never panics on a
// stage failure; check Summary.Success.
func (p *Pipeline) Run(ctx context.Context) *Summary {
	s := &Summary{
		RunID:     uuid.NewString(),
		StartedAt: p.now().UTC(),
	}
	ctx = logging.WithRunID(ctx, s.RunID)
	logger := logging.FromContext(ctx)

	logger.Info("run started",
		"force_extract", p.opts.ForceExtract,
		"skip_load", p.opts.SkipLoad,
		"input", p.opts.InputPath,
	)

	err := p.run(ctx, s)

	s.FinishedAt = p.now().UTC()
	s.DurationSeconds = s.FinishedAt.Sub(s.StartedAt).Seconds()
	if err != nil {
		s.Success = false
		s.Error = err.Error()
		s.ErrorCode = core.ErrorCode(err)
		s.ErrorMessage = core.FormatUserError(err)
		logger.Error("run failed",
			"stage", s.Stage,
			"code", s.ErrorCode,
			"error", err,
		)
	} else {
		s.Success = true
		logger.Info("run finished",
			"rows_raw", s.RowsRaw,
			"rows_cleaned", s.RowsCleaned,
			"orders", s.Orders,
			"duration", time.Duration(s.DurationSeconds*float64(time.Second)).Round(time.Millisecond),
		)
	}

	if p.deps.Metrics != nil {
		p.deps.Metrics.RecordOutcome(s.Success, s.Stage, s.ErrorCode, s.FinishedAt)
	}
	p.recordRun(ctx, s)

	return s
}

func (p *Pipeline) run(ctx context.Context, s *Summary) error {
	path := p.opts.InputPath
	if path == "" {
		err := p.stage(ctx, s, StageExtract, func(ctx context.Context) error {
			if p.deps.Fetcher == nil {
				return &core.FetchError{Code: core.CodeSourceMissing, Err: fmt.Errorf("no source fetcher configured")}
			}
			res, err := p.deps.Fetcher.Ensure(ctx, p.opts.ForceExtract)
			if err != nil {
				return err
			}
			s.Source = res
			path = res.Path
			return nil
		})
		if err != nil {
			return err
		}
	}

	var table *core.Table
	err := p.stage(ctx, s, StageRead, func(ctx context.Context) error {
		var err error
		table, err = core.ReadTable(path)
		if err != nil {
			return err
		}
		logging.WithFields(ctx, "stage", StageRead).Info("source read",
			"path", path,
			"rows", table.Len(),
			"bytes", table.Bytes,
			"invalid_utf8_bytes", table.InvalidBytes,
		)
		return nil
	})
	if err != nil {
		return err
	}

	rules, err := BuildRules(p.cfg.Quality, p.opts.RulesFile)
	if err != nil {
		s.Stage = StageClean
		return &core.TransformError{Rule: "rules", Code: core.CodeInvalidRules, Err: err}
	}

	err = p.stage(ctx, s, StageProfile, func(ctx context.Context) error {
		rep := quality.Profile(table, rules.Tolerance)
		s.Profile = &rep
		logging.WithFields(ctx, "stage", StageProfile).Info("raw data profile",
			"rows", rep.Rows,
			"duplicate_order_ids", rep.DuplicateOrderIDs,
			"exact_duplicate_rows", rep.ExactDuplicateRows,
			"line_total_errors", rep.LineTotalErrors,
			"total_errors", rep.TotalErrors,
			"missing_emails", rep.MissingEmails,
			"missing_first_names", rep.MissingFirstNames,
		)
		return nil
	})
	if err != nil {
		return err
	}

	var res *quality.Result
	err = p.stage(ctx, s, StageClean, func(ctx context.Context) error {
		engine, err := quality.NewEngine(rules)
		if err != nil {
			return &core.TransformError{Rule: "rules", Code: core.CodeInvalidRules, Err: err}
		}
		res, err = engine.Clean(table)
		if err != nil {
			return err
		}
		s.applyStats(res.Stats)
		if p.deps.Metrics != nil {
			p.deps.Metrics.RecordClean(res.Stats)
		}
		logging.WithFields(ctx, "stage", StageClean).Info("data cleaned",
			"rows_raw", res.Stats.RawRows,
			"exact_duplicates", res.Stats.ExactDuplicates,
			"key_duplicates", res.Stats.KeyDuplicates,
			"dropped", res.Stats.DroppedTotal(),
			"line_total_corrections", res.Stats.LineTotalFixes,
			"total_corrections", res.Stats.TotalFixes,
			"rows_cleaned", res.Stats.CleanRows,
			"reduction_ratio", fmt.Sprintf("%.4f", res.Stats.ReductionRatio()),
		)
		return nil
	})
	if err != nil {
		return err
	}

	var tables *normalize.Tables
	err = p.stage(ctx, s, StageNormalize, func(ctx context.Context) error {
		var err error
		tables, err = normalize.Normalize(res.Records)
		if err != nil {
			return err
		}
		s.Customers = len(tables.Customers)
		s.Products = len(tables.Products)
		s.Orders = len(tables.Orders)

		logger := logging.WithFields(ctx, "stage", StageNormalize)
		s.Checks = normalize.Validate(tables, rules.Tolerance)
		for _, c := range normalize.Failed(s.Checks) {
			logger.Warn("validation check failed", "check", c.Name, "detail", c.Detail)
		}
		logger.Info("tables normalized",
			"customers", s.Customers,
			"products", s.Products,
			"orders", s.Orders,
		)
		return nil
	})
	if err != nil {
		return err
	}

	err = p.stage(ctx, s, StageExport, func(ctx context.Context) error {
		files, err := export.WriteAll(p.cfg.Paths.ProcessedDir(), tables, res.Records)
		if err != nil {
			return err
		}
		s.Processed = &files
		logging.WithFields(ctx, "stage", StageExport).Info("processed files written", "dir", p.cfg.Paths.ProcessedDir())
		return nil
	})
	if err != nil {
		return err
	}

	if p.opts.SkipLoad || p.deps.Loader == nil {
		s.LoadSkipped = true
		logging.FromContext(ctx).Info("load skipped")
		return nil
	}

	return p.stage(ctx, s, StageLoad, func(ctx context.Context) error {
		lr, err := p.deps.Loader.Load(ctx, tables)
		if err != nil {
			return err
		}
		s.Load = lr
		if p.deps.Metrics != nil {
			p.deps.Metrics.RecordLoad(lr.Customers, lr.Products, lr.Orders)
		}
		return nil
	})
}

// stage runs fn as the named stage, recording its duration. On failure the
// stage name is recorded in s.
func (p *Pipeline) stage(ctx context.Context, s *Summary, name string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		s.Stage = name
		return err
	}

	logging.WithFields(ctx, "stage", name).Debug("stage started")
	start := p.now()
	err := fn(ctx)
	d := p.now().Sub(start)

	s.Stages = append(s.Stages, StageTiming{Name: name, Seconds: d.Seconds()})
	if p.deps.Metrics != nil {
		p.deps.Metrics.ObserveStage(name, d)
	}
	if err != nil {
		s.Stage = name
		return err
	}
	return nil
}

// recordRun writes the audit row. Failures are logged, never returned.
func (p *Pipeline) recordRun(ctx context.Context, s *Summary) {
	if p.deps.Loader == nil || p.opts.SkipLoad {
		return
	}

	// The run context may already be cancelled; the audit row is still wanted.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := p.deps.Loader.RecordRun(ctx, s.runRecord()); err != nil {
		logging.FromContext(ctx).Warn("failed to record run", "error", err)
	}
}
