package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/salesetl/internal/config"
	"github.com/JonMunkholm/salesetl/internal/loader"
	"github.com/JonMunkholm/salesetl/internal/metrics"
	"github.com/JonMunkholm/salesetl/internal/normalize"
	"github.com/JonMunkholm/salesetl/internal/pipeline"
	"github.com/JonMunkholm/salesetl/internal/report"
	"github.com/JonMunkholm/salesetl/internal/source"
	"github.com/JonMunkholm/salesetl/internal/web"
)

const textfileName = "salesetl.prom"

type runFlags struct {
	forceExtract bool
	rulesFile    string
	skipLoad     bool
	input        string
}

func newRunCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once",
		Long: `Run every stage once and print the JSON run summary on stdout.

The cached source file is reused while it is fresh; --force-extract downloads
it again. --input reads a local CSV instead and skips extraction. With
--skip-load the run stops after writing the processed CSV files.

Exits non-zero when any stage fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runPipeline(cmd, cfg, f)
		},
	}

	cmd.Flags().BoolVar(&f.forceExtract, "force-extract", false, "Download the source even when the cached copy is valid")
	cmd.Flags().StringVar(&f.rulesFile, "rules", "", "YAML quality rules file (overrides RULES_FILE)")
	cmd.Flags().BoolVar(&f.skipLoad, "skip-load", false, "Stop after writing the processed files")
	cmd.Flags().StringVar(&f.input, "input", "", "Read this CSV instead of the cached source")

	return cmd
}

func runPipeline(cmd *cobra.Command, cfg *config.Config, f runFlags) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()
	state := &web.RunState{}

	if cfg.Metrics.Addr != "" {
		srv := web.NewServer(reg.Handler(), state)
		go func() {
			if err := srv.Start(cfg.Metrics.Addr); err != nil {
				slog.Error("ops server stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("shutdown error", "error", err)
			}
		}()
	}

	client := &http.Client{Timeout: cfg.Source.DownloadTimeout}
	deps := pipeline.Deps{
		Fetcher: source.NewFetcher(cfg.Source, cfg.Paths, client),
		Metrics: reg,
	}

	if !f.skipLoad {
		pool, err := loader.Connect(ctx, cfg.Database)
		if err != nil {
			// The run still cleans and exports; the load stage reports the error.
			deps.Loader = unavailableLoader{err: err}
		} else {
			defer pool.Close()
			deps.Loader = loader.New(pool, loader.Options{
				BatchSize: cfg.Load.BatchSize,
				Timeout:   cfg.Load.Timeout,
			})
		}
	}

	state.Begin(time.Now().UTC())
	summary := pipeline.New(cfg, deps, pipeline.Options{
		ForceExtract: f.forceExtract,
		InputPath:    f.input,
		RulesFile:    f.rulesFile,
		SkipLoad:     f.skipLoad,
	}).Run(ctx)

	outCtx := context.WithoutCancel(ctx)
	if path, err := report.WriteFile(outCtx, cfg.Paths.ReportsDir(), summary); err != nil {
		slog.Warn("failed to write run report", "error", err)
	} else {
		summary.Report = path
	}
	state.Finish(summary)

	if cfg.Metrics.Textfile {
		writeTextfile(reg, cfg.Paths.MetricsDir())
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return err
	}

	if !summary.Success {
		return errRunFailed
	}
	return nil
}

func writeTextfile(reg *metrics.Registry, dir string) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("failed to create metrics dir", "error", err)
		return
	}
	path := filepath.Join(dir, textfileName)
	if err := reg.WriteTextfile(path); err != nil {
		slog.Warn("failed to write metrics textfile", "path", path, "error", err)
		return
	}
	slog.Debug("metrics textfile written", "path", path)
}

// unavailableLoader stands in for the database when the connection failed.
type unavailableLoader struct {
	err error
}

func (u unavailableLoader) Load(context.Context, *normalize.Tables) (*loader.Result, error) {
	return nil, u.err
}

func (u unavailableLoader) RecordRun(context.Context, loader.RunRecord) error {
	return u.err
}
