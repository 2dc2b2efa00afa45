package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/salesetl/internal/config"
	"github.com/JonMunkholm/salesetl/internal/core"
	"github.com/JonMunkholm/salesetl/internal/loader"
	"github.com/JonMunkholm/salesetl/internal/metrics"
	"github.com/JonMunkholm/salesetl/internal/normalize"
	"github.com/JonMunkholm/salesetl/internal/quality"
	"github.com/JonMunkholm/salesetl/internal/source"
)

type fakeFetcher struct {
	path  string
	err   error
	force bool
}

func (f *fakeFetcher) Ensure(_ context.Context, force bool) (*source.Result, error) {
	f.force = force
	if f.err != nil {
		return nil, f.err
	}
	return &source.Result{Path: f.path}, nil
}

type fakeLoader struct {
	err    error
	tables *normalize.Tables
	runs   []loader.RunRecord
}

func (l *fakeLoader) Load(_ context.Context, t *normalize.Tables) (*loader.Result, error) {
	l.tables = t
	if l.err != nil {
		return nil, l.err
	}
	return &loader.Result{
		Customers: int64(len(t.Customers)),
		Products:  int64(len(t.Products)),
		Orders:    int64(len(t.Orders)),
	}, nil
}

func (l *fakeLoader) RecordRun(_ context.Context, r loader.RunRecord) error {
	l.runs = append(l.runs, r)
	return nil
}

func salesLine(order, item, sku, qty, price, value, discount, total, cust, status string) string {
	return fmt.Sprintf("%s,2021-01-05,%s,%s,%s,%s,%s,%s,%s,%s,Mobiles,cod,%s,"+
		"ann,LEE,f,30,Ann@Example.com,2015-03-01,555-0100,Tucson,Pima,Tucson,arizona,85701,West",
		order, status, item, sku, qty, price, value, discount, total, cust)
}

// writeSales writes six raw rows: three good lines, an exact duplicate, a
// natural-key duplicate and a zero-quantity line. One line carries wrong
// totals.
func writeSales(t *testing.T) string {
	t.Helper()

	lines := []string{
		strings.Join(quality.CleanHeader, ","),
		salesLine("100", "1", "sku-a", "2", "10", "20", "0", "20", "1", "complete"),
		salesLine("100", "2", "sku-b", "1", "5", "5", "1", "4", "1", "complete"),
		salesLine("101", "3", "sku-a", "1", "10", "99", "0", "99", "2", "complete"),
		salesLine("100", "1", "sku-a", "2", "10", "20", "0", "20", "1", "complete"),
		salesLine("100", "1", "sku-a", "2", "10", "20", "0", "20", "1", "canceled"),
		salesLine("102", "4", "sku-c", "0", "10", "0", "0", "0", "3", "complete"),
	}

	path := filepath.Join(t.TempDir(), "sales.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Paths:   config.PathsConfig{DataDir: t.TempDir()},
		Quality: config.QualityConfig{Tolerance: 0.01},
	}
}

func TestRun_SkipLoad(t *testing.T) {
	cfg := testConfig(t)
	p := New(cfg, Deps{}, Options{InputPath: writeSales(t), SkipLoad: true})

	s := p.Run(context.Background())

	require.True(t, s.Success, "run failed: %s", s.Error)
	_, err := uuid.Parse(s.RunID)
	assert.NoError(t, err, "run id should be a uuid")

	assert.Equal(t, 6, s.RowsRaw)
	assert.Equal(t, 3, s.RowsCleaned)
	assert.Equal(t, 3, s.RowsRemoved)
	assert.Equal(t, 1, s.ExactDuplicates)
	assert.Equal(t, 1, s.KeyDuplicates)
	assert.Equal(t, map[string]int{quality.ReasonNonPositiveQty: 1}, s.Dropped)
	assert.Equal(t, Corrections{LineTotal: 1, Total: 1}, s.Corrections)
	assert.InDelta(t, 0.5, s.ReductionRatio, 1e-9)

	assert.Equal(t, 2, s.Customers)
	assert.Equal(t, 2, s.Products)
	assert.Equal(t, 3, s.Orders)
	assert.Empty(t, normalize.Failed(s.Checks))

	require.NotNil(t, s.Profile)
	assert.Equal(t, 6, s.Profile.Rows)
	assert.Equal(t, 1, s.Profile.ExactDuplicateRows)

	assert.True(t, s.LoadSkipped)
	assert.Nil(t, s.Load)

	names := make([]string, 0, len(s.Stages))
	for _, st := range s.Stages {
		names = append(names, st.Name)
	}
	assert.Equal(t, []string{StageRead, StageProfile, StageClean, StageNormalize, StageExport}, names)

	require.NotNil(t, s.Processed)
	for _, f := range []string{s.Processed.Customers, s.Processed.Products, s.Processed.Orders, s.Processed.Cleaned} {
		assert.FileExists(t, f)
		assert.Equal(t, cfg.Paths.ProcessedDir(), filepath.Dir(f))
	}
}

func TestRun_LoadsAndRecordsRun(t *testing.T) {
	fetcher := &fakeFetcher{path: writeSales(t)}
	ld := &fakeLoader{}
	reg := metrics.NewRegistry()

	p := New(testConfig(t), Deps{Fetcher: fetcher, Loader: ld, Metrics: reg}, Options{ForceExtract: true})
	s := p.Run(context.Background())

	require.True(t, s.Success, "run failed: %s", s.Error)
	assert.True(t, fetcher.force)
	require.NotNil(t, s.Load)
	assert.Equal(t, int64(3), s.Load.Orders)
	require.NotNil(t, ld.tables)
	assert.Len(t, ld.tables.Orders, 3)

	require.Len(t, ld.runs, 1)
	assert.Equal(t, s.RunID, ld.runs[0].RunID)
	assert.True(t, ld.runs[0].Success)
	assert.Equal(t, 3, ld.runs[0].OrdersLoaded)

	assert.Equal(t, float64(1), testutil.ToFloat64(reg.Success))
	assert.Equal(t, float64(3), testutil.ToFloat64(reg.Loaded.WithLabelValues("orders")))
	assert.Equal(t, float64(6), testutil.ToFloat64(reg.Rows.WithLabelValues("raw")))
}

func TestRun_Failures(t *testing.T) {
	tests := []struct {
		name      string
		fetcher   *fakeFetcher
		loader    *fakeLoader
		input     string
		wantStage string
		wantCode  string
	}{
		{
			name:      "extract",
			fetcher:   &fakeFetcher{err: &core.FetchError{Dataset: "a/b", Code: core.CodeNoCredentials, Err: errors.New("no key")}},
			loader:    &fakeLoader{},
			wantStage: StageExtract,
			wantCode:  core.CodeNoCredentials,
		},
		{
			name:      "read",
			loader:    &fakeLoader{},
			input:     "/nonexistent/sales.csv",
			wantStage: StageRead,
			wantCode:  core.CodeSourceMissing,
		},
		{
			name:      "load",
			loader:    &fakeLoader{err: &core.LoadError{Op: "copy", Table: "orders", Code: core.CodeForeignKey, Err: errors.New("fk")}},
			wantStage: StageLoad,
			wantCode:  core.CodeForeignKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := tt.fetcher
			if fetcher == nil {
				fetcher = &fakeFetcher{path: writeSales(t)}
			}

			reg := metrics.NewRegistry()
			p := New(testConfig(t), Deps{Fetcher: fetcher, Loader: tt.loader, Metrics: reg}, Options{InputPath: tt.input})
			s := p.Run(context.Background())

			assert.False(t, s.Success)
			assert.Equal(t, tt.wantStage, s.Stage)
			assert.Equal(t, tt.wantCode, s.ErrorCode)
			assert.Contains(t, s.ErrorMessage, tt.wantCode)
			assert.NotEmpty(t, s.Error)

			require.Len(t, tt.loader.runs, 1, "failed runs are audited too")
			assert.False(t, tt.loader.runs[0].Success)
			assert.Equal(t, tt.wantCode, tt.loader.runs[0].ErrorCode)

			assert.Equal(t, float64(0), testutil.ToFloat64(reg.Success))
			assert.Equal(t, float64(1), testutil.ToFloat64(reg.Errors.WithLabelValues(tt.wantStage, tt.wantCode)))
		})
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(testConfig(t), Deps{}, Options{InputPath: writeSales(t), SkipLoad: true})
	s := p.Run(ctx)

	assert.False(t, s.Success)
	assert.Equal(t, StageRead, s.Stage)
	assert.Equal(t, "ERR001", s.ErrorCode)
	assert.Empty(t, s.Stages)
}

func TestRun_TransformFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sales.csv")
	content := strings.Join(quality.CleanHeader, ",") + "\n" +
		salesLine("100", "1", "sku-a", "0", "10", "0", "0", "0", "1", "complete") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	p := New(testConfig(t), Deps{}, Options{InputPath: path, SkipLoad: true})
	s := p.Run(context.Background())

	assert.False(t, s.Success)
	assert.Equal(t, StageClean, s.Stage)
	assert.Equal(t, core.CodeEmptyResult, s.ErrorCode)
	assert.Equal(t, 1, s.Profile.Rows)
}

func TestBuildRules(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		return path
	}

	custom := write("custom.yaml", "dedup_key: [order_id, sku]\ntolerance: 0.05\nreference_year: 1990\n")
	other := write("other.yaml", "dedup_key: [item_id]\n")
	bad := write("bad.yaml", "dedup_kee: [order_id]\n")

	t.Run("defaults from config", func(t *testing.T) {
		rules, err := BuildRules(config.QualityConfig{Tolerance: 0.02, ReferenceYear: 2024}, "")
		require.NoError(t, err)
		assert.Equal(t, quality.DefaultDedupKey, rules.DedupKey)
		assert.Equal(t, "0.02", rules.Tolerance.String())
		assert.Equal(t, 2024, rules.ReferenceYear)
	})

	t.Run("rules file", func(t *testing.T) {
		rules, err := BuildRules(config.QualityConfig{Tolerance: 0.01, RulesFile: custom}, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"order_id", "sku"}, rules.DedupKey)
		assert.Equal(t, "0.05", rules.Tolerance.String())
		assert.Equal(t, 1990, rules.ReferenceYear)
	})

	t.Run("override wins", func(t *testing.T) {
		rules, err := BuildRules(config.QualityConfig{Tolerance: 0.01, RulesFile: custom}, other)
		require.NoError(t, err)
		assert.Equal(t, []string{"item_id"}, rules.DedupKey)
		assert.Equal(t, "0.01", rules.Tolerance.String())
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := BuildRules(config.QualityConfig{}, bad)
		assert.Error(t, err)
	})
}

func TestRun_InvalidRulesFile(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("tolerance: -1\n"), 0o644))

	p := New(testConfig(t), Deps{}, Options{InputPath: writeSales(t), RulesFile: bad, SkipLoad: true})
	s := p.Run(context.Background())

	assert.False(t, s.Success)
	assert.Equal(t, StageClean, s.Stage)
	assert.Equal(t, core.CodeInvalidRules, s.ErrorCode)
}
