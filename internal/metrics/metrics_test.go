package metrics

import (
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/JonMunkholm/salesetl/internal/quality"
)

func TestRecordClean(t *testing.T) {
	r := NewRegistry()
	r.RecordClean(quality.Stats{
		RawRows:         10,
		ExactDuplicates: 1,
		KeyDuplicates:   1,
		Dropped:         map[string]int{quality.ReasonNonPositiveQty: 1, quality.ReasonNegativePrice: 1},
		LineTotalFixes:  2,
		TotalFixes:      3,
		CleanRows:       6,
	})

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"raw", testutil.ToFloat64(r.Rows.WithLabelValues("raw")), 10},
		{"cleaned", testutil.ToFloat64(r.Rows.WithLabelValues("cleaned")), 6},
		{"removed", testutil.ToFloat64(r.Rows.WithLabelValues("removed")), 4},
		{"dropped quantity", testutil.ToFloat64(r.Dropped.WithLabelValues(quality.ReasonNonPositiveQty)), 1},
		{"line total fixes", testutil.ToFloat64(r.Corrections.WithLabelValues("line_total")), 2},
		{"total fixes", testutil.ToFloat64(r.Corrections.WithLabelValues("total")), 3},
		{"reduction", testutil.ToFloat64(r.Reduction), 0.4},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestRecordOutcome(t *testing.T) {
	r := NewRegistry()
	done := time.Unix(1700000000, 0)

	r.RecordOutcome(false, "load", "LOD003", done)
	r.RecordOutcome(false, "load", "LOD003", done)

	if got := testutil.ToFloat64(r.Success); got != 0 {
		t.Errorf("success = %v, want 0", got)
	}
	if got := testutil.ToFloat64(r.Errors.WithLabelValues("load", "LOD003")); got != 2 {
		t.Errorf("errors = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.LastRun); got != 1700000000 {
		t.Errorf("last run = %v", got)
	}

	r.RecordOutcome(true, "", "", done)
	if got := testutil.ToFloat64(r.Success); got != 1 {
		t.Errorf("success = %v, want 1", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	r := NewRegistry()
	r.RecordLoad(2, 3, 5)
	r.ObserveStage("load", 1500*time.Millisecond)

	path := filepath.Join(t.TempDir(), "salesetl.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`salesetl_loaded_rows{table="orders"} 5`,
		`salesetl_stage_duration_seconds{stage="load"} 1.5`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("textfile missing %q", want)
		}
	}
}

func TestHandler(t *testing.T) {
	r := NewRegistry()
	r.RecordLoad(1, 1, 1)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `salesetl_loaded_rows{table="customers"} 1`) {
		t.Errorf("handler output missing loaded rows:\n%s", body)
	}
}
