package pipeline

import (
	"time"

	"github.com/JonMunkholm/salesetl/internal/export"
	"github.com/JonMunkholm/salesetl/internal/loader"
	"github.com/JonMunkholm/salesetl/internal/normalize"
	"github.com/JonMunkholm/salesetl/internal/quality"
	"github.com/JonMunkholm/salesetl/internal/source"
)

// Stage names, in execution order.
const (
	StageExtract   = "extract"
	StageRead      = "read"
	StageProfile   = "profile"
	StageClean     = "clean"
	StageNormalize = "normalize"
	StageExport    = "export"
	StageLoad      = "load"
)

// StageTiming is the wall time of one completed or failed stage.
type StageTiming struct {
	Name    string  `json:"name"`
	Seconds float64 `json:"seconds"`
}

// Corrections counts financial fields replaced during reconciliation.
type Corrections struct {
	LineTotal int `json:"line_total"`
	Total     int `json:"total"`
}

// Summary is the machine-readable outcome of one run.
type Summary struct {
	RunID           string    `json:"run_id"`
	Success         bool      `json:"success"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	DurationSeconds float64   `json:"duration_seconds"`

	// Set when the run failed.
	Stage        string `json:"stage,omitempty"`
	Error        string `json:"error,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	Source  *source.Result  `json:"source,omitempty"`
	Profile *quality.Report `json:"profile,omitempty"`

	RowsRaw         int            `json:"rows_raw"`
	RowsCleaned     int            `json:"rows_cleaned"`
	RowsRemoved     int            `json:"rows_removed"`
	ReductionRatio  float64        `json:"reduction_ratio"`
	ExactDuplicates int            `json:"exact_duplicates"`
	KeyDuplicates   int            `json:"key_duplicates"`
	Corrections     Corrections    `json:"corrections"`
	Dropped         map[string]int `json:"dropped,omitempty"`

	Customers int               `json:"customers"`
	Products  int               `json:"products"`
	Orders    int               `json:"orders"`
	Checks    []normalize.Check `json:"checks,omitempty"`

	Processed   *export.Files  `json:"processed,omitempty"`
	Load        *loader.Result `json:"load,omitempty"`
	LoadSkipped bool           `json:"load_skipped,omitempty"`

	Stages []StageTiming `json:"stages"`
	Report string        `json:"report,omitempty"`
}

func (s *Summary) applyStats(st quality.Stats) {
	s.RowsRaw = st.RawRows
	s.RowsCleaned = st.CleanRows
	s.RowsRemoved = st.Removed()
	s.ReductionRatio = st.ReductionRatio()
	s.ExactDuplicates = st.ExactDuplicates
	s.KeyDuplicates = st.KeyDuplicates
	s.Corrections = Corrections{LineTotal: st.LineTotalFixes, Total: st.TotalFixes}
	s.Dropped = st.Dropped
}

// runRecord projects the summary onto an audit row.
func (s *Summary) runRecord() loader.RunRecord {
	r := loader.RunRecord{
		RunID:        s.RunID,
		StartedAt:    s.StartedAt,
		FinishedAt:   s.FinishedAt,
		Success:      s.Success,
		Stage:        s.Stage,
		ErrorCode:    s.ErrorCode,
		ErrorMessage: s.Error,
		RowsRaw:      s.RowsRaw,
		RowsCleaned:  s.RowsCleaned,
	}
	if s.Load != nil {
		r.OrdersLoaded = int(s.Load.Orders)
	}
	return r
}
