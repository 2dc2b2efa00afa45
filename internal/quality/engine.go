// Package quality turns the raw sales table into cleaned line-item records.
//
// Clean applies four ordered rule classes:
//
//  1. canonicalization: trimming, casing and identifier forms
//  2. deduplication: exact duplicates, then natural-key duplicates, first seen wins
//  3. financial reconciliation: line totals and totals recomputed within a tolerance
//  4. validity filtering: rows that cannot be repaired are dropped and counted
//
// Every function in this package is pure over its input; running Clean on
// its own output (see ToTable) removes nothing and changes nothing.
package quality

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/JonMunkholm/salesetl/internal/core"
)

// DefaultDedupKey identifies one order line.
var DefaultDedupKey = []string{core.ColOrderID, core.ColItemID}

// DefaultTolerance is the largest stored-vs-recomputed difference kept as is.
var DefaultTolerance = decimal.RequireFromString("0.01")

// DefaultReferenceYear anchors two-digit years when nothing is configured.
const DefaultReferenceYear = 2020

// Rules configures the engine.
type Rules struct {
	// DedupKey lists the columns forming the natural key of a line item.
	DedupKey []string

	// Tolerance bounds how far a stored line total or total may drift from
	// the recomputed value before it is replaced.
	Tolerance decimal.Decimal

	// RequiredColumns must be present in the table handed to Clean.
	RequiredColumns []string

	// ReferenceYear anchors two-digit years in date cells; see core.ParseDate.
	ReferenceYear int
}

// DefaultRules returns the rules used when nothing is configured.
func DefaultRules() Rules {
	return Rules{
		DedupKey:        append([]string(nil), DefaultDedupKey...),
		Tolerance:       DefaultTolerance,
		RequiredColumns: core.RequiredColumns(),
		ReferenceYear:   DefaultReferenceYear,
	}
}

// Record is one cleaned order line.
type Record struct {
	OrderID       string `validate:"required"`
	ItemID        int64
	OrderDate     time.Time `validate:"required"`
	Status        string
	SKU           string `validate:"required"`
	Category      string
	PaymentMethod string
	CustomerID    int64

	// Quantity and amounts are bounded by the orders table columns.
	Quantity       int64           `validate:"gt=0,lte=2147483647"`
	UnitPrice      decimal.Decimal `validate:"gte=0"`
	LineTotal      decimal.Decimal `validate:"lt=1e16"`
	DiscountAmount decimal.Decimal `validate:"gt=-1e16,lt=1e16"`
	Total          decimal.Decimal `validate:"gt=-1e16,lt=1e16"`

	FirstName     string
	LastName      string
	Email         string
	Gender        string
	Age           int
	Phone         string
	CustomerSince time.Time
	PlaceName     string
	County        string
	City          string
	State         string
	Zip           string
	Region        string

	SourceLine int
}

// Stats counts what each rule class did.
type Stats struct {
	RawRows         int            `json:"rows_raw"`
	ExactDuplicates int            `json:"exact_duplicates"`
	KeyDuplicates   int            `json:"key_duplicates"`
	Dropped         map[string]int `json:"dropped"`
	LineTotalFixes  int            `json:"line_total_corrections"`
	TotalFixes      int            `json:"total_corrections"`
	CleanRows       int            `json:"rows_cleaned"`
}

// Removed returns the number of raw rows absent from the output.
func (s Stats) Removed() int { return s.RawRows - s.CleanRows }

// DroppedTotal returns the number of rows removed by validity filtering.
func (s Stats) DroppedTotal() int {
	n := 0
	for _, c := range s.Dropped {
		n += c
	}
	return n
}

// ReductionRatio returns the fraction of raw rows removed, in [0, 1].
func (s Stats) ReductionRatio() float64 {
	if s.RawRows == 0 {
		return 0
	}
	return float64(s.Removed()) / float64(s.RawRows)
}

// Result is the output of Clean.
type Result struct {
	Records []Record
	Stats   Stats
}

// Engine applies the quality rules. An Engine is not safe for concurrent use.
type Engine struct {
	rules    Rules
	validate *validator.Validate
	title    cases.Caser
}

// NewEngine creates an engine for rules.
func NewEngine(rules Rules) (*Engine, error) {
	if len(rules.DedupKey) == 0 {
		return nil, errors.New("dedup key must name at least one column")
	}
	rules.DedupKey = append([]string(nil), rules.DedupKey...)
	for i, col := range rules.DedupKey {
		col = strings.ToLower(strings.TrimSpace(col))
		if col == "" {
			return nil, fmt.Errorf("dedup key column %d is empty", i)
		}
		rules.DedupKey[i] = col
	}
	if rules.Tolerance.IsNegative() {
		return nil, fmt.Errorf("tolerance %s must be non-negative", rules.Tolerance)
	}
	if rules.ReferenceYear <= 0 {
		return nil, fmt.Errorf("reference year %d must be positive", rules.ReferenceYear)
	}
	if rules.RequiredColumns == nil {
		rules.RequiredColumns = core.RequiredColumns()
	}

	return &Engine{
		rules:    rules,
		validate: newValidator(),
		title:    cases.Title(language.English),
	}, nil
}

// Rules returns the engine's effective rules.
func (e *Engine) Rules() Rules { return e.rules }

// Clean runs every rule class over t and returns the surviving records.
// Fails with *core.TransformError when mandatory columns are absent or no
// row survives.
func (e *Engine) Clean(t *core.Table) (*Result, error) {
	required := append(append([]string(nil), e.rules.RequiredColumns...), e.rules.DedupKey...)
	if missing := core.MissingColumns(t.Index(), required); len(missing) > 0 {
		return nil, &core.TransformError{
			Rule: "schema",
			Code: core.CodeMissingColumns,
			Err:  fmt.Errorf("mandatory columns absent: %s", strings.Join(missing, ", ")),
		}
	}

	stats := Stats{RawRows: t.Len(), Dropped: make(map[string]int)}

	rows := e.canonicalize(t)
	rows, stats.ExactDuplicates = dedupExact(rows)
	rows, stats.KeyDuplicates = dedupByKey(rows, e.rules.DedupKey)

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, out := e.reconcile(row)

		if reason := e.filter(&rec, out); reason != "" {
			stats.Dropped[reason]++
			continue
		}

		if out.lineTotalFixed {
			stats.LineTotalFixes++
		}
		if out.totalFixed {
			stats.TotalFixes++
		}
		records = append(records, rec)
	}
	stats.CleanRows = len(records)

	if len(records) == 0 {
		return nil, &core.TransformError{
			Rule: "filter",
			Code: core.CodeEmptyResult,
			Err:  fmt.Errorf("no rows survived cleaning (%d raw, %d dropped)", stats.RawRows, stats.DroppedTotal()),
		}
	}

	return &Result{Records: records, Stats: stats}, nil
}
