package core

// convert.go turns raw CSV text into typed values.
//
// These functions handle the messy reality of exported tabular data:
//   - Multiple date formats (US, EU, ISO, etc.)
//   - Currency symbols and thousand separators in numbers
//   - Integer identifiers exported as floats ("123.0")
//   - Null tokens ("NULL", "None") and Excel formula prefixes (="value")
//
// Parse* functions report failure with ok=false rather than an error, so the
// caller decides whether a bad value is dropped, corrected or fatal. ToPg*
// functions build pgtype values for COPY, with Valid=false for empty input.

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years more than this many years past the reference year passed to
// ParseDate are assumed to be in the previous century.
const TwoDigitYearPivot = 20

// Date layouts split by year format for proper 2-digit year handling
var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"2006-01-02 15:04:05", "2006-01-02T15:04:05Z07:00",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
	}
)

// nullTokens are cell values treated as missing.
var nullTokens = map[string]bool{
	"":     true,
	"null": true,
	"none": true,
	"nan":  true,
	"n/a":  true,
}

// IsNull reports whether a cell holds no value.
func IsNull(s string) bool {
	return nullTokens[strings.ToLower(strings.TrimSpace(s))]
}

// CleanCell removes common CSV artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}

// headerKey is the HeaderIndex key for a column name.
func headerKey(name string) string {
	return strings.ToLower(CleanCell(name))
}

// MakeHeaderIndex creates a HeaderIndex from a CSV header row.
// Keys are lowercased for case-insensitive matching. When a name repeats,
// the first position wins.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := headerKey(h)
		if _, dup := idx[key]; dup {
			continue
		}
		idx[key] = i
	}
	return idx
}

// ParseDate parses a date cell in any supported layout. Two-digit years are
// resolved against referenceYear, so the result does not depend on the clock.
func ParseDate(s string, referenceYear int) (time.Time, bool) {
	s = CleanCell(s)
	if IsNull(s) {
		return time.Time{}, false
	}

	// Try 4-digit year layouts first (unambiguous)
	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return truncateDay(t), true
		}
	}

	// Try 2-digit year layouts with pivot year adjustment
	pivotYear := referenceYear + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return truncateDay(t), true
		}
	}

	return time.Time{}, false
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDecimal parses a numeric cell.
// Handles currency symbols, thousands separators, and accounting format (parentheses for negative).
func ParseDecimal(s string) (decimal.Decimal, bool) {
	s = CleanCell(s)
	if IsNull(s) {
		return decimal.Zero, false
	}

	// Detect negative accounting format "(123.45)"
	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	// Remove common currency symbols and thousands separators
	s = strings.NewReplacer("$", "", "€", "", "£", "", ",", "").Replace(s)
	s = strings.TrimSpace(s)

	if isNegative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ParseInt parses an integer cell. Integral floats such as "3.0" or "1e3"
// are accepted; "3.5" is not.
func ParseInt(s string) (int64, bool) {
	d, ok := ParseDecimal(s)
	if !ok || !d.IsInteger() {
		return 0, false
	}
	if d.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || d.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, false
	}
	return d.IntPart(), true
}

// CanonicalID renders an identifier cell in integer form when it is an
// integral number ("123.0" becomes "123"); anything else is only trimmed.
func CanonicalID(s string) string {
	s = CleanCell(s)
	if n, ok := ParseInt(s); ok {
		return decimal.NewFromInt(n).String()
	}
	return s
}

// ToPgText converts a string to pgtype.Text.
// Returns invalid if the string is empty or only whitespace.
func ToPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// ToPgDate converts a time to pgtype.Date. The zero time is invalid.
func ToPgDate(t time.Time) pgtype.Date {
	if t.IsZero() {
		return pgtype.Date{Valid: false}
	}
	return pgtype.Date{Time: t, Valid: true}
}

// FormatPrice formats a unit price with at least two decimals, keeping any
// sub-cent digits.
func FormatPrice(d decimal.Decimal) string {
	if d.Round(2).Equal(d) {
		return d.StringFixed(2)
	}
	return d.String()
}

// ToPgNumeric converts a decimal to pgtype.Numeric without a float round trip.
func ToPgNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

// ToPgInt4 converts an int to pgtype.Int4.
// Returns invalid if the value is zero or does not fit in 32 bits.
func ToPgInt4(i int) pgtype.Int4 {
	n, ok := Int32(int64(i))
	if !ok || n == 0 {
		return pgtype.Int4{Valid: false}
	}
	return pgtype.Int4{Int32: n, Valid: true}
}

// Int32 narrows v, reporting false when it is out of range.
func Int32(v int64) (int32, bool) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, false
	}
	return int32(v), true
}
