package core

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// ----------------------------------------------------------------------------
// ParseDecimal Tests
// ----------------------------------------------------------------------------

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantValid bool
		wantValue string
	}{
		{name: "positive integer", input: "123", wantValid: true, wantValue: "123"},
		{name: "zero", input: "0", wantValid: true, wantValue: "0"},
		{name: "negative integer", input: "-456", wantValid: true, wantValue: "-456"},
		{name: "decimal number", input: "123.45", wantValid: true, wantValue: "123.45"},
		{name: "leading decimal point", input: ".99", wantValid: true, wantValue: "0.99"},
		{name: "dollar sign", input: "$1,234.50", wantValid: true, wantValue: "1234.5"},
		{name: "euro sign", input: "€99", wantValid: true, wantValue: "99"},
		{name: "accounting negative", input: "(12.30)", wantValid: true, wantValue: "-12.3"},
		{name: "scientific notation", input: "1.5e2", wantValid: true, wantValue: "150"},
		{name: "surrounding whitespace", input: "  7.25  ", wantValid: true, wantValue: "7.25"},
		{name: "excel formula prefix", input: `="42"`, wantValid: true, wantValue: "42"},

		{name: "empty", input: "", wantValid: false},
		{name: "null token", input: "NULL", wantValid: false},
		{name: "none token", input: "None", wantValid: false},
		{name: "letters", input: "abc", wantValid: false},
		{name: "double decimal", input: "1.2.3", wantValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDecimal(tt.input)
			if ok != tt.wantValid {
				t.Fatalf("ParseDecimal(%q) ok = %v, want %v", tt.input, ok, tt.wantValid)
			}
			if !ok {
				return
			}
			want := decimal.RequireFromString(tt.wantValue)
			if !got.Equal(want) {
				t.Errorf("ParseDecimal(%q) = %s, want %s", tt.input, got, want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ParseInt / CanonicalID Tests
// ----------------------------------------------------------------------------

func TestParseInt(t *testing.T) {
	tests := []struct {
		input  string
		want   int64
		wantOK bool
	}{
		{"60124", 60124, true},
		{"60124.0", 60124, true},
		{" 7 ", 7, true},
		{"-1", -1, true},
		{"1e3", 1000, true},
		{"3.5", 0, false},
		{"100468520-1", 0, false},
		{"", 0, false},
		{"99999999999999999999", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseInt(tt.input)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ParseInt(%q) = (%d, %v), want (%d, %v)", tt.input, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestCanonicalID(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"123.0", "123"},
		{"123", "123"},
		{" 42 ", "42"},
		{"100468520-1", "100468520-1"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := CanonicalID(tt.input); got != tt.want {
			t.Errorf("CanonicalID(%q) = %q, want %q", tt.input, got, tt.want)
		}
		if got := CanonicalID(CanonicalID(tt.input)); got != tt.want {
			t.Errorf("CanonicalID is not idempotent for %q: %q", tt.input, got)
		}
	}
}

// ----------------------------------------------------------------------------
// ParseDate Tests
// ----------------------------------------------------------------------------

func TestParseDate(t *testing.T) {
	want := time.Date(2020, time.October, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		input     string
		wantValid bool
	}{
		{"iso", "2020-10-01", true},
		{"iso with time", "2020-10-01 13:45:00", true},
		{"us slashes", "10/1/2020", true},
		{"us padded", "10/01/2020", true},
		{"month name", "Oct 1, 2020", true},
		{"compact", "20201001", true},
		{"two digit year", "10/1/20", true},
		{"empty", "", false},
		{"garbage", "yesterday", false},
		{"impossible day", "2020-02-31", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.input, 2020)
			if ok != tt.wantValid {
				t.Fatalf("ParseDate(%q) ok = %v, want %v", tt.input, ok, tt.wantValid)
			}
			if ok && !got.Equal(want) {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.input, got, want)
			}
		})
	}
}

func TestParseDate_TwoDigitPivot(t *testing.T) {
	tests := []struct {
		input         string
		referenceYear int
		wantYear      int
	}{
		{"1/2/99", 2020, 1999},
		{"1/2/40", 2020, 2040},
		{"1/2/41", 2020, 1941},
		{"1/2/41", 2021, 2041},
		{"1/2/05", 1980, 1905},
		{"1/2/2099", 2020, 2099},
	}

	for _, tt := range tests {
		got, ok := ParseDate(tt.input, tt.referenceYear)
		if !ok {
			t.Fatalf("ParseDate(%q, %d) failed", tt.input, tt.referenceYear)
		}
		if got.Year() != tt.wantYear {
			t.Errorf("ParseDate(%q, %d) year = %d, want %d", tt.input, tt.referenceYear, got.Year(), tt.wantYear)
		}
	}
}

// ----------------------------------------------------------------------------
// Cell helpers
// ----------------------------------------------------------------------------

func TestIsNull(t *testing.T) {
	for _, s := range []string{"", "  ", "NULL", "null", "None", "NaN", "n/a"} {
		if !IsNull(s) {
			t.Errorf("IsNull(%q) = false, want true", s)
		}
	}
	for _, s := range []string{"0", "none of them", "Nancy"} {
		if IsNull(s) {
			t.Errorf("IsNull(%q) = true, want false", s)
		}
	}
}

func TestCleanCell(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  hello  ", "hello"},
		{`="00123"`, "00123"},
		{"=SUM", "SUM"},
		{`"quoted"`, "quoted"},
		{"O'Brien", "O'Brien"},
	}

	for _, tt := range tests {
		if got := CleanCell(tt.input); got != tt.want {
			t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestMakeHeaderIndex(t *testing.T) {
	idx := MakeHeaderIndex([]string{"order_id", " Phone No. ", "E Mail", "Gender", "gender"})

	tests := []struct {
		key  string
		want int
	}{
		{"order_id", 0},
		{"phone no.", 1},
		{"e mail", 2},
		{"gender", 3},
	}
	for _, tt := range tests {
		if got, ok := idx[tt.key]; !ok || got != tt.want {
			t.Errorf("idx[%q] = %d (present %v), want %d", tt.key, got, ok, tt.want)
		}
	}
}

// ----------------------------------------------------------------------------
// pgtype helpers
// ----------------------------------------------------------------------------

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"10.5", "10.50"},
		{"3", "3.00"},
		{"1.005", "1.005"},
		{"1.1000", "1.10"},
		{"0.0049", "0.0049"},
	}

	for _, tt := range tests {
		if got := FormatPrice(decimal.RequireFromString(tt.input)); got != tt.want {
			t.Errorf("FormatPrice(%s) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestToPgNumeric(t *testing.T) {
	n := ToPgNumeric(decimal.RequireFromString("45.00"))
	if !n.Valid {
		t.Fatal("ToPgNumeric() invalid")
	}
	if n.Int.Int64() != 4500 || n.Exp != -2 {
		t.Errorf("ToPgNumeric(45.00) = %se%d, want 4500e-2", n.Int, n.Exp)
	}
}

func TestToPgText(t *testing.T) {
	if ToPgText("   ").Valid {
		t.Error("ToPgText(blank) should be invalid")
	}
	if got := ToPgText(" a@b.com "); !got.Valid || got.String != "a@b.com" {
		t.Errorf("ToPgText() = %+v", got)
	}
}

func TestToPgDate(t *testing.T) {
	if ToPgDate(time.Time{}).Valid {
		t.Error("ToPgDate(zero) should be invalid")
	}
	d := time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC)
	if got := ToPgDate(d); !got.Valid || !got.Time.Equal(d) {
		t.Errorf("ToPgDate() = %+v", got)
	}
}

func TestToPgInt4(t *testing.T) {
	tests := []struct {
		input     int
		wantValid bool
		want      int32
	}{
		{30, true, 30},
		{0, false, 0},
		{-7, true, -7},
		{math.MaxInt32, true, math.MaxInt32},
		{math.MaxInt32 + 1, false, 0},
		{4294967301, false, 0},
		{math.MinInt32 - 1, false, 0},
	}

	for _, tt := range tests {
		got := ToPgInt4(tt.input)
		if got.Valid != tt.wantValid || got.Int32 != tt.want {
			t.Errorf("ToPgInt4(%d) = %+v, want {Int32:%d Valid:%v}", tt.input, got, tt.want, tt.wantValid)
		}
	}
}

func TestInt32(t *testing.T) {
	if n, ok := Int32(5); !ok || n != 5 {
		t.Errorf("Int32(5) = %d, %v", n, ok)
	}
	if _, ok := Int32(4294967301); ok {
		t.Error("Int32(4294967301) ok = true, want false")
	}
	if _, ok := Int32(math.MinInt32); !ok {
		t.Error("Int32(MinInt32) ok = false, want true")
	}
}
