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
		name   string
		input  string
		wantOK bool
		want   string
	}{
		{name: "integer", input: "123", wantOK: true, want: "123"},
		{name: "zero", input: "0", wantOK: true, want: "0"},
		{name: "negative", input: "-456", wantOK: true, want: "-456"},
		{name: "decimal", input: "123.45", wantOK: true, want: "123.45"},
		{name: "leading decimal point", input: ".99", wantOK: true, want: "0.99"},
		{name: "trailing decimal point", input: "99.", wantOK: true, want: "99"},
		{name: "dollar sign", input: "$1,250.00", wantOK: true, want: "1250"},
		{name: "euro sign", input: "€99.50", wantOK: true, want: "99.5"},
		{name: "accounting negative", input: "(45.10)", wantOK: true, want: "-45.1"},
		{name: "accounting negative with currency", input: "($1,000)", wantOK: true, want: "-1000"},
		{name: "surrounding whitespace", input: "  12.5  ", wantOK: true, want: "12.5"},
		{name: "scientific notation", input: "1.5e3", wantOK: true, want: "1500"},
		{name: "empty", input: "", wantOK: false},
		{name: "whitespace only", input: "   ", wantOK: false},
		{name: "letters", input: "abc", wantOK: false},
		{name: "mixed letters", input: "12 miles", wantOK: false},
		{name: "two decimal points", input: "1.2.3", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDecimal(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseDecimal(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			want := decimal.RequireFromString(tt.want)
			if !got.Equal(want) {
				t.Errorf("ParseDecimal(%q) = %s, want %s", tt.input, got, want)
			}
		})
	}
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		input  string
		want   int
		wantOK bool
	}{
		{"42", 42, true},
		{"1,200", 1200, true},
		{"42.9", 42, true},
		{"", 0, false},
		{"n/a", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseInt(tt.input)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseInt(%q) = %d, %v; want %d, %v", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ParseDate Tests
// ----------------------------------------------------------------------------

func TestParseDate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		wantOK bool
		want   string // 2006-01-02
	}{
		{name: "ISO date", input: "2024-03-15", wantOK: true, want: "2024-03-15"},
		{name: "ISO date time", input: "2024-03-15 08:30:00", wantOK: true, want: "2024-03-15"},
		{name: "RFC3339", input: "2024-03-15T08:30:00Z", wantOK: true, want: "2024-03-15"},
		{name: "US date", input: "3/15/2024", wantOK: true, want: "2024-03-15"},
		{name: "US date zero padded", input: "03/05/2024", wantOK: true, want: "2024-03-05"},
		{name: "US date with time", input: "3/15/2024 2:30 PM", wantOK: true, want: "2024-03-15"},
		{name: "dashed US date", input: "3-15-2024", wantOK: true, want: "2024-03-15"},
		{name: "month name", input: "Mar 15, 2024", wantOK: true, want: "2024-03-15"},
		{name: "long month name", input: "March 15, 2024", wantOK: true, want: "2024-03-15"},
		{name: "compact", input: "20240315", wantOK: true, want: "2024-03-15"},
		{name: "slashed ISO", input: "2024/03/15", wantOK: true, want: "2024-03-15"},
		{name: "Excel serial", input: "45366", wantOK: true, want: "2024-03-15"},
		{name: "surrounding whitespace", input: "  2024-03-15 ", wantOK: true, want: "2024-03-15"},
		{name: "empty", input: "", wantOK: false},
		{name: "garbage", input: "next tuesday", wantOK: false},
		{name: "invalid month", input: "13/45/2024", wantOK: false},
		{name: "small number is not a serial", input: "42", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseDate(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && got.Format("2006-01-02") != tt.want {
				t.Errorf("ParseDate(%q) = %s, want %s", tt.input, got.Format("2006-01-02"), tt.want)
			}
		})
	}
}

func TestParseDate_TwoDigitYear(t *testing.T) {
	current := time.Now().Year()

	got, ok := ParseDate("3/15/24")
	if !ok {
		t.Fatal("ParseDate(3/15/24) failed")
	}
	if got.Year() != 2024 {
		t.Errorf("year = %d, want 2024", got.Year())
	}

	// A two-digit year far in the future belongs to the previous century.
	got, ok = ParseDate("1/1/99")
	if !ok {
		t.Fatal("ParseDate(1/1/99) failed")
	}
	if got.Year() > current+TwoDigitYearPivot {
		t.Errorf("year = %d, beyond pivot", got.Year())
	}
	if got.Year() != 1999 && got.Year() != 2099 {
		t.Errorf("year = %d, want 1999 or 2099", got.Year())
	}
}

// ----------------------------------------------------------------------------
// ParseBool Tests
// ----------------------------------------------------------------------------

func TestParseBool(t *testing.T) {
	tests := []struct {
		input  string
		want   bool
		wantOK bool
	}{
		{"true", true, true},
		{"TRUE", true, true},
		{"Yes", true, true},
		{"y", true, true},
		{"1", true, true},
		{"x", true, true},
		{"false", false, true},
		{"No", false, true},
		{"0", false, true},
		{" f ", false, true},
		{"", false, false},
		{"maybe", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseBool(tt.input)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseBool(%q) = %v, %v; want %v, %v", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// pgtype conversion Tests
// ----------------------------------------------------------------------------

func TestToPgText(t *testing.T) {
	tests := []struct {
		input     string
		wantValid bool
		want      string
	}{
		{"hello", true, "hello"},
		{"  padded  ", true, "padded"},
		{"", false, ""},
		{"   ", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ToPgText(tt.input)
			if got.Valid != tt.wantValid || got.String != tt.want {
				t.Errorf("ToPgText(%q) = %+v", tt.input, got)
			}
		})
	}
}

func TestToPgNumeric(t *testing.T) {
	n := ToPgNumeric(decimal.RequireFromString("1234.56"))
	if !n.Valid {
		t.Fatal("ToPgNumeric returned invalid")
	}
	f, err := n.Float64Value()
	if err != nil {
		t.Fatalf("Float64Value: %v", err)
	}
	if math.Abs(f.Float64-1234.56) > 1e-9 {
		t.Errorf("value = %v, want 1234.56", f.Float64)
	}

	if got := ToPgNullableNumeric(nil); got.Valid {
		t.Error("ToPgNullableNumeric(nil) should be NULL")
	}
}

func TestToPgTimestamptz(t *testing.T) {
	if got := ToPgTimestamptz(time.Time{}); got.Valid {
		t.Error("zero time should be NULL")
	}
	now := time.Now()
	if got := ToPgTimestamptz(now); !got.Valid || !got.Time.Equal(now) {
		t.Errorf("ToPgTimestamptz(now) = %+v", got)
	}
}

func TestToPgUUID(t *testing.T) {
	const id = "3f2b8c1e-5a8d-4c2e-9b1a-7d6e5f4a3b2c"

	got := ToPgUUID(id)
	if !got.Valid {
		t.Fatal("valid UUID reported invalid")
	}
	if s := PgUUIDToString(got); s != id {
		t.Errorf("round trip = %q, want %q", s, id)
	}

	if ToPgUUID("").Valid || ToPgUUID("not-a-uuid").Valid {
		t.Error("invalid input should be NULL")
	}
	if PgUUIDToString(ToPgUUID("")) != "" {
		t.Error("NULL UUID should render as empty string")
	}
}

func TestToPgInt4(t *testing.T) {
	if ToPgInt4(0).Valid {
		t.Error("zero should be NULL")
	}
	if got := ToPgInt4(42); !got.Valid || got.Int32 != 42 {
		t.Errorf("ToPgInt4(42) = %+v", got)
	}
}

// ----------------------------------------------------------------------------
// CleanCell Tests
// ----------------------------------------------------------------------------

func TestCleanCell(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple string unchanged", input: "hello", want: "hello"},
		{name: "empty string", input: "", want: ""},
		{name: "surrounded by whitespace", input: "  hello  ", want: "hello"},
		{name: "Excel formula with quotes", input: `="L-1001"`, want: "L-1001"},
		{name: "Excel formula number as text", input: `="12345"`, want: "12345"},
		{name: "bare equals sign", input: "=SUM(A1)", want: "SUM(A1)"},
		{name: "double quoted", input: `"Dallas, TX"`, want: "Dallas, TX"},
		{name: "single quoted", input: "'00123'", want: "00123"},
		{name: "quotes with inner whitespace", input: `" padded "`, want: "padded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanCell(tt.input); got != tt.want {
				t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
