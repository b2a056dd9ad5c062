package service

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// The classifier echoes whatever the OCR saw, so amounts and dates arrive in
// any number of locale-ambiguous shapes. Both parsers here are total: bad
// input degrades to a zero amount or an unknown date, never an error, so a
// single mangled field cannot lose the whole receipt.

var amountJunk = regexp.MustCompile(`[^0-9,.\-]`)

// ParseAmount turns a free-text monetary string into a non-negative decimal
// rounded to 2 digits. Supports "1.234,50", "1,234.50" and "1234.50": when a
// comma appears after the last dot, the comma is the decimal separator and
// dots are thousands separators, and vice versa.
func ParseAmount(raw string) decimal.Decimal {
	zero := decimal.Zero.Round(2)
	numeric := amountJunk.ReplaceAllString(strings.TrimSpace(raw), "")
	if numeric == "" {
		return zero
	}

	lastComma := strings.LastIndex(numeric, ",")
	lastDot := strings.LastIndex(numeric, ".")
	if lastComma > lastDot {
		numeric = strings.ReplaceAll(numeric, ".", "")
		numeric = strings.Replace(numeric, ",", ".", 1)
		numeric = strings.ReplaceAll(numeric, ",", "")
	} else {
		numeric = strings.ReplaceAll(numeric, ",", "")
	}

	value, err := decimal.NewFromString(numeric)
	if err != nil {
		return zero
	}
	return value.Abs().Round(2)
}

type dateLayout struct {
	layout       string
	twoDigitYear bool
}

// Priority order matters: day-first formats are tried before month-first so
// that "21/09/25" resolves as the 21st of September.
var dateLayouts = []dateLayout{
	{"2006-01-02", false},
	{"02/01/2006", false},
	{"02/01/06", true},
	{"01/02/2006", false},
	{"01/02/06", true},
	{"Jan 2, 2006", false},
	{"Jan 2, 06", true},
	{"Jan 2 2006", false},
	{"Jan 2 06", true},
}

// ParseDate parses a classifier date string against the supported formats in
// priority order. Two-digit years are anchored to the 2000s. Returns nil when
// nothing matches; callers treat nil as "date unknown".
func ParseDate(raw string) *time.Time {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return nil
	}

	for _, dl := range dateLayouts {
		t, err := time.Parse(dl.layout, candidate)
		if err != nil {
			continue
		}
		if dl.twoDigitYear && t.Year() < 2000 {
			t = t.AddDate(100, 0, 0)
		}
		return &t
	}
	return nil
}

// sanitizeUTF8 removes invalid UTF-8 sequences so classifier output can be
// stored in PostgreSQL text columns without encoding errors.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}

	var result strings.Builder
	result.Grow(len(s))
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && size == 1 {
			s = s[1:]
			continue
		}
		result.WriteRune(r)
		s = s[size:]
	}
	return result.String()
}
