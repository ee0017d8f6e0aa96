// Package normalizer handles tolerant numeric and date parsing across
// locales. Amounts arrive with arbitrary currency symbols and either
// European (1.234,56) or US (1,234.56) grouping.
package normalizer

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidDate   = errors.New("invalid date")
)

// currency symbols stripped before numeric parsing
const currencySymbols = "$€£¥₹"

// SanitizeAmount validates a numeric amount and rounds it to 2 decimals,
// half away from zero. Non-finite input is the only failure.
func SanitizeAmount(v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, v)
	}
	return round2(v), nil
}

// SanitizeAmountString parses a currency-formatted string into a canonical
// signed amount rounded to 2 decimals.
//
// Grouping is disambiguated by the last occurrence of ',' versus '.': the
// later one is the decimal separator. A lone comma is treated as a decimal
// separator. All failures wrap ErrInvalidAmount and embed the raw input.
func SanitizeAmountString(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	for _, sym := range currencySymbols {
		s = strings.ReplaceAll(s, string(sym), "")
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastComma > lastDot:
		// European: 1.234,56
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case lastComma >= 0:
		// US: 1,234.56
		s = strings.ReplaceAll(s, ",", "")
	}

	s = strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == '.' || r == '-' {
			return r
		}
		return -1
	}, s)

	val, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(val) || math.IsInf(val, 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return round2(val), nil
}

// round2 rounds half away from zero at the second decimal, so that
// 123.456 -> 123.46 and 123.454 -> 123.45 regardless of binary
// representation quirks.
func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// date formats accepted for date-typed template columns
var dateFormats = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"02-01-2006",
	"2006/01/02",
	"02.01.2006",
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
}

// ParseDate parses a date cell, accepting common European, American, and ISO
// layouts. Years outside 1900-2100 are rejected as implausible for
// accounting data.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}

	for _, format := range dateFormats {
		t, err := time.Parse(format, s)
		if err != nil {
			continue
		}
		if t.Year() < 1900 || t.Year() > 2100 {
			return time.Time{}, fmt.Errorf("%w: year out of range in %q", ErrInvalidDate, raw)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
}
