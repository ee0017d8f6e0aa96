// Package money provides currency-safe helpers for report amounts.
// It wraps go-money for ISO-4217 handling and shopspring/decimal for precision.
package money

import (
	"errors"
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Common currency codes (ISO-4217)
const (
	EUR = "EUR" // Euro
	USD = "USD" // US Dollar
	GBP = "GBP" // British Pound
)

// ErrUnknownCurrency is returned for codes go-money does not recognize.
var ErrUnknownCurrency = errors.New("unknown currency code")

// NormalizeCode uppercases and validates an ISO-4217 currency code.
// Empty input defaults to EUR, the currency of the canonical upload bundle.
func NormalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return EUR, nil
	}
	if gomoney.GetCurrency(code) == nil {
		return "", ErrUnknownCurrency
	}
	return code, nil
}

// FromFloat converts a float amount into minor units for the given currency,
// using decimal arithmetic to avoid binary rounding drift.
func FromFloat(amount float64, code string) *gomoney.Money {
	currency := gomoney.GetCurrency(code)
	if currency == nil {
		currency = gomoney.GetCurrency(EUR)
	}
	d := decimal.NewFromFloat(amount)
	minor := d.Mul(decimal.New(1, int32(currency.Fraction))).Round(0).IntPart()
	return gomoney.New(minor, currency.Code)
}

// Format renders an amount with its currency symbol for report messages.
func Format(amount float64, code string) string {
	return FromFloat(amount, code).Display()
}
