package validation

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/template"
)

var (
	ErrUnbalancedEntries      = errors.New("unbalanced journal entries")
	ErrUnbalancedTrialBalance = errors.New("unbalanced trial balance")
	ErrUnbalancedBalanceSheet = errors.New("unbalanced balance sheet")
)

// Tolerance is the absolute currency-unit slack allowed by every coherence
// check. Fixed by design, not configurable per call.
var Tolerance = decimal.NewFromFloat(0.01)

// JournalEntry is one double-entry line. Exactly one of Debit/Credit must
// be positive.
type JournalEntry struct {
	Account string  `json:"account"`
	Debit   float64 `json:"debit"`
	Credit  float64 `json:"credit"`
}

// JournalSummary reports totals for a journal entry check.
type JournalSummary struct {
	TotalDebit  float64 `json:"total_debit"`
	TotalCredit float64 `json:"total_credit"`
	Difference  float64 `json:"difference"`
}

// ValidateJournal enforces the per-entry debit XOR credit rule and the
// aggregate balance. Per-entry violations are reported individually and
// reject the set regardless of totals.
func ValidateJournal(entries []JournalEntry) (*JournalSummary, []Error, error) {
	var findings []Error
	totalDebit := decimal.Zero
	totalCredit := decimal.Zero

	for i, e := range entries {
		hasDebit := e.Debit > 0
		hasCredit := e.Credit > 0
		if hasDebit == hasCredit {
			findings = append(findings, Error{
				Row:      i + 1,
				Column:   e.Account,
				Message:  "el asiento debe tener exactamente uno de debe o haber",
				Type:     TypeBalance,
				Severity: template.SeverityError,
			})
		}
		totalDebit = totalDebit.Add(decimal.NewFromFloat(e.Debit))
		totalCredit = totalCredit.Add(decimal.NewFromFloat(e.Credit))
	}

	diff := totalDebit.Sub(totalCredit)
	summary := &JournalSummary{
		TotalDebit:  mustFloat(totalDebit),
		TotalCredit: mustFloat(totalCredit),
		Difference:  mustFloat(diff),
	}

	if len(findings) > 0 {
		return summary, findings, fmt.Errorf("%w: %d asientos inválidos", ErrUnbalancedEntries, len(findings))
	}
	if diff.Abs().GreaterThan(Tolerance) {
		return summary, findings, fmt.Errorf("%w: diferencia %s", ErrUnbalancedEntries, diff.StringFixed(2))
	}
	return summary, findings, nil
}

// TrialBalanceLine is one raw account line, amounts as uploaded.
type TrialBalanceLine struct {
	Account string `json:"account"`
	Debit   string `json:"debit"`
	Credit  string `json:"credit"`
}

// AccountTotals is the per-account breakdown of a trial balance.
type AccountTotals struct {
	Account string  `json:"account"`
	Debit   float64 `json:"debit"`
	Credit  float64 `json:"credit"`
}

// TrialBalanceSummary is always returned, balanced or not, so the caller
// can present the full breakdown.
type TrialBalanceSummary struct {
	Accounts    []AccountTotals `json:"accounts"`
	TotalDebit  float64         `json:"total_debit"`
	TotalCredit float64         `json:"total_credit"`
	Difference  float64         `json:"difference"`
}

// ValidateTrialBalance sanitizes every amount, accumulates per-account and
// grand totals, and fails when total debits and credits differ beyond the
// tolerance. Unparsable amounts are reported per line and counted as zero.
func ValidateTrialBalance(lines []TrialBalanceLine, sanitize func(string) (float64, error)) (*TrialBalanceSummary, []Error, error) {
	summary := &TrialBalanceSummary{Accounts: make([]AccountTotals, 0, len(lines))}
	var findings []Error
	totalDebit := decimal.Zero
	totalCredit := decimal.Zero

	for i, line := range lines {
		debit := parseSide(line.Debit, line.Account, "debe", i, sanitize, &findings)
		credit := parseSide(line.Credit, line.Account, "haber", i, sanitize, &findings)
		summary.Accounts = append(summary.Accounts, AccountTotals{
			Account: line.Account,
			Debit:   mustFloat(debit),
			Credit:  mustFloat(credit),
		})
		totalDebit = totalDebit.Add(debit)
		totalCredit = totalCredit.Add(credit)
	}

	diff := totalDebit.Sub(totalCredit)
	summary.TotalDebit = mustFloat(totalDebit)
	summary.TotalCredit = mustFloat(totalCredit)
	summary.Difference = mustFloat(diff)

	if len(findings) > 0 {
		return summary, findings, fmt.Errorf("%w: importes inválidos", ErrUnbalancedTrialBalance)
	}
	if diff.Abs().GreaterThan(Tolerance) {
		return summary, findings, fmt.Errorf("%w: diferencia %s", ErrUnbalancedTrialBalance, diff.StringFixed(2))
	}
	return summary, findings, nil
}

func parseSide(raw, account, side string, i int, sanitize func(string) (float64, error), findings *[]Error) decimal.Decimal {
	if raw == "" {
		return decimal.Zero
	}
	v, err := sanitize(raw)
	if err != nil {
		*findings = append(*findings, Error{
			Row:      i + 1,
			Column:   account,
			Value:    raw,
			Message:  fmt.Sprintf("importe de %s inválido", side),
			Type:     TypeInvalidAmount,
			Severity: template.SeverityError,
		})
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

// BalanceSheet carries the three section totals of a balance sheet.
type BalanceSheet struct {
	Assets      float64 `json:"assets"`
	Liabilities float64 `json:"liabilities"`
	Equity      float64 `json:"equity"`
}

// ValidateBalanceSheet enforces assets = liabilities + equity within
// tolerance. The returned diff is assets minus the right-hand side.
func ValidateBalanceSheet(b BalanceSheet) (float64, error) {
	assets := decimal.NewFromFloat(b.Assets)
	rhs := decimal.NewFromFloat(b.Liabilities).Add(decimal.NewFromFloat(b.Equity))
	diff := assets.Sub(rhs)
	if diff.Abs().GreaterThan(Tolerance) {
		return mustFloat(diff), fmt.Errorf("%w: diff=%s", ErrUnbalancedBalanceSheet, diff.StringFixed(2))
	}
	return mustFloat(diff), nil
}

// RatioInputs holds the six figures needed for the sanity ratios.
type RatioInputs struct {
	CurrentAssets      float64
	CurrentLiabilities float64
	TotalDebt          float64
	TotalAssets        float64
	NetIncome          float64
	Revenue            float64
}

// RatioWarnings flags implausible ratios. Warnings never block a load,
// they only surface in the report.
func RatioWarnings(in RatioInputs) []Error {
	var warnings []Error
	warn := func(msg string) {
		warnings = append(warnings, Error{
			Message:  msg,
			Type:     TypeCalculation,
			Severity: template.SeverityWarning,
		})
	}

	if in.CurrentLiabilities != 0 {
		current := in.CurrentAssets / in.CurrentLiabilities
		if current < 0.5 || current > 10 {
			warn(fmt.Sprintf("ratio de liquidez fuera de lo habitual: %.2f", current))
		}
	}
	if in.TotalAssets != 0 {
		debtToAssets := in.TotalDebt / in.TotalAssets
		if debtToAssets > 0.9 {
			warn(fmt.Sprintf("endeudamiento sobre activos muy alto: %.2f", debtToAssets))
		}
	}
	if in.Revenue != 0 {
		margin := in.NetIncome / in.Revenue
		if margin < -0.5 || margin > 0.5 {
			warn(fmt.Sprintf("margen neto fuera de lo habitual: %.2f", margin))
		}
	}
	return warnings
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
