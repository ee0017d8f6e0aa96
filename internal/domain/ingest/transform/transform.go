// Package transform converts wide statement rows (one concept per row,
// one column per year) into long normalized records, one per concept-year
// amount.
package transform

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/ingest/normalizer"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/template"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/validation"
)

// Kind selects the statement-specific rules applied during the fold.
type Kind string

const (
	KindProfitLoss   Kind = "pyg"
	KindBalanceSheet Kind = "balance"
	KindGeneric      Kind = "generic"
)

// Record is one normalized concept-year amount.
type Record struct {
	Concept string  `json:"concept"`
	Year    int     `json:"year"`
	Amount  float64 `json:"amount"`
	Section string  `json:"section,omitempty"`
	Notes   string  `json:"notes,omitempty"`
}

// Result carries the emitted records plus any per-row findings. Findings
// with error severity mean the file must not be loaded.
type Result struct {
	Records  []Record
	Findings []validation.Error
}

var yearRe = regexp.MustCompile(`^[0-9]{4}$`)

var plConcepts = buildConceptSet(template.PGCProfitLossConcepts)

func buildConceptSet(concepts []string) map[string]string {
	m := make(map[string]string, len(concepts))
	for _, c := range concepts {
		m[strings.ToLower(c)] = c
	}
	return m
}

// WideToLong folds the parsed rows into long records. Section headers update
// the running section and emit nothing. Empty year cells are skipped.
//
// For KindProfitLoss every concept must be on the chart-of-accounts
// whitelist; unknown concepts and negative amounts are rejected.
func WideToLong(kind Kind, headers []string, rows [][]string) *Result {
	res := &Result{Records: []Record{}}

	years := make(map[int]int) // column index -> year
	notesIdx := -1
	for i, h := range headers {
		h = strings.TrimSpace(h)
		if yearRe.MatchString(h) {
			y, _ := strconv.Atoi(h)
			years[i] = y
		}
		if strings.EqualFold(h, "Notas") {
			notesIdx = i
		}
	}

	section := ""
	for i, row := range rows {
		rowNum := i + 2
		if len(row) == 0 {
			continue
		}
		concept := strings.TrimSpace(row[0])
		if concept == "" {
			continue
		}

		if kind == KindBalanceSheet && isSectionHeader(concept) {
			section = concept
			continue
		}

		canonical := concept
		if kind == KindProfitLoss {
			c, ok := plConcepts[strings.ToLower(concept)]
			if !ok {
				res.Findings = append(res.Findings, validation.Error{
					Row:      rowNum,
					Column:   headers[0],
					Value:    concept,
					Message:  fmt.Sprintf("concepto no reconocido en el plan contable: %q", concept),
					Type:     validation.TypeConceptDenied,
					Severity: template.SeverityError,
				})
				continue
			}
			canonical = c
		}

		notes := ""
		if notesIdx >= 0 && notesIdx < len(row) {
			notes = strings.TrimSpace(row[notesIdx])
		}

		for idx, year := range years {
			if idx >= len(row) {
				continue
			}
			cell := strings.TrimSpace(row[idx])
			if cell == "" {
				continue
			}
			amount, err := normalizer.SanitizeAmountString(cell)
			if err != nil {
				res.Findings = append(res.Findings, validation.Error{
					Row:      rowNum,
					Column:   headers[idx],
					Value:    cell,
					Message:  fmt.Sprintf("importe inválido %q", cell),
					Type:     validation.TypeInvalidAmount,
					Severity: template.SeverityError,
				})
				continue
			}
			if kind == KindProfitLoss && amount < 0 {
				res.Findings = append(res.Findings, validation.Error{
					Row:      rowNum,
					Column:   headers[idx],
					Value:    cell,
					Message:  "los importes de la cuenta de resultados deben ser positivos, el signo lo determina el concepto",
					Type:     validation.TypeInvalidAmount,
					Severity: template.SeverityError,
				})
				continue
			}

			res.Records = append(res.Records, Record{
				Concept: canonical,
				Year:    year,
				Amount:  amount,
				Section: section,
				Notes:   notes,
			})
		}
	}

	sortRecords(res.Records)
	return res
}

func isSectionHeader(concept string) bool {
	upper := strings.ToUpper(concept)
	for _, h := range template.BalanceSectionHeaders {
		if upper == h {
			return true
		}
	}
	return false
}

// SectionTotals sums balance records per balance-sheet side, keyed by the
// section kinds asset, equity, and liability.
func SectionTotals(records []Record, year int) map[string]float64 {
	totals := map[string]float64{}
	for _, r := range records {
		if r.Year != year {
			continue
		}
		kind := template.SectionKind(strings.ToUpper(r.Section))
		if kind == "" {
			continue
		}
		totals[kind] += r.Amount
	}
	return totals
}

// Years lists the distinct years present in the records, ascending.
func Years(records []Record) []int {
	seen := map[int]bool{}
	var out []int
	for _, r := range records {
		if !seen[r.Year] {
			seen[r.Year] = true
			out = append(out, r.Year)
		}
	}
	sort.Ints(out)
	return out
}

// sortRecords orders by year then row order so output order never depends
// on map iteration over year columns.
func sortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Year < records[j].Year
	})
}
