// Package validation checks parsed rows against an effective template
// schema and enforces accounting coherence rules.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/ingest/normalizer"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/template"
)

// Error kinds reported in validation results.
const (
	TypeRequired      = "required"
	TypeFormat        = "format"
	TypeRange         = "range"
	TypeStructure     = "structure"
	TypeBalance       = "balance"
	TypeCalculation   = "calculation"
	TypeConceptDenied = "concept_not_allowed"
	TypeInvalidAmount = "invalid_amount"
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
var urlRe = regexp.MustCompile(`^https?://\S+$`)

// Error is a single validation finding tied to an optional row and column.
type Error struct {
	Row      int               `json:"row,omitempty"`
	Column   string            `json:"column,omitempty"`
	Value    string            `json:"value,omitempty"`
	Message  string            `json:"message"`
	Type     string            `json:"type"`
	Severity template.Severity `json:"severity"`
}

// Statistics summarizes one validation pass.
type Statistics struct {
	TotalRows    int `json:"total_rows"`
	ValidRows    int `json:"valid_rows"`
	InvalidRows  int `json:"invalid_rows"`
	ErrorCount   int `json:"error_count"`
	WarningCount int `json:"warning_count"`
}

// Results is the full report for one file. Warnings never affect IsValid.
type Results struct {
	IsValid    bool       `json:"is_valid"`
	Errors     []Error    `json:"errors"`
	Warnings   []Error    `json:"warnings"`
	Statistics Statistics `json:"statistics"`
}

func (r *Results) add(e Error) {
	if e.Severity == template.SeverityError {
		r.Errors = append(r.Errors, e)
		return
	}
	r.Warnings = append(r.Warnings, e)
}

// fieldCheck validates a single non-empty cell for one column kind.
type fieldCheck func(value string) error

var fieldChecks = map[template.ColumnType]fieldCheck{
	template.ColumnText:    func(string) error { return nil },
	template.ColumnBoolean: checkBoolean,
	template.ColumnNumber:  checkNumber,
	template.ColumnDate:    checkDate,
	template.ColumnEmail:   checkEmail,
	template.ColumnURL:     checkURL,
}

func checkNumber(v string) error {
	if _, err := normalizer.SanitizeAmountString(v); err != nil {
		return fmt.Errorf("no es un número válido")
	}
	return nil
}

func checkDate(v string) error {
	if _, err := normalizer.ParseDate(v); err != nil {
		return fmt.Errorf("no es una fecha válida")
	}
	return nil
}

func checkEmail(v string) error {
	if !emailRe.MatchString(v) {
		return fmt.Errorf("no es un email válido")
	}
	return nil
}

func checkURL(v string) error {
	if !urlRe.MatchString(v) {
		return fmt.Errorf("no es una URL válida")
	}
	return nil
}

func checkBoolean(v string) error {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "false", "sí", "si", "no", "1", "0":
		return nil
	}
	return fmt.Errorf("no es un valor booleano válido")
}

// Validator runs row and field checks for an effective schema.
type Validator struct {
	terms *TermScanner
}

func NewValidator() *Validator {
	return &Validator{terms: NewTermScanner()}
}

// ValidateRows checks every data row against the schema and accumulates all
// findings. Row numbers start at 2: row 1 is the header. Missing required
// columns short-circuit with a single structural error per column.
func (v *Validator) ValidateRows(schema *template.Schema, headers []string, rows [][]string) *Results {
	res := &Results{Errors: []Error{}, Warnings: []Error{}}
	res.Statistics.TotalRows = len(rows)

	colIndex := headerIndex(headers)
	yearRe := schema.YearPattern()

	for _, col := range schema.Definition.Columns {
		if _, ok := colIndex[strings.ToLower(col.Name)]; !ok && col.Required {
			res.add(Error{
				Column:   col.Name,
				Message:  fmt.Sprintf("falta la columna requerida %q", col.Name),
				Type:     TypeRequired,
				Severity: template.SeverityError,
			})
		}
	}

	for i, row := range rows {
		rowNum := i + 2
		rowValid := true

		if len(row) != len(headers) {
			res.add(Error{
				Row:      rowNum,
				Message:  fmt.Sprintf("la fila tiene %d columnas, se esperaban %d", len(row), len(headers)),
				Type:     TypeStructure,
				Severity: template.SeverityWarning,
			})
		}

		for _, col := range schema.Definition.Columns {
			idx, mapped := colIndex[strings.ToLower(col.Name)]
			if !mapped || idx >= len(row) {
				continue
			}
			value := strings.TrimSpace(row[idx])

			if value == "" {
				if col.Required {
					res.add(Error{
						Row:      rowNum,
						Column:   col.Name,
						Message:  fmt.Sprintf("el campo requerido %q está vacío", col.Name),
						Type:     TypeRequired,
						Severity: template.SeverityError,
					})
					rowValid = false
				}
				continue
			}

			if check, ok := fieldChecks[col.Type]; ok {
				if err := check(value); err != nil {
					res.add(Error{
						Row:      rowNum,
						Column:   col.Name,
						Value:    value,
						Message:  err.Error(),
						Type:     TypeFormat,
						Severity: template.SeverityError,
					})
					rowValid = false
					continue
				}
			}

			if !v.applyColumnRules(res, col, rowNum, value) {
				rowValid = false
			}
		}

		if schema.Definition.VariableYearColumns {
			if !v.validateYearCells(res, headers, yearRe, row, rowNum) {
				rowValid = false
			}
		}

		if rowValid {
			res.Statistics.ValidRows++
		} else {
			res.Statistics.InvalidRows++
		}
	}

	v.applyTemplateRules(res, schema, headers, rows)

	res.Statistics.ErrorCount = len(res.Errors)
	res.Statistics.WarningCount = len(res.Warnings)
	res.IsValid = len(res.Errors) == 0
	return res
}

// applyColumnRules runs declared range and format rules on one cell.
// Reports whether the cell passed every error-severity rule.
func (v *Validator) applyColumnRules(res *Results, col template.Column, rowNum int, value string) bool {
	ok := true
	for _, rule := range col.Rules {
		switch rule.Type {
		case template.RuleRange:
			amount, err := normalizer.SanitizeAmountString(value)
			if err != nil {
				continue
			}
			if (rule.Min != nil && amount < *rule.Min) || (rule.Max != nil && amount > *rule.Max) {
				res.add(Error{
					Row:      rowNum,
					Column:   col.Name,
					Value:    value,
					Message:  ruleMessage(rule, fmt.Sprintf("el valor %v está fuera de rango", amount)),
					Type:     TypeRange,
					Severity: rule.Severity,
				})
				if rule.Severity == template.SeverityError {
					ok = false
				}
			}
		case template.RuleFormat:
			if rule.Pattern == "" {
				continue
			}
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				continue
			}
			if !re.MatchString(value) {
				res.add(Error{
					Row:      rowNum,
					Column:   col.Name,
					Value:    value,
					Message:  ruleMessage(rule, fmt.Sprintf("el valor no cumple el formato %q", rule.Pattern)),
					Type:     TypeFormat,
					Severity: rule.Severity,
				})
				if rule.Severity == template.SeverityError {
					ok = false
				}
			}
		}
	}
	return ok
}

// validateYearCells checks that non-empty cells under four-digit-year headers
// hold parseable amounts.
func (v *Validator) validateYearCells(res *Results, headers []string, yearRe *regexp.Regexp, row []string, rowNum int) bool {
	ok := true
	for i, h := range headers {
		if !yearRe.MatchString(strings.TrimSpace(h)) || i >= len(row) {
			continue
		}
		value := strings.TrimSpace(row[i])
		if value == "" {
			continue
		}
		if _, err := normalizer.SanitizeAmountString(value); err != nil {
			res.add(Error{
				Row:      rowNum,
				Column:   h,
				Value:    value,
				Message:  fmt.Sprintf("el importe %q no es válido", value),
				Type:     TypeInvalidAmount,
				Severity: template.SeverityError,
			})
			ok = false
		}
	}
	return ok
}

// applyTemplateRules runs cross-row rules declared at the template level.
func (v *Validator) applyTemplateRules(res *Results, schema *template.Schema, headers []string, rows [][]string) {
	conceptIdx := conceptColumn(schema, headers)
	if conceptIdx < 0 {
		return
	}
	for _, rule := range schema.Definition.Rules {
		if rule.Type != template.RuleCalculationCheck {
			continue
		}
		for i, row := range rows {
			if conceptIdx >= len(row) {
				continue
			}
			concept := row[conceptIdx]
			if terms := v.terms.Scan(concept); len(terms) > 0 {
				res.add(Error{
					Row:      i + 2,
					Column:   headers[conceptIdx],
					Value:    concept,
					Message:  ruleMessage(rule, fmt.Sprintf("el concepto contiene métricas derivadas: %s", strings.Join(terms, ", "))),
					Type:     TypeCalculation,
					Severity: rule.Severity,
				})
			}
		}
	}
}

func ruleMessage(rule template.ValidationRule, fallback string) string {
	if rule.Message != "" {
		return rule.Message
	}
	return fallback
}

func headerIndex(headers []string) map[string]int {
	m := make(map[string]int, len(headers))
	for i, h := range headers {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, exists := m[key]; !exists {
			m[key] = i
		}
	}
	return m
}

func conceptColumn(schema *template.Schema, headers []string) int {
	for i, h := range headers {
		if strings.EqualFold(strings.TrimSpace(h), "Concepto") {
			return i
		}
	}
	if len(schema.Definition.Columns) > 0 {
		target := strings.ToLower(schema.Definition.Columns[0].Name)
		for i, h := range headers {
			if strings.ToLower(strings.TrimSpace(h)) == target {
				return i
			}
		}
	}
	return -1
}
