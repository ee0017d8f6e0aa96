package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/template"
)

func testSchema() *template.Schema {
	minAge := 0.0
	maxAge := 120.0
	return &template.Schema{
		Name: "empleados",
		Definition: template.Definition{
			Columns: []template.Column{
				{Name: "Nombre", Type: template.ColumnText, Required: true},
				{Name: "Edad", Type: template.ColumnNumber, Rules: []template.ValidationRule{
					{Type: template.RuleRange, Severity: template.SeverityError, Min: &minAge, Max: &maxAge},
				}},
				{Name: "Email", Type: template.ColumnEmail},
				{Name: "Alta", Type: template.ColumnDate},
			},
		},
	}
}

func TestValidateRows(t *testing.T) {
	v := NewValidator()

	t.Run("clean rows pass", func(t *testing.T) {
		headers := []string{"Nombre", "Edad", "Email", "Alta"}
		rows := [][]string{
			{"Ana", "34", "ana@example.com", "2023-01-15"},
			{"Luis", "41", "", "2022-06-01"},
		}
		res := v.ValidateRows(testSchema(), headers, rows)
		assert.True(t, res.IsValid)
		assert.Empty(t, res.Errors)
		assert.Equal(t, 2, res.Statistics.ValidRows)
	})

	t.Run("missing required column", func(t *testing.T) {
		headers := []string{"Edad", "Email"}
		res := v.ValidateRows(testSchema(), headers, [][]string{{"34", "ana@example.com"}})
		assert.False(t, res.IsValid)
		require.NotEmpty(t, res.Errors)
		assert.Equal(t, TypeRequired, res.Errors[0].Type)
		assert.Equal(t, "Nombre", res.Errors[0].Column)
	})

	t.Run("empty required field row numbered from 2", func(t *testing.T) {
		headers := []string{"Nombre", "Edad"}
		rows := [][]string{
			{"Ana", "34"},
			{"", "41"},
		}
		res := v.ValidateRows(testSchema(), headers, rows)
		require.Len(t, res.Errors, 1)
		assert.Equal(t, 3, res.Errors[0].Row)
		assert.Equal(t, TypeRequired, res.Errors[0].Type)
		assert.Equal(t, 1, res.Statistics.InvalidRows)
	})

	t.Run("empty optional field skipped", func(t *testing.T) {
		headers := []string{"Nombre", "Email"}
		res := v.ValidateRows(testSchema(), headers, [][]string{{"Ana", ""}})
		assert.True(t, res.IsValid)
	})

	t.Run("type mismatches", func(t *testing.T) {
		headers := []string{"Nombre", "Edad", "Email", "Alta"}
		rows := [][]string{
			{"Ana", "treinta", "no-es-email", "ayer"},
		}
		res := v.ValidateRows(testSchema(), headers, rows)
		assert.False(t, res.IsValid)
		assert.Len(t, res.Errors, 3)
		for _, e := range res.Errors {
			assert.Equal(t, TypeFormat, e.Type)
			assert.Equal(t, 2, e.Row)
		}
	})

	t.Run("range rule violation", func(t *testing.T) {
		headers := []string{"Nombre", "Edad"}
		res := v.ValidateRows(testSchema(), headers, [][]string{{"Ana", "250"}})
		require.Len(t, res.Errors, 1)
		assert.Equal(t, TypeRange, res.Errors[0].Type)
	})

	t.Run("accumulates across all rows", func(t *testing.T) {
		headers := []string{"Nombre", "Edad"}
		rows := [][]string{
			{"", "x"},
			{"", "y"},
			{"Ana", "34"},
		}
		res := v.ValidateRows(testSchema(), headers, rows)
		assert.Len(t, res.Errors, 4)
		assert.Equal(t, 1, res.Statistics.ValidRows)
		assert.Equal(t, 2, res.Statistics.InvalidRows)
	})

	t.Run("column count mismatch is a warning", func(t *testing.T) {
		headers := []string{"Nombre", "Edad"}
		res := v.ValidateRows(testSchema(), headers, [][]string{{"Ana"}})
		assert.True(t, res.IsValid)
		require.NotEmpty(t, res.Warnings)
		assert.Equal(t, TypeStructure, res.Warnings[0].Type)
	})
}

func TestValidateRowsYearColumns(t *testing.T) {
	v := NewValidator()
	schema := &template.Schema{
		Name: "cuenta-pyg",
		Definition: template.Definition{
			Columns: []template.Column{
				{Name: "Concepto", Type: template.ColumnText, Required: true},
			},
			VariableYearColumns: true,
		},
	}
	headers := []string{"Concepto", "2023", "2024"}

	t.Run("valid amounts pass", func(t *testing.T) {
		rows := [][]string{{"Importe neto de la cifra de negocios", "1.234,56", "2000"}}
		res := v.ValidateRows(schema, headers, rows)
		assert.True(t, res.IsValid)
	})

	t.Run("garbage amount fails", func(t *testing.T) {
		rows := [][]string{{"Importe neto de la cifra de negocios", "n/a", "2000"}}
		res := v.ValidateRows(schema, headers, rows)
		require.Len(t, res.Errors, 1)
		assert.Equal(t, TypeInvalidAmount, res.Errors[0].Type)
		assert.Equal(t, "2023", res.Errors[0].Column)
	})
}

func TestForbiddenConceptTerms(t *testing.T) {
	v := NewValidator()
	schema := &template.Schema{
		Name: "cuenta-pyg",
		Definition: template.Definition{
			Columns: []template.Column{
				{Name: "Concepto", Type: template.ColumnText, Required: true},
			},
			Rules: []template.ValidationRule{
				{Type: template.RuleCalculationCheck, Severity: template.SeverityWarning},
			},
		},
	}
	headers := []string{"Concepto"}
	rows := [][]string{
		{"Importe neto de la cifra de negocios"},
		{"EBITDA ajustado"},
		{"Margen bruto"},
	}
	res := v.ValidateRows(schema, headers, rows)
	assert.True(t, res.IsValid)
	require.Len(t, res.Warnings, 2)
	assert.Equal(t, 3, res.Warnings[0].Row)
	assert.Equal(t, TypeCalculation, res.Warnings[0].Type)
	assert.Equal(t, 4, res.Warnings[1].Row)
}

func TestTermScanner(t *testing.T) {
	s := NewTermScanner()

	assert.Nil(t, s.Scan("Gastos de personal"))
	assert.Contains(t, s.Scan("EBITDA"), "ebitda")
	assert.Contains(t, s.Scan("Margen operativo"), "margen")
	assert.Contains(t, s.Scan("Ratio de cobertura"), "ratio")
	assert.Contains(t, s.Scan("% sobre ventas"), "%")
}
