package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func yearSchema(name string, columns ...Column) *Schema {
	return &Schema{
		Name:     name,
		IsActive: true,
		Definition: Definition{
			Columns:             columns,
			VariableYearColumns: true,
		},
	}
}

func TestMatchHeaders(t *testing.T) {
	schema := yearSchema("cuenta-pyg",
		Column{Name: "Concepto", Type: ColumnText, Required: true},
	)

	t.Run("exact match with year columns", func(t *testing.T) {
		m := MatchHeaders(schema, []string{"Concepto", "2022", "2023"})

		assert.Equal(t, []string{"Concepto"}, m.Matched)
		assert.Empty(t, m.Missing)
		assert.Empty(t, m.Extra)
		assert.Equal(t, []string{"2022", "2023"}, m.YearColumns)
		// 1/1 matched plus the full required boost, clamped to 1.
		assert.Equal(t, 1.0, m.Confidence)
	})

	t.Run("headers match case-insensitively", func(t *testing.T) {
		m := MatchHeaders(schema, []string{"CONCEPTO", "2023"})
		assert.Equal(t, []string{"Concepto"}, m.Matched)
	})

	t.Run("missing required column scores zero", func(t *testing.T) {
		m := MatchHeaders(schema, []string{"Fecha", "Importe"})
		assert.Empty(t, m.Matched)
		assert.Equal(t, []string{"Concepto"}, m.Missing)
		assert.Equal(t, 0.0, m.Confidence)
	})

	t.Run("near-miss headers produce suggestions", func(t *testing.T) {
		m := MatchHeaders(schema, []string{"Conceptos", "2023"})
		require.NotNil(t, m.Suggestions)
		assert.Equal(t, "Conceptos", m.Suggestions["Concepto"])
	})

	t.Run("excess extra columns dampen confidence", func(t *testing.T) {
		clean := MatchHeaders(schema, []string{"Concepto", "2023"})
		noisy := MatchHeaders(schema, []string{"Concepto", "2023", "X", "Y"})
		assert.Less(t, noisy.Confidence, clean.Confidence)
	})

	t.Run("year columns respect a custom pattern", func(t *testing.T) {
		pattern := `^Año [0-9]{4}$`
		s := yearSchema("custom", Column{Name: "Concepto", Type: ColumnText, Required: true})
		s.Definition.YearColumnPattern = pattern

		m := MatchHeaders(s, []string{"Concepto", "Año 2023", "2022"})
		assert.Equal(t, []string{"Año 2023"}, m.YearColumns)
		assert.Contains(t, m.Extra, "2022")
	})
}

func TestDetectTemplates(t *testing.T) {
	schemas := Defaults()

	t.Run("profit and loss headers pick cuenta-pyg", func(t *testing.T) {
		matches := DetectTemplates(schemas, []string{"Concepto", "2022", "2023"})
		require.NotEmpty(t, matches)
		assert.GreaterOrEqual(t, matches[0].Confidence, AutoSelectThreshold)

		// Results come back sorted best first.
		for i := 1; i < len(matches); i++ {
			assert.GreaterOrEqual(t, matches[i-1].Confidence, matches[i].Confidence)
		}
	})

	t.Run("debt pool headers pick pool-deuda", func(t *testing.T) {
		matches := DetectTemplates(schemas, []string{"Entidad", "Tipo", "Importe Inicial", "Pendiente", "Tipo Interes", "Vencimiento"})
		require.NotEmpty(t, matches)
		assert.Equal(t, "pool-deuda", matches[0].Name)
	})

	t.Run("unrelated headers match nothing", func(t *testing.T) {
		matches := DetectTemplates(schemas, []string{"Nombre", "Apellidos", "DNI"})
		assert.Empty(t, matches)
	})
}
