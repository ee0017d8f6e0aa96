package template

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	schemas        map[string]*Schema
	customizations map[uuid.UUID]*Customization // keyed by company id
}

func (m *memStore) GetActiveByName(_ context.Context, name string) (*Schema, error) {
	return m.schemas[name], nil
}

func (m *memStore) GetCustomization(_ context.Context, companyID, templateID uuid.UUID) (*Customization, error) {
	c := m.customizations[companyID]
	if c == nil || c.TemplateSchemaID != templateID {
		return nil, nil
	}
	return c, nil
}

func (m *memStore) ListActive(_ context.Context) ([]*Schema, error) {
	var out []*Schema
	for _, s := range m.schemas {
		out = append(out, s)
	}
	return out, nil
}

func TestResolver(t *testing.T) {
	base := &Schema{
		ID:          uuid.New(),
		Name:        "cuenta-pyg",
		DisplayName: "Cuenta de Pérdidas y Ganancias",
		IsActive:    true,
		Definition: Definition{
			Columns:             []Column{{Name: "Concepto", Type: ColumnText, Required: true}},
			VariableYearColumns: true,
			Rules: []ValidationRule{
				{Type: RuleCalculationCheck, Severity: SeverityWarning, Message: "base rule"},
			},
		},
	}

	companyID := uuid.New()
	override := "PyG Grupo Ejemplo"
	custom := &Customization{
		ID:                  uuid.New(),
		CompanyID:           companyID,
		TemplateSchemaID:    base.ID,
		DisplayNameOverride: &override,
		AdditionalValidations: []ValidationRule{
			{Type: RuleRange, Severity: SeverityError, Message: "custom rule"},
		},
		IsActive: true,
	}

	store := &memStore{
		schemas:        map[string]*Schema{"cuenta-pyg": base},
		customizations: map[uuid.UUID]*Customization{companyID: custom},
	}
	resolver := NewResolver(store)

	t.Run("unknown template", func(t *testing.T) {
		_, err := resolver.Resolve(context.Background(), "nomina", nil)
		assert.ErrorIs(t, err, ErrTemplateNotFound)
	})

	t.Run("no company returns the base schema", func(t *testing.T) {
		got, err := resolver.Resolve(context.Background(), "cuenta-pyg", nil)
		require.NoError(t, err)
		assert.Equal(t, "Cuenta de Pérdidas y Ganancias", got.DisplayName)
		assert.Len(t, got.Definition.Rules, 1)
	})

	t.Run("company customization is merged in", func(t *testing.T) {
		got, err := resolver.Resolve(context.Background(), "cuenta-pyg", &companyID)
		require.NoError(t, err)

		assert.Equal(t, "PyG Grupo Ejemplo", got.DisplayName)
		require.Len(t, got.Definition.Rules, 2)
		assert.Equal(t, "custom rule", got.Definition.Rules[1].Message)

		// The base schema is never mutated.
		assert.Equal(t, "Cuenta de Pérdidas y Ganancias", base.DisplayName)
		assert.Len(t, base.Definition.Rules, 1)
	})

	t.Run("company without customization gets the base", func(t *testing.T) {
		other := uuid.New()
		got, err := resolver.Resolve(context.Background(), "cuenta-pyg", &other)
		require.NoError(t, err)
		assert.Equal(t, "Cuenta de Pérdidas y Ganancias", got.DisplayName)
	})
}

func TestMerge(t *testing.T) {
	base := &Schema{
		Name: "balance-situacion",
		Definition: Definition{
			Columns:             []Column{{Name: "Concepto", Type: ColumnText, Required: true}},
			VariableYearColumns: true,
		},
	}

	t.Run("column override replaces the whole list", func(t *testing.T) {
		got := Merge(base, &Customization{
			SchemaOverride: &DefinitionOverride{
				Columns: []Column{
					{Name: "Partida", Type: ColumnText, Required: true},
					{Name: "Notas", Type: ColumnText},
				},
			},
		})
		require.Len(t, got.Definition.Columns, 2)
		assert.Equal(t, "Partida", got.Definition.Columns[0].Name)
		assert.Len(t, base.Definition.Columns, 1)
	})

	t.Run("year pattern override", func(t *testing.T) {
		pattern := `^Ejercicio [0-9]{4}$`
		got := Merge(base, &Customization{
			SchemaOverride: &DefinitionOverride{YearColumnPattern: &pattern},
		})
		assert.True(t, got.YearPattern().MatchString("Ejercicio 2023"))
		assert.False(t, got.YearPattern().MatchString("2023"))
	})

	t.Run("nil override fields leave the base untouched", func(t *testing.T) {
		got := Merge(base, &Customization{SchemaOverride: &DefinitionOverride{}})
		assert.Equal(t, base.Definition.Columns, got.Definition.Columns)
		assert.True(t, got.Definition.VariableYearColumns)
	})
}
