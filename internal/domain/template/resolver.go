package template

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrTemplateNotFound is returned when the named template does not exist or
// is inactive.
var ErrTemplateNotFound = errors.New("template not found")

// Store is the subset of the repository the resolver needs
type Store interface {
	GetActiveByName(ctx context.Context, name string) (*Schema, error)
	GetCustomization(ctx context.Context, companyID, templateID uuid.UUID) (*Customization, error)
	ListActive(ctx context.Context) ([]*Schema, error)
}

// Resolver produces effective schemas: base template merged with the
// requesting company's customization.
type Resolver struct {
	store Store
}

// NewResolver creates a resolver backed by the given store
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve fetches the named template and, when a company id is given, merges
// that company's active customization into it.
func (r *Resolver) Resolve(ctx context.Context, name string, companyID *uuid.UUID) (*Schema, error) {
	base, err := r.store.GetActiveByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if base == nil || !base.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}

	if companyID == nil {
		return base, nil
	}

	custom, err := r.store.GetCustomization(ctx, *companyID, base.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load customization: %w", err)
	}
	if custom == nil || !custom.IsActive {
		return base, nil
	}

	effective := Merge(base, custom)
	return effective, nil
}

// ListActive returns all active base schemas, used for template detection.
func (r *Resolver) ListActive(ctx context.Context) ([]*Schema, error) {
	return r.store.ListActive(ctx)
}

// Merge produces the effective schema from a base and a customization.
// The merge is a documented contract, field by field:
//
//   - DisplayName: replaced only when the override is present.
//   - Definition.Columns: shallow-replaced as a whole when the override
//     carries a column list; individual columns are not deep-merged.
//   - Definition.VariableYearColumns, YearColumnPattern, ExpectedConcepts:
//     replaced when present in the override.
//   - Definition.Rules: the customization's additional validations are
//     APPENDED to the base rules, never replacing them.
//
// Merge never mutates its inputs.
func Merge(base *Schema, custom *Customization) *Schema {
	effective := *base
	effective.Definition = cloneDefinition(base.Definition)

	if custom.DisplayNameOverride != nil && *custom.DisplayNameOverride != "" {
		effective.DisplayName = *custom.DisplayNameOverride
	}

	if ov := custom.SchemaOverride; ov != nil {
		if ov.Columns != nil {
			effective.Definition.Columns = append([]Column(nil), ov.Columns...)
		}
		if ov.VariableYearColumns != nil {
			effective.Definition.VariableYearColumns = *ov.VariableYearColumns
		}
		if ov.YearColumnPattern != nil {
			effective.Definition.YearColumnPattern = *ov.YearColumnPattern
		}
		if ov.ExpectedConcepts != nil {
			effective.Definition.ExpectedConcepts = append([]string(nil), ov.ExpectedConcepts...)
		}
	}

	if len(custom.AdditionalValidations) > 0 {
		effective.Definition.Rules = append(effective.Definition.Rules, custom.AdditionalValidations...)
	}

	return &effective
}

func cloneDefinition(d Definition) Definition {
	clone := d
	clone.Columns = append([]Column(nil), d.Columns...)
	clone.ExpectedConcepts = append([]string(nil), d.ExpectedConcepts...)
	clone.Rules = append([]ValidationRule(nil), d.Rules...)
	return clone
}
