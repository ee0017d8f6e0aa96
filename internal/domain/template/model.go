// Package template holds the versioned, company-customizable schemas that
// uploaded files are validated against, along with header matching and
// customization merge logic.
package template

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ColumnType is the semantic type of a template column
type ColumnType string

const (
	ColumnText    ColumnType = "text"
	ColumnNumber  ColumnType = "number"
	ColumnDate    ColumnType = "date"
	ColumnBoolean ColumnType = "boolean"
	ColumnEmail   ColumnType = "email"
	ColumnURL     ColumnType = "url"
)

// Severity classifies a validation finding
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// RuleType identifies a validation rule
type RuleType string

const (
	RuleRequiredFields   RuleType = "required_fields"
	RuleFormat           RuleType = "format"
	RuleRange            RuleType = "range"
	RuleCalculation      RuleType = "calculation"
	RuleCustom           RuleType = "custom"
	RuleBalanceCheck     RuleType = "balance_check"
	RuleCalculationCheck RuleType = "calculation_check"
)

// ValidationRule is a declarative check attached to a column or template
type ValidationRule struct {
	Type     RuleType `json:"type"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Pattern  string   `json:"pattern,omitempty"`
}

// Column describes one expected CSV column
type Column struct {
	Name        string           `json:"name"`
	Type        ColumnType       `json:"type"`
	Required    bool             `json:"required"`
	Description string           `json:"description,omitempty"`
	Rules       []ValidationRule `json:"validation_rules,omitempty"`
}

// DefaultYearPattern matches variable year columns such as "2023"
const DefaultYearPattern = `^[0-9]{4}$`

// Definition is the schema_definition payload stored as JSONB.
// Column names are unique within a definition.
type Definition struct {
	Columns             []Column         `json:"columns"`
	VariableYearColumns bool             `json:"variable_year_columns"`
	YearColumnPattern   string           `json:"year_column_pattern,omitempty"`
	ExpectedConcepts    []string         `json:"expected_concepts,omitempty"`
	Rules               []ValidationRule `json:"validation_rules,omitempty"`
}

// Schema is a versioned template. Once referenced by historical uploads it is
// immutable; changes go through new versions.
type Schema struct {
	ID          uuid.UUID
	Name        string
	DisplayName string
	Version     int
	Category    string
	Definition  Definition
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Column looks up a column by name, case-insensitively
func (s *Schema) Column(name string) *Column {
	for i := range s.Definition.Columns {
		if strings.EqualFold(s.Definition.Columns[i].Name, name) {
			return &s.Definition.Columns[i]
		}
	}
	return nil
}

// RequiredColumns returns the columns flagged as required
func (s *Schema) RequiredColumns() []Column {
	var required []Column
	for _, c := range s.Definition.Columns {
		if c.Required {
			required = append(required, c)
		}
	}
	return required
}

// YearPattern returns the compiled year-column regex, falling back to the
// default four-digit pattern when the definition omits or mangles its own.
func (s *Schema) YearPattern() *regexp.Regexp {
	pattern := s.Definition.YearColumnPattern
	if pattern == "" {
		pattern = DefaultYearPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return regexp.MustCompile(DefaultYearPattern)
	}
	return re
}

// DefinitionOverride is the company-supplied partial schema. Nil fields leave
// the base definition untouched; non-nil fields shallow-replace their key.
type DefinitionOverride struct {
	Columns             []Column `json:"columns,omitempty"`
	VariableYearColumns *bool    `json:"variable_year_columns,omitempty"`
	YearColumnPattern   *string  `json:"year_column_pattern,omitempty"`
	ExpectedConcepts    []string `json:"expected_concepts,omitempty"`
}

// Customization is a per-company override of a template. At most one active
// customization exists per (company, template) pair.
type Customization struct {
	ID                    uuid.UUID
	CompanyID             uuid.UUID
	TemplateSchemaID      uuid.UUID
	DisplayNameOverride   *string
	SchemaOverride        *DefinitionOverride
	AdditionalValidations []ValidationRule
	Notes                 string
	IsActive              bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}
