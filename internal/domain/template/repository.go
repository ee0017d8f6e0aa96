package template

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the repository uses; pgxmock satisfies it
// in tests.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresRepository implements Store using PostgreSQL
type PostgresRepository struct {
	pool DB
}

// NewPostgresRepository creates a new PostgreSQL template repository
func NewPostgresRepository(pool DB) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create inserts a new template schema version
func (r *PostgresRepository) Create(ctx context.Context, s *Schema) error {
	definition, err := json.Marshal(s.Definition)
	if err != nil {
		return fmt.Errorf("failed to marshal schema definition: %w", err)
	}

	query := `
		INSERT INTO template_schemas (id, name, display_name, version, category, schema_definition, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	err = r.pool.QueryRow(ctx, query,
		s.ID,
		s.Name,
		s.DisplayName,
		s.Version,
		s.Category,
		definition,
		s.IsActive,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create template schema: %w", err)
	}
	return nil
}

// GetActiveByName retrieves the latest active version of a named template
func (r *PostgresRepository) GetActiveByName(ctx context.Context, name string) (*Schema, error) {
	query := `
		SELECT id, name, display_name, version, category, schema_definition, is_active, created_at, updated_at
		FROM template_schemas
		WHERE name = $1 AND is_active
		ORDER BY version DESC
		LIMIT 1`

	s, err := r.scanSchema(r.pool.QueryRow(ctx, query, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template schema: %w", err)
	}
	return s, nil
}

// ListActive retrieves the latest active version of every template
func (r *PostgresRepository) ListActive(ctx context.Context) ([]*Schema, error) {
	query := `
		SELECT DISTINCT ON (name)
			id, name, display_name, version, category, schema_definition, is_active, created_at, updated_at
		FROM template_schemas
		WHERE is_active
		ORDER BY name, version DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list template schemas: %w", err)
	}
	defer rows.Close()

	var schemas []*Schema
	for rows.Next() {
		s, err := r.scanSchema(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template schema: %w", err)
		}
		schemas = append(schemas, s)
	}
	return schemas, rows.Err()
}

// GetCustomization retrieves the active customization for a (company, template)
// pair, or nil when none exists.
func (r *PostgresRepository) GetCustomization(ctx context.Context, companyID, templateID uuid.UUID) (*Customization, error) {
	query := `
		SELECT id, company_id, template_schema_id, display_name_override, schema_override,
		       additional_validations, notes, is_active, created_at, updated_at
		FROM company_template_customizations
		WHERE company_id = $1 AND template_schema_id = $2 AND is_active`

	c := &Customization{}
	var schemaOverride, additional []byte
	var notes *string

	err := r.pool.QueryRow(ctx, query, companyID, templateID).Scan(
		&c.ID,
		&c.CompanyID,
		&c.TemplateSchemaID,
		&c.DisplayNameOverride,
		&schemaOverride,
		&additional,
		&notes,
		&c.IsActive,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customization: %w", err)
	}

	if notes != nil {
		c.Notes = *notes
	}
	if len(schemaOverride) > 0 {
		c.SchemaOverride = &DefinitionOverride{}
		if err := json.Unmarshal(schemaOverride, c.SchemaOverride); err != nil {
			return nil, fmt.Errorf("failed to unmarshal schema override: %w", err)
		}
	}
	if len(additional) > 0 {
		if err := json.Unmarshal(additional, &c.AdditionalValidations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal additional validations: %w", err)
		}
	}
	return c, nil
}

// UpsertCustomization creates or replaces the active customization for a
// (company, template) pair, keeping the at-most-one-active invariant.
func (r *PostgresRepository) UpsertCustomization(ctx context.Context, c *Customization) error {
	var schemaOverride, additional []byte
	var err error

	if c.SchemaOverride != nil {
		if schemaOverride, err = json.Marshal(c.SchemaOverride); err != nil {
			return fmt.Errorf("failed to marshal schema override: %w", err)
		}
	}
	if len(c.AdditionalValidations) > 0 {
		if additional, err = json.Marshal(c.AdditionalValidations); err != nil {
			return fmt.Errorf("failed to marshal additional validations: %w", err)
		}
	}

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}

	query := `
		INSERT INTO company_template_customizations
			(id, company_id, template_schema_id, display_name_override, schema_override, additional_validations, notes, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		ON CONFLICT (company_id, template_schema_id) WHERE is_active
		DO UPDATE SET
			display_name_override = EXCLUDED.display_name_override,
			schema_override = EXCLUDED.schema_override,
			additional_validations = EXCLUDED.additional_validations,
			notes = EXCLUDED.notes,
			updated_at = now()
		RETURNING created_at, updated_at`

	err = r.pool.QueryRow(ctx, query,
		c.ID,
		c.CompanyID,
		c.TemplateSchemaID,
		c.DisplayNameOverride,
		schemaOverride,
		additional,
		c.Notes,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert customization: %w", err)
	}
	return nil
}

// SeedDefaults inserts the built-in templates for any name not yet present
func (r *PostgresRepository) SeedDefaults(ctx context.Context) error {
	for _, s := range Defaults() {
		query := `
			INSERT INTO template_schemas (id, name, display_name, version, category, schema_definition, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (name, version) DO NOTHING`

		definition, err := json.Marshal(s.Definition)
		if err != nil {
			return fmt.Errorf("failed to marshal default definition: %w", err)
		}
		if _, err := r.pool.Exec(ctx, query, s.ID, s.Name, s.DisplayName, s.Version, s.Category, definition, s.IsActive); err != nil {
			return fmt.Errorf("failed to seed template %s: %w", s.Name, err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepository) scanSchema(row rowScanner) (*Schema, error) {
	s := &Schema{}
	var definition []byte
	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.DisplayName,
		&s.Version,
		&s.Category,
		&definition,
		&s.IsActive,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(definition, &s.Definition); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema definition: %w", err)
	}
	return s, nil
}
