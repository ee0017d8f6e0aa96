package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrJobNotFound = errors.New("processing job not found")

// DB is the pgx surface the repository needs. Satisfied by *pgxpool.Pool
// and by pgxmock in tests.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresRepository persists jobs, financial lines, and debt entries.
type PostgresRepository struct {
	pool DB
}

func NewPostgresRepository(pool DB) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// CreateJob inserts a new job in its initial status and returns it.
func (r *PostgresRepository) CreateJob(ctx context.Context, companyID, userID uuid.UUID, fileName string) (*ProcessingJob, error) {
	job := &ProcessingJob{
		CompanyID:  companyID,
		UploadedBy: userID,
		FileName:   fileName,
		Status:     StatusParsing,
		Stats:      JobStats{Stage: string(StatusParsing), Message: "procesando archivo"},
	}

	stats, err := json.Marshal(job.Stats)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job stats: %w", err)
	}

	query := `
		INSERT INTO processing_jobs (company_id, user_id, file_name, status, stats_json)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err = r.pool.QueryRow(ctx, query, companyID, userID, fileName, job.Status, stats).
		Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

// UpdateJob writes the job's status and stats blob. Terminal statuses also
// stamp finished_at.
func (r *PostgresRepository) UpdateJob(ctx context.Context, jobID uuid.UUID, status JobStatus, stats JobStats, artifactPath *string) error {
	blob, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal job stats: %w", err)
	}

	query := `
		UPDATE processing_jobs
		SET status = $2,
		    stats_json = $3,
		    error_artifact_path = COALESCE($4, error_artifact_path),
		    updated_at = now(),
		    finished_at = CASE WHEN $5 THEN now() ELSE finished_at END
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, jobID, status, blob, artifactPath, status.Terminal())
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return nil
}

// GetJob loads one job by id.
func (r *PostgresRepository) GetJob(ctx context.Context, jobID uuid.UUID) (*ProcessingJob, error) {
	query := `
		SELECT id, company_id, user_id, file_name, status, stats_json,
		       error_artifact_path, created_at, updated_at, finished_at
		FROM processing_jobs
		WHERE id = $1
	`
	var job ProcessingJob
	var stats []byte
	err := r.pool.QueryRow(ctx, query, jobID).Scan(
		&job.ID, &job.CompanyID, &job.UploadedBy, &job.FileName, &job.Status,
		&stats, &job.ErrorArtifactPath, &job.CreatedAt, &job.UpdatedAt, &job.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}
	if err := json.Unmarshal(stats, &job.Stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stats for job %s: %w", jobID, err)
	}
	return &job, nil
}

// ListJobs returns a company's jobs, newest first.
func (r *PostgresRepository) ListJobs(ctx context.Context, companyID uuid.UUID, limit int) ([]*ProcessingJob, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, company_id, user_id, file_name, status, stats_json,
		       error_artifact_path, created_at, updated_at, finished_at
		FROM processing_jobs
		WHERE company_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, companyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*ProcessingJob
	for rows.Next() {
		var job ProcessingJob
		var stats []byte
		err := rows.Scan(
			&job.ID, &job.CompanyID, &job.UploadedBy, &job.FileName, &job.Status,
			&stats, &job.ErrorArtifactPath, &job.CreatedAt, &job.UpdatedAt, &job.FinishedAt,
		)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(stats, &job.Stats); err != nil {
			return nil, err
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

// ReplacePeriodLines deletes the prior rows for the same company, data
// kind, and years, then inserts the new lines, all in one transaction so a
// concurrent upload for the same period can never observe a half-replaced
// state.
func (r *PostgresRepository) ReplacePeriodLines(ctx context.Context, companyID uuid.UUID, dataKind string, years []int, lines []FinancialLine) (int, error) {
	if len(years) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		DELETE FROM financial_lines
		WHERE company_id = $1 AND data_kind = $2 AND period_year = ANY($3)
	`, companyID, dataKind, years)
	if err != nil {
		return 0, fmt.Errorf("failed to delete prior lines: %w", err)
	}

	inserted := 0
	for _, line := range lines {
		_, err = tx.Exec(ctx, `
			INSERT INTO financial_lines (
				company_id, period_type, period_year, period_quarter, period_month,
				concept, normalized_concept, section, amount, currency_code,
				data_kind, uploaded_by, job_id, source_file
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`,
			line.CompanyID, line.PeriodType, line.PeriodYear, line.PeriodQuarter, line.PeriodMonth,
			line.Concept, line.NormalizedConcept, line.Section, line.Amount, line.CurrencyCode,
			line.DataKind, line.UploadedBy, line.JobID, line.SourceFile,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert line %q year %d: %w", line.Concept, line.PeriodYear, err)
		}
		inserted++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit replace: %w", err)
	}
	return inserted, nil
}

// ListLines returns a company's stored lines for one data kind and year.
func (r *PostgresRepository) ListLines(ctx context.Context, companyID uuid.UUID, dataKind string, year int) ([]FinancialLine, error) {
	query := `
		SELECT id, company_id, period_type, period_year, period_quarter, period_month,
		       concept, normalized_concept, section, amount, currency_code,
		       data_kind, uploaded_by, job_id, source_file, created_at
		FROM financial_lines
		WHERE company_id = $1 AND data_kind = $2 AND period_year = $3
		ORDER BY created_at, concept
	`
	rows, err := r.pool.Query(ctx, query, companyID, dataKind, year)
	if err != nil {
		return nil, fmt.Errorf("failed to list lines: %w", err)
	}
	defer rows.Close()

	var lines []FinancialLine
	for rows.Next() {
		var l FinancialLine
		err := rows.Scan(
			&l.ID, &l.CompanyID, &l.PeriodType, &l.PeriodYear, &l.PeriodQuarter, &l.PeriodMonth,
			&l.Concept, &l.NormalizedConcept, &l.Section, &l.Amount, &l.CurrencyCode,
			&l.DataKind, &l.UploadedBy, &l.JobID, &l.SourceFile, &l.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// ReplaceDebtPool swaps a company's debt pool entries in one transaction.
func (r *PostgresRepository) ReplaceDebtPool(ctx context.Context, companyID, jobID uuid.UUID, entries []DebtPoolEntry) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `DELETE FROM debt_pool_entries WHERE company_id = $1`, companyID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete prior debt entries: %w", err)
	}

	inserted := 0
	for _, e := range entries {
		_, err = tx.Exec(ctx, `
			INSERT INTO debt_pool_entries (
				company_id, entity, debt_type, initial_amount, outstanding,
				interest_rate, maturity_date, job_id
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, companyID, e.Entity, e.Kind, e.Initial, e.Outstanding, e.InterestRate, e.Maturity, jobID)
		if err != nil {
			return 0, fmt.Errorf("failed to insert debt entry %q: %w", e.Entity, err)
		}
		inserted++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit debt pool replace: %w", err)
	}
	return inserted, nil
}

// RefreshRatioAggregates recomputes the per-year ratio materialization
// from the stored lines for one company.
func (r *PostgresRepository) RefreshRatioAggregates(ctx context.Context, companyID uuid.UUID) error {
	query := `
		INSERT INTO financial_ratio_aggregates (company_id, period_year, current_ratio, debt_to_assets, profit_margin, refreshed_at)
		SELECT
			company_id,
			period_year,
			CASE WHEN SUM(amount) FILTER (WHERE section = 'PASIVO CORRIENTE') <> 0
			     THEN SUM(amount) FILTER (WHERE section = 'ACTIVO CORRIENTE')
			        / SUM(amount) FILTER (WHERE section = 'PASIVO CORRIENTE') END,
			CASE WHEN SUM(amount) FILTER (WHERE section IN ('ACTIVO CORRIENTE','ACTIVO NO CORRIENTE')) <> 0
			     THEN SUM(amount) FILTER (WHERE section IN ('PASIVO CORRIENTE','PASIVO NO CORRIENTE'))
			        / SUM(amount) FILTER (WHERE section IN ('ACTIVO CORRIENTE','ACTIVO NO CORRIENTE')) END,
			CASE WHEN SUM(amount) FILTER (WHERE normalized_concept = 'importe neto de la cifra de negocios') <> 0
			     THEN SUM(amount) FILTER (WHERE normalized_concept = 'resultado del ejercicio')
			        / SUM(amount) FILTER (WHERE normalized_concept = 'importe neto de la cifra de negocios') END,
			now()
		FROM financial_lines
		WHERE company_id = $1
		GROUP BY company_id, period_year
		ON CONFLICT (company_id, period_year) DO UPDATE
		SET current_ratio = EXCLUDED.current_ratio,
		    debt_to_assets = EXCLUDED.debt_to_assets,
		    profit_margin = EXCLUDED.profit_margin,
		    refreshed_at = EXCLUDED.refreshed_at
	`
	if _, err := r.pool.Exec(ctx, query, companyID); err != nil {
		return fmt.Errorf("failed to refresh ratio aggregates: %w", err)
	}
	return nil
}

// CompaniesWithLines lists the distinct companies that have stored data,
// for the nightly aggregate refresh.
func (r *PostgresRepository) CompaniesWithLines(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT company_id FROM financial_lines`)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// StaleJobCutoff is how long a non-terminal job may go without updates
// before the janitor fails it.
const StaleJobCutoff = 2 * time.Hour

// FailStaleJobs marks abandoned non-terminal jobs as failed and returns
// how many were touched.
func (r *PostgresRepository) FailStaleJobs(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE processing_jobs
		SET status = $1, updated_at = now(), finished_at = now()
		WHERE status NOT IN ($2, $3, $4)
		  AND updated_at < now() - make_interval(mins => $5)
	`, StatusFailed, StatusDone, StatusPartialOK, StatusFailed, int(StaleJobCutoff.Minutes()))
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}
