// Package service orchestrates upload processing: parsing, template
// resolution, validation, transformation, and loading, with per-stage job
// progress for polling callers.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/ingest/normalizer"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/ingest/parser"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/ingest/repository"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/ingest/sniffer"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/ingest/transform"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/template"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/validation"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/pkg/metrics"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/pkg/money"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/pkg/storage"
)

// MaxFileBytes is the default upload boundary limit.
const MaxFileBytes = 40 << 20

const (
	sourceArtifact = "source.csv"
	reportArtifact = "validation-report.json"
)

var (
	ErrFileTooLarge = errors.New("file exceeds the upload size limit")
	ErrEmptyUpload  = errors.New("empty upload")
)

// Repository is the persistence surface the orchestrator needs.
type Repository interface {
	CreateJob(ctx context.Context, companyID, userID uuid.UUID, fileName string) (*repository.ProcessingJob, error)
	UpdateJob(ctx context.Context, jobID uuid.UUID, status repository.JobStatus, stats repository.JobStats, artifactPath *string) error
	GetJob(ctx context.Context, jobID uuid.UUID) (*repository.ProcessingJob, error)
	ListJobs(ctx context.Context, companyID uuid.UUID, limit int) ([]*repository.ProcessingJob, error)
	ReplacePeriodLines(ctx context.Context, companyID uuid.UUID, dataKind string, years []int, lines []repository.FinancialLine) (int, error)
	ReplaceDebtPool(ctx context.Context, companyID, jobID uuid.UUID, entries []repository.DebtPoolEntry) (int, error)
	RefreshRatioAggregates(ctx context.Context, companyID uuid.UUID) error
	CompaniesWithLines(ctx context.Context) ([]uuid.UUID, error)
	FailStaleJobs(ctx context.Context) (int64, error)
}

// TemplateResolver yields effective schemas, customizations applied.
type TemplateResolver interface {
	Resolve(ctx context.Context, name string, companyID *uuid.UUID) (*template.Schema, error)
	ListActive(ctx context.Context) ([]*template.Schema, error)
}

// Assistant is the optional external normalization service consulted when
// automatic header matching falls below the auto-select threshold.
type Assistant interface {
	// MapHeaders proposes a header-to-column mapping for the given schema.
	MapHeaders(ctx context.Context, schemaName string, headers []string, sampleRows [][]string) (map[string]string, error)
}

// Notifier is told about terminal job failures.
type Notifier interface {
	JobFailed(ctx context.Context, job *repository.ProcessingJob, reason string)
}

// Report is the full validation report returned to callers.
type Report struct {
	IsValid    bool                  `json:"is_valid"`
	Errors     []validation.Error    `json:"errors"`
	Warnings   []validation.Error    `json:"warnings"`
	Statistics validation.Statistics `json:"statistics"`

	TemplateName string   `json:"template_name,omitempty"`
	Confidence   float64  `json:"confidence,omitempty"`
	Years        []int    `json:"years,omitempty"`
	RowsLoaded   int      `json:"rows_loaded,omitempty"`
	DryRun       bool     `json:"dry_run,omitempty"`
	Files        []string `json:"files,omitempty"`
}

// UploadRequest is a single-file, template-driven upload.
type UploadRequest struct {
	CompanyID    uuid.UUID
	UserID       uuid.UUID
	Filename     string
	Data         []byte
	TemplateName string // empty means auto-detect
	Years        []int  // empty means all years present in the file
	DryRun       bool
}

// UploadResult carries the job (nil on dry run) and the report when the
// pipeline ran synchronously.
type UploadResult struct {
	Job    *repository.ProcessingJob `json:"job,omitempty"`
	Report *Report                   `json:"report,omitempty"`
}

// Service wires the pipeline stages together.
type Service struct {
	repo      Repository
	templates TemplateResolver
	store     storage.ArtifactStore
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer

	validator    *validation.Validator
	assistant    Assistant
	notifier     Notifier
	maxFileBytes int64
}

func NewService(repo Repository, templates TemplateResolver, store storage.ArtifactStore, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		repo:         repo,
		templates:    templates,
		store:        store,
		metrics:      m,
		logger:       logger,
		tracer:       otel.Tracer("ingest"),
		validator:    validation.NewValidator(),
		maxFileBytes: MaxFileBytes,
	}
}

// WithAssistant enables the external normalization fallback.
func (s *Service) WithAssistant(a Assistant) *Service {
	s.assistant = a
	return s
}

// WithNotifier enables failure notifications.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// WithMaxFileBytes overrides the default upload boundary limit.
func (s *Service) WithMaxFileBytes(n int64) *Service {
	if n > 0 {
		s.maxFileBytes = n
	}
	return s
}

// MaxBytes is the effective upload boundary limit, so the HTTP layer can
// enforce the same bound when reading multipart bodies.
func (s *Service) MaxBytes() int64 {
	return s.maxFileBytes
}

// AnalyzeResult is the outcome of a pre-upload file analysis.
type AnalyzeResult struct {
	Preview   *sniffer.Preview       `json:"preview"`
	Templates []template.MatchResult `json:"templates"`
}

// Analyze inspects an uploaded file without creating a job: delimiter,
// encoding, headers, sample rows, and template candidates above the
// detection threshold.
func (s *Service) Analyze(ctx context.Context, filename string, data []byte) (*AnalyzeResult, error) {
	ctx, span := s.tracer.Start(ctx, "ingest.Analyze")
	defer span.End()

	data, err := s.prepare(filename, data)
	if err != nil {
		return nil, err
	}

	preview, err := sniffer.Analyze(data)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze file: %w", err)
	}

	schemas, err := s.templates.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	return &AnalyzeResult{
		Preview:   preview,
		Templates: template.DetectTemplates(schemas, preview.Headers),
	}, nil
}

// Upload runs the pipeline for one file. Dry runs validate fully and
// return the report without touching the store or creating a job. Real
// uploads create a job and process it in the background; callers poll the
// job status.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	data, err := s.prepare(req.Filename, req.Data)
	if err != nil {
		return nil, err
	}
	req.Data = data

	if req.DryRun {
		ctx, span := s.tracer.Start(ctx, "ingest.DryRun")
		defer span.End()

		report, _, _, err := s.validateFile(ctx, req)
		if err != nil {
			return nil, err
		}
		report.DryRun = true
		return &UploadResult{Report: report}, nil
	}

	job, err := s.repo.CreateJob(ctx, req.CompanyID, req.UserID, req.Filename)
	if err != nil {
		return nil, err
	}

	// keep the raw bytes so a NEEDS_MAPPING resubmission can re-run
	if _, err := s.store.Put(ctx, job.ID, sourceArtifact, "text/csv", bytes.NewReader(req.Data)); err != nil {
		s.logger.Warn("failed to persist source artifact", slog.String("job_id", job.ID.String()), slog.Any("error", err))
	}

	go s.process(context.WithoutCancel(ctx), job, req)
	return &UploadResult{Job: job}, nil
}

// process drives one job to a terminal state.
func (s *Service) process(ctx context.Context, job *repository.ProcessingJob, req UploadRequest) {
	ctx, span := s.tracer.Start(ctx, "ingest.Process")
	defer span.End()

	s.transition(ctx, job, repository.StatusValidating, repository.JobStats{
		Stage:       string(repository.StatusValidating),
		ProgressPct: 20,
		Message:     "validando el archivo",
	}, nil)

	report, lines, debt, err := s.validateFile(ctx, req)
	if err != nil {
		s.fail(ctx, job, fmt.Sprintf("el archivo no se pudo procesar: %v", err), nil)
		return
	}

	if report.TemplateName == "" {
		// no template cleared the auto-select bar
		if s.assistant != nil {
			report, lines, debt, err = s.assistedRetry(ctx, job, req)
			if err != nil {
				s.fail(ctx, job, fmt.Sprintf("la normalización asistida falló: %v", err), report)
				return
			}
		}
		if report.TemplateName == "" {
			s.transition(ctx, job, repository.StatusNeedsMapping, repository.JobStats{
				Stage:       string(repository.StatusNeedsMapping),
				ProgressPct: 40,
				Message:     "no se pudo asignar una plantilla automáticamente, se requiere mapeo manual",
			}, nil)
			return
		}
	}

	if !report.IsValid {
		s.countErrors(report)
		s.fail(ctx, job, "la validación encontró errores", report)
		return
	}

	s.transition(ctx, job, repository.StatusLoading, repository.JobStats{
		Stage:       string(repository.StatusLoading),
		ProgressPct: 70,
		Message:     "cargando registros normalizados",
		TotalRows:   report.Statistics.TotalRows,
		RowsValid:   report.Statistics.ValidRows,
	}, nil)

	loaded, loadErr := s.load(ctx, job, req, report, lines, debt)
	report.RowsLoaded = loaded

	if loadErr != nil {
		if loaded > 0 {
			s.terminal(ctx, job, repository.StatusPartialOK, repository.JobStats{
				Stage:       string(repository.StatusPartialOK),
				ProgressPct: 100,
				Message:     fmt.Sprintf("carga parcial: %d filas cargadas antes del error: %v", loaded, loadErr),
				RowsLoaded:  loaded,
			})
			return
		}
		s.fail(ctx, job, fmt.Sprintf("la carga falló: %v", loadErr), report)
		return
	}

	s.transition(ctx, job, repository.StatusAggregating, repository.JobStats{
		Stage:       string(repository.StatusAggregating),
		ProgressPct: 90,
		Message:     "recalculando ratios",
		RowsLoaded:  loaded,
	}, nil)

	if err := s.repo.RefreshRatioAggregates(ctx, req.CompanyID); err != nil {
		s.logger.Error("aggregate refresh failed", slog.String("job_id", job.ID.String()), slog.Any("error", err))
		s.terminal(ctx, job, repository.StatusPartialOK, repository.JobStats{
			Stage:       string(repository.StatusPartialOK),
			ProgressPct: 100,
			Message:     "datos cargados pero el recálculo de ratios falló",
			RowsLoaded:  loaded,
		})
		return
	}

	s.persistReport(ctx, job.ID, report)
	s.terminal(ctx, job, repository.StatusDone, repository.JobStats{
		Stage:       string(repository.StatusDone),
		ProgressPct: 100,
		Message:     fmt.Sprintf("completado: %d filas cargadas", loaded),
		TotalRows:   report.Statistics.TotalRows,
		RowsValid:   report.Statistics.ValidRows,
		RowsLoaded:  loaded,
	})
	s.metrics.RowsLoaded.Add(float64(loaded))
}

// validateFile runs parsing, template resolution, row validation, and the
// transform for one file. An empty TemplateName on the returned report
// means no template cleared the auto-select threshold.
func (s *Service) validateFile(ctx context.Context, req UploadRequest) (*Report, []repository.FinancialLine, []repository.DebtPoolEntry, error) {
	stageStart := time.Now()
	parsed, err := sniffer.Parse(req.Data, true)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to parse file: %w", err)
	}
	s.metrics.StageDuration.WithLabelValues("parsing").Observe(time.Since(stageStart).Seconds())

	stageStart = time.Now()
	defer func() {
		s.metrics.StageDuration.WithLabelValues("validating").Observe(time.Since(stageStart).Seconds())
	}()

	schema, confidence, err := s.resolveSchema(ctx, req, parsed.Headers)
	if err != nil {
		return nil, nil, nil, err
	}
	if schema == nil {
		return &Report{Confidence: confidence}, nil, nil, nil
	}

	report := &Report{TemplateName: schema.Name, Confidence: confidence}

	// debt pool files decode into a fixed struct instead of the wide fold
	if schema.Name == template.NameDebtPool {
		entries, findings := s.parseDebtPool(req, parsed.Delimiter)
		results := s.validator.ValidateRows(schema, parsed.Headers, parsed.Rows)
		results.Errors = append(results.Errors, findings...)
		fillReport(report, results)
		return report, nil, entries, nil
	}

	results := s.validator.ValidateRows(schema, parsed.Headers, parsed.Rows)

	kind := transformKind(schema.Name)
	var lines []repository.FinancialLine
	if schema.Definition.VariableYearColumns {
		folded := transform.WideToLong(kind, parsed.Headers, parsed.Rows)
		for _, f := range folded.Findings {
			results.Errors = append(results.Errors, f)
		}

		switch kind {
		case transform.KindBalanceSheet:
			s.checkBalanceIdentity(results, folded.Records)
		case transform.KindProfitLoss:
			s.checkProfitRatios(results, folded.Records)
		}

		records := folded.Records
		if len(req.Years) > 0 {
			records = filterYears(records, req.Years)
		}
		report.Years = transform.Years(records)
		lines = s.toLines(req, schema.Name, records)
	}

	fillReport(report, results)
	return report, lines, nil, nil
}

// resolveSchema picks the template: explicit name wins, otherwise the best
// automatic match above the auto-select threshold. A nil schema with no
// error means mapping is needed.
func (s *Service) resolveSchema(ctx context.Context, req UploadRequest, headers []string) (*template.Schema, float64, error) {
	if req.TemplateName != "" {
		schema, err := s.templates.Resolve(ctx, req.TemplateName, &req.CompanyID)
		if err != nil {
			return nil, 0, err
		}
		match := template.MatchHeaders(schema, headers)
		return schema, match.Confidence, nil
	}

	if name, ok := parser.TemplateForFilename(req.Filename); ok {
		schema, err := s.templates.Resolve(ctx, name, &req.CompanyID)
		if err == nil {
			match := template.MatchHeaders(schema, headers)
			return schema, match.Confidence, nil
		}
	}

	schemas, err := s.templates.ListActive(ctx)
	if err != nil {
		return nil, 0, err
	}
	candidates := template.DetectTemplates(schemas, headers)
	if len(candidates) == 0 {
		return nil, 0, nil
	}
	best := candidates[0]
	if best.Confidence <= template.AutoSelectThreshold {
		return nil, best.Confidence, nil
	}

	schema, err := s.templates.Resolve(ctx, best.Name, &req.CompanyID)
	if err != nil {
		return nil, 0, err
	}
	return schema, best.Confidence, nil
}

// checkBalanceIdentity verifies assets = liabilities + equity per year and
// surfaces ratio sanity warnings from the section totals.
func (s *Service) checkBalanceIdentity(results *validation.Results, records []transform.Record) {
	for _, year := range transform.Years(records) {
		totals := transform.SectionTotals(records, year)
		diff, err := validation.ValidateBalanceSheet(validation.BalanceSheet{
			Assets:      totals["asset"],
			Liabilities: totals["liability"],
			Equity:      totals["equity"],
		})
		if err != nil {
			results.Errors = append(results.Errors, validation.Error{
				Column:   fmt.Sprintf("%d", year),
				Message:  fmt.Sprintf("el balance de %d no cuadra: diff=%.2f", year, diff),
				Type:     validation.TypeBalance,
				Severity: template.SeverityError,
			})
			results.IsValid = false
		}

		var currentAssets, currentLiabilities float64
		for _, r := range records {
			if r.Year != year {
				continue
			}
			switch strings.ToUpper(r.Section) {
			case "ACTIVO CORRIENTE":
				currentAssets += r.Amount
			case "PASIVO CORRIENTE":
				currentLiabilities += r.Amount
			}
		}
		for _, w := range validation.RatioWarnings(validation.RatioInputs{
			CurrentAssets:      currentAssets,
			CurrentLiabilities: currentLiabilities,
			TotalDebt:          totals["liability"],
			TotalAssets:        totals["asset"],
		}) {
			w.Column = fmt.Sprintf("%d", year)
			results.Warnings = append(results.Warnings, w)
		}
	}
	results.Statistics.ErrorCount = len(results.Errors)
}

const (
	conceptRevenue   = "Importe neto de la cifra de negocios"
	conceptNetIncome = "Resultado del ejercicio"
)

// checkProfitRatios surfaces the net-margin warning for every year where
// both revenue and net income are present.
func (s *Service) checkProfitRatios(results *validation.Results, records []transform.Record) {
	revenue := map[int]float64{}
	income := map[int]float64{}
	for _, r := range records {
		switch {
		case strings.EqualFold(r.Concept, conceptRevenue):
			revenue[r.Year] += r.Amount
		case strings.EqualFold(r.Concept, conceptNetIncome):
			income[r.Year] += r.Amount
		}
	}
	for _, year := range transform.Years(records) {
		rev, ok := revenue[year]
		if !ok {
			continue
		}
		for _, w := range validation.RatioWarnings(validation.RatioInputs{
			NetIncome: income[year],
			Revenue:   rev,
		}) {
			w.Column = fmt.Sprintf("%d", year)
			results.Warnings = append(results.Warnings, w)
		}
	}
}

func (s *Service) parseDebtPool(req UploadRequest, delimiter rune) ([]repository.DebtPoolEntry, []validation.Error) {
	records, err := parser.ParseDebtPool(req.Data, delimiter)
	if err != nil {
		return nil, []validation.Error{{
			Message:  fmt.Sprintf("el pool de deuda no se pudo interpretar: %v", err),
			Type:     validation.TypeStructure,
			Severity: template.SeverityError,
		}}
	}

	entries := make([]repository.DebtPoolEntry, 0, len(records))
	var findings []validation.Error
	for i, rec := range records {
		entry := repository.DebtPoolEntry{
			CompanyID:    req.CompanyID,
			Entity:       rec.Entity,
			Kind:         rec.Kind,
			Initial:      rec.Initial,
			Outstanding:  rec.Outstanding,
			InterestRate: rec.InterestRate,
		}
		if rec.Maturity != "" {
			t, err := normalizer.ParseDate(rec.Maturity)
			if err != nil {
				findings = append(findings, validation.Error{
					Row:      i + 2,
					Column:   "Vencimiento",
					Value:    rec.Maturity,
					Message:  "fecha de vencimiento inválida",
					Type:     validation.TypeFormat,
					Severity: template.SeverityError,
				})
				continue
			}
			entry.Maturity = &t
		}
		entries = append(entries, entry)
	}
	return entries, findings
}

// load performs the REPLACE-by-period insert for the validated file.
func (s *Service) load(ctx context.Context, job *repository.ProcessingJob, req UploadRequest, report *Report, lines []repository.FinancialLine, debt []repository.DebtPoolEntry) (int, error) {
	stageStart := time.Now()
	defer func() {
		s.metrics.StageDuration.WithLabelValues("loading").Observe(time.Since(stageStart).Seconds())
	}()

	if len(debt) > 0 {
		return s.repo.ReplaceDebtPool(ctx, req.CompanyID, job.ID, debt)
	}
	if len(lines) == 0 {
		return 0, nil
	}

	for i := range lines {
		lines[i].JobID = job.ID
	}
	return s.repo.ReplacePeriodLines(ctx, req.CompanyID, dataKind(report.TemplateName), report.Years, lines)
}

// assistedRetry asks the external assistant for a header mapping, rewrites
// the header row, and re-validates.
func (s *Service) assistedRetry(ctx context.Context, job *repository.ProcessingJob, req UploadRequest) (*Report, []repository.FinancialLine, []repository.DebtPoolEntry, error) {
	s.transition(ctx, job, repository.StatusGPTNormalize, repository.JobStats{
		Stage:       string(repository.StatusGPTNormalize),
		ProgressPct: 45,
		Message:     "consultando el asistente de normalización",
	}, nil)

	parsed, err := sniffer.Parse(req.Data, true)
	if err != nil {
		return nil, nil, nil, err
	}

	schemaName := req.TemplateName
	if schemaName == "" {
		if name, ok := parser.TemplateForFilename(req.Filename); ok {
			schemaName = name
		} else {
			schemaName = template.NameProfitLoss
		}
	}

	mapping, err := s.assistant.MapHeaders(ctx, schemaName, parsed.Headers, parsed.Rows[:min(len(parsed.Rows), 5)])
	if err != nil {
		return nil, nil, nil, err
	}

	s.transition(ctx, job, repository.StatusGPTProcessing, repository.JobStats{
		Stage:       string(repository.StatusGPTProcessing),
		ProgressPct: 50,
		Message:     "aplicando el mapeo propuesto",
	}, nil)

	req.Data = rewriteHeaders(req.Data, parsed.Delimiter, mapping)
	req.TemplateName = schemaName
	return s.validateFile(ctx, req)
}

// ResumeWithMapping re-enters validation for a NEEDS_MAPPING job using a
// caller-supplied header mapping over the stored source artifact.
func (s *Service) ResumeWithMapping(ctx context.Context, jobID uuid.UUID, templateName string, mapping map[string]string) (*repository.ProcessingJob, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != repository.StatusNeedsMapping {
		return nil, fmt.Errorf("job %s is %s, mapping can only be applied in %s", jobID, job.Status, repository.StatusNeedsMapping)
	}

	rc, _, err := s.store.Get(ctx, jobID, sourceArtifact)
	if err != nil {
		return nil, fmt.Errorf("source artifact unavailable: %w", err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, fmt.Errorf("failed to read source artifact: %w", err)
	}

	parsed, err := sniffer.Parse(buf.Bytes(), true)
	if err != nil {
		return nil, err
	}

	data := rewriteHeaders(buf.Bytes(), parsed.Delimiter, mapping)
	req := UploadRequest{
		CompanyID:    job.CompanyID,
		UserID:       job.UploadedBy,
		Filename:     job.FileName,
		Data:         data,
		TemplateName: templateName,
	}

	s.transition(ctx, job, repository.StatusValidating, repository.JobStats{
		Stage:       string(repository.StatusValidating),
		ProgressPct: 40,
		Message:     "revalidando con el mapeo manual",
	}, nil)

	go s.process(context.WithoutCancel(ctx), job, req)
	return job, nil
}

// JobStatus returns the current job row for polling callers.
func (s *Service) JobStatus(ctx context.Context, jobID uuid.UUID) (*repository.ProcessingJob, error) {
	return s.repo.GetJob(ctx, jobID)
}

// ListJobs returns a company's recent jobs.
func (s *Service) ListJobs(ctx context.Context, companyID uuid.UUID, limit int) ([]*repository.ProcessingJob, error) {
	return s.repo.ListJobs(ctx, companyID, limit)
}

// RefreshAllAggregates recomputes ratio materializations for every company
// with stored data. Used by the nightly schedule.
func (s *Service) RefreshAllAggregates(ctx context.Context) error {
	ids, err := s.repo.CompaniesWithLines(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.repo.RefreshRatioAggregates(ctx, id); err != nil {
			s.logger.Error("aggregate refresh failed", slog.String("company_id", id.String()), slog.Any("error", err))
		}
	}
	return nil
}

// ExpireStaleJobs fails abandoned jobs. Used by the scheduler.
func (s *Service) ExpireStaleJobs(ctx context.Context) (int64, error) {
	return s.repo.FailStaleJobs(ctx)
}

// prepare enforces the size limit and expands spreadsheets to CSV so the
// rest of the pipeline only sees delimited text.
func (s *Service) prepare(filename string, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyUpload
	}
	if int64(len(data)) > s.maxFileBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, len(data))
	}
	if parser.IsExcel(filename) {
		converted, err := parser.ExcelToCSV(data, ',')
		if err != nil {
			return nil, fmt.Errorf("failed to convert workbook: %w", err)
		}
		return converted, nil
	}
	return data, nil
}

func (s *Service) transition(ctx context.Context, job *repository.ProcessingJob, status repository.JobStatus, stats repository.JobStats, artifact *string) {
	job.Status = status
	job.Stats = stats
	if err := s.repo.UpdateJob(ctx, job.ID, status, stats, artifact); err != nil {
		s.logger.Error("job transition failed",
			slog.String("job_id", job.ID.String()),
			slog.String("status", string(status)),
			slog.Any("error", err))
	}
	s.logger.Info("job transition",
		slog.String("job_id", job.ID.String()),
		slog.String("status", string(status)),
		slog.Int("progress", stats.ProgressPct))
}

func (s *Service) terminal(ctx context.Context, job *repository.ProcessingJob, status repository.JobStatus, stats repository.JobStats) {
	s.transition(ctx, job, status, stats, nil)
	s.metrics.JobsTotal.WithLabelValues(string(status)).Inc()
}

func (s *Service) fail(ctx context.Context, job *repository.ProcessingJob, reason string, report *Report) {
	var artifact *string
	if report != nil {
		if info := s.persistReport(ctx, job.ID, report); info != nil {
			artifact = &info.Path
		}
	}

	stats := repository.JobStats{
		Stage:       string(repository.StatusFailed),
		ProgressPct: 100,
		Message:     reason,
	}
	if report != nil {
		stats.TotalRows = report.Statistics.TotalRows
		stats.ErrorCount = report.Statistics.ErrorCount
		stats.WarnCount = report.Statistics.WarningCount
	}

	s.transition(ctx, job, repository.StatusFailed, stats, artifact)
	s.metrics.JobsTotal.WithLabelValues(string(repository.StatusFailed)).Inc()

	if s.notifier != nil {
		s.notifier.JobFailed(ctx, job, reason)
	}
}

func (s *Service) persistReport(ctx context.Context, jobID uuid.UUID, report *Report) *storage.ArtifactInfo {
	blob, err := json.Marshal(report)
	if err != nil {
		s.logger.Error("failed to marshal report", slog.Any("error", err))
		return nil
	}
	info, err := s.store.Put(ctx, jobID, reportArtifact, "application/json", bytes.NewReader(blob))
	if err != nil {
		s.logger.Warn("failed to persist report artifact", slog.String("job_id", jobID.String()), slog.Any("error", err))
		return nil
	}
	return info
}

func (s *Service) countErrors(report *Report) {
	for _, e := range report.Errors {
		s.metrics.ValidationErrors.WithLabelValues(e.Type).Inc()
	}
}

func (s *Service) toLines(req UploadRequest, templateName string, records []transform.Record) []repository.FinancialLine {
	currency, err := money.NormalizeCode("")
	if err != nil {
		currency = "EUR"
	}

	lines := make([]repository.FinancialLine, 0, len(records))
	for _, r := range records {
		lines = append(lines, repository.FinancialLine{
			CompanyID:         req.CompanyID,
			PeriodType:        repository.PeriodAnnual,
			PeriodYear:        r.Year,
			Concept:           r.Concept,
			NormalizedConcept: strings.ToLower(strings.TrimSpace(r.Concept)),
			Section:           r.Section,
			Amount:            r.Amount,
			CurrencyCode:      currency,
			DataKind:          dataKind(templateName),
			UploadedBy:        req.UserID,
			SourceFile:        req.Filename,
		})
	}
	return lines
}

func fillReport(report *Report, results *validation.Results) {
	results.Statistics.ErrorCount = len(results.Errors)
	results.Statistics.WarningCount = len(results.Warnings)
	results.IsValid = len(results.Errors) == 0

	report.IsValid = results.IsValid
	report.Errors = results.Errors
	report.Warnings = results.Warnings
	report.Statistics = results.Statistics
}

func transformKind(templateName string) transform.Kind {
	switch templateName {
	case template.NameProfitLoss:
		return transform.KindProfitLoss
	case template.NameBalanceSheet:
		return transform.KindBalanceSheet
	}
	return transform.KindGeneric
}

func dataKind(templateName string) string {
	switch templateName {
	case template.NameProfitLoss:
		return "pyg"
	case template.NameBalanceSheet:
		return "balance"
	}
	return templateName
}

func filterYears(records []transform.Record, years []int) []transform.Record {
	keep := make(map[int]bool, len(years))
	for _, y := range years {
		keep[y] = true
	}
	out := records[:0:0]
	for _, r := range records {
		if keep[r.Year] {
			out = append(out, r)
		}
	}
	return out
}

// rewriteHeaders replaces header cells per the mapping and re-emits the
// file so the standard pipeline can re-run unchanged.
func rewriteHeaders(data []byte, delimiter rune, mapping map[string]string) []byte {
	rows := sniffer.SplitRows(data)
	headerIdx := -1
	for i, row := range rows {
		if strings.TrimSpace(row) != "" {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return data
	}
	rows = rows[headerIdx:]

	headers := sniffer.ParseLine(rows[0], delimiter, true)
	for i, h := range headers {
		if to, ok := mapping[h]; ok {
			headers[i] = to
		}
	}

	var b bytes.Buffer
	for i, h := range headers {
		if i > 0 {
			b.WriteRune(delimiter)
		}
		b.WriteString(h)
	}
	for _, row := range rows[1:] {
		b.WriteByte('\n')
		b.WriteString(row)
	}
	return b.Bytes()
}
