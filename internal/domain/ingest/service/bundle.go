package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/ingest/parser"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/ingest/repository"
)

// BundleRequest is a canonical multi-file upload.
type BundleRequest struct {
	CompanyID uuid.UUID
	UserID    uuid.UUID
	Files     map[string][]byte
	DryRun    bool
}

// BundleResult carries the job (nil on dry run) and per-file reports.
type BundleResult struct {
	Job     *repository.ProcessingJob `json:"job,omitempty"`
	Reports map[string]*Report        `json:"reports,omitempty"`
}

// UploadBundle validates the filename set and runs the pipeline per file,
// cuenta de resultados and balance first. File order is deterministic. Any
// invalid file fails the whole bundle before anything is loaded; a load
// failure after earlier files committed ends in PARTIAL_OK.
func (s *Service) UploadBundle(ctx context.Context, req BundleRequest) (*BundleResult, error) {
	bundle, err := parser.CheckBundle(req.Files)
	if err != nil {
		return nil, err
	}

	for i := range bundle {
		data, err := s.prepare(bundle[i].Filename, bundle[i].Data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", bundle[i].Filename, err)
		}
		bundle[i].Data = data
	}

	if req.DryRun {
		reports := make(map[string]*Report, len(bundle))
		for _, f := range bundle {
			report, _, _, err := s.validateFile(ctx, UploadRequest{
				CompanyID:    req.CompanyID,
				UserID:       req.UserID,
				Filename:     f.Filename,
				Data:         f.Data,
				TemplateName: f.TemplateName,
			})
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.Filename, err)
			}
			report.DryRun = true
			reports[f.Filename] = report
		}
		return &BundleResult{Reports: reports}, nil
	}

	job, err := s.repo.CreateJob(ctx, req.CompanyID, req.UserID, fmt.Sprintf("bundle (%d archivos)", len(bundle)))
	if err != nil {
		return nil, err
	}

	go s.processBundle(context.WithoutCancel(ctx), job, req, bundle)
	return &BundleResult{Job: job}, nil
}

func (s *Service) processBundle(ctx context.Context, job *repository.ProcessingJob, req BundleRequest, bundle []parser.BundleFile) {
	ctx, span := s.tracer.Start(ctx, "ingest.ProcessBundle")
	defer span.End()

	s.transition(ctx, job, repository.StatusValidating, repository.JobStats{
		Stage:       string(repository.StatusValidating),
		ProgressPct: 20,
		Message:     "validando los archivos del paquete",
		FilesTotal:  len(bundle),
	}, nil)

	// validate everything before loading anything, so one broken file
	// cannot leave a half-loaded bundle
	var ready []validated
	allValid := true
	totalErrors := 0
	for _, f := range bundle {
		report, lines, debt, err := s.validateFile(ctx, UploadRequest{
			CompanyID:    req.CompanyID,
			UserID:       req.UserID,
			Filename:     f.Filename,
			Data:         f.Data,
			TemplateName: f.TemplateName,
		})
		if err != nil {
			s.fail(ctx, job, fmt.Sprintf("%s: %v", f.Filename, err), nil)
			return
		}
		report.Files = append(report.Files, f.Filename)
		if !report.IsValid {
			allValid = false
			totalErrors += report.Statistics.ErrorCount
			s.countErrors(report)
		}
		ready = append(ready, validated{file: f, report: report, lines: lines, debt: debt})
	}

	if !allValid {
		combined := combineReports(ready)
		s.fail(ctx, job, fmt.Sprintf("la validación encontró %d errores en el paquete", totalErrors), combined)
		return
	}

	s.transition(ctx, job, repository.StatusLoading, repository.JobStats{
		Stage:       string(repository.StatusLoading),
		ProgressPct: 60,
		Message:     "cargando el paquete",
		FilesTotal:  len(bundle),
	}, nil)

	loadedRows := 0
	filesDone := 0
	for _, v := range ready {
		n, err := s.load(ctx, job, UploadRequest{
			CompanyID: req.CompanyID,
			UserID:    req.UserID,
			Filename:  v.file.Filename,
		}, v.report, v.lines, v.debt)
		loadedRows += n
		if err != nil {
			status := repository.StatusFailed
			msg := fmt.Sprintf("la carga de %s falló: %v", v.file.Filename, err)
			if filesDone > 0 {
				status = repository.StatusPartialOK
				msg = fmt.Sprintf("carga parcial: %d de %d archivos cargados, %s falló: %v",
					filesDone, len(ready), v.file.Filename, err)
			}
			s.terminal(ctx, job, status, repository.JobStats{
				Stage:       string(status),
				ProgressPct: 100,
				Message:     msg,
				RowsLoaded:  loadedRows,
				FilesTotal:  len(ready),
				FilesDone:   filesDone,
			})
			return
		}
		filesDone++
	}

	s.transition(ctx, job, repository.StatusAggregating, repository.JobStats{
		Stage:       string(repository.StatusAggregating),
		ProgressPct: 90,
		Message:     "recalculando ratios",
		RowsLoaded:  loadedRows,
		FilesTotal:  len(ready),
		FilesDone:   filesDone,
	}, nil)

	if err := s.repo.RefreshRatioAggregates(ctx, req.CompanyID); err != nil {
		s.terminal(ctx, job, repository.StatusPartialOK, repository.JobStats{
			Stage:       string(repository.StatusPartialOK),
			ProgressPct: 100,
			Message:     "paquete cargado pero el recálculo de ratios falló",
			RowsLoaded:  loadedRows,
			FilesTotal:  len(ready),
			FilesDone:   filesDone,
		})
		return
	}

	s.terminal(ctx, job, repository.StatusDone, repository.JobStats{
		Stage:       string(repository.StatusDone),
		ProgressPct: 100,
		Message:     fmt.Sprintf("paquete completado: %d filas cargadas de %d archivos", loadedRows, filesDone),
		RowsLoaded:  loadedRows,
		FilesTotal:  len(ready),
		FilesDone:   filesDone,
	})
	s.metrics.RowsLoaded.Add(float64(loadedRows))
}

// validated is one bundle file that passed (or failed) validation, held
// until every file has been checked.
type validated struct {
	file   parser.BundleFile
	report *Report
	lines  []repository.FinancialLine
	debt   []repository.DebtPoolEntry
}

// combineReports merges per-file reports into one, prefixing nothing: each
// finding already carries its row and column, and Files lists the sources.
func combineReports(ready []validated) *Report {
	combined := &Report{IsValid: true}
	for _, v := range ready {
		combined.Files = append(combined.Files, v.file.Filename)
		combined.Errors = append(combined.Errors, v.report.Errors...)
		combined.Warnings = append(combined.Warnings, v.report.Warnings...)
		combined.Statistics.TotalRows += v.report.Statistics.TotalRows
		combined.Statistics.ValidRows += v.report.Statistics.ValidRows
		combined.Statistics.InvalidRows += v.report.Statistics.InvalidRows
		combined.Statistics.ErrorCount += v.report.Statistics.ErrorCount
		combined.Statistics.WarningCount += v.report.Statistics.WarningCount
		if !v.report.IsValid {
			combined.IsValid = false
		}
	}
	return combined
}
