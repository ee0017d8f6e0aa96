// Package repository persists processing jobs, normalized financial lines,
// and the debt pool.
package repository

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the orchestrator state persisted with each job.
type JobStatus string

const (
	StatusParsing       JobStatus = "PARSING"
	StatusValidating    JobStatus = "VALIDATING"
	StatusNeedsMapping  JobStatus = "NEEDS_MAPPING"
	StatusLoading       JobStatus = "LOADING"
	StatusAggregating   JobStatus = "AGGREGATING"
	StatusDone          JobStatus = "DONE"
	StatusPartialOK     JobStatus = "PARTIAL_OK"
	StatusFailed        JobStatus = "FAILED"
	StatusGPTNormalize  JobStatus = "GPT_NORMALIZE"
	StatusGPTProcessing JobStatus = "GPT_PROCESSING"
)

// Terminal reports whether a job in this status will never transition again.
func (s JobStatus) Terminal() bool {
	return s == StatusDone || s == StatusPartialOK || s == StatusFailed
}

// JobStats is the free-form progress blob exposed to polling callers.
type JobStats struct {
	Stage       string `json:"stage"`
	ProgressPct int    `json:"progress_pct"`
	ETASeconds  *int   `json:"eta_seconds,omitempty"`
	Message     string `json:"message"`
	TotalRows   int    `json:"total_rows,omitempty"`
	RowsValid   int    `json:"rows_valid,omitempty"`
	RowsLoaded  int    `json:"rows_loaded,omitempty"`
	ErrorCount  int    `json:"error_count,omitempty"`
	WarnCount   int    `json:"warn_count,omitempty"`
	FilesTotal  int    `json:"files_total,omitempty"`
	FilesDone   int    `json:"files_done,omitempty"`
}

// ProcessingJob tracks one upload through the pipeline. Dry runs never
// create a job row, they return the report synchronously.
type ProcessingJob struct {
	ID                uuid.UUID
	CompanyID         uuid.UUID
	UploadedBy        uuid.UUID
	FileName          string
	Status            JobStatus
	Stats             JobStats
	ErrorArtifactPath *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	FinishedAt        *time.Time
}

// PeriodType distinguishes annual from intra-year lines.
type PeriodType string

const (
	PeriodAnnual    PeriodType = "annual"
	PeriodQuarterly PeriodType = "quarterly"
	PeriodMonthly   PeriodType = "monthly"
)

// FinancialLine is one normalized concept-period amount as stored.
type FinancialLine struct {
	ID                uuid.UUID
	CompanyID         uuid.UUID
	JobID             uuid.UUID
	PeriodType        PeriodType
	PeriodYear        int
	PeriodQuarter     *int
	PeriodMonth       *int
	Concept           string
	NormalizedConcept string
	Section           string
	Amount            float64
	CurrencyCode      string
	DataKind          string
	UploadedBy        uuid.UUID
	SourceFile        string
	CreatedAt         time.Time
}

// DebtPoolEntry is one stored debt pool line.
type DebtPoolEntry struct {
	ID           uuid.UUID
	CompanyID    uuid.UUID
	JobID        uuid.UUID
	Entity       string
	Kind         string
	Initial      float64
	Outstanding  float64
	InterestRate float64
	Maturity     *time.Time
	CreatedAt    time.Time
}

// RatioAggregate is the per-company-year materialization recomputed after
// every successful load.
type RatioAggregate struct {
	CompanyID    uuid.UUID
	PeriodYear   int
	CurrentRatio *float64
	DebtToAssets *float64
	ProfitMargin *float64
	RefreshedAt  time.Time
}
