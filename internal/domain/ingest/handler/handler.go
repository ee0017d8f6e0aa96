// Package handler exposes the ingestion pipeline over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/auth"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/ingest/parser"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/ingest/repository"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/ingest/service"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/template"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/validation"
)

// Handler carries the service dependencies for the ingest endpoints.
type Handler struct {
	svc      *service.Service
	concepts *validation.ConceptIndex
	logger   *slog.Logger
}

func New(svc *service.Service, concepts *validation.ConceptIndex, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, concepts: concepts, logger: logger}
}

// Register mounts the ingest routes on the router. All of them require an
// authenticated admin.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/api/ingest/analyze", h.Analyze).Methods(http.MethodPost)
	r.HandleFunc("/api/ingest/upload", h.Upload).Methods(http.MethodPost)
	r.HandleFunc("/api/ingest/bundle", h.UploadBundle).Methods(http.MethodPost)
	r.HandleFunc("/api/ingest/jobs", h.ListJobs).Methods(http.MethodGet)
	r.HandleFunc("/api/ingest/jobs/{id}", h.JobStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/ingest/jobs/{id}/mapping", h.ApplyMapping).Methods(http.MethodPost)
	r.HandleFunc("/api/ingest/concepts/suggest", h.SuggestConcepts).Methods(http.MethodGet)
	r.HandleFunc("/api/ingest/aggregates/refresh", h.RefreshAggregates).Methods(http.MethodPost)
}

// Analyze inspects a file without starting a job.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	name, data, ok := h.readFile(w, r)
	if !ok {
		return
	}

	result, err := h.svc.Analyze(r.Context(), name, data)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Upload accepts a single file with optional template, years, and dry_run.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	companyID, ok := h.companyID(w, r)
	if !ok {
		return
	}

	name, data, ok := h.readFile(w, r)
	if !ok {
		return
	}

	years, err := parseYears(r.FormValue("years"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.svc.Upload(r.Context(), service.UploadRequest{
		CompanyID:    companyID,
		UserID:       userID,
		Filename:     name,
		Data:         data,
		TemplateName: r.FormValue("template"),
		Years:        years,
		DryRun:       r.FormValue("dry_run") == "true",
	})
	if err != nil {
		h.serviceError(w, err)
		return
	}

	status := http.StatusAccepted
	if result.Job == nil {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// UploadBundle accepts the canonical multi-file set in one multipart form.
func (h *Handler) UploadBundle(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	companyID, ok := h.companyID(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(h.svc.MaxBytes()); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	files := make(map[string][]byte)
	for _, headers := range r.MultipartForm.File {
		for _, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				http.Error(w, "unreadable file "+fh.Filename, http.StatusBadRequest)
				return
			}
			data, err := io.ReadAll(io.LimitReader(f, h.svc.MaxBytes()+1))
			f.Close()
			if err != nil {
				http.Error(w, "unreadable file "+fh.Filename, http.StatusBadRequest)
				return
			}
			files[strings.ToLower(fh.Filename)] = data
		}
	}

	result, err := h.svc.UploadBundle(r.Context(), service.BundleRequest{
		CompanyID: companyID,
		UserID:    userID,
		Files:     files,
		DryRun:    r.FormValue("dry_run") == "true",
	})
	if err != nil {
		h.serviceError(w, err)
		return
	}

	status := http.StatusAccepted
	if result.Job == nil {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// JobStatus returns the job row for polling.
func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}

	job, err := h.svc.JobStatus(r.Context(), jobID)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobView(job))
}

// ListJobs returns a company's recent jobs.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.companyID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	jobs, err := h.svc.ListJobs(r.Context(), companyID, limit)
	if err != nil {
		h.serviceError(w, err)
		return
	}

	views := make([]map[string]any, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, jobView(j))
	}
	writeJSON(w, http.StatusOK, views)
}

// ApplyMapping resumes a NEEDS_MAPPING job with a manual header mapping.
func (h *Handler) ApplyMapping(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}

	var body struct {
		Template string            `json:"template"`
		Mapping  map[string]string `json:"mapping"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Template == "" || len(body.Mapping) == 0 {
		http.Error(w, "template and mapping are required", http.StatusBadRequest)
		return
	}

	job, err := h.svc.ResumeWithMapping(r.Context(), jobID, body.Template, body.Mapping)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobView(job))
}

// SuggestConcepts returns chart-of-accounts concepts close to ?q=.
func (h *Handler) SuggestConcepts(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		http.Error(w, "q is required", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	suggestions, err := h.concepts.Suggest(q, limit)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

// RefreshAggregates recomputes ratio aggregates for every company outside
// the nightly schedule.
func (h *Handler) RefreshAggregates(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	go func() {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
		defer cancel()
		if err := h.svc.RefreshAllAggregates(ctx); err != nil {
			h.logger.Error("aggregate refresh failed", slog.Any("error", err))
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "refresco de ratios iniciado"})
}

// readFile pulls the uploaded file out of a multipart form, enforcing the
// size limit at the boundary.
func (h *Handler) readFile(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	if err := r.ParseMultipartForm(h.svc.MaxBytes()); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return "", nil, false
	}

	f, fh, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required", http.StatusBadRequest)
		return "", nil, false
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.svc.MaxBytes()+1))
	if err != nil {
		http.Error(w, "unreadable file", http.StatusBadRequest)
		return "", nil, false
	}
	if int64(len(data)) > h.svc.MaxBytes() {
		http.Error(w, service.ErrFileTooLarge.Error(), http.StatusRequestEntityTooLarge)
		return "", nil, false
	}
	return fh.Filename, data, true
}

func (h *Handler) companyID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.FormValue("company_id")
	if raw == "" {
		raw = r.URL.Query().Get("company_id")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "company_id is required", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrFileTooLarge):
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
	case errors.Is(err, service.ErrEmptyUpload),
		errors.Is(err, parser.ErrMissingRequiredFiles),
		errors.Is(err, parser.ErrUnknownBundleFile):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, template.ErrTemplateNotFound),
		errors.Is(err, repository.ErrJobNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		h.logger.Error("request failed", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// jobView is the job status contract exposed to callers.
func jobView(job *repository.ProcessingJob) map[string]any {
	return map[string]any{
		"id":         job.ID,
		"status":     job.Status,
		"stats_json": job.Stats,
		"file_name":  job.FileName,
		"created_at": job.CreatedAt,
		"updated_at": job.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseYears(raw string) ([]int, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	years := make([]int, 0, len(parts))
	for _, p := range parts {
		y, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, errors.New("years must be a comma-separated list of four-digit years")
		}
		years = append(years, y)
	}
	return years, nil
}
