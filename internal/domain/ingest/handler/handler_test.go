package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/auth"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/ingest/repository"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/ingest/service"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/template"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/validation"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/pkg/metrics"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/pkg/storage"
)

type memRepo struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*repository.ProcessingJob
	refreshed int
}

func (m *memRepo) CreateJob(_ context.Context, companyID, userID uuid.UUID, fileName string) (*repository.ProcessingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := &repository.ProcessingJob{ID: uuid.New(), CompanyID: companyID, UploadedBy: userID, FileName: fileName, Status: repository.StatusParsing}
	m.jobs[job.ID] = job
	return job, nil
}

func (m *memRepo) UpdateJob(_ context.Context, jobID uuid.UUID, status repository.JobStatus, stats repository.JobStats, artifact *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[jobID]; ok {
		job.Status = status
		job.Stats = stats
	}
	return nil
}

func (m *memRepo) GetJob(_ context.Context, jobID uuid.UUID) (*repository.ProcessingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, repository.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (m *memRepo) ListJobs(_ context.Context, companyID uuid.UUID, _ int) ([]*repository.ProcessingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*repository.ProcessingJob
	for _, j := range m.jobs {
		if j.CompanyID == companyID {
			copied := *j
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memRepo) ReplacePeriodLines(_ context.Context, _ uuid.UUID, _ string, _ []int, lines []repository.FinancialLine) (int, error) {
	return len(lines), nil
}

func (m *memRepo) ReplaceDebtPool(_ context.Context, _, _ uuid.UUID, entries []repository.DebtPoolEntry) (int, error) {
	return len(entries), nil
}

func (m *memRepo) RefreshRatioAggregates(_ context.Context, _ uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshed++
	return nil
}

func (m *memRepo) CompaniesWithLines(_ context.Context) ([]uuid.UUID, error) {
	return []uuid.UUID{uuid.New()}, nil
}

func (m *memRepo) FailStaleJobs(_ context.Context) (int64, error) { return 0, nil }

func (m *memRepo) refreshCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshed
}

type memResolver struct{ schemas map[string]*template.Schema }

func (m *memResolver) Resolve(_ context.Context, name string, _ *uuid.UUID) (*template.Schema, error) {
	s, ok := m.schemas[name]
	if !ok {
		return nil, template.ErrTemplateNotFound
	}
	return s, nil
}

func (m *memResolver) ListActive(_ context.Context) ([]*template.Schema, error) {
	out := make([]*template.Schema, 0, len(m.schemas))
	for _, s := range m.schemas {
		out = append(out, s)
	}
	return out, nil
}

func newTestRouter(t *testing.T) (*mux.Router, string, *memRepo) {
	t.Helper()

	resolver := &memResolver{schemas: map[string]*template.Schema{}}
	for _, s := range template.Defaults() {
		resolver.schemas[s.Name] = s
	}

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	repo := &memRepo{jobs: map[uuid.UUID]*repository.ProcessingJob{}}
	svc := service.NewService(
		repo,
		resolver,
		store,
		metrics.New(prometheus.NewRegistry()),
		slog.New(slog.DiscardHandler),
	)

	concepts, err := validation.NewConceptIndex()
	require.NoError(t, err)
	t.Cleanup(func() { concepts.Close() })

	const secret = "handler-test-secret"
	verifier := auth.NewVerifier(secret)

	r := mux.NewRouter()
	api := r.PathPrefix("/").Subrouter()
	api.Use(verifier.Middleware)
	New(svc, concepts, slog.New(slog.DiscardHandler)).Register(api)
	return r, secret, repo
}

func multipartBody(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for name, data := range files {
		fw, err := w.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func authedRequest(t *testing.T, secret, method, path string, body *bytes.Buffer, contentType string) *http.Request {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, body)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", "Bearer "+testToken(t, secret))
	return req
}

func testToken(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		Role: auth.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAnalyzeEndpoint(t *testing.T) {
	router, secret, _ := newTestRouter(t)

	csv := "Concepto;2023\nGastos de personal;1200\n"
	body, ct := multipartBody(t, nil, map[string][]byte{"cuenta-pyg.csv": []byte(csv)})
	req := authedRequest(t, secret, http.MethodPost, "/api/ingest/analyze", body, ct)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Preview struct {
			Delimiter string   `json:"delimiter"`
			Headers   []string `json:"headers"`
		} `json:"preview"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, ";", res.Preview.Delimiter)
	assert.Equal(t, []string{"Concepto", "2023"}, res.Preview.Headers)
}

func TestUploadEndpointDryRun(t *testing.T) {
	router, secret, _ := newTestRouter(t)

	csv := "Concepto;2023\nGastos de personal;1.200,00\n"
	body, ct := multipartBody(t, map[string]string{
		"company_id": uuid.NewString(),
		"template":   template.NameProfitLoss,
		"dry_run":    "true",
	}, map[string][]byte{"cuenta-pyg.csv": []byte(csv)})

	req := authedRequest(t, secret, http.MethodPost, "/api/ingest/upload", body, ct)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Report struct {
			IsValid bool  `json:"is_valid"`
			Years   []int `json:"years"`
			DryRun  bool  `json:"dry_run"`
		} `json:"report"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Report.IsValid)
	assert.True(t, res.Report.DryRun)
	assert.Equal(t, []int{2023}, res.Report.Years)
}

func TestUploadEndpointAccepted(t *testing.T) {
	router, secret, _ := newTestRouter(t)

	csv := "Concepto;2023\nGastos de personal;1200\n"
	body, ct := multipartBody(t, map[string]string{
		"company_id": uuid.NewString(),
		"template":   template.NameProfitLoss,
	}, map[string][]byte{"cuenta-pyg.csv": []byte(csv)})

	req := authedRequest(t, secret, http.MethodPost, "/api/ingest/upload", body, ct)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var res struct {
		Job struct {
			ID     uuid.UUID `json:"ID"`
			Status string    `json:"Status"`
		} `json:"job"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.NotEqual(t, uuid.Nil, res.Job.ID)
}

func TestUploadEndpointValidation(t *testing.T) {
	router, secret, _ := newTestRouter(t)

	t.Run("missing company_id", func(t *testing.T) {
		body, ct := multipartBody(t, nil, map[string][]byte{"cuenta-pyg.csv": []byte("a;b\n")})
		req := authedRequest(t, secret, http.MethodPost, "/api/ingest/upload", body, ct)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing file", func(t *testing.T) {
		body, ct := multipartBody(t, map[string]string{"company_id": uuid.NewString()}, nil)
		req := authedRequest(t, secret, http.MethodPost, "/api/ingest/upload", body, ct)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown template", func(t *testing.T) {
		body, ct := multipartBody(t, map[string]string{
			"company_id": uuid.NewString(),
			"template":   "no-existe",
			"dry_run":    "true",
		}, map[string][]byte{"datos.csv": []byte("a;b\n1;2\n")})
		req := authedRequest(t, secret, http.MethodPost, "/api/ingest/upload", body, ct)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		body, ct := multipartBody(t, nil, map[string][]byte{"x.csv": []byte("a\n")})
		req := httptest.NewRequest(http.MethodPost, "/api/ingest/upload", body)
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestJobStatusEndpoint(t *testing.T) {
	router, secret, _ := newTestRouter(t)

	t.Run("unknown job is 404", func(t *testing.T) {
		req := authedRequest(t, secret, http.MethodGet, "/api/ingest/jobs/"+uuid.NewString(), nil, "")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad id is 400", func(t *testing.T) {
		req := authedRequest(t, secret, http.MethodGet, "/api/ingest/jobs/not-a-uuid", nil, "")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSuggestConceptsEndpoint(t *testing.T) {
	router, secret, _ := newTestRouter(t)

	req := authedRequest(t, secret, http.MethodGet, "/api/ingest/concepts/suggest?q=cifra+de+negocios", nil, "")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Suggestions []struct {
			Concept string `json:"concept"`
		} `json:"suggestions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotEmpty(t, res.Suggestions)
	assert.Equal(t, "Importe neto de la cifra de negocios", res.Suggestions[0].Concept)
}

func TestBundleEndpointMissingRequired(t *testing.T) {
	router, secret, _ := newTestRouter(t)

	body, ct := multipartBody(t, map[string]string{"company_id": uuid.NewString()},
		map[string][]byte{"cuenta-pyg.csv": []byte("Concepto;2023\nGastos de personal;1\n")})
	req := authedRequest(t, secret, http.MethodPost, "/api/ingest/bundle", body, ct)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshAggregatesEndpoint(t *testing.T) {
	router, secret, repo := newTestRouter(t)

	req := authedRequest(t, secret, http.MethodPost, "/api/ingest/aggregates/refresh", nil, "")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	assert.Eventually(t, func() bool { return repo.refreshCount() > 0 },
		2*time.Second, 10*time.Millisecond)
}
