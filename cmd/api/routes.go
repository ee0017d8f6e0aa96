package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/auth"
)

// BuildRouter assembles the HTTP surface: CORS, rate limiting, the
// authenticated ingest API and an unauthenticated health check.
func BuildRouter(deps *Dependencies) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/").Subrouter()
	api.Use(rateLimit(deps))
	api.Use(deps.Verifier.Middleware)
	api.Use(auth.RequireAdmin)
	deps.IngestHandler.Register(api)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{deps.Config.Server.BaseURL},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	return c.Handler(r)
}

// rateLimit applies a global token bucket across the API. Uploads are
// large and infrequent, so a single shared limiter is enough.
func rateLimit(deps *Dependencies) mux.MiddlewareFunc {
	limiter := rate.NewLimiter(
		rate.Limit(deps.Config.Server.RateLimitPerSecond),
		deps.Config.Server.RateLimitBurst,
	)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BuildMetricsHandler exposes the Prometheus registry on the internal
// metrics listener, separate from the public API port.
func BuildMetricsHandler(deps *Dependencies) http.Handler {
	m := http.NewServeMux()
	m.Handle("/metrics", promhttp.HandlerFor(deps.MetricsRegistry, promhttp.HandlerOpts{}))
	return m
}
