// Package metrics exposes prometheus collectors for the ingestion pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline collectors
type Metrics struct {
	JobsTotal        *prometheus.CounterVec
	RowsLoaded       prometheus.Counter
	ValidationErrors *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
}

// New registers the collectors on the given registerer
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		JobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_jobs_total",
			Help: "Processing jobs by terminal status",
		}, []string{"status"}),
		RowsLoaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingest_rows_loaded_total",
			Help: "Normalized financial lines inserted",
		}),
		ValidationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_validation_errors_total",
			Help: "Row validation errors by type",
		}, []string{"type"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingest_stage_duration_seconds",
			Help:    "Wall time spent per pipeline stage",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
	}
}
