// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// IngestMaintenance is the subset of the ingest service the scheduler
// drives.
type IngestMaintenance interface {
	RefreshAllAggregates(ctx context.Context) error
	ExpireStaleJobs(ctx context.Context) (int64, error)
}

// Scheduler manages the nightly maintenance jobs.
type Scheduler struct {
	cron   *cron.Cron
	ingest IngestMaintenance
	logger *slog.Logger
}

// NewScheduler creates a new job scheduler.
func NewScheduler(ingest IngestMaintenance, logger *slog.Logger) *Scheduler {
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))
	return &Scheduler{
		cron:   c,
		ingest: ingest,
		logger: logger,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	// Ratio aggregate refresh: daily at 3:00 AM
	if _, err := s.cron.AddFunc("0 3 * * *", s.refreshAggregates); err != nil {
		return err
	}
	// Stale job cleanup: hourly
	if _, err := s.cron.AddFunc("0 * * * *", s.expireStaleJobs); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

func (s *Scheduler) refreshAggregates() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	s.logger.Info("starting nightly ratio aggregate refresh")
	if err := s.ingest.RefreshAllAggregates(ctx); err != nil {
		s.logger.Error("ratio aggregate refresh failed", slog.Any("error", err))
		return
	}
	s.logger.Info("ratio aggregate refresh finished")
}

func (s *Scheduler) expireStaleJobs() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	n, err := s.ingest.ExpireStaleJobs(ctx)
	if err != nil {
		s.logger.Error("stale job cleanup failed", slog.Any("error", err))
		return
	}
	if n > 0 {
		s.logger.Warn("failed stale jobs", slog.Int64("count", n))
	}
}
