package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/auth"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/ingest/assistant"
	ingesthandler "github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/ingest/handler"
	ingestrepo "github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/ingest/repository"
	ingestservice "github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/ingest/service"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/template"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/validation"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/pkg/config"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/pkg/cron"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/pkg/db"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/pkg/metrics"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/pkg/notify"
	"github.com/Garzer09/finanzas-pyme-vision-sub002/pkg/storage"

	"github.com/prometheus/client_golang/prometheus"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Repositories
	TemplateRepo *template.PostgresRepository
	IngestRepo   *ingestrepo.PostgresRepository

	// Services
	TemplateResolver *template.Resolver
	IngestService    *ingestservice.Service
	ConceptIndex     *validation.ConceptIndex
	FileStorage      storage.ArtifactStore
	Metrics          *metrics.Metrics
	MetricsRegistry  *prometheus.Registry
	Verifier         *auth.Verifier
	Scheduler        *cron.Scheduler

	// Handlers
	IngestHandler *ingesthandler.Handler
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	if err := deps.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	if err := deps.initServices(); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	if err := deps.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to init handlers: %w", err)
	}

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() error {
	d.TemplateRepo = template.NewPostgresRepository(d.DB.Pool)
	d.IngestRepo = ingestrepo.NewPostgresRepository(d.DB.Pool)

	// Default schemas must exist before any matching can happen.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := d.TemplateRepo.SeedDefaults(ctx); err != nil {
		return fmt.Errorf("failed to seed default templates: %w", err)
	}

	d.Logger.Info("repositories initialized")
	return nil
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices() error {
	if d.Config.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt secret is required")
	}
	d.Verifier = auth.NewVerifier(d.Config.Auth.JWTSecret)

	d.TemplateResolver = template.NewResolver(d.TemplateRepo)

	fileStorage, err := storage.NewLocalStore(d.Config.Storage.ArtifactPath)
	if err != nil {
		return fmt.Errorf("failed to init artifact storage: %w", err)
	}
	d.FileStorage = fileStorage

	d.MetricsRegistry = prometheus.NewRegistry()
	d.Metrics = metrics.New(d.MetricsRegistry)

	conceptIndex, err := validation.NewConceptIndex()
	if err != nil {
		return fmt.Errorf("failed to build concept index: %w", err)
	}
	d.ConceptIndex = conceptIndex

	d.IngestService = ingestservice.NewService(
		d.IngestRepo,
		d.TemplateResolver,
		d.FileStorage,
		d.Metrics,
		d.Logger,
	).WithMaxFileBytes(d.Config.Upload.MaxFileBytes)

	// The assistant is optional. Without an endpoint, jobs that need
	// mapping stop at NEEDS_MAPPING and wait for a manual resolution.
	assistantClient := assistant.NewClient(d.Config.Assistant.Endpoint, d.Config.Assistant.APIKey, d.Logger)
	if assistantClient.Configured() {
		d.IngestService.WithAssistant(assistantClient)
	}

	notifier := notify.NewEmailNotifier(
		d.Config.Notify.ResendAPIKey,
		d.Config.Notify.FromEmail,
		d.Config.Auth.AdminEmail,
		d.Logger,
	)
	d.IngestService.WithNotifier(notifier)

	d.Scheduler = cron.NewScheduler(d.IngestService, d.Logger)

	d.Logger.Info("services initialized")
	return nil
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() error {
	d.IngestHandler = ingesthandler.New(d.IngestService, d.ConceptIndex, d.Logger)

	d.Logger.Info("handlers initialized")
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.Scheduler != nil {
		<-d.Scheduler.Stop().Done()
	}
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
