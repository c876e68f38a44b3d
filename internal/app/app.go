// Package app initializes and holds the long-lived services of the
// bookwatch pipeline, acting as the dependency injection container.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bookwatch/crawler/internal/api"
	"github.com/bookwatch/crawler/internal/catalog"
	"github.com/bookwatch/crawler/internal/clock/system"
	"github.com/bookwatch/crawler/internal/config"
	"github.com/bookwatch/crawler/internal/crawl"
	"github.com/bookwatch/crawler/internal/diff"
	"github.com/bookwatch/crawler/internal/discovery"
	"github.com/bookwatch/crawler/internal/extract"
	"github.com/bookwatch/crawler/internal/fetch"
	"github.com/bookwatch/crawler/internal/id/uuid"
	"github.com/bookwatch/crawler/internal/logging"
	"github.com/bookwatch/crawler/internal/metrics"
	"github.com/bookwatch/crawler/internal/sched"
	"github.com/bookwatch/crawler/internal/snapshot"
	"github.com/bookwatch/crawler/internal/storage/memory"
	"github.com/bookwatch/crawler/internal/storage/postgres"
)

// App wires configuration into the concrete pipeline services. It is
// built once at startup and torn down with Close.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	store  catalog.Store

	orchestrator *crawl.Orchestrator
	detectRunner *diff.Runner
	reporter     *diff.Reporter
	server       *api.Server
	scheduler    *sched.Scheduler
}

// New constructs the full service graph from configuration. It fails
// fast: any service that cannot be initialized aborts startup.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New("bookwatch", cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	metrics.Init()

	store, err := newStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := store.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}

	var blobs catalog.BlobStore
	if cfg.Crawler.KeepRawHTML {
		blobs, err = snapshot.New(snapshot.Config{BaseDir: cfg.Snapshot.Dir})
		if err != nil {
			return nil, fmt.Errorf("init snapshot store: %w", err)
		}
		logger.Info("raw HTML archival enabled", zap.String("dir", cfg.Snapshot.Dir))
	}

	client := fetch.NewClient(fetch.ClientConfig{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.RequestTimeout(),
	})
	pool := fetch.NewPool(client, fetch.PoolConfig{
		MaxConcurrent: cfg.Crawler.Concurrency,
		Attempts:      cfg.Crawler.RetryAttempts,
		BaseDelay:     cfg.RetryDelay(),
	}, logger)

	extractor, err := extract.New(cfg.Crawler.BaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("init extractor: %w", err)
	}
	discoverer := discovery.New(pool, discovery.Config{
		BaseURL:   cfg.Crawler.BaseURL,
		PageDelay: cfg.PageDelay(),
	}, logger)

	clock := system.New()
	ids := uuid.New()

	orchestrator := crawl.New(
		discoverer,
		pool,
		extractor,
		store,
		blobs,
		clock,
		ids,
		crawl.Config{
			KeepRawHTML: cfg.Crawler.KeepRawHTML,
			Resume:      cfg.Crawler.Resume,
		},
		logger,
	)

	detector := diff.NewDetector(clock, ids, logger)
	detectRunner := diff.NewRunner(detector, orchestrator, store, logger)
	reporter := diff.NewReporter(store, logger)

	server := api.NewServer(store, orchestrator, detectRunner, reporter, clock, api.Config{
		AuthEnabled:    cfg.Auth.Enabled,
		APIKey:         cfg.Auth.APIKey,
		RequestTimeout: cfg.RequestTimeout(),
	}, logger)

	scheduler := sched.New(cfg.Schedule, orchestrator, detectRunner, reporter, clock, logger)

	return &App{
		cfg:          cfg,
		logger:       logger,
		store:        store,
		orchestrator: orchestrator,
		detectRunner: detectRunner,
		reporter:     reporter,
		server:       server,
		scheduler:    scheduler,
	}, nil
}

func newStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (catalog.Store, error) {
	switch cfg.DB.Provider {
	case "postgres":
		logger.Info("using postgres store")
		store, err := postgres.New(ctx, postgres.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: int32(cfg.DB.MaxOpenConns),
			MinConns: int32(cfg.DB.MinOpenConns),
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		return store, nil
	case "memory":
		logger.Info("using in-memory store; data is lost on exit")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown db provider %q", cfg.DB.Provider)
	}
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the configured record store.
func (a *App) Store() catalog.Store { return a.store }

// Crawler returns the crawl orchestrator.
func (a *App) Crawler() *crawl.Orchestrator { return a.orchestrator }

// Detector returns the change-detection runner.
func (a *App) Detector() *diff.Runner { return a.detectRunner }

// Reporter returns the daily report builder.
func (a *App) Reporter() *diff.Reporter { return a.reporter }

// Server returns the HTTP API server.
func (a *App) Server() *api.Server { return a.server }

// Scheduler returns the cron scheduler for serve mode.
func (a *App) Scheduler() *sched.Scheduler { return a.scheduler }

// Close releases held resources. Logger sync errors are best-effort.
func (a *App) Close(ctx context.Context) {
	if err := a.store.Close(ctx); err != nil {
		a.logger.Warn("error closing store", zap.Error(err))
	}
	_ = a.logger.Sync()
}
