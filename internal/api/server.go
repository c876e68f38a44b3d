// Package api exposes the HTTP interface for the bookwatch service.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bookwatch/crawler/internal/catalog"
	"github.com/bookwatch/crawler/internal/diff"
	"github.com/bookwatch/crawler/internal/metrics"
)

// CrawlRunner executes one crawl session.
type CrawlRunner interface {
	Run(ctx context.Context) (catalog.Session, error)
}

// DetectRunner executes one change-detection pass.
type DetectRunner interface {
	Run(ctx context.Context) (diff.Summary, error)
}

// Reporter serves daily change reports.
type Reporter interface {
	Daily(ctx context.Context, day time.Time) (catalog.Report, error)
}

// Config controls server behavior.
type Config struct {
	AuthEnabled bool
	APIKey      string
	// RequestTimeout bounds handler execution (default 60s).
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the store and the pipeline runners.
type Server struct {
	router   chi.Router
	store    catalog.Store
	crawler  CrawlRunner
	detector DetectRunner
	reporter Reporter
	clock    catalog.Clock
	cfg      Config
	logger   *zap.Logger

	crawlBusy  busyFlag
	detectBusy busyFlag
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	store catalog.Store,
	crawler CrawlRunner,
	detector DetectRunner,
	reporter Reporter,
	clock catalog.Clock,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:    store,
		crawler:  crawler,
		detector: detector,
		reporter: reporter,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))
	if cfg.AuthEnabled {
		r.Use(apiKeyMiddleware(cfg.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/records", s.listRecords)
		r.Get("/records/{upc}", s.getRecord)
		r.Get("/sessions/latest", s.latestSession)
		r.Get("/changes", s.listChanges)
		r.Get("/reports/daily", s.dailyReport)
		r.Post("/crawl", s.triggerCrawl)
		r.Post("/detect", s.triggerDetect)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Connect(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
