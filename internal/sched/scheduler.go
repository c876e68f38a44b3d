// Package sched runs the recurring crawl, detection and report jobs.
package sched

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/bookwatch/crawler/internal/catalog"
	"github.com/bookwatch/crawler/internal/config"
	"github.com/bookwatch/crawler/internal/diff"
)

// CrawlRunner executes one crawl session.
type CrawlRunner interface {
	Run(ctx context.Context) (catalog.Session, error)
}

// DetectRunner executes one change-detection pass.
type DetectRunner interface {
	Run(ctx context.Context) (diff.Summary, error)
}

// Reporter builds the daily change report.
type Reporter interface {
	Daily(ctx context.Context, day time.Time) (catalog.Report, error)
}

// Scheduler owns the cron loop. Each configured expression registers one
// job; an empty expression disables that job.
type Scheduler struct {
	cfg      config.ScheduleConfig
	crawler  CrawlRunner
	detector DetectRunner
	reporter Reporter
	clock    catalog.Clock
	cron     *cron.Cron
	logger   *zap.Logger
}

// New builds a Scheduler over the pipeline runners.
func New(
	cfg config.ScheduleConfig,
	crawler CrawlRunner,
	detector DetectRunner,
	reporter Reporter,
	clock catalog.Clock,
	logger *zap.Logger,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:      cfg,
		crawler:  crawler,
		detector: detector,
		reporter: reporter,
		clock:    clock,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start registers the configured jobs and starts the cron loop. Jobs run
// until Stop is called; ctx bounds each individual run.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.add("crawl", s.cfg.Crawl, func() { s.runCrawl(ctx) }); err != nil {
		return err
	}
	if err := s.add("detect", s.cfg.Detect, func() { s.runDetect(ctx) }); err != nil {
		return err
	}
	if err := s.add("report", s.cfg.Report, func() { s.runReport(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) add(name, expr string, job func()) error {
	if expr == "" {
		s.logger.Info("scheduled job disabled", zap.String("job", name))
		return nil
	}
	if _, err := s.cron.AddFunc(expr, job); err != nil {
		return fmt.Errorf("invalid cron expression for %s (%q): %w", name, expr, err)
	}
	s.logger.Info("scheduled job registered",
		zap.String("job", name),
		zap.String("cron", expr),
	)
	return nil
}

func (s *Scheduler) runCrawl(ctx context.Context) {
	sess, err := s.crawler.Run(ctx)
	if err != nil {
		s.logger.Error("scheduled crawl failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled crawl finished",
		zap.String("session_id", sess.ID),
		zap.String("status", string(sess.Status)),
		zap.Int("succeeded", sess.Succeeded),
		zap.Int("failed", sess.Failed),
	)
}

func (s *Scheduler) runDetect(ctx context.Context) {
	summary, err := s.detector.Run(ctx)
	if err != nil {
		s.logger.Error("scheduled detection failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled detection finished",
		zap.Int("new", summary.New),
		zap.Int("removed", summary.Removed),
		zap.Int("updated", summary.Updated),
	)
}

// runReport builds yesterday's report so the full day is covered.
func (s *Scheduler) runReport(ctx context.Context) {
	day := s.clock.Now().UTC().AddDate(0, 0, -1)
	report, err := s.reporter.Daily(ctx, day)
	if err != nil {
		s.logger.Error("scheduled report failed", zap.Error(err))
		return
	}
	s.logger.Info("daily report",
		zap.String("date", report.Date),
		zap.Int("total_changes", report.TotalChanges),
		zap.Int("new", report.NewRecords),
		zap.Int("removed", report.RemovedRecords),
		zap.Int("updated", report.UpdatedRecords),
		zap.Int("price_changes", report.PriceChanges),
		zap.Int("availability_changes", report.AvailabilityChanges),
	)
}
