// Package crawl drives a full crawl session: discover product URLs, fetch
// and extract each one concurrently, and persist records and counters.
package crawl

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bookwatch/crawler/internal/catalog"
	"github.com/bookwatch/crawler/internal/extract"
	"github.com/bookwatch/crawler/internal/metrics"
)

// Discoverer yields the set of product URLs to crawl.
type Discoverer interface {
	Discover(ctx context.Context) ([]string, error)
}

// Config controls orchestrator behavior.
type Config struct {
	// KeepRawHTML archives each fetched page body in the snapshot store.
	KeepRawHTML bool
	// Resume adopts the latest session when it is still running instead
	// of always opening a fresh one.
	Resume bool
}

// Orchestrator runs the crawl pipeline over one session.
type Orchestrator struct {
	discoverer Discoverer
	fetcher    catalog.Fetcher
	extractor  *extract.Extractor
	store      catalog.Store
	blobs      catalog.BlobStore
	clock      catalog.Clock
	ids        catalog.IDGenerator
	cfg        Config
	logger     *zap.Logger
}

// New builds an Orchestrator. blobs may be nil when raw HTML is not kept.
func New(
	discoverer Discoverer,
	fetcher catalog.Fetcher,
	extractor *extract.Extractor,
	store catalog.Store,
	blobs catalog.BlobStore,
	clock catalog.Clock,
	ids catalog.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		discoverer: discoverer,
		fetcher:    fetcher,
		extractor:  extractor,
		store:      store,
		blobs:      blobs,
		clock:      clock,
		ids:        ids,
		cfg:        cfg,
		logger:     logger,
	}
}

// taskResult is one finished fetch+extract+store task. Results arrive in
// completion order, not submission order.
type taskResult struct {
	url     string
	outcome catalog.UpsertOutcome
	err     error
}

// Run executes one crawl session end to end and returns its final state.
// Per-URL failures are counted, never fatal; the session only finishes
// failed when the pipeline itself breaks (storage errors, cancellation).
func (o *Orchestrator) Run(ctx context.Context) (catalog.Session, error) {
	sess, err := o.openSession(ctx)
	if err != nil {
		return catalog.Session{}, err
	}
	o.logger.Info("crawl session started", zap.String("session_id", sess.ID))

	urls, derr := o.discoverer.Discover(ctx)
	if derr != nil {
		if len(urls) == 0 {
			return o.finalize(ctx, sess, fmt.Errorf("discovery: %w", derr))
		}
		// Partial discovery still crawls what it found.
		o.logger.Warn("discovery ended early",
			zap.Int("urls_collected", len(urls)),
			zap.Error(derr),
		)
	}

	sess.TotalDiscovered = len(urls)
	if err := o.store.UpdateSession(ctx, sess.ID, catalog.SessionPatch{
		TotalDiscovered: &sess.TotalDiscovered,
	}); err != nil {
		return o.finalize(ctx, sess, fmt.Errorf("persist discovered total: %w", err))
	}

	results := make(chan taskResult)
	for _, url := range urls {
		go func(u string) {
			results <- o.processURL(ctx, sess.ID, u)
		}(url)
	}

	// Single consumer: counter updates are serialized in completion order.
	var fatal error
	for i := 0; i < len(urls); i++ {
		res := <-results

		patch := catalog.SessionPatch{}
		if res.err != nil {
			sess.Failed++
			patch.Failed = &sess.Failed
			o.logger.Warn("crawl task failed",
				zap.String("url", res.url),
				zap.Error(res.err),
			)
		} else {
			sess.Succeeded++
			patch.Succeeded = &sess.Succeeded
			switch res.outcome {
			case catalog.OutcomeInserted:
				sess.Inserted++
				patch.Inserted = &sess.Inserted
			case catalog.OutcomeUpdated:
				sess.Updated++
				patch.Updated = &sess.Updated
			case catalog.OutcomeUnchanged:
				sess.Unchanged++
				patch.Unchanged = &sess.Unchanged
			}
		}

		if fatal == nil {
			if err := o.store.UpdateSession(ctx, sess.ID, patch); err != nil {
				// Keep draining so the workers can exit.
				fatal = fmt.Errorf("persist session counters: %w", err)
			}
		}
	}

	return o.finalize(ctx, sess, fatal)
}

// Snapshot fetches and extracts the live catalog without writing records.
// The change detector uses it as the "current" side of the diff.
func (o *Orchestrator) Snapshot(ctx context.Context) (map[string]catalog.Record, error) {
	urls, err := o.discoverer.Discover(ctx)
	if err != nil && len(urls) == 0 {
		return nil, fmt.Errorf("discovery: %w", err)
	}

	type snapResult struct {
		rec catalog.Record
		err error
	}
	results := make(chan snapResult)
	for _, url := range urls {
		go func(u string) {
			rec, err := o.fetchRecord(ctx, u)
			results <- snapResult{rec: rec, err: err}
		}(url)
	}

	current := make(map[string]catalog.Record, len(urls))
	for i := 0; i < len(urls); i++ {
		res := <-results
		if res.err != nil {
			o.logger.Warn("snapshot task failed", zap.Error(res.err))
			continue
		}
		current[res.rec.URL] = res.rec
	}
	return current, nil
}

// openSession resumes the latest session when resume is enabled and that
// session is still running, otherwise starts a fresh one.
func (o *Orchestrator) openSession(ctx context.Context) (catalog.Session, error) {
	if o.cfg.Resume {
		latest, err := o.store.LatestSession(ctx)
		if err == nil && latest.Status == catalog.SessionRunning {
			o.logger.Info("resuming running session", zap.String("session_id", latest.ID))
			return *latest, nil
		}
	}

	id, err := o.ids.NewID()
	if err != nil {
		return catalog.Session{}, fmt.Errorf("generate session id: %w", err)
	}
	sess := catalog.Session{
		ID:        id,
		StartedAt: o.clock.Now(),
		Status:    catalog.SessionRunning,
	}
	if err := o.store.StoreSession(ctx, sess); err != nil {
		return catalog.Session{}, fmt.Errorf("persist session: %w", err)
	}
	return sess, nil
}

func (o *Orchestrator) processURL(ctx context.Context, sessionID, url string) taskResult {
	resp, err := o.fetcher.Fetch(ctx, url)
	if err != nil {
		return taskResult{url: url, err: err}
	}
	rec, err := o.extractor.Extract(url, resp.Body)
	if err != nil {
		return taskResult{url: url, err: err}
	}
	rec.CrawledAt = o.clock.Now()

	if o.cfg.KeepRawHTML && o.blobs != nil {
		path := fmt.Sprintf("%s/%s.html", sessionID, rec.Fingerprint())
		uri, err := o.blobs.PutObject(ctx, path, "text/html", resp.Body)
		if err != nil {
			o.logger.Warn("archive raw html", zap.String("url", url), zap.Error(err))
		} else {
			rec.SnapshotURI = uri
		}
	}

	outcome, err := o.store.UpsertRecord(ctx, rec)
	if err != nil {
		return taskResult{url: url, err: fmt.Errorf("upsert record: %w", err)}
	}
	o.logger.Debug("record stored",
		zap.String("url", url),
		zap.String("outcome", string(outcome)),
	)
	return taskResult{url: url, outcome: outcome}
}

func (o *Orchestrator) fetchRecord(ctx context.Context, url string) (catalog.Record, error) {
	resp, err := o.fetcher.Fetch(ctx, url)
	if err != nil {
		return catalog.Record{}, err
	}
	rec, err := o.extractor.Extract(url, resp.Body)
	if err != nil {
		return catalog.Record{}, err
	}
	rec.CrawledAt = o.clock.Now()
	return rec, nil
}

// finalize moves the session to its terminal state exactly once.
func (o *Orchestrator) finalize(ctx context.Context, sess catalog.Session, runErr error) (catalog.Session, error) {
	now := o.clock.Now()
	sess.CompletedAt = &now
	sess.Status = catalog.SessionCompleted
	if runErr != nil {
		sess.Status = catalog.SessionFailed
		sess.ErrorMessage = runErr.Error()
	}

	patch := catalog.SessionPatch{
		Status:      &sess.Status,
		CompletedAt: sess.CompletedAt,
	}
	if sess.ErrorMessage != "" {
		patch.ErrorMessage = &sess.ErrorMessage
	}
	if err := o.store.UpdateSession(ctx, sess.ID, patch); err != nil {
		o.logger.Error("finalize session", zap.String("session_id", sess.ID), zap.Error(err))
		if runErr == nil {
			runErr = fmt.Errorf("finalize session: %w", err)
		}
	}

	metrics.ObserveSession(string(sess.Status))
	o.logger.Info("crawl session finished",
		zap.String("session_id", sess.ID),
		zap.String("status", string(sess.Status)),
		zap.Int("total", sess.TotalDiscovered),
		zap.Int("succeeded", sess.Succeeded),
		zap.Int("failed", sess.Failed),
	)
	return sess, runErr
}
