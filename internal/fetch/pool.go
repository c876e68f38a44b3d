package fetch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/bookwatch/crawler/internal/catalog"
	"github.com/bookwatch/crawler/internal/metrics"
)

// PoolConfig controls concurrency and retry behavior.
//   - MaxConcurrent: global limit on in-flight fetches (default 10).
//   - Attempts: total attempts per URL including the first (default 3).
//   - BaseDelay: backoff unit; attempt n sleeps BaseDelay*n (default 1s).
type PoolConfig struct {
	MaxConcurrent int
	Attempts      int
	BaseDelay     time.Duration
}

// Pool executes fetches under a shared concurrency limit with linear
// retry backoff. A per-URL failure never affects sibling fetches.
type Pool struct {
	fetcher catalog.Fetcher
	sem     *semaphore.Weighted
	cfg     PoolConfig
	logger  *zap.Logger
}

// NewPool builds a Pool on top of a single-shot fetcher.
func NewPool(fetcher catalog.Fetcher, cfg PoolConfig, logger *zap.Logger) *Pool {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		fetcher: fetcher,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		cfg:     cfg,
		logger:  logger,
	}
}

// Fetch retrieves one URL, blocking while the pool is saturated. Not-found
// responses fail immediately; transient failures are retried up to the
// attempt limit with linearly increasing backoff.
func (p *Pool) Fetch(ctx context.Context, url string) (catalog.FetchResponse, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return catalog.FetchResponse{}, fmt.Errorf("acquire fetch slot: %w", err)
	}
	defer p.sem.Release(1)

	metrics.IncActiveFetches()
	defer metrics.DecActiveFetches()

	var lastErr error
	for attempt := 1; attempt <= p.cfg.Attempts; attempt++ {
		if attempt > 1 {
			metrics.ObserveRetry()
		}

		resp, err := p.fetcher.Fetch(ctx, url)
		if err == nil {
			metrics.ObserveFetch("ok", resp.Duration)
			return resp, nil
		}
		lastErr = err

		if IsNotFound(err) {
			metrics.ObserveFetch("not_found", 0)
			p.logger.Debug("fetch not found", zap.String("url", url))
			return resp, err
		}
		// Only the caller's cancellation is terminal; a timed-out
		// attempt is transient like any other network failure.
		if ctx.Err() != nil || !IsRetryable(err) {
			break
		}
		p.logger.Warn("fetch attempt failed",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt == p.cfg.Attempts {
			break
		}

		wait := p.cfg.BaseDelay * time.Duration(attempt)
		select {
		case <-ctx.Done():
			return catalog.FetchResponse{}, fmt.Errorf("fetch backoff: %w", ctx.Err())
		case <-time.After(wait):
		}
	}

	metrics.ObserveFetch("error", 0)
	return catalog.FetchResponse{}, lastErr
}
