package diff

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bookwatch/crawler/internal/catalog"
	"github.com/bookwatch/crawler/internal/metrics"
)

// Snapshotter produces the current, URL-keyed view of the live catalog
// without writing anything. The crawl orchestrator implements it.
type Snapshotter interface {
	Snapshot(ctx context.Context) (map[string]catalog.Record, error)
}

// Summary is the outcome of one detection run.
type Summary struct {
	Current int `json:"current"`
	Stored  int `json:"stored"`
	New     int `json:"new"`
	Removed int `json:"removed"`
	Updated int `json:"updated"`
	Total   int `json:"total"`
}

// Runner executes a full detection pass: snapshot the live site, load the
// stored catalog, diff the two, and persist the resulting events.
type Runner struct {
	detector *Detector
	snap     Snapshotter
	store    catalog.Store
	logger   *zap.Logger
}

// NewRunner builds a Runner.
func NewRunner(detector *Detector, snap Snapshotter, store catalog.Store, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{detector: detector, snap: snap, store: store, logger: logger}
}

// Run performs one detection pass and persists every emitted event.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	current, err := r.snap.Snapshot(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("snapshot live catalog: %w", err)
	}

	records, err := r.store.ListRecords(ctx, 0)
	if err != nil {
		return Summary{}, fmt.Errorf("load stored catalog: %w", err)
	}
	stored := make(map[string]catalog.Record, len(records))
	for _, rec := range records {
		stored[rec.URL] = rec
	}

	events, err := r.detector.Compare(current, stored, "")
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{Current: len(current), Stored: len(stored), Total: len(events)}
	for _, ev := range events {
		if err := r.store.StoreChangeEvent(ctx, ev); err != nil {
			return summary, fmt.Errorf("store change event %s: %w", ev.ID, err)
		}
		metrics.ObserveChangeEvent(string(ev.Kind))
		switch ev.Kind {
		case catalog.ChangeNew:
			summary.New++
		case catalog.ChangeRemoved:
			summary.Removed++
		case catalog.ChangeUpdated:
			summary.Updated++
		}
	}

	r.logger.Info("detection run finished",
		zap.Int("current", summary.Current),
		zap.Int("stored", summary.Stored),
		zap.Int("events", summary.Total),
	)
	return summary, nil
}
