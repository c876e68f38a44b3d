// Package diff compares a freshly crawled catalog against the stored one
// and emits change events, plus the daily aggregate built from them.
package diff

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/bookwatch/crawler/internal/catalog"
)

// comparedFields is the fixed set of business fields inspected when two
// versions of a record share a URL but differ in fingerprint.
var comparedFields = []struct {
	name  string
	value func(catalog.Record) string
}{
	{"title", func(r catalog.Record) string { return r.Title }},
	{"description", func(r catalog.Record) string { return r.Description }},
	{"category", func(r catalog.Record) string { return r.Category }},
	{"upc", func(r catalog.Record) string { return r.UPC }},
	{"price_incl_tax", func(r catalog.Record) string { return r.PriceInclTax.String() }},
	{"price_excl_tax", func(r catalog.Record) string { return r.PriceExclTax.String() }},
	{"tax_amount", func(r catalog.Record) string { return r.TaxAmount.String() }},
	{"availability", func(r catalog.Record) string { return r.Availability }},
	// Named so the report's "availability" substring match counts stock
	// level changes as availability-related.
	{"availability_count", func(r catalog.Record) string { return strconv.Itoa(r.AvailableCount) }},
	{"review_count", func(r catalog.Record) string { return strconv.Itoa(r.ReviewCount) }},
	{"rating", func(r catalog.Record) string { return strconv.Itoa(r.Rating) }},
}

// Detector turns two URL-keyed snapshots into change events.
type Detector struct {
	clock  catalog.Clock
	ids    catalog.IDGenerator
	logger *zap.Logger
}

// NewDetector builds a Detector.
func NewDetector(clock catalog.Clock, ids catalog.IDGenerator, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{clock: clock, ids: ids, logger: logger}
}

// Compare diffs current against stored. URLs only in current produce
// "new" events, URLs only in stored produce "removed" events, and shared
// URLs whose fingerprints differ produce one "updated" event carrying the
// changed fields. Matching fingerprints, and fingerprint mismatches that
// resolve to zero field changes, produce nothing. Output order is
// deterministic: new, removed, updated, each sorted by URL.
func (d *Detector) Compare(current, stored map[string]catalog.Record, sessionID string) ([]catalog.ChangeEvent, error) {
	now := d.clock.Now()
	var events []catalog.ChangeEvent

	for _, url := range sortedKeys(current) {
		if _, ok := stored[url]; ok {
			continue
		}
		rec := current[url]
		ev, err := d.newEvent(rec.UPC, catalog.ChangeNew, map[string]catalog.FieldChange{
			"record": {New: rec.Title},
		}, now, sessionID)
		if err != nil {
			return nil, err
		}
		d.logger.Info("new record", zap.String("upc", rec.UPC), zap.String("title", rec.Title))
		events = append(events, ev)
	}

	for _, url := range sortedKeys(stored) {
		if _, ok := current[url]; ok {
			continue
		}
		rec := stored[url]
		ev, err := d.newEvent(rec.UPC, catalog.ChangeRemoved, map[string]catalog.FieldChange{
			"record": {Old: rec.Title},
		}, now, sessionID)
		if err != nil {
			return nil, err
		}
		d.logger.Warn("removed record", zap.String("upc", rec.UPC), zap.String("title", rec.Title))
		events = append(events, ev)
	}

	for _, url := range sortedKeys(current) {
		old, ok := stored[url]
		if !ok {
			continue
		}
		cur := current[url]
		if cur.Fingerprint() == old.Fingerprint() {
			continue
		}
		fields := fieldChanges(old, cur)
		if len(fields) == 0 {
			continue
		}
		ev, err := d.newEvent(cur.UPC, catalog.ChangeUpdated, fields, now, sessionID)
		if err != nil {
			return nil, err
		}
		d.logger.Info("updated record",
			zap.String("upc", cur.UPC),
			zap.Int("fields_changed", len(fields)),
		)
		events = append(events, ev)
	}

	return events, nil
}

func (d *Detector) newEvent(upc string, kind catalog.ChangeKind, fields map[string]catalog.FieldChange, at time.Time, sessionID string) (catalog.ChangeEvent, error) {
	id, err := d.ids.NewID()
	if err != nil {
		return catalog.ChangeEvent{}, fmt.Errorf("generate event id: %w", err)
	}
	return catalog.ChangeEvent{
		ID:           id,
		UPC:          upc,
		Kind:         kind,
		FieldChanges: fields,
		Timestamp:    at,
		SessionID:    sessionID,
	}, nil
}

func fieldChanges(old, cur catalog.Record) map[string]catalog.FieldChange {
	changes := make(map[string]catalog.FieldChange)
	for _, f := range comparedFields {
		before, after := f.value(old), f.value(cur)
		if before != after {
			changes[f.name] = catalog.FieldChange{Old: before, New: after}
		}
	}
	return changes
}

func sortedKeys(m map[string]catalog.Record) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
