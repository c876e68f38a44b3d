// Package memory provides an in-memory Store for development and tests.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bookwatch/crawler/internal/catalog"
)

// Store keeps records, sessions, and change events in process memory.
// Listings iterate in insertion order so results are stable.
type Store struct {
	mu sync.RWMutex

	records     map[string]catalog.Record // keyed by source URL
	recordOrder []string

	sessions     map[string]catalog.Session
	sessionOrder []string

	events []catalog.ChangeEvent
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		records:  make(map[string]catalog.Record),
		sessions: make(map[string]catalog.Session),
	}
}

// Connect is a no-op for the in-memory store.
func (s *Store) Connect(context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (s *Store) Close(context.Context) error { return nil }

// UpsertRecord writes rec keyed by its URL and reports the tri-state
// outcome. An identical fingerprint leaves the stored copy untouched.
func (s *Store) UpsertRecord(_ context.Context, rec catalog.Record) (catalog.UpsertOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[rec.URL]
	if !ok {
		s.records[rec.URL] = rec
		s.recordOrder = append(s.recordOrder, rec.URL)
		return catalog.OutcomeInserted, nil
	}
	if existing.Fingerprint() == rec.Fingerprint() {
		return catalog.OutcomeUnchanged, nil
	}
	s.records[rec.URL] = rec
	return catalog.OutcomeUpdated, nil
}

// GetRecordByURL returns the record stored under url.
func (s *Store) GetRecordByURL(_ context.Context, url string) (*catalog.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[url]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	out := rec
	return &out, nil
}

// GetRecordByUPC returns the record with the given UPC.
func (s *Store) GetRecordByUPC(_ context.Context, upc string) (*catalog.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, url := range s.recordOrder {
		if rec := s.records[url]; rec.UPC == upc {
			out := rec
			return &out, nil
		}
	}
	return nil, catalog.ErrNotFound
}

// ListRecords returns up to limit records in insertion order; limit <= 0
// returns everything.
func (s *Store) ListRecords(_ context.Context, limit int) ([]catalog.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.Record, 0, len(s.recordOrder))
	for _, url := range s.recordOrder {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, s.records[url])
	}
	return out, nil
}

// QueryRecords filters and paginates records for the REST listing.
func (s *Store) QueryRecords(_ context.Context, q catalog.RecordQuery) ([]catalog.Record, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []catalog.Record
	for _, url := range s.recordOrder {
		rec := s.records[url]
		if q.Category != "" && !strings.EqualFold(rec.Category, q.Category) {
			continue
		}
		if q.InStock != nil {
			inStock := rec.AvailableCount > 0
			if inStock != *q.InStock {
				continue
			}
		}
		matched = append(matched, rec)
	}

	total := len(matched)
	page, size := q.Page, q.PageSize
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	start := (page - 1) * size
	if start >= total {
		return []catalog.Record{}, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// StoreSession persists a new session.
func (s *Store) StoreSession(_ context.Context, sess catalog.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.ID]; !exists {
		s.sessionOrder = append(s.sessionOrder, sess.ID)
	}
	s.sessions[sess.ID] = sess
	return nil
}

// UpdateSession applies a partial update to an existing session.
func (s *Store) UpdateSession(_ context.Context, id string, patch catalog.SessionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return catalog.ErrNotFound
	}
	applyPatch(&sess, patch)
	s.sessions[id] = sess
	return nil
}

// LatestSession returns the most recently created session.
func (s *Store) LatestSession(_ context.Context) (*catalog.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.sessionOrder) == 0 {
		return nil, catalog.ErrNotFound
	}
	sess := s.sessions[s.sessionOrder[len(s.sessionOrder)-1]]
	return &sess, nil
}

// StoreChangeEvent appends one immutable change event.
func (s *Store) StoreChangeEvent(_ context.Context, ev catalog.ChangeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, ev)
	return nil
}

// ChangeEventsInRange returns events with start <= timestamp < end.
func (s *Store) ChangeEventsInRange(_ context.Context, start, end time.Time) ([]catalog.ChangeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []catalog.ChangeEvent
	for _, ev := range s.events {
		if !ev.Timestamp.Before(start) && ev.Timestamp.Before(end) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func applyPatch(sess *catalog.Session, patch catalog.SessionPatch) {
	if patch.Status != nil {
		sess.Status = *patch.Status
	}
	if patch.CompletedAt != nil {
		sess.CompletedAt = patch.CompletedAt
	}
	if patch.TotalDiscovered != nil {
		sess.TotalDiscovered = *patch.TotalDiscovered
	}
	if patch.Succeeded != nil {
		sess.Succeeded = *patch.Succeeded
	}
	if patch.Failed != nil {
		sess.Failed = *patch.Failed
	}
	if patch.Inserted != nil {
		sess.Inserted = *patch.Inserted
	}
	if patch.Updated != nil {
		sess.Updated = *patch.Updated
	}
	if patch.Unchanged != nil {
		sess.Unchanged = *patch.Unchanged
	}
	if patch.ErrorMessage != nil {
		sess.ErrorMessage = *patch.ErrorMessage
	}
}
