package catalog

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals that the requested record, session, or event does
// not exist in the store.
var ErrNotFound = errors.New("not found")

// Store is the storage adapter consumed by the crawl and diff pipelines.
// Implementations are document stores keyed by source URL for records,
// session ID for sessions, and event ID for change events.
type Store interface {
	// Connect verifies the backing store is reachable.
	Connect(ctx context.Context) error
	// Close releases the underlying connections.
	Close(ctx context.Context) error

	// UpsertRecord writes a record keyed by its source URL and reports
	// whether it was inserted, updated, or identical to the stored copy.
	UpsertRecord(ctx context.Context, rec Record) (UpsertOutcome, error)
	GetRecordByURL(ctx context.Context, url string) (*Record, error)
	GetRecordByUPC(ctx context.Context, upc string) (*Record, error)
	// ListRecords returns up to limit records; limit <= 0 means no cap.
	ListRecords(ctx context.Context, limit int) ([]Record, error)
	// QueryRecords serves the REST listing; it returns the page of records
	// and the total number of matches.
	QueryRecords(ctx context.Context, q RecordQuery) ([]Record, int, error)

	StoreSession(ctx context.Context, s Session) error
	UpdateSession(ctx context.Context, id string, patch SessionPatch) error
	LatestSession(ctx context.Context) (*Session, error)

	StoreChangeEvent(ctx context.Context, ev ChangeEvent) error
	// ChangeEventsInRange returns events with start <= timestamp < end.
	ChangeEventsInRange(ctx context.Context, start, end time.Time) ([]ChangeEvent, error)
}

// FetchResponse is the result of fetching a single page.
type FetchResponse struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Fetcher retrieves a single URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResponse, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Clock returns the current time (injectable for tests).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces session and change-event IDs.
type IDGenerator interface {
	NewID() (string, error)
}
