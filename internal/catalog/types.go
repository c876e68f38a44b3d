package catalog

import (
	"time"
)

// SessionStatus represents the lifecycle state of a crawl session.
type SessionStatus string

// Session status values persisted in the store. A session moves from
// running to exactly one terminal state and never transitions again.
const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// Record is a normalized catalog item extracted from a product page.
// Identity is the UPC once resolved; the source URL serves as the
// crawl-time key before that.
type Record struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	UPC         string `json:"upc"`

	PriceInclTax Money `json:"price_incl_tax"`
	PriceExclTax Money `json:"price_excl_tax"`
	TaxAmount    Money `json:"tax_amount"`

	Availability   string `json:"availability"`
	AvailableCount int    `json:"available_count"`
	ReviewCount    int    `json:"review_count"`

	ImageURL string `json:"image_url"`
	Rating   int    `json:"rating"`

	// Metadata; excluded from the content fingerprint.
	URL         string    `json:"url"`
	CrawledAt   time.Time `json:"crawled_at"`
	SnapshotURI string    `json:"snapshot_uri,omitempty"`
}

// Session tracks one run of the crawl pipeline.
type Session struct {
	ID          string        `json:"id"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Status      SessionStatus `json:"status"`

	TotalDiscovered int `json:"total_discovered"`
	Succeeded       int `json:"succeeded"`
	Failed          int `json:"failed"`

	// Success breakdown: a crawl success is either fresh data written
	// (inserted/updated) or a verified no-change (unchanged).
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`

	ErrorMessage string `json:"error_message,omitempty"`
}

// SessionPatch carries the fields of an incremental session update.
// Nil pointers leave the stored value untouched.
type SessionPatch struct {
	Status          *SessionStatus
	CompletedAt     *time.Time
	TotalDiscovered *int
	Succeeded       *int
	Failed          *int
	Inserted        *int
	Updated         *int
	Unchanged       *int
	ErrorMessage    *string
}

// UpsertOutcome is the tri-state result of persisting a record.
type UpsertOutcome string

// Upsert outcomes returned by Store.UpsertRecord.
const (
	OutcomeInserted  UpsertOutcome = "inserted"
	OutcomeUpdated   UpsertOutcome = "updated"
	OutcomeUnchanged UpsertOutcome = "unchanged"
)

// ChangeKind classifies a change event.
type ChangeKind string

// Change kinds emitted by the change detector.
const (
	ChangeNew     ChangeKind = "new"
	ChangeRemoved ChangeKind = "removed"
	ChangeUpdated ChangeKind = "updated"
)

// FieldChange holds the stringified before/after values of one field.
type FieldChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// ChangeEvent is an immutable, append-only fact that a record appeared,
// disappeared, or had specific fields altered.
type ChangeEvent struct {
	ID           string                 `json:"id"`
	UPC          string                 `json:"upc"`
	Kind         ChangeKind             `json:"kind"`
	FieldChanges map[string]FieldChange `json:"field_changes"`
	Timestamp    time.Time              `json:"timestamp"`
	SessionID    string                 `json:"session_id,omitempty"`
}

// SubjectCount ranks one subject by change-event frequency.
type SubjectCount struct {
	UPC        string `json:"upc"`
	EventCount int    `json:"event_count"`
}

// Report is the on-demand daily aggregate over change events. It is
// derived, never persisted.
type Report struct {
	Date                string         `json:"date"`
	TotalChanges        int            `json:"total_changes"`
	NewRecords          int            `json:"new_records"`
	RemovedRecords      int            `json:"removed_records"`
	UpdatedRecords      int            `json:"updated_records"`
	PriceChanges        int            `json:"price_changes"`
	AvailabilityChanges int            `json:"availability_changes"`
	ChangesByKind       map[string]int `json:"changes_by_kind"`
	TopChangedSubjects  []SubjectCount `json:"top_changed_subjects"`
}

// RecordQuery is the paginated/filtered listing request used by the REST
// layer. Page is 1-based.
type RecordQuery struct {
	Page     int
	PageSize int
	Category string
	InStock  *bool
}
