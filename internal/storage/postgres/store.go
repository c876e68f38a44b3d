// Package postgres provides the Postgres-backed Store implementation.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookwatch/crawler/internal/catalog"
)

// pool is the subset of pgxpool.Pool the store uses; pgxmock implements it.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Store persists records, sessions, and change events in Postgres.
type Store struct {
	pool pool
}

// New creates a Store backed by a fresh pgx pool.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Connect pings the database and applies the schema.
func (s *Store) Connect(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close(context.Context) error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// UpsertRecord writes rec keyed by URL, comparing fingerprints to decide
// between inserted, updated, and unchanged.
func (s *Store) UpsertRecord(ctx context.Context, rec catalog.Record) (catalog.UpsertOutcome, error) {
	var stored string
	err := s.pool.QueryRow(ctx,
		`SELECT fingerprint FROM records WHERE url = $1`, rec.URL,
	).Scan(&stored)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if _, err := s.pool.Exec(ctx, `
INSERT INTO records (
	url, upc, title, description, category,
	price_incl_tax, price_excl_tax, tax_amount,
	availability, available_count, review_count,
	image_url, rating, fingerprint, crawled_at, snapshot_uri
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
			recordArgs(rec)...); err != nil {
			return "", fmt.Errorf("insert record: %w", err)
		}
		return catalog.OutcomeInserted, nil

	case err != nil:
		return "", fmt.Errorf("lookup record fingerprint: %w", err)

	case stored == rec.Fingerprint():
		return catalog.OutcomeUnchanged, nil

	default:
		if _, err := s.pool.Exec(ctx, `
UPDATE records SET
	upc = $2, title = $3, description = $4, category = $5,
	price_incl_tax = $6, price_excl_tax = $7, tax_amount = $8,
	availability = $9, available_count = $10, review_count = $11,
	image_url = $12, rating = $13, fingerprint = $14,
	crawled_at = $15, snapshot_uri = $16
WHERE url = $1`,
			recordArgs(rec)...); err != nil {
			return "", fmt.Errorf("update record: %w", err)
		}
		return catalog.OutcomeUpdated, nil
	}
}

const recordColumns = `
url, upc, title, description, category,
price_incl_tax, price_excl_tax, tax_amount,
availability, available_count, review_count,
image_url, rating, crawled_at, snapshot_uri`

// GetRecordByURL returns the record stored under url.
func (s *Store) GetRecordByURL(ctx context.Context, url string) (*catalog.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM records WHERE url = $1`, url)
	return scanRecordRow(row)
}

// GetRecordByUPC returns the record with the given UPC.
func (s *Store) GetRecordByUPC(ctx context.Context, upc string) (*catalog.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM records WHERE upc = $1 LIMIT 1`, upc)
	return scanRecordRow(row)
}

// ListRecords returns up to limit records; limit <= 0 returns everything.
func (s *Store) ListRecords(ctx context.Context, limit int) ([]catalog.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records ORDER BY url`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// QueryRecords serves the REST listing with category/stock filters.
func (s *Store) QueryRecords(ctx context.Context, q catalog.RecordQuery) ([]catalog.Record, int, error) {
	page, size := q.Page, q.PageSize
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}

	var category *string
	if q.Category != "" {
		category = &q.Category
	}

	var total int
	if err := s.pool.QueryRow(ctx, `
SELECT count(*) FROM records
WHERE ($1::text IS NULL OR lower(category) = lower($1))
  AND ($2::boolean IS NULL OR (available_count > 0) = $2)`,
		category, q.InStock,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
SELECT `+recordColumns+` FROM records
WHERE ($1::text IS NULL OR lower(category) = lower($1))
  AND ($2::boolean IS NULL OR (available_count > 0) = $2)
ORDER BY url
LIMIT $3 OFFSET $4`,
		category, q.InStock, size, (page-1)*size)
	if err != nil {
		return nil, 0, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// StoreSession persists a new session row.
func (s *Store) StoreSession(ctx context.Context, sess catalog.Session) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO crawl_sessions (
	id, started_at, completed_at, status,
	total_discovered, succeeded, failed,
	inserted, updated, unchanged, error_message
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		sess.ID, sess.StartedAt, sess.CompletedAt, string(sess.Status),
		sess.TotalDiscovered, sess.Succeeded, sess.Failed,
		sess.Inserted, sess.Updated, sess.Unchanged, sess.ErrorMessage)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// UpdateSession applies the non-nil patch fields to an existing session.
func (s *Store) UpdateSession(ctx context.Context, id string, patch catalog.SessionPatch) error {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.Status != nil {
		add("status", string(*patch.Status))
	}
	if patch.CompletedAt != nil {
		add("completed_at", *patch.CompletedAt)
	}
	if patch.TotalDiscovered != nil {
		add("total_discovered", *patch.TotalDiscovered)
	}
	if patch.Succeeded != nil {
		add("succeeded", *patch.Succeeded)
	}
	if patch.Failed != nil {
		add("failed", *patch.Failed)
	}
	if patch.Inserted != nil {
		add("inserted", *patch.Inserted)
	}
	if patch.Updated != nil {
		add("updated", *patch.Updated)
	}
	if patch.Unchanged != nil {
		add("unchanged", *patch.Unchanged)
	}
	if patch.ErrorMessage != nil {
		add("error_message", *patch.ErrorMessage)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE crawl_sessions SET %s WHERE id = $%d",
		strings.Join(sets, ", "), len(args))

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// LatestSession returns the most recently started session.
func (s *Store) LatestSession(ctx context.Context) (*catalog.Session, error) {
	var (
		sess   catalog.Session
		status string
	)
	err := s.pool.QueryRow(ctx, `
SELECT id, started_at, completed_at, status,
       total_discovered, succeeded, failed,
       inserted, updated, unchanged, error_message
FROM crawl_sessions
ORDER BY started_at DESC
LIMIT 1`).Scan(
		&sess.ID, &sess.StartedAt, &sess.CompletedAt, &status,
		&sess.TotalDiscovered, &sess.Succeeded, &sess.Failed,
		&sess.Inserted, &sess.Updated, &sess.Unchanged, &sess.ErrorMessage)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest session: %w", err)
	}
	sess.Status = catalog.SessionStatus(status)
	return &sess, nil
}

// StoreChangeEvent appends one immutable change event.
func (s *Store) StoreChangeEvent(ctx context.Context, ev catalog.ChangeEvent) error {
	fields, err := json.Marshal(ev.FieldChanges)
	if err != nil {
		return fmt.Errorf("marshal field changes: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO change_events (id, upc, kind, field_changes, ts, session_id)
VALUES ($1,$2,$3,$4,$5,$6)`,
		ev.ID, ev.UPC, string(ev.Kind), fields, ev.Timestamp, ev.SessionID)
	if err != nil {
		return fmt.Errorf("insert change event: %w", err)
	}
	return nil
}

// ChangeEventsInRange returns events with start <= ts < end in timestamp order.
func (s *Store) ChangeEventsInRange(ctx context.Context, start, end time.Time) ([]catalog.ChangeEvent, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, upc, kind, field_changes, ts, session_id
FROM change_events
WHERE ts >= $1 AND ts < $2
ORDER BY ts`, start, end)
	if err != nil {
		return nil, fmt.Errorf("query change events: %w", err)
	}
	defer rows.Close()

	var events []catalog.ChangeEvent
	for rows.Next() {
		var (
			ev     catalog.ChangeEvent
			kind   string
			fields []byte
		)
		if err := rows.Scan(&ev.ID, &ev.UPC, &kind, &fields, &ev.Timestamp, &ev.SessionID); err != nil {
			return nil, fmt.Errorf("scan change event: %w", err)
		}
		ev.Kind = catalog.ChangeKind(kind)
		if len(fields) > 0 {
			if err := json.Unmarshal(fields, &ev.FieldChanges); err != nil {
				return nil, fmt.Errorf("unmarshal field changes: %w", err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate change events: %w", err)
	}
	return events, nil
}

func recordArgs(rec catalog.Record) []any {
	return []any{
		rec.URL, rec.UPC, rec.Title, rec.Description, rec.Category,
		int64(rec.PriceInclTax), int64(rec.PriceExclTax), int64(rec.TaxAmount),
		rec.Availability, rec.AvailableCount, rec.ReviewCount,
		rec.ImageURL, rec.Rating, rec.Fingerprint(), rec.CrawledAt, rec.SnapshotURI,
	}
}

func scanRecordRow(row pgx.Row) (*catalog.Record, error) {
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan record: %w", err)
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (*catalog.Record, error) {
	var (
		rec                    catalog.Record
		inclTax, exclTax, taxA int64
	)
	err := row.Scan(
		&rec.URL, &rec.UPC, &rec.Title, &rec.Description, &rec.Category,
		&inclTax, &exclTax, &taxA,
		&rec.Availability, &rec.AvailableCount, &rec.ReviewCount,
		&rec.ImageURL, &rec.Rating, &rec.CrawledAt, &rec.SnapshotURI)
	if err != nil {
		return nil, err
	}
	rec.PriceInclTax = catalog.Money(inclTax)
	rec.PriceExclTax = catalog.Money(exclTax)
	rec.TaxAmount = catalog.Money(taxA)
	return &rec, nil
}

func scanRecords(rows pgx.Rows) ([]catalog.Record, error) {
	var records []catalog.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}
