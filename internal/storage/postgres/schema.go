package postgres

// schema is applied on Connect. Idempotent so repeated startups are safe.
const schema = `
CREATE TABLE IF NOT EXISTS records (
	url             TEXT PRIMARY KEY,
	upc             TEXT NOT NULL,
	title           TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	category        TEXT NOT NULL DEFAULT '',
	price_incl_tax  BIGINT NOT NULL DEFAULT 0,
	price_excl_tax  BIGINT NOT NULL DEFAULT 0,
	tax_amount      BIGINT NOT NULL DEFAULT 0,
	availability    TEXT NOT NULL DEFAULT '',
	available_count INTEGER NOT NULL DEFAULT 0,
	review_count    INTEGER NOT NULL DEFAULT 0,
	image_url       TEXT NOT NULL DEFAULT '',
	rating          INTEGER NOT NULL DEFAULT 0,
	fingerprint     TEXT NOT NULL,
	crawled_at      TIMESTAMPTZ NOT NULL,
	snapshot_uri    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS records_upc_idx ON records (upc);
CREATE INDEX IF NOT EXISTS records_category_idx ON records (lower(category));

CREATE TABLE IF NOT EXISTS crawl_sessions (
	id               TEXT PRIMARY KEY,
	started_at       TIMESTAMPTZ NOT NULL,
	completed_at     TIMESTAMPTZ,
	status           TEXT NOT NULL,
	total_discovered INTEGER NOT NULL DEFAULT 0,
	succeeded        INTEGER NOT NULL DEFAULT 0,
	failed           INTEGER NOT NULL DEFAULT 0,
	inserted         INTEGER NOT NULL DEFAULT 0,
	updated          INTEGER NOT NULL DEFAULT 0,
	unchanged        INTEGER NOT NULL DEFAULT 0,
	error_message    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS crawl_sessions_started_idx ON crawl_sessions (started_at DESC);

CREATE TABLE IF NOT EXISTS change_events (
	id            TEXT PRIMARY KEY,
	upc           TEXT NOT NULL,
	kind          TEXT NOT NULL,
	field_changes JSONB NOT NULL DEFAULT '{}',
	ts            TIMESTAMPTZ NOT NULL,
	session_id    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS change_events_ts_idx ON change_events (ts);
`
