package repository

// schema is applied on open. All statements are idempotent.
//
// price_snapshots is append-only: there is no UPDATE or DELETE path in this
// package; rows only disappear via ON DELETE CASCADE with their opportunity.
const schema = `
CREATE TABLE IF NOT EXISTS opportunities (
	id                TEXT PRIMARY KEY,
	outlet_id         TEXT NOT NULL,
	title             TEXT NOT NULL DEFAULT '',
	tier              TEXT NOT NULL DEFAULT 'standard',
	status            TEXT NOT NULL DEFAULT 'open',
	deadline          TEXT NOT NULL,
	current_price     REAL NOT NULL,
	last_price        REAL NOT NULL DEFAULT 0,
	inventory_level   INTEGER NOT NULL DEFAULT 1,
	variable_snapshot TEXT NOT NULL DEFAULT '{}',
	last_moved_at     TEXT NOT NULL,
	last_decay_at     TEXT NOT NULL,
	closed_at         TEXT,
	version           INTEGER NOT NULL DEFAULT 1,
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_opportunities_status_deadline ON opportunities(status, deadline);
CREATE INDEX IF NOT EXISTS idx_opportunities_outlet ON opportunities(outlet_id);

CREATE TABLE IF NOT EXISTS price_snapshots (
	id              TEXT PRIMARY KEY,
	opportunity_id  TEXT NOT NULL REFERENCES opportunities(id) ON DELETE CASCADE,
	suggested_price REAL NOT NULL,
	payload         TEXT NOT NULL,
	tick_time       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_opportunity_time ON price_snapshots(opportunity_id, tick_time DESC);

CREATE TABLE IF NOT EXISTS click_events (
	id             TEXT PRIMARY KEY,
	opportunity_id TEXT NOT NULL REFERENCES opportunities(id) ON DELETE CASCADE,
	clicked_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_clicks_opportunity_time ON click_events(opportunity_id, clicked_at);

CREATE TABLE IF NOT EXISTS pitches (
	id             TEXT PRIMARY KEY,
	opportunity_id TEXT NOT NULL REFERENCES opportunities(id) ON DELETE CASCADE,
	user_id        TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'active',
	successful     INTEGER NOT NULL DEFAULT 0,
	created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pitches_opportunity ON pitches(opportunity_id);
CREATE INDEX IF NOT EXISTS idx_pitches_user ON pitches(user_id);

CREATE TABLE IF NOT EXISTS push_subscriptions (
	user_id    TEXT PRIMARY KEY,
	endpoint   TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS variables (
	name         TEXT PRIMARY KEY,
	weight       REAL NOT NULL,
	nonlinear_fn TEXT NOT NULL DEFAULT '',
	updated_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS config (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`
