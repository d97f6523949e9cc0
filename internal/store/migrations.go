package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id         TEXT PRIMARY KEY,
	position   INTEGER NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	body       TEXT NOT NULL DEFAULT '',
	type       TEXT NOT NULL DEFAULT 'other',
	severity   TEXT NOT NULL DEFAULT 'low',
	commodity  TEXT NOT NULL DEFAULT '',
	is_read    INTEGER NOT NULL DEFAULT 0 CHECK(is_read IN (0, 1)),
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS market_alerts (
	id             TEXT PRIMARY KEY,
	position       INTEGER NOT NULL,
	commodity      TEXT NOT NULL DEFAULT '',
	severity       TEXT NOT NULL DEFAULT 'low',
	message        TEXT NOT NULL DEFAULT '',
	change_percent REAL,
	current_price  REAL,
	created_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_position ON notifications(position);
CREATE INDEX IF NOT EXISTS idx_notifications_is_read ON notifications(is_read);
CREATE INDEX IF NOT EXISTS idx_market_alerts_position ON market_alerts(position);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS preferences (
	id         INTEGER PRIMARY KEY CHECK(id = 1),
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
