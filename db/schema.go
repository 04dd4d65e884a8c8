// ABOUTME: Database schema definitions for the sync store
// ABOUTME: Creates entity, link, watermark, run and job tables for SQLite and Postgres
package db

import (
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS entities (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	name TEXT NOT NULL,
	fields TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_kind ON entities(kind);
CREATE INDEX IF NOT EXISTS idx_entities_kind_updated ON entities(kind, updated_at);

CREATE TABLE IF NOT EXISTS links (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	relation TEXT NOT NULL,
	target_id TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE(owner_id, relation, target_id),
	FOREIGN KEY (owner_id) REFERENCES entities(id),
	FOREIGN KEY (target_id) REFERENCES entities(id)
);

CREATE INDEX IF NOT EXISTS idx_links_owner ON links(owner_id, relation);
CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_id, relation);

CREATE TABLE IF NOT EXISTS sync_state (
	category TEXT PRIMARY KEY,
	last_sync_time TEXT,
	status TEXT NOT NULL DEFAULT 'idle' CHECK(status IN ('idle', 'syncing', 'error')),
	error_message TEXT,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_runs (
	id TEXT PRIMARY KEY,
	trigger_name TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	finished_at DATETIME,
	succeeded INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	deferred INTEGER NOT NULL DEFAULT 0,
	error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at DESC);

CREATE TABLE IF NOT EXISTS sync_jobs (
	id TEXT PRIMARY KEY,
	target_type TEXT NOT NULL,
	target_id TEXT NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('pending', 'done', 'error')),
	message TEXT,
	created_at DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_sync_jobs_pending ON sync_jobs(target_type, target_id) WHERE status = 'pending';
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS entities (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	name TEXT NOT NULL,
	fields TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_kind ON entities(kind);
CREATE INDEX IF NOT EXISTS idx_entities_kind_updated ON entities(kind, updated_at);

CREATE TABLE IF NOT EXISTS links (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL REFERENCES entities(id),
	relation TEXT NOT NULL,
	target_id TEXT NOT NULL REFERENCES entities(id),
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE(owner_id, relation, target_id)
);

CREATE INDEX IF NOT EXISTS idx_links_owner ON links(owner_id, relation);
CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_id, relation);

CREATE TABLE IF NOT EXISTS sync_state (
	category TEXT PRIMARY KEY,
	last_sync_time TEXT,
	status TEXT NOT NULL DEFAULT 'idle' CHECK(status IN ('idle', 'syncing', 'error')),
	error_message TEXT,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_runs (
	id TEXT PRIMARY KEY,
	trigger_name TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	succeeded INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	deferred INTEGER NOT NULL DEFAULT 0,
	error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at DESC);

CREATE TABLE IF NOT EXISTS sync_jobs (
	id TEXT PRIMARY KEY,
	target_type TEXT NOT NULL,
	target_id TEXT NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('pending', 'done', 'error')),
	message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_sync_jobs_pending ON sync_jobs(target_type, target_id) WHERE status = 'pending';
`

// InitSchema creates the SQLite tables.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// InitPostgresSchema creates the Postgres tables.
func InitPostgresSchema(db *sql.DB) error {
	_, err := db.Exec(postgresSchema)
	return err
}
