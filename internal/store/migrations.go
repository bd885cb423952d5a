package store

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/sxn-dev/sxn/internal/sxnerr"
)

// schemaState names the three phases a database passes through while
// migrate brings it up to currentSchemaVersion: fresh (no tables at
// all), migrating (tables exist at an older version), ready (nothing to
// do). Only used for the log lines migrate emits; callers never see it.
type schemaState string

const (
	stateFresh     schemaState = "fresh"
	stateMigrating schemaState = "migrating"
	stateReady     schemaState = "ready"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL UNIQUE,
	status       TEXT NOT NULL CHECK (status IN ('active','inactive','archived')),
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL,
	linear_task  TEXT,
	description  TEXT NOT NULL DEFAULT '',
	tags         TEXT NOT NULL DEFAULT '[]',
	metadata     TEXT NOT NULL DEFAULT '{}',
	worktrees    TEXT NOT NULL DEFAULT '{}',
	projects     TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_sessions_status     ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at);
CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
CREATE INDEX IF NOT EXISTS idx_sessions_name       ON sessions(name);
CREATE INDEX IF NOT EXISTS idx_sessions_status_updated ON sessions(status, updated_at);
CREATE INDEX IF NOT EXISTS idx_sessions_status_created ON sessions(status, created_at);
CREATE INDEX IF NOT EXISTS idx_sessions_linear_task ON sessions(linear_task) WHERE linear_task IS NOT NULL;

CREATE TABLE IF NOT EXISTS session_worktrees (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id   TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	project_name TEXT NOT NULL,
	path         TEXT NOT NULL,
	branch       TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	UNIQUE(session_id, project_name)
);

CREATE TABLE IF NOT EXISTS session_files (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	file_path  TEXT NOT NULL,
	file_type  TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_session_files_session ON session_files(session_id);

CREATE TABLE IF NOT EXISTS projects (
	name           TEXT PRIMARY KEY,
	path           TEXT NOT NULL,
	type           TEXT NOT NULL,
	default_branch TEXT NOT NULL,
	created_at     TEXT NOT NULL
);
`

// migrate brings the database at s.db up to currentSchemaVersion.
//
// Three starting states are handled, matching the fresh/migrating/ready
// names above:
//   - No sessions table at all: a brand-new file. The full schema is
//     created directly at currentSchemaVersion; no intermediate
//     migration runs.
//   - A sessions table exists but meta.schema_version does not: a
//     database written before version tracking existed. Its shape is
//     inspected (do the worktrees/projects columns exist?) to synthesize
//     the version it's actually at, then migrations run forward from
//     there.
//   - meta.schema_version exists and is below currentSchemaVersion:
//     migrations run forward from the stored version.
func (s *Store) migrate(ctx context.Context) error {
	hasSessions, err := tableExists(ctx, s.db, "sessions")
	if err != nil {
		return err
	}

	if !hasSessions {
		if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
			return sxnerr.Wrap(sxnerr.KindStorage, err, "create schema")
		}
		return s.setVersion(ctx, currentSchemaVersion)
	}

	version, err := s.storedVersion(ctx)
	if err != nil {
		return err
	}
	if version == 0 {
		version, err = synthesizeVersion(ctx, s.db)
		if err != nil {
			return err
		}
	}

	for version < currentSchemaVersion {
		migration, ok := migrations[version]
		if !ok {
			return sxnerr.New(sxnerr.KindStorage, "no migration registered from schema version %d", version)
		}
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return sxnerr.Wrap(sxnerr.KindStorage, err, "apply migration from version %d", version)
		}
		version++
	}
	return s.setVersion(ctx, currentSchemaVersion)
}

// migrations maps "from version" to the DDL that advances one step.
var migrations = map[int]string{
	1: `
		ALTER TABLE sessions ADD COLUMN worktrees TEXT NOT NULL DEFAULT '{}';
		ALTER TABLE sessions ADD COLUMN projects TEXT NOT NULL DEFAULT '[]';
		CREATE TABLE IF NOT EXISTS projects (
			name           TEXT PRIMARY KEY,
			path           TEXT NOT NULL,
			type           TEXT NOT NULL,
			default_branch TEXT NOT NULL,
			created_at     TEXT NOT NULL
		);
	`,
}

// synthesizeVersion inspects a sessions table that predates version
// tracking and infers which migration step it actually needs.
func synthesizeVersion(ctx context.Context, db *sql.DB) (int, error) {
	hasWorktrees, err := columnExists(ctx, db, "sessions", "worktrees")
	if err != nil {
		return 0, err
	}
	if !hasWorktrees {
		return 1, nil
	}
	return currentSchemaVersion, nil
}

func (s *Store) storedVersion(ctx context.Context) (int, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, sxnerr.Wrap(sxnerr.KindStorage, err, "read schema_version")
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, sxnerr.Wrap(sxnerr.KindStorage, err, "parse schema_version %q", raw)
	}
	return v, nil
}

func (s *Store) setVersion(ctx context.Context, v int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES ('schema_version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		strconv.Itoa(v))
	if err != nil {
		return sxnerr.Wrap(sxnerr.KindStorage, err, "write schema_version")
	}
	return nil
}

func tableExists(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, sxnerr.Wrap(sxnerr.KindStorage, err, "check table %s", name)
	}
	return n > 0, nil
}

func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, `PRAGMA table_info(`+table+`)`)
	if err != nil {
		return false, sxnerr.Wrap(sxnerr.KindStorage, err, "inspect table %s", table)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return false, sxnerr.Wrap(sxnerr.KindStorage, err, "scan table_info(%s)", table)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
