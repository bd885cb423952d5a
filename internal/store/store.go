package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sxn-dev/sxn/internal/sxnerr"
)

// currentSchemaVersion is the schema version this build expects. Opening
// an older database runs the migrations between its stored version and
// this one; opening a database with no version record at all (a file
// that pre-dates version tracking, or a brand-new file) synthesizes one
// per the fresh/migrating/ready states described in migrations.go.
const currentSchemaVersion = 2

// Store is a handle to the SQLite-backed session and project index. It
// is safe for concurrent use from multiple goroutines; SQLite's own
// locking plus the WAL journal arbitrate concurrent writers under a
// single-writer-many-readers model.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path, applies
// pragmas for WAL journaling and busy-timeout, and brings the schema up
// to currentSchemaVersion.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(30000)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, sxnerr.Wrap(sxnerr.KindStorage, err, "open database at %s", path)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite + WAL: one writer connection avoids SQLITE_BUSY churn

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// generateID returns a 128-bit random identifier hex-encoded to 32
// characters, used for both session and internal row identifiers.
func generateID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", sxnerr.Wrap(sxnerr.KindStorage, err, "generate id")
	}
	return hex.EncodeToString(buf), nil
}

// nowUTC returns the current instant formatted the way every timestamp
// column in this store is stored: UTC, fixed six-digit microseconds, a
// literal trailing Z.
func nowUTC() string {
	return formatTimestamp(time.Now().UTC())
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000Z")
}

// FormatVersion renders a Session's UpdatedAt as the exact string Update
// compares against for optimistic concurrency, so callers that read a
// Session and later want to conditionally update it don't need to know
// the storage format.
func FormatVersion(t time.Time) string {
	return formatTimestamp(t)
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02T15:04:05.000000Z", s)
	if err != nil {
		// tolerate RFC3339 for rows written before a format change
		return time.Parse(time.RFC3339, s)
	}
	return t, nil
}
