// Package sqlite implements the repository contracts on an embedded SQLite
// database for single-node deployments. Timestamps are stored as unix
// milliseconds so range scans order correctly.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite handle shared by the repositories.
type DB struct {
	database *sql.DB
	path     string
}

// Open opens (creating if needed) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	database.SetMaxOpenConns(1)

	db := &DB{database: database, path: path}
	if err := db.migrate(ctx); err != nil {
		_ = database.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the handle.
func (db *DB) Close() error {
	if db == nil || db.database == nil {
		return nil
	}
	return db.database.Close()
}

// Ping verifies the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.database.PingContext(ctx)
}

// Path returns the database location.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) migrate(ctx context.Context) error {
	statements := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS scheduled_tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			fires_at INTEGER NOT NULL,
			payload TEXT NOT NULL DEFAULT '{}',
			fired INTEGER NOT NULL DEFAULT 0,
			cancelled INTEGER NOT NULL DEFAULT 0,
			fired_at INTEGER NULL,
			cancelled_at INTEGER NULL,
			created_at INTEGER NOT NULL,
			CHECK (NOT (fired = 1 AND cancelled = 1))
		);`,
		`CREATE INDEX IF NOT EXISTS scheduled_tasks_due_idx ON scheduled_tasks (fired, cancelled, fires_at);`,
		`CREATE TABLE IF NOT EXISTS tickets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			channel_id INTEGER NULL,
			ticket_type TEXT NOT NULL,
			owner_id INTEGER NOT NULL,
			opener_id INTEGER NOT NULL,
			reason TEXT NULL,
			status TEXT NOT NULL DEFAULT 'open',
			claimed_by INTEGER NULL,
			claimed_at INTEGER NULL,
			muted INTEGER NOT NULL DEFAULT 0,
			mute_expires_at INTEGER NULL,
			nudge_count INTEGER NOT NULL DEFAULT 0,
			last_nudge_at INTEGER NULL,
			closed_by INTEGER NULL,
			closed_at INTEGER NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS tickets_owner_status_idx ON tickets (owner_id, status);`,
		`CREATE INDEX IF NOT EXISTS tickets_channel_idx ON tickets (channel_id);`,
		`CREATE TABLE IF NOT EXISTS ticket_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ticket_id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			actor_id INTEGER NULL,
			detail TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			FOREIGN KEY(ticket_id) REFERENCES tickets(id)
		);`,
		`CREATE INDEX IF NOT EXISTS ticket_events_ticket_idx ON ticket_events (ticket_id, created_at);`,
	}
	for _, statement := range statements {
		if _, err := db.database.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func intPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func affectedOne(result sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
