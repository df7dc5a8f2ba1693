package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		position       INTEGER PRIMARY KEY AUTOINCREMENT,
		aggregate_type TEXT    NOT NULL,
		aggregate_key  TEXT    NOT NULL,
		sequence       INTEGER NOT NULL,
		event_id       TEXT    NOT NULL UNIQUE,
		event_type     TEXT    NOT NULL,
		occurred_at    TEXT    NOT NULL,
		correlation_id TEXT    NOT NULL DEFAULT '',
		causation_id   TEXT    NOT NULL DEFAULT '',
		encoding       TEXT    NOT NULL,
		payload        BLOB    NOT NULL,
		UNIQUE (aggregate_type, aggregate_key, sequence)
	)`,
	`CREATE TABLE IF NOT EXISTS aggregate_heads (
		aggregate_type TEXT    NOT NULL,
		aggregate_key  TEXT    NOT NULL,
		sequence       INTEGER NOT NULL,
		PRIMARY KEY (aggregate_type, aggregate_key)
	)`,
	`CREATE TABLE IF NOT EXISTS snapshots (
		aggregate_type TEXT    NOT NULL,
		aggregate_key  TEXT    NOT NULL,
		sequence       INTEGER NOT NULL,
		encoding       TEXT    NOT NULL,
		state          BLOB    NOT NULL,
		saved_at       TEXT    NOT NULL,
		PRIMARY KEY (aggregate_type, aggregate_key)
	)`,
	`CREATE TABLE IF NOT EXISTS checkpoints (
		subscriber TEXT    NOT NULL PRIMARY KEY,
		position   INTEGER NOT NULL,
		updated_at TEXT    NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS watermarks (
		projection     TEXT    NOT NULL,
		aggregate_type TEXT    NOT NULL,
		aggregate_key  TEXT    NOT NULL,
		sequence       INTEGER NOT NULL,
		PRIMARY KEY (projection, aggregate_type, aggregate_key)
	)`,
	`CREATE TABLE IF NOT EXISTS dead_letters (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		projection     TEXT    NOT NULL,
		event_id       TEXT    NOT NULL,
		aggregate_type TEXT    NOT NULL,
		aggregate_key  TEXT    NOT NULL,
		sequence       INTEGER NOT NULL,
		event_type     TEXT    NOT NULL,
		encoding       TEXT    NOT NULL,
		payload        BLOB    NOT NULL,
		attempts       INTEGER NOT NULL,
		last_error     TEXT    NOT NULL,
		failed_at      TEXT    NOT NULL
	)`,
}

// Migrate creates the store's tables when they do not exist yet. Statements
// are idempotent, so running it on every start is safe.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, statement := range schema {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			return errors.Wrap(err, "failed to apply event store schema")
		}
	}

	return nil
}
