package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS billing_events (
	event_id      TEXT PRIMARY KEY,
	event_type    TEXT NOT NULL,
	subscriber_id TEXT,
	occurred_at   TIMESTAMPTZ,
	received_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS entitlements (
	subscriber_id TEXT PRIMARY KEY,
	plan          TEXT NOT NULL,
	last_event_id TEXT NOT NULL,
	last_event_at TIMESTAMPTZ,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS billing_events_subscriber_idx ON billing_events (subscriber_id);
`

// SQLite stores times as unix milliseconds so ordering comparisons stay numeric.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS billing_events (
	event_id      TEXT PRIMARY KEY,
	event_type    TEXT NOT NULL,
	subscriber_id TEXT,
	occurred_at   INTEGER,
	received_at   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS entitlements (
	subscriber_id TEXT PRIMARY KEY,
	plan          TEXT NOT NULL,
	last_event_id TEXT NOT NULL,
	last_event_at INTEGER,
	updated_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS billing_events_subscriber_idx ON billing_events (subscriber_id);
`

// MigratePostgres creates the entitlement tables if they do not exist.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate postgres: %w", err)
	}
	return nil
}

// MigrateSQLite creates the entitlement tables if they do not exist.
func MigrateSQLite(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("migrate sqlite: %w", err)
	}
	return nil
}
