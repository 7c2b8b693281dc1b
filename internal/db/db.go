package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

func (db *DB) Close() {
	db.pool.Close()
}

// RunMigrations creates the schema if it does not exist yet.
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ledger_entries (
			id UUID PRIMARY KEY,
			external_event_id TEXT NOT NULL UNIQUE,
			client_id TEXT NOT NULL,
			session_date TIMESTAMPTZ NOT NULL,
			billed_amount BIGINT NOT NULL,
			amount_paid BIGINT NOT NULL,
			running_balance_after BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_entries_client ON ledger_entries(client_id);

		CREATE TABLE IF NOT EXISTS client_balances (
			client_id TEXT PRIMARY KEY,
			total_billed BIGINT NOT NULL DEFAULT 0,
			total_paid BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS session_skips (
			external_event_id TEXT PRIMARY KEY,
			outcome_kind TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS conversations (
			external_event_id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL,
			scheduled_start TIMESTAMPTZ NOT NULL,
			duration_minutes INT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			last_prompt_at TIMESTAMPTZ,
			reminder_sent BOOLEAN NOT NULL DEFAULT FALSE,
			attendance_confirmed BOOLEAN,
			price_override BIGINT,
			payment_received BIGINT,
			payment_full BOOLEAN NOT NULL DEFAULT FALSE,
			outcome_kind TEXT,
			outcome_billed BIGINT,
			outcome_paid BIGINT,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS client_rates (
			client_id TEXT PRIMARY KEY,
			flat_per_session BIGINT NOT NULL DEFAULT 0,
			per_hour BIGINT NOT NULL DEFAULT 0,
			currency TEXT NOT NULL DEFAULT 'EUR'
		);
	`)
	return err
}
