package repository

import (
	"context"
	"database/sql"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		username TEXT UNIQUE NOT NULL,
		full_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		account_id TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		last_login TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		version BIGINT NOT NULL DEFAULT 1,
		status TEXT NOT NULL DEFAULT 'open',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		kind TEXT NOT NULL,
		amount BIGINT NOT NULL,
		balance BIGINT NOT NULL,
		status TEXT NOT NULL,
		event_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_account_created
		ON transactions (account_id, created_at DESC, id DESC)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_active_event_charge
		ON transactions (account_id, event_id)
		WHERE kind = 'event_charge' AND status = 'completed'`,
	`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		cost BIGINT NOT NULL DEFAULT 0 CHECK (cost >= 0),
		max_participants INT NOT NULL DEFAULT 0,
		current_participants INT NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'draft',
		creator_id TEXT NOT NULL REFERENCES users(id),
		event_date TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// EnsureSchema creates the tables and indexes if they do not exist yet. The
// partial unique index on transactions is what makes concurrent duplicate
// event charges impossible at the storage layer.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
