package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/sbilibin2017/gw-ledger/internal/logger"
)

// migrations create the transaction log and the balance table. Every
// statement is idempotent so Migrate can run on each startup.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS transactions (
		seq BIGSERIAL NOT NULL UNIQUE,
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL CHECK (type IN ('deposit', 'withdraw_request', 'withdraw')),
		amount NUMERIC(20,2) NOT NULL CHECK (amount > 0),
		account_id TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('applied', 'approved', 'denied')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
	);`,
	`CREATE INDEX IF NOT EXISTS transactions_account_type_idx
		ON transactions (account_id, type, created_at, seq);`,
	`CREATE TABLE IF NOT EXISTS accounts (
		account_id TEXT PRIMARY KEY,
		balance NUMERIC(20,2) NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
}

// Migrate applies the ledger schema.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	logger.Log.Infow("schema migrated", "migrations", len(migrations))
	return nil
}
