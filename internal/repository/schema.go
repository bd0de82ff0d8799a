package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema for the two ledger tables. The balance CHECK backs up the
// insufficient-balance check done under the row lock; the unique reference
// index backs up the service-level idempotency contract.
const Schema = `
CREATE TABLE IF NOT EXISTS wallets (
	user_id UUID PRIMARY KEY,
	balance DECIMAL(12, 2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS wallet_transactions (
	id BIGSERIAL PRIMARY KEY,
	wallet_id UUID NOT NULL REFERENCES wallets(user_id),
	type VARCHAR(10) NOT NULL CHECK (type IN ('CREDIT', 'DEBIT')),
	amount DECIMAL(12, 2) NOT NULL CHECK (amount > 0),
	balance_before DECIMAL(12, 2) NOT NULL,
	balance_after DECIMAL(12, 2) NOT NULL,
	status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
	source VARCHAR(50) NOT NULL,
	reference VARCHAR(100) NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_wallet_transactions_wallet ON wallet_transactions(wallet_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_wallet_transactions_status ON wallet_transactions(status);
`

// Migrate applies the schema. Statements are idempotent, so it is safe to
// run on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, Schema)
	return err
}
