package repository

import (
	"database/sql"
	"fmt"
)

// InitMigration initializes the database. In production, this would use a proper migration
// library like go-migrate
func InitMigration(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id UUID PRIMARY KEY,
			seller_wallet VARCHAR(66) NOT NULL,
			buyer_wallet VARCHAR(66) NOT NULL,
			seller_email VARCHAR(320) NOT NULL,
			buyer_email VARCHAR(320) NOT NULL,
			seller_ledger_id VARCHAR(128) NOT NULL,
			initiator VARCHAR(320) NOT NULL,
			amount DECIMAL(38,18) NOT NULL,
			price DECIMAL(38,8) NOT NULL,
			fiat_amount DECIMAL(38,8) NOT NULL,
			crypto_type VARCHAR(20) NOT NULL,
			fiat_type VARCHAR(20) NOT NULL,
			sell_type VARCHAR(10) NOT NULL,
			status VARCHAR(20) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			closed_on TIMESTAMPTZ,
			hash VARCHAR(128) UNIQUE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_seller_email_lower ON trades (lower(seller_email), created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_buyer_email_lower ON trades (lower(buyer_email), created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS event_outbox (
			id BIGSERIAL PRIMARY KEY,
			event_type VARCHAR(50) NOT NULL,
			event_key VARCHAR(100) NOT NULL,
			trade_id UUID NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'unsent',
			event_blob JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			claimed_at TIMESTAMPTZ
		)`,
		`ALTER TABLE event_outbox ADD COLUMN IF NOT EXISTS claimed_at TIMESTAMPTZ`,
		`CREATE INDEX IF NOT EXISTS idx_event_outbox_status ON event_outbox (status, created_at)`,
		`CREATE TABLE IF NOT EXISTS scheduled_tasks (
			id BIGSERIAL PRIMARY KEY,
			kind VARCHAR(20) NOT NULL,
			trade_id UUID NOT NULL,
			fire_at TIMESTAMPTZ NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scheduled_tasks_due ON scheduled_tasks (status, fire_at)`,
		`CREATE TABLE IF NOT EXISTS trade_status_history (
			trade_id UUID NOT NULL,
			status VARCHAR(20) NOT NULL,
			initiator VARCHAR(320) NOT NULL,
			changed_at TIMESTAMPTZ NOT NULL,
			hash VARCHAR(128),
			PRIMARY KEY (trade_id, status)
		)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query %s: %w", query, err)
		}
	}

	return nil
}
