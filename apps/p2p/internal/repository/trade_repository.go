package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"p2p/apps/p2p/internal/model"
)

const tradeColumns = `id, seller_wallet, buyer_wallet, seller_email, buyer_email, seller_ledger_id, initiator,
		amount, price, fiat_amount, crypto_type, fiat_type, sell_type, status, created_at, updated_at, closed_on, hash`

type rowScanner interface {
	Scan(dest ...any) error
}

type TradeRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewTradeRepository(db *sql.DB, logger *zap.Logger) *TradeRepository {
	return &TradeRepository{db: db, logger: logger}
}

func (r *TradeRepository) CreateTrade(ctx context.Context, trade model.Trade) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trades (`+tradeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, trade.ID, trade.SellerWallet, trade.BuyerWallet, trade.SellerEmail, trade.BuyerEmail, trade.SellerLedgerID, trade.Initiator,
		trade.Amount, trade.Price, trade.FiatAmount, trade.CryptoType, trade.FiatType, trade.SellType, trade.Status,
		trade.CreatedAt, trade.UpdatedAt, trade.ClosedOn, trade.Hash)

	if err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}

	r.logger.Info("Created trade",
		zap.String("trade_id", trade.ID),
		zap.String("status", string(trade.Status)),
		zap.String("sell_type", string(trade.SellType)))
	return nil
}

func (r *TradeRepository) GetTradeByID(ctx context.Context, id string) (*model.Trade, error) {
	trade, err := scanTrade(r.db.QueryRowContext(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE id = $1
	`, id))

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get trade by ID: %w", err)
	}

	return trade, nil
}

// UpdateTradeIfStatus applies patch only if the stored status still equals
// expected. It returns the updated row, ErrStatusConflict when the status has
// moved on, or ErrTradeNotFound.
func (r *TradeRepository) UpdateTradeIfStatus(ctx context.Context, id string, expected model.TransactionStatus, patch model.TradePatch) (*model.Trade, error) {
	trade, err := scanTrade(r.db.QueryRowContext(ctx, `
		UPDATE trades SET
			status = $1,
			initiator = COALESCE($2, initiator),
			closed_on = COALESCE($3, closed_on),
			hash = COALESCE($4, hash),
			updated_at = $5
		WHERE id = $6 AND status = $7
		RETURNING `+tradeColumns,
		patch.Status, patch.Initiator, patch.ClosedOn, patch.Hash, patch.UpdatedAt, id, expected))

	if err == nil {
		r.logger.Info("Updated trade status",
			zap.String("trade_id", id),
			zap.String("from", string(expected)),
			zap.String("to", string(patch.Status)))
		return trade, nil
	}

	if isUniqueViolation(err) {
		return nil, ErrDuplicateHash
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to update trade status: %w", err)
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM trades WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check trade existence: %w", err)
	}
	if !exists {
		return nil, ErrTradeNotFound
	}
	return nil, ErrStatusConflict
}

func (r *TradeRepository) GetTradesByEmail(ctx context.Context, email string, offset, limit int) ([]model.Trade, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE lower(buyer_email) = lower($1) OR lower(seller_email) = lower($1)
		ORDER BY created_at DESC
		OFFSET $2
		LIMIT $3
	`, email, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get trades by email: %w", err)
	}
	defer rows.Close()

	trades := make([]model.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, *trade)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}

	return trades, nil
}

func scanTrade(row rowScanner) (*model.Trade, error) {
	var trade model.Trade
	var closedOn sql.NullTime
	var hash sql.NullString
	err := row.Scan(&trade.ID, &trade.SellerWallet, &trade.BuyerWallet, &trade.SellerEmail, &trade.BuyerEmail,
		&trade.SellerLedgerID, &trade.Initiator, &trade.Amount, &trade.Price, &trade.FiatAmount,
		&trade.CryptoType, &trade.FiatType, &trade.SellType, &trade.Status,
		&trade.CreatedAt, &trade.UpdatedAt, &closedOn, &hash)
	if err != nil {
		return nil, err
	}

	if closedOn.Valid {
		trade.ClosedOn = &closedOn.Time
	}
	if hash.Valid {
		trade.Hash = &hash.String
	}
	return &trade, nil
}
