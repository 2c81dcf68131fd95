package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	"p2p/apps/p2p/internal/model"
)

type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewHistoryRepository(db *sql.DB, logger *zap.Logger) *HistoryRepository {
	return &HistoryRepository{db: db, logger: logger}
}

// AppendStatusChange stores change once per (trade, status); redelivered
// notifications are ignored.
func (r *HistoryRepository) AppendStatusChange(ctx context.Context, change model.StatusChange) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO trade_status_history (trade_id, status, initiator, changed_at, hash)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (trade_id, status) DO NOTHING
	`, change.TradeID, change.Status, change.Initiator, change.ChangedAt, change.Hash)

	if err != nil {
		return fmt.Errorf("failed to append status change: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		r.logger.Debug("Duplicate status change ignored",
			zap.String("trade_id", change.TradeID),
			zap.String("status", string(change.Status)))
	}
	return nil
}

func (r *HistoryRepository) GetStatusHistory(ctx context.Context, tradeID string) ([]model.StatusChange, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT trade_id, status, initiator, changed_at, hash
		FROM trade_status_history
		WHERE trade_id = $1
		ORDER BY changed_at, status
	`, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get status history: %w", err)
	}
	defer rows.Close()

	history := make([]model.StatusChange, 0)
	for rows.Next() {
		var change model.StatusChange
		var hash sql.NullString
		if err := rows.Scan(&change.TradeID, &change.Status, &change.Initiator, &change.ChangedAt, &hash); err != nil {
			return nil, fmt.Errorf("failed to scan status change: %w", err)
		}
		if hash.Valid {
			change.Hash = &hash.String
		}
		history = append(history, change)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status history: %w", err)
	}

	return history, nil
}
