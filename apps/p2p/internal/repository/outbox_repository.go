package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	"p2p/apps/p2p/internal/model"
)

type OutboxRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewOutboxRepository(db *sql.DB, logger *zap.Logger) *OutboxRepository {
	return &OutboxRepository{db: db, logger: logger}
}

func (o *OutboxRepository) StoreOutboxEvent(ctx context.Context, event model.OutboxEvent) error {
	_, err := o.db.ExecContext(ctx, `
		INSERT INTO event_outbox (event_type, event_key, trade_id, status, event_blob)
		VALUES ($1, $2, $3, $4, $5)
	`, event.EventType, event.EventKey, event.TradeID, model.OutboxStatusUnsent, []byte(event.EventBlob))

	if err != nil {
		return fmt.Errorf("failed to store outbox event: %w", err)
	}

	o.logger.Info("Stored event", zap.String("event_type", event.EventType), zap.String("trade_id", event.TradeID))
	return nil
}

func (o *OutboxRepository) GetUnsentEventsForProcessing(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	// Use a transaction to ensure atomicity
	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() // Will be ignored if tx.Commit() succeeds

	// Select and lock unsent events for processing
	rows, err := tx.QueryContext(ctx, `
		SELECT id, event_type, event_key, trade_id, status, event_blob, created_at
		FROM event_outbox
		WHERE status = 'unsent'
		ORDER BY created_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.OutboxEvent
	for rows.Next() {
		var event model.OutboxEvent
		if err := rows.Scan(&event.ID, &event.EventType, &event.EventKey, &event.TradeID, &event.Status,
			&event.EventBlob, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	// Mark selected events as 'processing' to prevent other threads from picking them up
	for _, event := range events {
		_, err = tx.ExecContext(ctx, `
			UPDATE event_outbox
			SET status = 'processing', claimed_at = NOW()
			WHERE id = $1 AND status = 'unsent'
		`, event.ID)
		if err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	return events, nil
}

func (o *OutboxRepository) MarkEventAsSent(ctx context.Context, id int64) error {
	_, err := o.db.ExecContext(ctx, `
		UPDATE event_outbox
		SET status = 'sent'
		WHERE id = $1
	`, id)
	return err
}

func (o *OutboxRepository) MarkEventAsFailed(ctx context.Context, id int64) error {
	_, err := o.db.ExecContext(ctx, `
		UPDATE event_outbox
		SET status = 'unsent'
		WHERE id = $1 AND status = 'processing'
	`, id)
	return err
}

// ResetProcessingEvents returns rows claimed before olderThan, i.e. left in
// 'processing' by a relay that died mid-batch, to 'unsent'.
func (o *OutboxRepository) ResetProcessingEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := o.db.ExecContext(ctx, `
		UPDATE event_outbox
		SET status = 'unsent', claimed_at = NULL
		WHERE status = 'processing' AND (claimed_at IS NULL OR claimed_at < $1)
	`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to reset processing events: %w", err)
	}
	return res.RowsAffected()
}
