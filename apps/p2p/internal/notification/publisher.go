package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"p2p/apps/p2p/internal/events"
	"p2p/apps/p2p/internal/model"
)

type OutboxStore interface {
	StoreOutboxEvent(ctx context.Context, event model.OutboxEvent) error
}

// Publisher records status-changed notifications in the outbox; the event
// publisher relays them to the stream at least once.
type Publisher struct {
	store  OutboxStore
	key    string
	logger *zap.Logger
}

func NewPublisher(store OutboxStore, key string, logger *zap.Logger) *Publisher {
	return &Publisher{store: store, key: key, logger: logger}
}

func (p *Publisher) Publish(ctx context.Context, trade model.Trade) error {
	blob, err := json.Marshal(events.NewTradeStatusChanged(trade))
	if err != nil {
		return fmt.Errorf("failed to marshal trade event: %w", err)
	}

	if err := p.store.StoreOutboxEvent(ctx, model.OutboxEvent{
		EventType: events.EventTypeTradeStatusChanged,
		EventKey:  p.key,
		TradeID:   trade.ID,
		EventBlob: blob,
	}); err != nil {
		return fmt.Errorf("failed to enqueue trade event: %w", err)
	}

	p.logger.Debug("Enqueued trade status notification",
		zap.String("trade_id", trade.ID),
		zap.String("status", string(trade.Status)))
	return nil
}
