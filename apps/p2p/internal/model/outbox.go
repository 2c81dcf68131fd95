package model

import (
	"encoding/json"
	"time"
)

const (
	OutboxStatusUnsent     = "unsent"
	OutboxStatusProcessing = "processing"
	OutboxStatusSent       = "sent"
)

type OutboxEvent struct {
	ID        int64           `db:"id"`
	EventType string          `db:"event_type"`
	EventKey  string          `db:"event_key"` // stream message key
	TradeID   string          `db:"trade_id"`
	Status    string          `db:"status"`
	EventBlob json.RawMessage `db:"event_blob"`
	CreatedAt time.Time       `db:"created_at"`
}
