package model

import (
	"time"
)

type StatusChange struct {
	TradeID   string            `db:"trade_id"`
	Status    TransactionStatus `db:"status"`
	Initiator string            `db:"initiator"`
	ChangedAt time.Time         `db:"changed_at"`
	Hash      *string           `db:"hash"`
}
