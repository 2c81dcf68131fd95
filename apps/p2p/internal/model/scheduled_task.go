package model

import (
	"time"
)

const TaskKindExpire = "expire"

const (
	TaskStatusPending    = "pending"
	TaskStatusProcessing = "processing"
	TaskStatusDone       = "done"
	TaskStatusDead       = "dead"
)

type ScheduledTask struct {
	ID        int64     `db:"id"`
	Kind      string    `db:"kind"`
	TradeID   string    `db:"trade_id"`
	FireAt    time.Time `db:"fire_at"`
	Status    string    `db:"status"`
	Attempts  int       `db:"attempts"`
	LastError *string   `db:"last_error"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
