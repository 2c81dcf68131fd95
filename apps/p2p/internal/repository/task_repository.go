package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	"p2p/apps/p2p/internal/model"
)

type TaskRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewTaskRepository(db *sql.DB, logger *zap.Logger) *TaskRepository {
	return &TaskRepository{db: db, logger: logger}
}

func (r *TaskRepository) ScheduleTask(ctx context.Context, kind, tradeID string, fireAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scheduled_tasks (kind, trade_id, fire_at, status)
		VALUES ($1, $2, $3, $4)
	`, kind, tradeID, fireAt, model.TaskStatusPending)

	if err != nil {
		return fmt.Errorf("failed to schedule task: %w", err)
	}

	r.logger.Info("Scheduled task",
		zap.String("kind", kind),
		zap.String("trade_id", tradeID),
		zap.Time("fire_at", fireAt))
	return nil
}

// ClaimDueTasks locks up to limit pending tasks whose fire time has passed and
// moves them to 'processing'.
func (r *TaskRepository) ClaimDueTasks(ctx context.Context, now time.Time, limit int) ([]model.ScheduledTask, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() // Will be ignored if tx.Commit() succeeds

	rows, err := tx.QueryContext(ctx, `
		SELECT id, kind, trade_id, fire_at, status, attempts, last_error, created_at, updated_at
		FROM scheduled_tasks
		WHERE status = 'pending' AND fire_at <= $1
		ORDER BY fire_at, id
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select due tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.ScheduledTask
	for rows.Next() {
		var task model.ScheduledTask
		var lastError sql.NullString
		if err := rows.Scan(&task.ID, &task.Kind, &task.TradeID, &task.FireAt, &task.Status, &task.Attempts,
			&lastError, &task.CreatedAt, &task.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		if lastError.Valid {
			task.LastError = &lastError.String
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	rows.Close()

	for i := range tasks {
		if _, err := tx.ExecContext(ctx, `
			UPDATE scheduled_tasks
			SET status = 'processing', updated_at = $2
			WHERE id = $1
		`, tasks[i].ID, now); err != nil {
			return nil, fmt.Errorf("failed to claim task: %w", err)
		}
		tasks[i].Status = model.TaskStatusProcessing
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return tasks, nil
}

func (r *TaskRepository) MarkTaskDone(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_tasks
		SET status = 'done', updated_at = NOW()
		WHERE id = $1
	`, id)
	return err
}

// MarkTaskFailed records the error and either reschedules the task at
// retryAt or, when dead is set, parks it for manual inspection.
func (r *TaskRepository) MarkTaskFailed(ctx context.Context, id int64, lastError string, retryAt time.Time, dead bool) error {
	status := model.TaskStatusPending
	if dead {
		status = model.TaskStatusDead
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_tasks
		SET status = $2, attempts = attempts + 1, last_error = $3, fire_at = $4, updated_at = NOW()
		WHERE id = $1
	`, id, status, lastError, retryAt)
	return err
}

// ResetStaleTasks puts back tasks that have been 'processing' since before
// olderThan, i.e. claimed by a process that died before finishing them.
func (r *TaskRepository) ResetStaleTasks(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_tasks
		SET status = 'pending', updated_at = NOW()
		WHERE status = 'processing' AND updated_at < $1
	`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale tasks: %w", err)
	}
	return res.RowsAffected()
}
