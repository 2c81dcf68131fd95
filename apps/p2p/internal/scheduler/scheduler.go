package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"p2p/apps/p2p/internal/model"
)

const (
	claimBatchSize = 50
	inProcessTries = 3
	maxRetryDelay  = 10 * time.Minute
	staleTaskAge   = 5 * time.Minute
)

type TaskStore interface {
	ScheduleTask(ctx context.Context, kind, tradeID string, fireAt time.Time) error
	ClaimDueTasks(ctx context.Context, now time.Time, limit int) ([]model.ScheduledTask, error)
	MarkTaskDone(ctx context.Context, id int64) error
	MarkTaskFailed(ctx context.Context, id int64, lastError string, retryAt time.Time, dead bool) error
	ResetStaleTasks(ctx context.Context, olderThan time.Time) (int64, error)
}

// Handler runs one due task. Returning an error wrapped with backoff.Permanent
// parks the task as dead without further attempts.
type Handler func(ctx context.Context, tradeID string) error

// ExpiryScheduler persists expiry deadlines so they survive restarts.
type ExpiryScheduler struct {
	store TaskStore
}

func NewExpiryScheduler(store TaskStore) *ExpiryScheduler {
	return &ExpiryScheduler{store: store}
}

func (s *ExpiryScheduler) ScheduleExpiry(ctx context.Context, tradeID string, fireAt time.Time) error {
	return s.store.ScheduleTask(ctx, model.TaskKindExpire, tradeID, fireAt)
}

type Runner struct {
	store        TaskStore
	handlers     map[string]Handler
	pollInterval time.Duration
	maxAttempts  int
	logger       *zap.Logger

	now        func() time.Time
	newBackOff func() backoff.BackOff
}

func NewRunner(store TaskStore, pollInterval time.Duration, maxAttempts int, logger *zap.Logger) *Runner {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Runner{
		store:        store,
		handlers:     make(map[string]Handler),
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
		logger:       logger,
		now:          time.Now,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}
}

// Register must be called before Run.
func (r *Runner) Register(kind string, handler Handler) {
	r.handlers[kind] = handler
}

// Run polls for due tasks until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("Starting task runner",
		zap.Duration("poll_interval", r.pollInterval),
		zap.Int("max_attempts", r.maxAttempts))

	// tasks stuck in processing this long were claimed by a process that died
	reset, err := r.store.ResetStaleTasks(ctx, r.now().Add(-staleTaskAge))
	if err != nil {
		return fmt.Errorf("failed to reset stale tasks: %w", err)
	}
	if reset > 0 {
		r.logger.Warn("Reset stale scheduled tasks", zap.Int64("count", reset))
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		if err := r.RunDue(ctx); err != nil {
			r.logger.Error("Error running due tasks", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			r.logger.Info("Task runner stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunDue claims and executes every task whose fire time has passed.
func (r *Runner) RunDue(ctx context.Context) error {
	for {
		tasks, err := r.store.ClaimDueTasks(ctx, r.now(), claimBatchSize)
		if err != nil {
			return err
		}
		for _, task := range tasks {
			r.runTask(ctx, task)
		}
		if len(tasks) < claimBatchSize || ctx.Err() != nil {
			return nil
		}
	}
}

func (r *Runner) runTask(ctx context.Context, task model.ScheduledTask) {
	logger := r.logger.With(
		zap.Int64("task_id", task.ID),
		zap.String("kind", task.Kind),
		zap.String("trade_id", task.TradeID))

	handler, ok := r.handlers[task.Kind]
	if !ok {
		logger.Error("No handler registered for task kind")
		r.fail(ctx, logger, task, fmt.Errorf("unknown task kind %q", task.Kind), true)
		return
	}

	permanent := false
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := handler(ctx, task.TradeID)
		var pe *backoff.PermanentError
		if errors.As(err, &pe) {
			permanent = true
		}
		return struct{}{}, err
	}, backoff.WithBackOff(r.newBackOff()), backoff.WithMaxTries(inProcessTries))

	if err != nil {
		r.fail(ctx, logger, task, err, permanent)
		return
	}

	if err := r.store.MarkTaskDone(ctx, task.ID); err != nil {
		logger.Error("Failed to mark task as done", zap.Error(err))
		return
	}
	logger.Debug("Task completed")
}

func (r *Runner) fail(ctx context.Context, logger *zap.Logger, task model.ScheduledTask, cause error, permanent bool) {
	attempts := task.Attempts + 1
	dead := permanent || attempts >= r.maxAttempts
	retryAt := r.now().Add(retryDelay(attempts))

	if dead {
		logger.Error("Task failed permanently", zap.Int("attempts", attempts), zap.Error(cause))
	} else {
		logger.Warn("Task failed, rescheduling",
			zap.Int("attempts", attempts),
			zap.Time("retry_at", retryAt),
			zap.Error(cause))
	}

	if err := r.store.MarkTaskFailed(ctx, task.ID, cause.Error(), retryAt, dead); err != nil {
		logger.Error("Failed to record task failure", zap.Error(err))
	}
}

func retryDelay(attempts int) time.Duration {
	delay := time.Second << min(attempts, 20)
	if delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}
