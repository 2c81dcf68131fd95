package ledger

import (
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var (
	// MaxNumOfFailingRequests is the request count the breaker must see before it may open.
	MaxNumOfFailingRequests = 10
	// FailingRatio is the failure ratio that opens the breaker.
	FailingRatio = 0.6
)

func newCircuitBreaker(logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "ledger",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return int(counts.Requests) > MaxNumOfFailingRequests && ratio >= FailingRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Ledger circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}
