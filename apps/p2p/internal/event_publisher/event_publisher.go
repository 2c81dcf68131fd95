package event_publisher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"
	"p2p/apps/p2p/internal/model"
)

const (
	batchSize = 100
	// claims older than this belong to a relay that is gone
	staleClaimAge = 5 * time.Minute
)

type OutboxStore interface {
	GetUnsentEventsForProcessing(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkEventAsSent(ctx context.Context, id int64) error
	MarkEventAsFailed(ctx context.Context, id int64) error
	ResetProcessingEvents(ctx context.Context, olderThan time.Time) (int64, error)
}

type producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Close()
}

// EventPublisher relays outbox rows to the stream. Delivery is at least once.
type EventPublisher struct {
	logger        *zap.Logger
	kafkaProducer producer
	kafkaTopic    string
	repository    OutboxStore
	interval      time.Duration
	now           func() time.Time
	mu            sync.Mutex // one relay pass at a time
}

func NewEventPublisher(kafkaBroker, kafkaTopic string, interval time.Duration, logger *zap.Logger, repository OutboxStore) (*EventPublisher, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": kafkaBroker,
		"acks":              "all",
		"retries":           3,
		"retry.backoff.ms":  100,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return newEventPublisher(p, kafkaTopic, interval, logger, repository), nil
}

func newEventPublisher(p producer, kafkaTopic string, interval time.Duration, logger *zap.Logger, repository OutboxStore) *EventPublisher {
	return &EventPublisher{
		logger:        logger,
		kafkaProducer: p,
		kafkaTopic:    kafkaTopic,
		repository:    repository,
		interval:      interval,
		now:           time.Now,
	}
}

// StartPublishing blocks until ctx is done.
func (ep *EventPublisher) StartPublishing(ctx context.Context) error {
	// rows left in processing by a crashed relay go back to unsent
	reset, err := ep.repository.ResetProcessingEvents(ctx, ep.now().Add(-staleClaimAge))
	if err != nil {
		return fmt.Errorf("failed to reset processing events: %w", err)
	}
	if reset > 0 {
		ep.logger.Warn("Reset stuck outbox events", zap.Int64("count", reset))
	}

	ticker := time.NewTicker(ep.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := ep.publishUnsentEvents(ctx); err != nil {
				ep.logger.Error("Error publishing events to Kafka", zap.Error(err))
			}
		}
	}
}

func (ep *EventPublisher) publishUnsentEvents(ctx context.Context) error {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	outboxEvents, err := ep.repository.GetUnsentEventsForProcessing(ctx, batchSize)
	if err != nil {
		return err
	}

	successCount := 0
	for _, event := range outboxEvents {
		if err := ep.publishEventToKafka(event); err != nil {
			ep.logger.Error("Failed to publish event to Kafka",
				zap.Int64("event_id", event.ID),
				zap.String("trade_id", event.TradeID),
				zap.Error(err))
			if markErr := ep.repository.MarkEventAsFailed(ctx, event.ID); markErr != nil {
				ep.logger.Error("Failed to mark event as failed", zap.Int64("event_id", event.ID), zap.Error(markErr))
			}
			continue
		}

		if err := ep.repository.MarkEventAsSent(ctx, event.ID); err != nil {
			// published but still processing; it will be sent again after a reset
			ep.logger.Error("Failed to mark event as sent", zap.Int64("event_id", event.ID), zap.Error(err))
		} else {
			successCount++
		}
	}

	if successCount > 0 {
		ep.logger.Info("Published events to Kafka", zap.Int("success_count", successCount), zap.Int("attempted", len(outboxEvents)))
	}

	return nil
}

func (ep *EventPublisher) publishEventToKafka(event model.OutboxEvent) error {
	deliveryChan := make(chan kafka.Event, 1)
	defer close(deliveryChan)

	err := ep.kafkaProducer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &ep.kafkaTopic, Partition: kafka.PartitionAny},
		Key:            []byte(event.EventKey),
		Value:          event.EventBlob,
		Headers:        []kafka.Header{{Key: "event_type", Value: []byte(event.EventType)}},
	}, deliveryChan)
	if err != nil {
		return err
	}

	e := <-deliveryChan
	switch ev := e.(type) {
	case *kafka.Message:
		if ev.TopicPartition.Error != nil {
			return ev.TopicPartition.Error
		}
		return nil
	default:
		return fmt.Errorf("unexpected kafka event type: %T", e)
	}
}

func (ep *EventPublisher) Close() error {
	if ep.kafkaProducer != nil {
		ep.kafkaProducer.Close()
	}
	return nil
}
