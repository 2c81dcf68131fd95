package history_materializer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"
	"p2p/apps/p2p/internal/events"
	"p2p/apps/p2p/internal/model"
)

const (
	consumerGroup  = "trade-history-materializer"
	appendAttempts = 3
)

var errMalformedEvent = errors.New("malformed trade event")

type HistoryStore interface {
	AppendStatusChange(ctx context.Context, change model.StatusChange) error
}

type consumer interface {
	Subscribe(topic string, rebalanceCb kafka.RebalanceCb) error
	ReadMessage(timeout time.Duration) (*kafka.Message, error)
	CommitMessage(msg *kafka.Message) ([]kafka.TopicPartition, error)
	Seek(partition kafka.TopicPartition, ignoredTimeoutMs int) error
	Close() error
}

// HistoryMaterializer consumes trade status notifications and records one
// history row per trade and status. Offsets are committed only once a message
// is recorded or known to be unusable.
type HistoryMaterializer struct {
	logger        *zap.Logger
	kafkaConsumer consumer
	store         HistoryStore
	kafkaTopic    string
	eventKey      string
	newBackOff    func() backoff.BackOff
}

func NewHistoryMaterializer(kafkaBroker, kafkaTopic, eventKey string, logger *zap.Logger, store HistoryStore) (*HistoryMaterializer, error) {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": kafkaBroker,
		"group.id":          consumerGroup,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	return newHistoryMaterializer(c, kafkaTopic, eventKey, logger, store), nil
}

func newHistoryMaterializer(c consumer, kafkaTopic, eventKey string, logger *zap.Logger, store HistoryStore) *HistoryMaterializer {
	return &HistoryMaterializer{
		logger:        logger,
		kafkaConsumer: c,
		store:         store,
		kafkaTopic:    kafkaTopic,
		eventKey:      eventKey,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}
}

// Start consumes until ctx is done.
func (hm *HistoryMaterializer) Start(ctx context.Context) error {
	hm.logger.Info("Starting history materializer...", zap.String("topic", hm.kafkaTopic))

	if err := hm.kafkaConsumer.Subscribe(hm.kafkaTopic, nil); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", hm.kafkaTopic, err)
	}

	for ctx.Err() == nil {
		msg, err := hm.kafkaConsumer.ReadMessage(100 * time.Millisecond)
		if err != nil {
			var kafkaErr kafka.Error
			if errors.As(err, &kafkaErr) && kafkaErr.Code() == kafka.ErrTimedOut {
				continue
			}
			hm.logger.Error("Error reading message from Kafka", zap.Error(err))
			continue
		}

		if err := hm.handleMessage(ctx, msg); err != nil {
			hm.logger.Error("Error processing message",
				zap.String("topic", *msg.TopicPartition.Topic),
				zap.Int32("partition", msg.TopicPartition.Partition),
				zap.String("key", string(msg.Key)),
				zap.Error(err))
		}
	}

	hm.logger.Info("History materializer stopped")
	return nil
}

// handleMessage records msg and commits its offset. When the store keeps
// failing the consumer is rewound to msg so it is read again.
func (hm *HistoryMaterializer) handleMessage(ctx context.Context, msg *kafka.Message) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := hm.processMessage(ctx, msg)
		if errors.Is(err, errMalformedEvent) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(hm.newBackOff()), backoff.WithMaxTries(appendAttempts))

	switch {
	case errors.Is(err, errMalformedEvent):
		hm.logger.Warn("Skipping malformed trade event",
			zap.Int64("offset", int64(msg.TopicPartition.Offset)),
			zap.Error(err))
	case err != nil:
		if seekErr := hm.kafkaConsumer.Seek(msg.TopicPartition, 0); seekErr != nil {
			return errors.Join(fmt.Errorf("failed to record status change: %w", err), fmt.Errorf("failed to rewind consumer: %w", seekErr))
		}
		return fmt.Errorf("failed to record status change: %w", err)
	}

	if _, err := hm.kafkaConsumer.CommitMessage(msg); err != nil {
		return fmt.Errorf("failed to commit offset: %w", err)
	}
	return nil
}

func (hm *HistoryMaterializer) processMessage(ctx context.Context, msg *kafka.Message) error {
	if string(msg.Key) != hm.eventKey {
		return nil
	}

	var event events.TradeStatusChanged
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("%w: %w", errMalformedEvent, err)
	}
	if event.ID == "" || !event.Status.IsValid() {
		return fmt.Errorf("%w: id=%q status=%q", errMalformedEvent, event.ID, event.Status)
	}

	hm.logger.Debug("Processing trade event",
		zap.String("trade_id", event.ID),
		zap.String("status", string(event.Status)))

	return hm.store.AppendStatusChange(ctx, model.StatusChange{
		TradeID:   event.ID,
		Status:    event.Status,
		Initiator: event.Initiator,
		ChangedAt: event.UpdatedAt,
		Hash:      event.Hash,
	})
}

func (hm *HistoryMaterializer) Close() error {
	if hm.kafkaConsumer != nil {
		return hm.kafkaConsumer.Close()
	}
	return nil
}
