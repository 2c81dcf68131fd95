package history_materializer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"p2p/apps/p2p/internal/events"
	"p2p/apps/p2p/internal/model"
)

type fakeHistory struct {
	changes []model.StatusChange
	// failures makes that many appends fail before succeeding
	failures int
	calls    int
}

func (f *fakeHistory) AppendStatusChange(_ context.Context, change model.StatusChange) error {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("connection reset")
	}
	f.changes = append(f.changes, change)
	return nil
}

type fakeConsumer struct {
	committed []kafka.TopicPartition
	seeks     []kafka.TopicPartition
}

func (f *fakeConsumer) Subscribe(string, kafka.RebalanceCb) error { return nil }

func (f *fakeConsumer) ReadMessage(time.Duration) (*kafka.Message, error) {
	return nil, kafka.NewError(kafka.ErrTimedOut, "timed out", false)
}

func (f *fakeConsumer) CommitMessage(msg *kafka.Message) ([]kafka.TopicPartition, error) {
	f.committed = append(f.committed, msg.TopicPartition)
	return nil, nil
}

func (f *fakeConsumer) Seek(partition kafka.TopicPartition, _ int) error {
	f.seeks = append(f.seeks, partition)
	return nil
}

func (f *fakeConsumer) Close() error { return nil }

func newTestMaterializer(c *fakeConsumer, store *fakeHistory) *HistoryMaterializer {
	hm := newHistoryMaterializer(c, "trades", "transaction_status_changed", zap.NewNop(), store)
	hm.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return hm
}

func message(t *testing.T, key string, trade model.Trade) *kafka.Message {
	t.Helper()
	value, err := json.Marshal(events.NewTradeStatusChanged(trade))
	require.NoError(t, err)
	topic := "trades"
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: 0, Offset: 42},
		Key:            []byte(key),
		Value:          value,
	}
}

func TestProcessMessage(t *testing.T) {
	store := &fakeHistory{}
	hm := &HistoryMaterializer{logger: zap.NewNop(), store: store, eventKey: "transaction_status_changed"}

	hash := "0xabc"
	changedAt := time.Date(2025, 3, 1, 10, 15, 0, 0, time.UTC)
	trade := model.Trade{
		ID:        "trade-1",
		Status:    model.StatusSuccess,
		Initiator: "buyer@example.com",
		UpdatedAt: changedAt,
		Hash:      &hash,
	}

	require.NoError(t, hm.processMessage(context.Background(), message(t, "transaction_status_changed", trade)))
	require.Len(t, store.changes, 1)
	change := store.changes[0]
	assert.Equal(t, "trade-1", change.TradeID)
	assert.Equal(t, model.StatusSuccess, change.Status)
	assert.Equal(t, "buyer@example.com", change.Initiator)
	assert.True(t, changedAt.Equal(change.ChangedAt))
	require.NotNil(t, change.Hash)
	assert.Equal(t, hash, *change.Hash)
}

func TestProcessMessageSkipsForeignKeys(t *testing.T) {
	store := &fakeHistory{}
	hm := &HistoryMaterializer{logger: zap.NewNop(), store: store, eventKey: "transaction_status_changed"}

	trade := model.Trade{ID: "trade-1", Status: model.StatusCanceled}
	require.NoError(t, hm.processMessage(context.Background(), message(t, "something_else", trade)))
	assert.Empty(t, store.changes)
}

func TestProcessMessageRejectsMalformed(t *testing.T) {
	hm := &HistoryMaterializer{logger: zap.NewNop(), store: &fakeHistory{}, eventKey: "k"}
	topic := "trades"

	tests := map[string][]byte{
		"not json":       []byte("{"),
		"missing id":     []byte(`{"status":"SUCCESS"}`),
		"unknown status": []byte(`{"id":"trade-1","status":"DONE"}`),
	}
	for name, value := range tests {
		t.Run(name, func(t *testing.T) {
			msg := &kafka.Message{TopicPartition: kafka.TopicPartition{Topic: &topic}, Key: []byte("k"), Value: value}
			require.Error(t, hm.processMessage(context.Background(), msg))
		})
	}
}

func TestHandleMessageCommitsAfterAppend(t *testing.T) {
	tests := []struct {
		name     string
		failures int
	}{
		{name: "first attempt", failures: 0},
		{name: "after transient failures", failures: appendAttempts - 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeConsumer{}
			store := &fakeHistory{failures: tt.failures}
			hm := newTestMaterializer(c, store)
			msg := message(t, "transaction_status_changed", model.Trade{ID: "trade-1", Status: model.StatusCanceled})

			require.NoError(t, hm.handleMessage(context.Background(), msg))
			require.Len(t, store.changes, 1)
			require.Len(t, c.committed, 1)
			assert.Equal(t, kafka.Offset(42), c.committed[0].Offset)
			assert.Empty(t, c.seeks)
		})
	}
}

func TestHandleMessageRewindsWhenStoreKeepsFailing(t *testing.T) {
	c := &fakeConsumer{}
	store := &fakeHistory{failures: appendAttempts}
	hm := newTestMaterializer(c, store)
	msg := message(t, "transaction_status_changed", model.Trade{ID: "trade-1", Status: model.StatusExpired})

	require.Error(t, hm.handleMessage(context.Background(), msg))
	assert.Equal(t, appendAttempts, store.calls)
	assert.Empty(t, c.committed, "offset must not move past an unrecorded change")
	require.Len(t, c.seeks, 1)
	assert.Equal(t, kafka.Offset(42), c.seeks[0].Offset)

	// the redelivered message is recorded once the store recovers
	require.NoError(t, hm.handleMessage(context.Background(), msg))
	require.Len(t, store.changes, 1)
	require.Len(t, c.committed, 1)
}

func TestHandleMessageSkipsMalformed(t *testing.T) {
	c := &fakeConsumer{}
	store := &fakeHistory{}
	hm := newTestMaterializer(c, store)
	topic := "trades"
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Offset: 7},
		Key:            []byte("transaction_status_changed"),
		Value:          []byte("{"),
	}

	require.NoError(t, hm.handleMessage(context.Background(), msg))
	assert.Zero(t, store.calls)
	require.Len(t, c.committed, 1)
	assert.Empty(t, c.seeks)
}
