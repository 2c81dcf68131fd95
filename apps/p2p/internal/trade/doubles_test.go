package trade

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"p2p/apps/p2p/internal/ledger"
	"p2p/apps/p2p/internal/model"
	"p2p/apps/p2p/internal/repository"
)

// memoryStore is a TradeStore with the same compare-and-swap contract as the
// Postgres repository.
type memoryStore struct {
	mu     sync.Mutex
	trades map[string]model.Trade

	// beforeUpdate runs once, before the next conditional update, to inject a
	// racing writer.
	beforeUpdate func()
	// conflicts forces that many conditional updates to fail with a conflict.
	conflicts int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{trades: make(map[string]model.Trade)}
}

func (m *memoryStore) CreateTrade(_ context.Context, trade model.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades[trade.ID] = trade
	return nil
}

func (m *memoryStore) GetTradeByID(_ context.Context, id string) (*model.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	trade, ok := m.trades[id]
	if !ok {
		return nil, nil
	}
	return &trade, nil
}

func (m *memoryStore) UpdateTradeIfStatus(_ context.Context, id string, expected model.TransactionStatus, patch model.TradePatch) (*model.Trade, error) {
	if hook := m.beforeUpdate; hook != nil {
		m.beforeUpdate = nil
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	trade, ok := m.trades[id]
	if !ok {
		return nil, repository.ErrTradeNotFound
	}
	if m.conflicts > 0 {
		m.conflicts--
		return nil, repository.ErrStatusConflict
	}
	if trade.Status != expected {
		return nil, repository.ErrStatusConflict
	}
	if patch.Hash != nil {
		for _, other := range m.trades {
			if other.Hash != nil && *other.Hash == *patch.Hash {
				return nil, repository.ErrDuplicateHash
			}
		}
		trade.Hash = patch.Hash
	}

	trade.Status = patch.Status
	trade.UpdatedAt = patch.UpdatedAt
	if patch.Initiator != nil {
		trade.Initiator = *patch.Initiator
	}
	if patch.ClosedOn != nil && trade.ClosedOn == nil {
		trade.ClosedOn = patch.ClosedOn
	}
	m.trades[id] = trade
	return &trade, nil
}

func (m *memoryStore) GetTradesByEmail(_ context.Context, email string, offset, limit int) ([]model.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Trade
	for _, trade := range m.trades {
		if strings.EqualFold(trade.BuyerEmail, email) || strings.EqualFold(trade.SellerEmail, email) {
			out = append(out, trade)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) get(id string) model.Trade {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trades[id]
}

func (m *memoryStore) put(trade model.Trade) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades[trade.ID] = trade
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) ResolveParty(ctx context.Context, email string) (*ledger.Party, error) {
	args := m.Called(ctx, email)
	party, _ := args.Get(0).(*ledger.Party)
	return party, args.Error(1)
}

func (m *mockLedger) CheckSufficientBalance(ctx context.Context, partyID string, amount decimal.Decimal, cryptoType model.CryptoType, direction model.SellType) (bool, error) {
	args := m.Called(ctx, partyID, amount, cryptoType, direction)
	return args.Bool(0), args.Error(1)
}

func (m *mockLedger) Reserve(ctx context.Context, partyID string, amount decimal.Decimal, cryptoType model.CryptoType, direction model.SellType) error {
	return m.Called(ctx, partyID, amount, cryptoType, direction).Error(0)
}

func (m *mockLedger) Release(ctx context.Context, partyID string, amount decimal.Decimal, cryptoType model.CryptoType, direction model.SellType) error {
	return m.Called(ctx, partyID, amount, cryptoType, direction).Error(0)
}

func (m *mockLedger) Settle(ctx context.Context, fromPartyID, recipient string, amount decimal.Decimal, cryptoType model.CryptoType) (*ledger.Settlement, error) {
	args := m.Called(ctx, fromPartyID, recipient, amount, cryptoType)
	settlement, _ := args.Get(0).(*ledger.Settlement)
	return settlement, args.Error(1)
}

type recordingNotifier struct {
	mu        sync.Mutex
	published []model.Trade
	err       error
}

func (r *recordingNotifier) Publish(_ context.Context, trade model.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, trade)
	return r.err
}

func (r *recordingNotifier) statuses() []model.TransactionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.TransactionStatus, 0, len(r.published))
	for _, trade := range r.published {
		out = append(out, trade.Status)
	}
	return out
}

type scheduledExpiry struct {
	tradeID string
	fireAt  time.Time
}

type recordingScheduler struct {
	scheduled []scheduledExpiry
	err       error
}

func (r *recordingScheduler) ScheduleExpiry(_ context.Context, tradeID string, fireAt time.Time) error {
	if r.err != nil {
		return r.err
	}
	r.scheduled = append(r.scheduled, scheduledExpiry{tradeID: tradeID, fireAt: fireAt})
	return nil
}

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
