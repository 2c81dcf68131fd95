package trade

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"p2p/apps/p2p/internal/ledger"
	"p2p/apps/p2p/internal/model"
	"p2p/apps/p2p/internal/repository"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

type TradeStore interface {
	CreateTrade(ctx context.Context, trade model.Trade) error
	GetTradeByID(ctx context.Context, id string) (*model.Trade, error)
	UpdateTradeIfStatus(ctx context.Context, id string, expected model.TransactionStatus, patch model.TradePatch) (*model.Trade, error)
	GetTradesByEmail(ctx context.Context, email string, offset, limit int) ([]model.Trade, error)
}

type Ledger interface {
	ResolveParty(ctx context.Context, email string) (*ledger.Party, error)
	CheckSufficientBalance(ctx context.Context, partyID string, amount decimal.Decimal, cryptoType model.CryptoType, direction model.SellType) (bool, error)
	Reserve(ctx context.Context, partyID string, amount decimal.Decimal, cryptoType model.CryptoType, direction model.SellType) error
	Release(ctx context.Context, partyID string, amount decimal.Decimal, cryptoType model.CryptoType, direction model.SellType) error
	Settle(ctx context.Context, fromPartyID, recipient string, amount decimal.Decimal, cryptoType model.CryptoType) (*ledger.Settlement, error)
}

type Notifier interface {
	Publish(ctx context.Context, trade model.Trade) error
}

type Scheduler interface {
	ScheduleExpiry(ctx context.Context, tradeID string, fireAt time.Time) error
}

type Settings struct {
	ExpireAfter     time.Duration
	ReleaseOnExpiry bool
	CancelPolicy    CancelPolicy
}

// CreateRequest describes a trade against the counterparty who owns the lot.
type CreateRequest struct {
	CounterpartyWallet string
	CounterpartyEmail  string
	Amount             decimal.Decimal
	Price              decimal.Decimal
	CryptoType         model.CryptoType
	FiatType           model.FiatType
	SellType           model.SellType
}

// Service owns the trade lifecycle. All state changes go through a
// compare-and-swap on the stored status.
type Service struct {
	store     TradeStore
	ledger    Ledger
	notifier  Notifier
	scheduler Scheduler
	settings  Settings
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(store TradeStore, ledger Ledger, notifier Notifier, scheduler Scheduler, settings Settings, logger *zap.Logger) *Service {
	if settings.CancelPolicy == "" {
		settings.CancelPolicy = CancelByBuyer
	}
	return &Service{
		store:     store,
		ledger:    ledger,
		notifier:  notifier,
		scheduler: scheduler,
		settings:  settings,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateTrade opens a trade between the caller and the counterparty, reserves
// the seller's crypto and schedules the payment deadline.
func (s *Service) CreateTrade(ctx context.Context, req CreateRequest, caller model.Caller) (*model.Trade, error) {
	if strings.EqualFold(caller.Email, req.CounterpartyEmail) || sameWallet(caller.Wallet, req.CounterpartyWallet) {
		return nil, ErrSelfTradeDenied
	}

	counterparty, err := s.ledger.ResolveParty(ctx, req.CounterpartyEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve counterparty: %w", err)
	}
	if counterparty.ID == caller.PartyID {
		return nil, ErrSelfTradeDenied
	}

	now := s.now()
	trade := model.Trade{
		ID:         uuid.New().String(),
		Amount:     req.Amount,
		Price:      req.Price,
		FiatAmount: model.FiatAmount(req.Amount, req.Price),
		CryptoType: req.CryptoType,
		FiatType:   req.FiatType,
		SellType:   req.SellType,
		Status:     model.StatusCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if req.SellType == model.SellTypeBuy {
		trade.SellerWallet, trade.SellerEmail, trade.SellerLedgerID = caller.Wallet, caller.Email, caller.PartyID
		trade.BuyerWallet, trade.BuyerEmail = req.CounterpartyWallet, req.CounterpartyEmail
	} else {
		trade.SellerWallet, trade.SellerEmail, trade.SellerLedgerID = req.CounterpartyWallet, req.CounterpartyEmail, counterparty.ID
		trade.BuyerWallet, trade.BuyerEmail = caller.Wallet, caller.Email
	}
	// the buyer attests the fiat payment first for either sell type, so the
	// seller is always the final approver and settles seller to buyer
	trade.Initiator = trade.BuyerEmail

	ok, err := s.ledger.CheckSufficientBalance(ctx, trade.SellerLedgerID, trade.Amount, trade.CryptoType, trade.SellType)
	if err != nil {
		return nil, fmt.Errorf("failed to check seller balance: %w", err)
	}
	if !ok {
		return nil, ErrInsufficientBalance
	}

	if err := s.store.CreateTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("failed to store trade: %w", err)
	}

	logger := s.logger.With(zap.String("trade_id", trade.ID))

	// the deadline is durable before any funds move
	if err := s.scheduler.ScheduleExpiry(ctx, trade.ID, trade.CreatedAt.Add(s.settings.ExpireAfter)); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to schedule expiry: %w", err), s.abortCreate(ctx, &trade))
	}

	if err := s.ledger.Reserve(ctx, trade.SellerLedgerID, trade.Amount, trade.CryptoType, trade.SellType); err != nil {
		logger.Warn("Reservation failed, canceling trade", zap.Error(err))
		return nil, errors.Join(fmt.Errorf("failed to reserve seller balance: %w", err), s.abortCreate(ctx, &trade))
	}

	next, _ := model.NextStatus(trade.Status, model.EventOpen)
	opened, err := s.store.UpdateTradeIfStatus(ctx, trade.ID, trade.Status, model.TradePatch{
		Status:    next,
		UpdatedAt: s.now(),
	})
	if err != nil {
		return nil, s.reconciliation(logger, "open", "reserved "+trade.Amount.String(), err)
	}

	logger.Info("Trade opened",
		zap.String("seller_email", trade.SellerEmail),
		zap.String("buyer_email", trade.BuyerEmail),
		zap.String("amount", trade.Amount.String()),
		zap.String("fiat_amount", trade.FiatAmount.String()))

	s.publish(ctx, opened)
	return opened, nil
}

// abortCreate cancels a trade that never reached payment-wait. Losing the
// race to a participant's cancel means that cancel released funds which were
// never reserved.
func (s *Service) abortCreate(ctx context.Context, trade *model.Trade) error {
	logger := s.logger.With(zap.String("trade_id", trade.ID))
	now := s.now()
	canceled, err := s.store.UpdateTradeIfStatus(ctx, trade.ID, model.StatusCreated, model.TradePatch{
		Status:    model.StatusCanceled,
		ClosedOn:  &now,
		UpdatedAt: now,
	})
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			current, loadErr := s.store.GetTradeByID(ctx, trade.ID)
			if loadErr == nil && current != nil && current.Status == model.StatusCanceled {
				return s.reconciliation(logger, "abort", "release of unreserved "+trade.Amount.String(), err)
			}
		}
		logger.Error("Failed to cancel unopened trade", zap.Error(err))
		return fmt.Errorf("failed to cancel unopened trade: %w", err)
	}
	s.publish(ctx, canceled)
	return nil
}

// GetTrade returns a trade visible to the caller. Trades the caller does not
// take part in are reported as not found.
func (s *Service) GetTrade(ctx context.Context, tradeID string, caller model.Caller) (*model.Trade, error) {
	trade, err := s.load(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if !trade.IsParticipant(caller.Email) {
		return nil, ErrNotFound
	}
	return trade, nil
}

// ListTrades returns the caller's trades, newest first.
func (s *Service) ListTrades(ctx context.Context, caller model.Caller, offset, limit int) ([]model.Trade, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	trades, err := s.store.GetTradesByEmail(ctx, caller.Email, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return trades, nil
}

func (s *Service) load(ctx context.Context, tradeID string) (*model.Trade, error) {
	trade, err := s.store.GetTradeByID(ctx, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trade: %w", err)
	}
	if trade == nil {
		return nil, ErrNotFound
	}
	return trade, nil
}

// publish is best effort: the state change is already committed.
func (s *Service) publish(ctx context.Context, trade *model.Trade) {
	if err := s.notifier.Publish(ctx, *trade); err != nil {
		s.logger.Error("Failed to publish trade status change",
			zap.String("trade_id", trade.ID),
			zap.String("status", string(trade.Status)),
			zap.Error(err))
	}
}

// reconciliation logs and wraps a local failure that follows an applied
// ledger effect.
func (s *Service) reconciliation(logger *zap.Logger, op, effect string, cause error) error {
	logger.Error("Reconciliation required",
		zap.String("op", op),
		zap.String("ledger_effect", effect),
		zap.Error(cause))
	return fmt.Errorf("%w: %s after %s: %w", ErrReconciliationRequired, op, effect, cause)
}

func sameWallet(a, b string) bool {
	if common.IsHexAddress(a) && common.IsHexAddress(b) {
		return common.HexToAddress(a) == common.HexToAddress(b)
	}
	return a != "" && strings.EqualFold(a, b)
}
