package trade

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"p2p/apps/p2p/internal/ledger"
	"p2p/apps/p2p/internal/model"
	"p2p/apps/p2p/internal/repository"
)

// maxConflictRetries is how many times an operation re-reads the trade and
// re-checks its guards after losing a compare-and-swap.
const maxConflictRetries = 1

// ApprovePayment records the caller's attestation and hands the next step to
// the counterparty. The second attestation settles the trade.
func (s *Service) ApprovePayment(ctx context.Context, tradeID string, caller model.Caller) (*model.Trade, error) {
	for attempt := 0; ; attempt++ {
		trade, err := s.load(ctx, tradeID)
		if err != nil {
			return nil, err
		}

		if trade.Status == model.StatusExpired {
			return nil, ErrPaymentExpired
		}
		if !trade.IsInitiator(caller.Email) {
			return nil, ErrNotInitiator
		}
		next, ok := model.NextStatus(trade.Status, model.EventApprove)
		if !ok {
			return nil, ErrInvalidStateTransition
		}

		logger := s.logger.With(zap.String("trade_id", trade.ID))
		initiator := trade.Counterparty(caller.Email)
		patch := model.TradePatch{
			Status:    next,
			Initiator: &initiator,
			UpdatedAt: s.now(),
		}

		var settlement *ledger.Settlement
		if next == model.StatusSuccess {
			settlement, err = s.ledger.Settle(ctx, trade.SellerLedgerID, trade.BuyerWallet, trade.Amount, trade.CryptoType)
			if err != nil {
				return nil, fmt.Errorf("failed to settle trade: %w", err)
			}
			closedOn := settlement.Time
			patch.Hash = &settlement.Hash
			patch.ClosedOn = &closedOn
		}

		updated, err := s.store.UpdateTradeIfStatus(ctx, trade.ID, trade.Status, patch)
		if err == nil {
			logger.Info("Payment approved",
				zap.String("approved_by", caller.Email),
				zap.String("status", string(updated.Status)))
			s.publish(ctx, updated)
			return updated, nil
		}

		if settlement != nil {
			return nil, s.reconciliation(logger, "approve", "settlement "+settlement.Hash, err)
		}
		if retry, err := s.retryable(err, attempt); !retry {
			return nil, err
		}
		logger.Debug("Approve lost a status race, re-reading trade")
	}
}

// CancelTrade closes a trade that has not entered approval yet and returns
// the reserved crypto to the seller.
func (s *Service) CancelTrade(ctx context.Context, tradeID string, caller model.Caller) (*model.Trade, error) {
	for attempt := 0; ; attempt++ {
		trade, err := s.load(ctx, tradeID)
		if err != nil {
			return nil, err
		}

		next, ok := model.NextStatus(trade.Status, model.EventCancel)
		if !ok {
			return nil, ErrInvalidStateTransition
		}
		if !s.settings.CancelPolicy.Allows(trade, caller.Email) {
			return nil, ErrCancelNotAllowed
		}

		logger := s.logger.With(zap.String("trade_id", trade.ID))
		now := s.now()
		updated, err := s.store.UpdateTradeIfStatus(ctx, trade.ID, trade.Status, model.TradePatch{
			Status:    next,
			ClosedOn:  &now,
			UpdatedAt: now,
		})
		if err != nil {
			if retry, err := s.retryable(err, attempt); !retry {
				return nil, err
			}
			logger.Debug("Cancel lost a status race, re-reading trade")
			continue
		}

		logger.Info("Trade canceled", zap.String("canceled_by", caller.Email))

		if err := s.ledger.Release(ctx, updated.SellerLedgerID, updated.Amount, updated.CryptoType, updated.SellType); err != nil {
			s.publish(ctx, updated)
			return nil, s.reconciliation(logger, "release", "cancel committed", err)
		}

		s.publish(ctx, updated)
		return updated, nil
	}
}

// ExpireTrade closes a trade still waiting for payment. It is safe to call
// any number of times; a trade in any other status is left untouched and nil
// is returned.
func (s *Service) ExpireTrade(ctx context.Context, tradeID string) (*model.Trade, error) {
	for attempt := 0; ; attempt++ {
		trade, err := s.store.GetTradeByID(ctx, tradeID)
		if err != nil {
			return nil, fmt.Errorf("failed to load trade: %w", err)
		}
		if trade == nil {
			s.logger.Warn("Expiry fired for unknown trade", zap.String("trade_id", tradeID))
			return nil, nil
		}

		next, ok := model.NextStatus(trade.Status, model.EventExpire)
		if !ok {
			s.logger.Debug("Expiry skipped",
				zap.String("trade_id", tradeID),
				zap.String("status", string(trade.Status)))
			return nil, nil
		}

		logger := s.logger.With(zap.String("trade_id", trade.ID))
		now := s.now()
		updated, err := s.store.UpdateTradeIfStatus(ctx, trade.ID, trade.Status, model.TradePatch{
			Status:    next,
			ClosedOn:  &now,
			UpdatedAt: now,
		})
		if err != nil {
			if retry, err := s.retryable(err, attempt); !retry {
				return nil, err
			}
			continue
		}

		logger.Info("Trade expired")

		if s.settings.ReleaseOnExpiry {
			if err := s.ledger.Release(ctx, updated.SellerLedgerID, updated.Amount, updated.CryptoType, updated.SellType); err != nil {
				s.publish(ctx, updated)
				return nil, s.reconciliation(logger, "release", "expiry committed", err)
			}
		} else {
			logger.Warn("Reservation kept after expiry", zap.String("amount", updated.Amount.String()))
		}

		s.publish(ctx, updated)
		return updated, nil
	}
}

// retryable classifies a failed conditional update. A status conflict is
// retried while attempts remain; everything else is returned as is.
func (s *Service) retryable(err error, attempt int) (bool, error) {
	switch {
	case errors.Is(err, repository.ErrStatusConflict):
		if attempt < maxConflictRetries {
			return true, nil
		}
		return false, ErrConcurrencyConflict
	case errors.Is(err, repository.ErrTradeNotFound):
		return false, ErrNotFound
	default:
		return false, fmt.Errorf("failed to update trade: %w", err)
	}
}
