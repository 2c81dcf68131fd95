package trade

import "errors"

var (
	ErrNotFound               = errors.New("trade not found")
	ErrSelfTradeDenied        = errors.New("cannot trade with yourself")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrInvalidStateTransition = errors.New("operation not allowed in current trade status")
	ErrNotInitiator           = errors.New("caller is not the initiator of the next step")
	ErrCancelNotAllowed       = errors.New("caller is not allowed to cancel this trade")
	ErrPaymentExpired         = errors.New("payment window expired")
	ErrConcurrencyConflict    = errors.New("trade was modified concurrently")

	// ErrReconciliationRequired means a ledger effect was applied but the
	// matching local state change could not be committed.
	ErrReconciliationRequired = errors.New("ledger and trade state diverged, reconciliation required")
)
