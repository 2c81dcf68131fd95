package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrDownstreamService matches every failed ledger call.
	ErrDownstreamService = errors.New("ledger service call failed")
	// ErrPartyNotFound is returned when no p2p wallet is registered for an email.
	ErrPartyNotFound = errors.New("ledger party not found")
)

// DownstreamError describes a failed ledger call: a transport error, a
// non-2xx response or a payload that could not be decoded.
type DownstreamError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *DownstreamError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("ledger %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("ledger %s: status %d: %s", e.Op, e.StatusCode, e.Body)
	}
}

func (e *DownstreamError) Unwrap() error {
	return e.Err
}

func (e *DownstreamError) Is(target error) bool {
	return target == ErrDownstreamService
}
