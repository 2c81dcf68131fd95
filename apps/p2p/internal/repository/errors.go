package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrTradeNotFound is returned by a conditional update on an unknown id.
	ErrTradeNotFound = errors.New("trade not found")
	// ErrStatusConflict is returned when the stored status no longer matches the expected one.
	ErrStatusConflict = errors.New("trade status changed concurrently")
	// ErrDuplicateHash is returned when a settlement hash is already recorded on another trade.
	ErrDuplicateHash = errors.New("settlement hash already recorded")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
