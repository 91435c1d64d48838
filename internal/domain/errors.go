package domain

import (
	"errors"
	"fmt"
)

var (
	ErrListingNotFound          = errors.New("listing not found")
	ErrListingUnavailable       = errors.New("listing unavailable")
	ErrReservationNotFound      = errors.New("reservation not found")
	ErrReservationConflict      = errors.New("reservation conflict")
	ErrInsufficientStock        = errors.New("insufficient stock")
	ErrInvalidQuantity          = errors.New("invalid quantity")
	ErrInvalidQuantityReduction = errors.New("quantity below total sold")
	ErrContention               = errors.New("too much contention, retry")
	ErrTransactionIDRequired    = errors.New("transaction id required")
	ErrTitleRequired            = errors.New("title required")
	ErrSellerRequired           = errors.New("seller id required")
	ErrInvalidStatus            = errors.New("invalid status")
	ErrInvalidID                = errors.New("invalid id")
)

// InsufficientStockError carries the listing's true real availability so
// callers can offer a reduced quantity. It matches ErrInsufficientStock
// under errors.Is.
type InsufficientStockError struct {
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: requested %d, available %d", e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
