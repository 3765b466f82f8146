package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInactiveProduct     = errors.New("product is not rentable")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInvalidRange        = errors.New("invalid date range or quantity")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInvalidTransition   = errors.New("invalid reservation state transition")
	ErrConcurrencyConflict = errors.New("concurrent reservation conflict")
)

// InsufficientStockError carries what the shopper can still hold.
type InsufficientStockError struct {
	ProductID uuid.UUID
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
