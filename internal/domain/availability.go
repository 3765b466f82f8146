package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Reasons reported on an unavailable result.
const (
	ReasonProductNotFound   = "PRODUCT_NOT_FOUND"
	ReasonProductInactive   = "PRODUCT_INACTIVE"
	ReasonInsufficientStock = "INSUFFICIENT_STOCK"
)

type AvailabilityQuery struct {
	ProductID        uuid.UUID
	Dates            DateRange
	Quantity         int
	ExcludeSessionID string
}

func (q AvailabilityQuery) Validate() error {
	if q.ProductID == uuid.Nil {
		return fmt.Errorf("%w: product id is required", ErrInvalidArgument)
	}
	if q.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidRange)
	}
	if q.Dates.Start.IsZero() || q.Dates.End.IsZero() || q.Dates.End.Before(q.Dates.Start) {
		return fmt.Errorf("%w: %s", ErrInvalidRange, q.Dates)
	}
	return nil
}

type AvailabilityResult struct {
	ProductID         uuid.UUID
	Available         bool
	AvailableQuantity int
	RequestedQuantity int
	StockTotal        int
	ReservedQuantity  int
	Reason            string
}

// Unavailable is the answer for products that cannot be rented at all.
func Unavailable(q AvailabilityQuery, reason string) AvailabilityResult {
	return AvailabilityResult{
		ProductID:         q.ProductID,
		RequestedQuantity: q.Quantity,
		Reason:            reason,
	}
}

func NewAvailabilityResult(item *StockItem, q AvailabilityQuery, reserved int) AvailabilityResult {
	free := item.Free(reserved)
	res := AvailabilityResult{
		ProductID:         item.ProductID,
		Available:         free >= q.Quantity,
		AvailableQuantity: free,
		RequestedQuantity: q.Quantity,
		StockTotal:        item.StockTotal,
		ReservedQuantity:  reserved,
	}
	if !res.Available {
		res.Reason = ReasonInsufficientStock
	}
	return res
}

// Shortfall converts an unavailable result into the error handed to callers.
func (r AvailabilityResult) Shortfall() error {
	switch r.Reason {
	case ReasonProductNotFound:
		return fmt.Errorf("product %s: %w", r.ProductID, ErrNotFound)
	case ReasonProductInactive:
		return fmt.Errorf("product %s: %w", r.ProductID, ErrInactiveProduct)
	}
	return &InsufficientStockError{
		ProductID: r.ProductID,
		Requested: r.RequestedQuantity,
		Available: r.AvailableQuantity,
	}
}
