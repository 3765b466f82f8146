package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StockItem is the slice of a catalog product the reservation engine reads:
// how many units exist and how long a unit is out of service after a rental.
type StockItem struct {
	ProductID      uuid.UUID
	Sku            string
	StockTotal     int
	TurnaroundDays int
	IsActive       bool
	UpdatedAtUtc   time.Time
}

func NewStockItem(productID uuid.UUID, sku string, stockTotal, turnaroundDays int, active bool) (*StockItem, error) {
	if productID == uuid.Nil {
		return nil, fmt.Errorf("%w: product id is required", ErrInvalidArgument)
	}
	if stockTotal < 0 {
		return nil, fmt.Errorf("%w: stock total %d is negative", ErrInvalidArgument, stockTotal)
	}
	if turnaroundDays < 0 {
		return nil, fmt.Errorf("%w: turnaround days %d is negative", ErrInvalidArgument, turnaroundDays)
	}
	return &StockItem{
		ProductID:      productID,
		Sku:            sku,
		StockTotal:     stockTotal,
		TurnaroundDays: turnaroundDays,
		IsActive:       active,
		UpdatedAtUtc:   time.Now().UTC(),
	}, nil
}

// Window is the range a new rental of these dates keeps a unit busy,
// including the turnaround days after the end date.
func (s *StockItem) Window(dates DateRange) DateRange {
	return dates.ExtendEnd(s.TurnaroundDays)
}

// Free returns the units left once reserved units are taken out, never negative.
func (s *StockItem) Free(reserved int) int {
	if free := s.StockTotal - reserved; free > 0 {
		return free
	}
	return 0
}
