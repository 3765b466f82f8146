package domain

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// HoldState is the single source of truth for a reservation's lifecycle.
// Only reachable type/status combinations exist.
type HoldState string

const (
	HoldSoftPending   HoldState = "SOFT_PENDING"
	HoldSoftReleased  HoldState = "SOFT_RELEASED"
	HoldHardActive    HoldState = "HARD_ACTIVE"
	HoldHardCompleted HoldState = "HARD_COMPLETED"
	HoldHardReleased  HoldState = "HARD_RELEASED"
)

type HoldType string

const (
	HoldTypeSoft HoldType = "SOFT"
	HoldTypeHard HoldType = "HARD"
)

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "PENDING"
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationReleased  ReservationStatus = "RELEASED"
	ReservationCompleted ReservationStatus = "COMPLETED"
)

// CountingStates occupy stock.
var CountingStates = []HoldState{HoldSoftPending, HoldHardActive}

func ParseHoldState(s string) (HoldState, error) {
	st := HoldState(s)
	if !st.IsValid() {
		return "", fmt.Errorf("unknown hold state %q", s)
	}
	return st, nil
}

func (s HoldState) IsValid() bool {
	switch s {
	case HoldSoftPending, HoldSoftReleased, HoldHardActive, HoldHardCompleted, HoldHardReleased:
		return true
	}
	return false
}

func (s HoldState) Type() HoldType {
	switch s {
	case HoldSoftPending, HoldSoftReleased:
		return HoldTypeSoft
	default:
		return HoldTypeHard
	}
}

func (s HoldState) Status() ReservationStatus {
	switch s {
	case HoldSoftPending:
		return ReservationPending
	case HoldHardActive:
		return ReservationActive
	case HoldHardCompleted:
		return ReservationCompleted
	default:
		return ReservationReleased
	}
}

// Counts reports whether a hold in this state consumes stock.
func (s HoldState) Counts() bool {
	return s == HoldSoftPending || s == HoldHardActive
}

func (s HoldState) IsTerminal() bool {
	return s == HoldSoftReleased || s == HoldHardReleased || s == HoldHardCompleted
}

// released maps a counting state to its released counterpart.
func (s HoldState) released() (HoldState, bool) {
	switch s {
	case HoldSoftPending:
		return HoldSoftReleased, true
	case HoldHardActive:
		return HoldHardReleased, true
	}
	return s, false
}

// HoldRef identifies a reservation touched by a bulk transition.
type HoldRef struct {
	ID        uuid.UUID
	ProductID uuid.UUID
}

// HoldLine is what a session hold is replaced by: same session, same
// package line (uuid.Nil for standalone), same product and same dates.
type HoldLine struct {
	SessionID string
	PackageID uuid.UUID
	ProductID uuid.UUID
	Dates     DateRange
}

// ExpiryCursor is the last (expiry, id) pair a sweep page returned.
type ExpiryCursor struct {
	ExpiresAtUtc time.Time
	ID           uuid.UUID
}

// Reservation is one hold of Quantity units of a product over Dates.
// A hold is owned by a cart session or by an order, never both.
// PackageID names the package line the hold was placed for; uuid.Nil marks
// a standalone cart line.
type Reservation struct {
	ID             uuid.UUID
	ProductID      uuid.UUID
	PackageID      uuid.UUID
	SessionID      string
	OrderID        uuid.UUID
	Quantity       int
	Dates          DateRange
	State          HoldState
	ExpiresAtUtc   *time.Time
	CreatedAtUtc   time.Time
	ReleasedAtUtc  *time.Time
	CompletedAtUtc *time.Time
}

func NewSoftHold(productID uuid.UUID, sessionID string, quantity int, dates DateRange, now time.Time, ttl time.Duration) (*Reservation, error) {
	if productID == uuid.Nil || sessionID == "" {
		return nil, fmt.Errorf("%w: product and session are required", ErrInvalidArgument)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidRange)
	}
	now = now.UTC()
	expires := now.Add(ttl)
	return &Reservation{
		ID:           uuid.New(),
		ProductID:    productID,
		SessionID:    sessionID,
		Quantity:     quantity,
		Dates:        dates,
		State:        HoldSoftPending,
		ExpiresAtUtc: &expires,
		CreatedAtUtc: now,
	}, nil
}

// OnLine reports whether the hold is a pending hold on line.
func (r *Reservation) OnLine(line HoldLine) bool {
	return r.State == HoldSoftPending &&
		r.SessionID == line.SessionID &&
		r.PackageID == line.PackageID &&
		r.ProductID == line.ProductID &&
		r.Dates.Equal(line.Dates)
}

// After reports whether the hold sorts strictly after c in sweep order.
func (r *Reservation) After(c *ExpiryCursor) bool {
	if c == nil {
		return true
	}
	if r.ExpiresAtUtc == nil {
		return false
	}
	if !r.ExpiresAtUtc.Equal(c.ExpiresAtUtc) {
		return r.ExpiresAtUtc.After(c.ExpiresAtUtc)
	}
	return bytes.Compare(r.ID[:], c.ID[:]) > 0
}

func (r *Reservation) Ref() HoldRef {
	return HoldRef{ID: r.ID, ProductID: r.ProductID}
}

// Blocks reports whether this hold keeps a unit busy during window.
func (r *Reservation) Blocks(window DateRange, turnaroundDays int) bool {
	return r.State.Counts() && r.Dates.ExtendEnd(turnaroundDays).Overlaps(window)
}

func (r *Reservation) IsExpired(now time.Time) bool {
	return r.State == HoldSoftPending && r.ExpiresAtUtc != nil && r.ExpiresAtUtc.Before(now)
}

// AttachToOrder re-ties a pending cart hold to an order without promoting it.
func (r *Reservation) AttachToOrder(orderID uuid.UUID, until time.Time) error {
	if r.State != HoldSoftPending {
		return ErrInvalidTransition
	}
	r.OrderID = orderID
	r.SessionID = ""
	r.extendTo(until)
	return nil
}

// Promote turns a pending soft hold into a hard hold backing orderID.
func (r *Reservation) Promote(orderID uuid.UUID) error {
	if r.State != HoldSoftPending {
		return ErrInvalidTransition
	}
	r.State = HoldHardActive
	r.OrderID = orderID
	r.SessionID = ""
	r.ExpiresAtUtc = nil
	return nil
}

// Release returns false when the hold is already terminal.
func (r *Reservation) Release(now time.Time) bool {
	next, ok := r.State.released()
	if !ok {
		return false
	}
	at := now.UTC()
	r.State = next
	r.ExpiresAtUtc = nil
	r.ReleasedAtUtc = &at
	return true
}

// Complete returns false unless the hold is HARD_ACTIVE.
func (r *Reservation) Complete(now time.Time) bool {
	if r.State != HoldHardActive {
		return false
	}
	at := now.UTC()
	r.State = HoldHardCompleted
	r.CompletedAtUtc = &at
	return true
}

func (r *Reservation) Extend(until time.Time) error {
	if r.State != HoldSoftPending {
		return ErrInvalidTransition
	}
	r.extendTo(until)
	return nil
}

// extendTo never shortens an existing expiry.
func (r *Reservation) extendTo(until time.Time) {
	until = until.UTC()
	if r.ExpiresAtUtc != nil && r.ExpiresAtUtc.After(until) {
		return
	}
	r.ExpiresAtUtc = &until
}
