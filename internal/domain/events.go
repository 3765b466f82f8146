package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/rodolfodevapp/eventshop-messaging-go/core/primitives"
)

// =========== Incoming payloads ===========

// ProductCreated / ProductUpdated (catalog.events)
type ProductPayload struct {
	ProductID      uuid.UUID `json:"productId"`
	Sku            string    `json:"sku"`
	Name           string    `json:"name"`
	StockQuantity  int       `json:"stockQuantity"`
	TurnaroundDays int       `json:"turnaroundDays"`
	IsActive       bool      `json:"isActive"`
}

type PackageComponentPayload struct {
	ProductID         uuid.UUID `json:"productId"`
	QuantityPerPerson int       `json:"quantityPerPerson"`
	Optional          bool      `json:"optional"`
}

// PackageUpserted (catalog.events)
type PackageUpsertedPayload struct {
	PackageID  uuid.UUID                 `json:"packageId"`
	Name       string                    `json:"name"`
	IsActive   bool                      `json:"isActive"`
	Components []PackageComponentPayload `json:"components"`
}

// CheckoutStarted (orders.events)
type CheckoutStartedPayload struct {
	SessionID string    `json:"sessionId"`
	OrderID   uuid.UUID `json:"orderId"`
}

// PaymentSucceeded (payments.events)
type PaymentSucceededPayload struct {
	OrderID   uuid.UUID `json:"orderId"`
	SessionID string    `json:"sessionId,omitempty"`
}

// PaymentFailed, PaymentExpired, OrderCancelled, OrderReturned
type OrderRefPayload struct {
	OrderID uuid.UUID `json:"orderId"`
	Reason  string    `json:"reason,omitempty"`
}

// CartCleared (carts.events)
type CartClearedPayload struct {
	SessionID string `json:"sessionId"`
}

// =========== Outgoing events (reservations.events) ===========

const (
	EventHoldCreated    = "HoldCreated"
	EventHoldsPromoted  = "HoldsPromoted"
	EventHoldsAttached  = "HoldsAttached"
	EventHoldsReleased  = "HoldsReleased"
	EventHoldsCompleted = "HoldsCompleted"
	EventHoldsExpired   = "HoldsExpired"
	EventHoldExtended   = "HoldExtended"
)

type HoldCreatedEvent struct {
	primitives.BaseEvent
	ReservationID uuid.UUID  `json:"reservationId"`
	ProductID     uuid.UUID  `json:"productId"`
	PackageID     *uuid.UUID `json:"packageId,omitempty"`
	SessionID     string     `json:"sessionId"`
	Quantity      int        `json:"quantity"`
	StartDate     string     `json:"startDate"`
	EndDate       string     `json:"endDate"`
	ExpiresAtUtc  time.Time  `json:"expiresAtUtc"`
	CreatedAtUtc  time.Time  `json:"createdAtUtc"`
}

func NewHoldCreatedEvent(r *Reservation) *HoldCreatedEvent {
	ev := &HoldCreatedEvent{
		BaseEvent:     primitives.NewBaseEvent(),
		ReservationID: r.ID,
		ProductID:     r.ProductID,
		SessionID:     r.SessionID,
		Quantity:      r.Quantity,
		StartDate:     r.Dates.Start.Format(DateLayout),
		EndDate:       r.Dates.End.Format(DateLayout),
		CreatedAtUtc:  r.CreatedAtUtc,
	}
	if r.ExpiresAtUtc != nil {
		ev.ExpiresAtUtc = *r.ExpiresAtUtc
	}
	if r.PackageID != uuid.Nil {
		packageID := r.PackageID
		ev.PackageID = &packageID
	}
	ev.SetRoutingKey(EventHoldCreated)
	return ev
}

// HoldsChangedEvent reports a bulk transition of one owner's holds.
type HoldsChangedEvent struct {
	primitives.BaseEvent
	SessionID      string      `json:"sessionId,omitempty"`
	OrderID        *uuid.UUID  `json:"orderId,omitempty"`
	ReservationIDs []uuid.UUID `json:"reservationIds"`
	ProductIDs     []uuid.UUID `json:"productIds"`
	Reason         string      `json:"reason,omitempty"`
	OccurredAtUtc  time.Time   `json:"occurredAtUtc"`
}

func NewHoldsChangedEvent(kind, sessionID string, orderID uuid.UUID, refs []HoldRef, reason string) *HoldsChangedEvent {
	ev := &HoldsChangedEvent{
		BaseEvent:      primitives.NewBaseEvent(),
		SessionID:      sessionID,
		ReservationIDs: make([]uuid.UUID, 0, len(refs)),
		ProductIDs:     ProductIDsOf(refs),
		Reason:         reason,
		OccurredAtUtc:  time.Now().UTC(),
	}
	if orderID != uuid.Nil {
		ev.OrderID = &orderID
	}
	for _, ref := range refs {
		ev.ReservationIDs = append(ev.ReservationIDs, ref.ID)
	}
	ev.SetRoutingKey(kind)
	return ev
}

type HoldExtendedEvent struct {
	primitives.BaseEvent
	ReservationID uuid.UUID `json:"reservationId"`
	ProductID     uuid.UUID `json:"productId"`
	ExpiresAtUtc  time.Time `json:"expiresAtUtc"`
}

func NewHoldExtendedEvent(r *Reservation) *HoldExtendedEvent {
	ev := &HoldExtendedEvent{
		BaseEvent:     primitives.NewBaseEvent(),
		ReservationID: r.ID,
		ProductID:     r.ProductID,
	}
	if r.ExpiresAtUtc != nil {
		ev.ExpiresAtUtc = *r.ExpiresAtUtc
	}
	ev.SetRoutingKey(EventHoldExtended)
	return ev
}

// ProductIDsOf returns the distinct products of refs in first-seen order.
func ProductIDsOf(refs []HoldRef) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(refs))
	ids := make([]uuid.UUID, 0, len(refs))
	for _, ref := range refs {
		if _, ok := seen[ref.ProductID]; ok {
			continue
		}
		seen[ref.ProductID] = struct{}{}
		ids = append(ids, ref.ProductID)
	}
	return ids
}
