package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type StockItemRepository interface {
	// GetByID returns ErrNotFound when the product is unknown.
	GetByID(ctx context.Context, productID uuid.UUID) (*StockItem, error)
	Upsert(ctx context.Context, item *StockItem) error
}

// ReservationRepository is the reservation ledger. Bulk transitions are
// guarded by the source state, so repeating one affects no rows, and they
// return the holds they changed.
type ReservationRepository interface {
	Insert(ctx context.Context, r *Reservation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Reservation, error)
	ListBySession(ctx context.Context, sessionID string) ([]*Reservation, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*Reservation, error)

	// ReservedQuantity sums counting holds of productID that keep a unit
	// busy during window, each hold extended by turnaroundDays.
	ReservedQuantity(ctx context.Context, productID uuid.UUID, window DateRange, turnaroundDays int, excludeSessionID string) (int, error)

	PromoteSession(ctx context.Context, sessionID string, orderID uuid.UUID) ([]HoldRef, error)
	AttachSessionToOrder(ctx context.Context, sessionID string, orderID uuid.UUID, until time.Time) ([]HoldRef, error)
	PromoteOrder(ctx context.Context, orderID uuid.UUID) ([]HoldRef, error)
	ReleaseBySession(ctx context.Context, sessionID string, now time.Time) ([]HoldRef, error)
	ReleaseByOrder(ctx context.Context, orderID uuid.UUID, now time.Time) ([]HoldRef, error)
	CompleteByOrder(ctx context.Context, orderID uuid.UUID, now time.Time) ([]HoldRef, error)
	// ReleaseSessionWindow releases the session's pending holds on exactly
	// this line. Holds of other packages or of standalone lines stay.
	ReleaseSessionWindow(ctx context.Context, line HoldLine, now time.Time) ([]HoldRef, error)

	// ExtendSoftHold reports false when the hold is not SOFT_PENDING.
	ExtendSoftHold(ctx context.Context, id uuid.UUID, until time.Time) (bool, error)

	// FindExpiredSoft pages expired pending holds in (ExpiresAtUtc, ID)
	// order, starting strictly after the cursor when one is given.
	FindExpiredSoft(ctx context.Context, now time.Time, after *ExpiryCursor, limit int) ([]*Reservation, error)
	// ExpireSoftHold reports false when the hold was no longer pending and expired.
	ExpireSoftHold(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
}

type PackageRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Package, error)
	Upsert(ctx context.Context, p *Package) error
}

type OutboxRepository interface {
	Insert(ctx context.Context, msg OutboxMessage) error
	GetPendingBatch(ctx context.Context, maxRetry, batchSize int) ([]OutboxMessage, error)
	Save(ctx context.Context, msg OutboxMessage) error
}

// OutboxMessage is one event waiting to be published. Seq is assigned by
// the store on insert and fixes publish order, ties on OccurredAtUtc
// included.
type OutboxMessage struct {
	ID             uuid.UUID
	Seq            int64
	Type           string
	PayloadJSON    string
	OccurredAtUtc  time.Time
	RetryCount     int
	ProcessedAtUtc *time.Time
}

// Repositories is the set of repositories bound to one unit of work.
type Repositories interface {
	Stock() StockItemRepository
	Reservations() ReservationRepository
	Packages() PackageRepository
	Outbox() OutboxRepository
}

type UnitOfWork func(ctx context.Context, repos Repositories) error

type TransactionScope interface {
	// Execute runs fn in one transaction; it commits only when fn returns nil.
	Execute(ctx context.Context, fn UnitOfWork) error
	// ExecuteLocked is Execute holding an exclusive lock on every listed
	// product for the whole transaction. Locks are taken in ascending id order.
	ExecuteLocked(ctx context.Context, productIDs []uuid.UUID, fn UnitOfWork) error
	// Query runs fn against a consistent read-only view.
	Query(ctx context.Context, fn UnitOfWork) error
}
