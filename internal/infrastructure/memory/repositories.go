package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/domain"
)

var errReadOnly = errors.New("memory store: write inside read-only query")

type stockRepo struct {
	data     *snapshot
	readOnly bool
}

func (r *stockRepo) GetByID(_ context.Context, productID uuid.UUID) (*domain.StockItem, error) {
	item, ok := r.data.stock[productID]
	if !ok {
		return nil, fmt.Errorf("stock item %s: %w", productID, domain.ErrNotFound)
	}
	return &item, nil
}

func (r *stockRepo) Upsert(_ context.Context, item *domain.StockItem) error {
	if r.readOnly {
		return errReadOnly
	}
	r.data.stock[item.ProductID] = *item
	return nil
}

type packageRepo struct {
	data     *snapshot
	readOnly bool
}

func (r *packageRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Package, error) {
	p, ok := r.data.packages[id]
	if !ok {
		return nil, fmt.Errorf("package %s: %w", id, domain.ErrNotFound)
	}
	p.Components = append([]domain.PackageComponent(nil), p.Components...)
	return &p, nil
}

func (r *packageRepo) Upsert(_ context.Context, p *domain.Package) error {
	if r.readOnly {
		return errReadOnly
	}
	stored := *p
	stored.Components = append([]domain.PackageComponent(nil), p.Components...)
	r.data.packages[p.ID] = stored
	return nil
}

type reservationRepo struct {
	data     *snapshot
	readOnly bool
}

func (r *reservationRepo) Insert(_ context.Context, res *domain.Reservation) error {
	if r.readOnly {
		return errReadOnly
	}
	if _, exists := r.data.reservations[res.ID]; exists {
		return fmt.Errorf("reservation %s already exists", res.ID)
	}
	r.data.reservations[res.ID] = *res
	return nil
}

func (r *reservationRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Reservation, error) {
	res, ok := r.data.reservations[id]
	if !ok {
		return nil, fmt.Errorf("reservation %s: %w", id, domain.ErrNotFound)
	}
	return &res, nil
}

func (r *reservationRepo) ListBySession(_ context.Context, sessionID string) ([]*domain.Reservation, error) {
	return r.list(func(res *domain.Reservation) bool { return res.SessionID == sessionID }), nil
}

func (r *reservationRepo) ListByOrder(_ context.Context, orderID uuid.UUID) ([]*domain.Reservation, error) {
	return r.list(func(res *domain.Reservation) bool { return res.OrderID == orderID }), nil
}

func (r *reservationRepo) ReservedQuantity(_ context.Context, productID uuid.UUID, window domain.DateRange, turnaroundDays int, excludeSessionID string) (int, error) {
	total := 0
	for _, res := range r.data.reservations {
		if res.ProductID != productID {
			continue
		}
		if excludeSessionID != "" && res.SessionID == excludeSessionID {
			continue
		}
		if res.Blocks(window, turnaroundDays) {
			total += res.Quantity
		}
	}
	return total, nil
}

func (r *reservationRepo) PromoteSession(_ context.Context, sessionID string, orderID uuid.UUID) ([]domain.HoldRef, error) {
	return r.transition(
		func(res *domain.Reservation) bool { return res.SessionID == sessionID },
		func(res *domain.Reservation) bool { return res.Promote(orderID) == nil },
	)
}

func (r *reservationRepo) AttachSessionToOrder(_ context.Context, sessionID string, orderID uuid.UUID, until time.Time) ([]domain.HoldRef, error) {
	return r.transition(
		func(res *domain.Reservation) bool { return res.SessionID == sessionID },
		func(res *domain.Reservation) bool { return res.AttachToOrder(orderID, until) == nil },
	)
}

func (r *reservationRepo) PromoteOrder(_ context.Context, orderID uuid.UUID) ([]domain.HoldRef, error) {
	return r.transition(
		func(res *domain.Reservation) bool { return res.OrderID == orderID },
		func(res *domain.Reservation) bool { return res.Promote(orderID) == nil },
	)
}

func (r *reservationRepo) ReleaseBySession(_ context.Context, sessionID string, now time.Time) ([]domain.HoldRef, error) {
	return r.transition(
		func(res *domain.Reservation) bool { return res.SessionID == sessionID },
		func(res *domain.Reservation) bool { return res.Release(now) },
	)
}

func (r *reservationRepo) ReleaseByOrder(_ context.Context, orderID uuid.UUID, now time.Time) ([]domain.HoldRef, error) {
	return r.transition(
		func(res *domain.Reservation) bool { return res.OrderID == orderID },
		func(res *domain.Reservation) bool { return res.Release(now) },
	)
}

func (r *reservationRepo) CompleteByOrder(_ context.Context, orderID uuid.UUID, now time.Time) ([]domain.HoldRef, error) {
	return r.transition(
		func(res *domain.Reservation) bool { return res.OrderID == orderID },
		func(res *domain.Reservation) bool { return res.Complete(now) },
	)
}

func (r *reservationRepo) ReleaseSessionWindow(_ context.Context, line domain.HoldLine, now time.Time) ([]domain.HoldRef, error) {
	return r.transition(
		func(res *domain.Reservation) bool { return res.OnLine(line) },
		func(res *domain.Reservation) bool { return res.Release(now) },
	)
}

func (r *reservationRepo) ExtendSoftHold(_ context.Context, id uuid.UUID, until time.Time) (bool, error) {
	if r.readOnly {
		return false, errReadOnly
	}
	res, ok := r.data.reservations[id]
	if !ok {
		return false, nil
	}
	if err := res.Extend(until); err != nil {
		return false, nil
	}
	r.data.reservations[id] = res
	return true, nil
}

func (r *reservationRepo) FindExpiredSoft(_ context.Context, now time.Time, after *domain.ExpiryCursor, limit int) ([]*domain.Reservation, error) {
	expired := r.list(func(res *domain.Reservation) bool { return res.IsExpired(now) && res.After(after) })
	sort.Slice(expired, func(i, j int) bool {
		return expired[j].After(&domain.ExpiryCursor{ExpiresAtUtc: *expired[i].ExpiresAtUtc, ID: expired[i].ID})
	})
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

func (r *reservationRepo) ExpireSoftHold(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	if r.readOnly {
		return false, errReadOnly
	}
	res, ok := r.data.reservations[id]
	if !ok || !res.IsExpired(now) {
		return false, nil
	}
	res.Release(now)
	r.data.reservations[id] = res
	return true, nil
}

// list returns copies ordered by creation time.
func (r *reservationRepo) list(match func(*domain.Reservation) bool) []*domain.Reservation {
	out := []*domain.Reservation{}
	for _, res := range r.data.reservations {
		if match(&res) {
			out = append(out, &res)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAtUtc.Equal(out[j].CreatedAtUtc) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAtUtc.Before(out[j].CreatedAtUtc)
	})
	return out
}

// transition applies apply to every matching hold and keeps the ones it changed.
func (r *reservationRepo) transition(match, apply func(*domain.Reservation) bool) ([]domain.HoldRef, error) {
	if r.readOnly {
		return nil, errReadOnly
	}
	refs := []domain.HoldRef{}
	for _, res := range r.list(match) {
		if !apply(res) {
			continue
		}
		r.data.reservations[res.ID] = *res
		refs = append(refs, res.Ref())
	}
	return refs, nil
}

type outboxRepo struct {
	data     *snapshot
	readOnly bool
}

func (r *outboxRepo) Insert(_ context.Context, msg domain.OutboxMessage) error {
	if r.readOnly {
		return errReadOnly
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.OccurredAtUtc.IsZero() {
		msg.OccurredAtUtc = time.Now().UTC()
	}
	if _, exists := r.data.outbox[msg.ID]; exists {
		return fmt.Errorf("outbox message %s already exists", msg.ID)
	}
	msg.Seq = int64(len(r.data.outboxOrder)) + 1
	r.data.outboxOrder = append(r.data.outboxOrder, msg.ID)
	r.data.outbox[msg.ID] = msg
	return nil
}

func (r *outboxRepo) GetPendingBatch(_ context.Context, maxRetry, batchSize int) ([]domain.OutboxMessage, error) {
	var result []domain.OutboxMessage
	for _, id := range r.data.outboxOrder {
		msg := r.data.outbox[id]
		if msg.ProcessedAtUtc != nil || msg.RetryCount >= maxRetry {
			continue
		}
		result = append(result, msg)
		if len(result) == batchSize {
			break
		}
	}
	return result, nil
}

func (r *outboxRepo) Save(_ context.Context, msg domain.OutboxMessage) error {
	if r.readOnly {
		return errReadOnly
	}
	if msg.ID == uuid.Nil {
		return errors.New("outbox message id is empty")
	}
	current, ok := r.data.outbox[msg.ID]
	if !ok {
		return fmt.Errorf("outbox message %s: %w", msg.ID, domain.ErrNotFound)
	}
	current.RetryCount = msg.RetryCount
	if current.ProcessedAtUtc == nil && msg.ProcessedAtUtc != nil {
		at := msg.ProcessedAtUtc.UTC()
		current.ProcessedAtUtc = &at
	}
	r.data.outbox[msg.ID] = current
	return nil
}
