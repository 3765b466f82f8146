package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/google/uuid"

	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/domain"
)

// snapshot is one immutable version of the data set. A transaction works on
// a clone and the store swaps it in on commit.
type snapshot struct {
	stock        map[uuid.UUID]domain.StockItem
	reservations map[uuid.UUID]domain.Reservation
	packages     map[uuid.UUID]domain.Package
	outbox       map[uuid.UUID]domain.OutboxMessage
	outboxOrder  []uuid.UUID
}

func (s *snapshot) clone() *snapshot {
	return &snapshot{
		stock:        maps.Clone(s.stock),
		reservations: maps.Clone(s.reservations),
		packages:     maps.Clone(s.packages),
		outbox:       maps.Clone(s.outbox),
		outboxOrder:  append([]uuid.UUID(nil), s.outboxOrder...),
	}
}

// Store is an in-memory domain.TransactionScope. Write transactions are
// serialized, which satisfies the per-product locking contract of
// ExecuteLocked trivially.
type Store struct {
	mu    sync.RWMutex
	state *snapshot
}

func NewStore() *Store {
	return &Store{
		state: &snapshot{
			stock:        make(map[uuid.UUID]domain.StockItem),
			reservations: make(map[uuid.UUID]domain.Reservation),
			packages:     make(map[uuid.UUID]domain.Package),
			outbox:       make(map[uuid.UUID]domain.OutboxMessage),
		},
	}
}

func (s *Store) Execute(ctx context.Context, fn domain.UnitOfWork) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, &repositories{data: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) ExecuteLocked(ctx context.Context, _ []uuid.UUID, fn domain.UnitOfWork) error {
	return s.Execute(ctx, fn)
}

func (s *Store) Query(ctx context.Context, fn domain.UnitOfWork) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(ctx, &repositories{data: s.state, readOnly: true})
}

// Outbox returns an outbox repository that runs each call in its own
// transaction, for the dispatcher.
func (s *Store) Outbox() domain.OutboxRepository {
	return &autoOutbox{store: s}
}

type repositories struct {
	data     *snapshot
	readOnly bool
}

func (r *repositories) Stock() domain.StockItemRepository {
	return &stockRepo{data: r.data, readOnly: r.readOnly}
}

func (r *repositories) Reservations() domain.ReservationRepository {
	return &reservationRepo{data: r.data, readOnly: r.readOnly}
}

func (r *repositories) Packages() domain.PackageRepository {
	return &packageRepo{data: r.data, readOnly: r.readOnly}
}

func (r *repositories) Outbox() domain.OutboxRepository {
	return &outboxRepo{data: r.data, readOnly: r.readOnly}
}

type autoOutbox struct {
	store *Store
}

func (o *autoOutbox) Insert(ctx context.Context, msg domain.OutboxMessage) error {
	return o.store.Execute(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Outbox().Insert(ctx, msg)
	})
}

func (o *autoOutbox) GetPendingBatch(ctx context.Context, maxRetry, batchSize int) ([]domain.OutboxMessage, error) {
	var out []domain.OutboxMessage
	err := o.store.Query(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		out, err = repos.Outbox().GetPendingBatch(ctx, maxRetry, batchSize)
		return err
	})
	return out, err
}

func (o *autoOutbox) Save(ctx context.Context, msg domain.OutboxMessage) error {
	return o.store.Execute(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Outbox().Save(ctx, msg)
	})
}
