package db

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/domain"
)

// querier is what repositories need from either *sql.DB or *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TransactionScope runs units of work in Postgres transactions. Locked
// units take a row lock on each product's stock row, so two hold
// creations for the same product run one after the other.
type TransactionScope struct {
	db          *sql.DB
	lockTimeout time.Duration
}

func NewTransactionScope(db *sql.DB, lockTimeout time.Duration) *TransactionScope {
	return &TransactionScope{db: db, lockTimeout: lockTimeout}
}

func (s *TransactionScope) Execute(ctx context.Context, fn domain.UnitOfWork) error {
	return s.run(ctx, nil, nil, fn)
}

func (s *TransactionScope) ExecuteLocked(ctx context.Context, productIDs []uuid.UUID, fn domain.UnitOfWork) error {
	ids := slices.Clone(productIDs)
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return slices.Compare(a[:], b[:]) })
	return s.run(ctx, nil, slices.Compact(ids), fn)
}

func (s *TransactionScope) Query(ctx context.Context, fn domain.UnitOfWork) error {
	return s.run(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, nil, fn)
}

// Outbox returns an outbox repository outside any unit of work, for the dispatcher.
func (s *TransactionScope) Outbox() domain.OutboxRepository {
	return NewPgOutboxRepository(s.db)
}

func (s *TransactionScope) run(ctx context.Context, opts *sql.TxOptions, lockIDs []uuid.UUID, fn domain.UnitOfWork) (err error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", translateError(err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if len(lockIDs) > 0 {
		if err = s.lockProducts(ctx, tx, lockIDs); err != nil {
			return translateError(err)
		}
	}

	if err = fn(ctx, &repositories{q: tx}); err != nil {
		return translateError(err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", translateError(err))
	}
	return nil
}

// lockProducts locks in the given order; callers pass ids sorted so
// concurrent transactions cannot deadlock on each other.
func (s *TransactionScope) lockProducts(ctx context.Context, tx *sql.Tx, ids []uuid.UUID) error {
	if s.lockTimeout > 0 {
		timeout := fmt.Sprintf("%dms", s.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, `select set_config('lock_timeout', $1, true)`, timeout); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}

	q := `
        select product_id
        from rental_stock_items
        where product_id = $1
        for update
    `
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("lock product %s: %w", id, err)
		}
	}
	return nil
}

type repositories struct {
	q querier
}

func (r *repositories) Stock() domain.StockItemRepository {
	return &PgStockItemRepository{q: r.q}
}

func (r *repositories) Reservations() domain.ReservationRepository {
	return &PgReservationRepository{q: r.q}
}

func (r *repositories) Packages() domain.PackageRepository {
	return &PgPackageRepository{q: r.q}
}

func (r *repositories) Outbox() domain.OutboxRepository {
	return &PgOutboxRepository{q: r.q}
}
