package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/domain"
)

const reservationColumns = `
        id, product_id, package_id, session_id, order_id, quantity, start_date, end_date,
        state, expires_at_utc, created_at_utc, released_at_utc, completed_at_utc
`

// releasedState moves both counting states to their released counterpart.
const releasedState = `case state when 'SOFT_PENDING' then 'SOFT_RELEASED' else 'HARD_RELEASED' end`

type PgReservationRepository struct {
	q querier
}

func NewPgReservationRepository(db *sql.DB) *PgReservationRepository {
	return &PgReservationRepository{q: db}
}

func (r *PgReservationRepository) Insert(
	ctx context.Context,
	res *domain.Reservation,
) error {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	if res.CreatedAtUtc.IsZero() {
		res.CreatedAtUtc = time.Now().UTC()
	}

	q := `
        insert into rental_reservations
        (id, product_id, package_id, session_id, order_id, quantity, start_date, end_date,
         state, expires_at_utc, created_at_utc, released_at_utc, completed_at_utc)
        values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
    `
	_, err := r.q.ExecContext(
		ctx, q,
		res.ID,
		res.ProductID,
		nullUUID(res.PackageID),
		nullString(res.SessionID),
		nullUUID(res.OrderID),
		res.Quantity,
		res.Dates.Start,
		res.Dates.End,
		string(res.State),
		nullTime(res.ExpiresAtUtc),
		res.CreatedAtUtc,
		nullTime(res.ReleasedAtUtc),
		nullTime(res.CompletedAtUtc),
	)
	return err
}

func (r *PgReservationRepository) GetByID(
	ctx context.Context,
	id uuid.UUID,
) (*domain.Reservation, error) {
	q := `select ` + reservationColumns + ` from rental_reservations where id = $1`
	res, err := scanReservation(r.q.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("reservation %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return res, nil
}

func (r *PgReservationRepository) ListBySession(
	ctx context.Context,
	sessionID string,
) ([]*domain.Reservation, error) {
	q := `select ` + reservationColumns + `
        from rental_reservations
        where session_id = $1
        order by created_at_utc asc, id asc
    `
	return r.list(ctx, q, sessionID)
}

func (r *PgReservationRepository) ListByOrder(
	ctx context.Context,
	orderID uuid.UUID,
) ([]*domain.Reservation, error) {
	q := `select ` + reservationColumns + `
        from rental_reservations
        where order_id = $1
        order by created_at_utc asc, id asc
    `
	return r.list(ctx, q, orderID)
}

func (r *PgReservationRepository) ReservedQuantity(
	ctx context.Context,
	productID uuid.UUID,
	window domain.DateRange,
	turnaroundDays int,
	excludeSessionID string,
) (int, error) {
	q := `
        select coalesce(sum(quantity), 0)
        from rental_reservations
        where product_id = $1
          and state in ('SOFT_PENDING', 'HARD_ACTIVE')
          and start_date <= $3::date
          and end_date + $4::int >= $2::date
          and ($5::text = '' or session_id is distinct from $5::text)
    `
	var total int
	err := r.q.QueryRowContext(
		ctx, q,
		productID,
		window.Start,
		window.End,
		turnaroundDays,
		excludeSessionID,
	).Scan(&total)
	return total, err
}

func (r *PgReservationRepository) PromoteSession(
	ctx context.Context,
	sessionID string,
	orderID uuid.UUID,
) ([]domain.HoldRef, error) {
	q := `
        update rental_reservations
        set state = 'HARD_ACTIVE',
            order_id = $2,
            session_id = null,
            expires_at_utc = null
        where session_id = $1
          and state = 'SOFT_PENDING'
        returning id, product_id
    `
	return r.transition(ctx, q, sessionID, orderID)
}

func (r *PgReservationRepository) AttachSessionToOrder(
	ctx context.Context,
	sessionID string,
	orderID uuid.UUID,
	until time.Time,
) ([]domain.HoldRef, error) {
	q := `
        update rental_reservations
        set order_id = $2,
            session_id = null,
            expires_at_utc = greatest(expires_at_utc, $3)
        where session_id = $1
          and state = 'SOFT_PENDING'
        returning id, product_id
    `
	return r.transition(ctx, q, sessionID, orderID, until.UTC())
}

func (r *PgReservationRepository) PromoteOrder(
	ctx context.Context,
	orderID uuid.UUID,
) ([]domain.HoldRef, error) {
	q := `
        update rental_reservations
        set state = 'HARD_ACTIVE',
            expires_at_utc = null
        where order_id = $1
          and state = 'SOFT_PENDING'
        returning id, product_id
    `
	return r.transition(ctx, q, orderID)
}

func (r *PgReservationRepository) ReleaseBySession(
	ctx context.Context,
	sessionID string,
	now time.Time,
) ([]domain.HoldRef, error) {
	q := `
        update rental_reservations
        set state = ` + releasedState + `,
            expires_at_utc = null,
            released_at_utc = $2
        where session_id = $1
          and state in ('SOFT_PENDING', 'HARD_ACTIVE')
        returning id, product_id
    `
	return r.transition(ctx, q, sessionID, now.UTC())
}

func (r *PgReservationRepository) ReleaseByOrder(
	ctx context.Context,
	orderID uuid.UUID,
	now time.Time,
) ([]domain.HoldRef, error) {
	q := `
        update rental_reservations
        set state = ` + releasedState + `,
            expires_at_utc = null,
            released_at_utc = $2
        where order_id = $1
          and state in ('SOFT_PENDING', 'HARD_ACTIVE')
        returning id, product_id
    `
	return r.transition(ctx, q, orderID, now.UTC())
}

func (r *PgReservationRepository) CompleteByOrder(
	ctx context.Context,
	orderID uuid.UUID,
	now time.Time,
) ([]domain.HoldRef, error) {
	q := `
        update rental_reservations
        set state = 'HARD_COMPLETED',
            completed_at_utc = $2
        where order_id = $1
          and state = 'HARD_ACTIVE'
        returning id, product_id
    `
	return r.transition(ctx, q, orderID, now.UTC())
}

func (r *PgReservationRepository) ReleaseSessionWindow(
	ctx context.Context,
	line domain.HoldLine,
	now time.Time,
) ([]domain.HoldRef, error) {
	q := `
        update rental_reservations
        set state = 'SOFT_RELEASED',
            expires_at_utc = null,
            released_at_utc = $6
        where session_id = $1
          and package_id is not distinct from $2
          and product_id = $3
          and start_date = $4::date
          and end_date = $5::date
          and state = 'SOFT_PENDING'
        returning id, product_id
    `
	return r.transition(ctx, q,
		line.SessionID, nullUUID(line.PackageID), line.ProductID, line.Dates.Start, line.Dates.End, now.UTC())
}

func (r *PgReservationRepository) ExtendSoftHold(
	ctx context.Context,
	id uuid.UUID,
	until time.Time,
) (bool, error) {
	q := `
        update rental_reservations
        set expires_at_utc = greatest(expires_at_utc, $2)
        where id = $1
          and state = 'SOFT_PENDING'
    `
	return r.affected(ctx, q, id, until.UTC())
}

func (r *PgReservationRepository) FindExpiredSoft(
	ctx context.Context,
	now time.Time,
	after *domain.ExpiryCursor,
	limit int,
) ([]*domain.Reservation, error) {
	if after == nil {
		q := `select ` + reservationColumns + `
            from rental_reservations
            where state = 'SOFT_PENDING'
              and expires_at_utc < $1
            order by expires_at_utc asc, id asc
            limit $2
        `
		return r.list(ctx, q, now.UTC(), limit)
	}

	q := `select ` + reservationColumns + `
        from rental_reservations
        where state = 'SOFT_PENDING'
          and expires_at_utc < $1
          and (expires_at_utc, id) > ($2, $3)
        order by expires_at_utc asc, id asc
        limit $4
    `
	return r.list(ctx, q, now.UTC(), after.ExpiresAtUtc.UTC(), after.ID, limit)
}

func (r *PgReservationRepository) ExpireSoftHold(
	ctx context.Context,
	id uuid.UUID,
	now time.Time,
) (bool, error) {
	q := `
        update rental_reservations
        set state = 'SOFT_RELEASED',
            expires_at_utc = null,
            released_at_utc = $2
        where id = $1
          and state = 'SOFT_PENDING'
          and expires_at_utc < $2
    `
	return r.affected(ctx, q, id, now.UTC())
}

func (r *PgReservationRepository) list(ctx context.Context, q string, args ...any) ([]*domain.Reservation, error) {
	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*domain.Reservation{}
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, res)
	}
	return result, rows.Err()
}

func (r *PgReservationRepository) transition(ctx context.Context, q string, args ...any) ([]domain.HoldRef, error) {
	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := []domain.HoldRef{}
	for rows.Next() {
		var ref domain.HoldRef
		if err := rows.Scan(&ref.ID, &ref.ProductID); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (r *PgReservationRepository) affected(ctx context.Context, q string, args ...any) (bool, error) {
	result, err := r.q.ExecContext(ctx, q, args...)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*domain.Reservation, error) {
	var (
		res         domain.Reservation
		packageID   uuid.NullUUID
		sessionID   sql.NullString
		orderID     uuid.NullUUID
		state       string
		expiresAt   sql.NullTime
		releasedAt  sql.NullTime
		completedAt sql.NullTime
	)
	if err := row.Scan(
		&res.ID,
		&res.ProductID,
		&packageID,
		&sessionID,
		&orderID,
		&res.Quantity,
		&res.Dates.Start,
		&res.Dates.End,
		&state,
		&expiresAt,
		&res.CreatedAtUtc,
		&releasedAt,
		&completedAt,
	); err != nil {
		return nil, err
	}

	st, err := domain.ParseHoldState(state)
	if err != nil {
		return nil, err
	}
	res.State = st
	res.SessionID = sessionID.String
	if orderID.Valid {
		res.OrderID = orderID.UUID
	}
	if packageID.Valid {
		res.PackageID = packageID.UUID
	}
	res.Dates.Start = domain.TruncateDay(res.Dates.Start)
	res.Dates.End = domain.TruncateDay(res.Dates.End)
	res.CreatedAtUtc = res.CreatedAtUtc.UTC()
	res.ExpiresAtUtc = timePtr(expiresAt)
	res.ReleasedAtUtc = timePtr(releasedAt)
	res.CompletedAtUtc = timePtr(completedAt)
	return &res, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullUUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
