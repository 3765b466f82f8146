package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/domain"
)

const outboxColumns = `seq, id, type, payload_json, occurred_at_utc, retry_count, processed_at_utc`

// PgOutboxRepository stores hold events next to the reservation rows they
// describe. seq is an identity column, so events written by one hold
// transaction publish in the order they were enqueued.
type PgOutboxRepository struct {
	q querier
}

func NewPgOutboxRepository(db *sql.DB) *PgOutboxRepository {
	return &PgOutboxRepository{q: db}
}

func (r *PgOutboxRepository) Insert(
	ctx context.Context,
	msg domain.OutboxMessage,
) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.OccurredAtUtc.IsZero() {
		msg.OccurredAtUtc = time.Now().UTC()
	}

	q := `
        insert into outbox_messages (id, type, payload_json, occurred_at_utc, retry_count)
        values ($1,$2,$3,$4,$5)
    `
	_, err := r.q.ExecContext(
		ctx, q,
		msg.ID,
		msg.Type,
		msg.PayloadJSON,
		msg.OccurredAtUtc.UTC(),
		msg.RetryCount,
	)
	return err
}

// GetPendingBatch returns unpublished events below maxRetry in seq order.
func (r *PgOutboxRepository) GetPendingBatch(
	ctx context.Context,
	maxRetry, batchSize int,
) ([]domain.OutboxMessage, error) {
	q := `select ` + outboxColumns + `
        from outbox_messages
        where processed_at_utc is null
          and retry_count < $1
        order by seq asc
        limit $2
    `
	rows, err := r.q.QueryContext(ctx, q, maxRetry, batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.OutboxMessage{}
	for rows.Next() {
		msg, err := scanOutboxMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

// Save records a publish attempt. A published event keeps its first
// processed_at_utc.
func (r *PgOutboxRepository) Save(
	ctx context.Context,
	msg domain.OutboxMessage,
) error {
	if msg.ID == uuid.Nil {
		return errors.New("outbox message id is empty")
	}

	q := `
        update outbox_messages
        set retry_count = $2,
            processed_at_utc = coalesce(processed_at_utc, $3::timestamptz)
        where id = $1
    `
	_, err := r.q.ExecContext(
		ctx, q,
		msg.ID,
		msg.RetryCount,
		nullTime(msg.ProcessedAtUtc),
	)
	return err
}

func scanOutboxMessage(row rowScanner) (domain.OutboxMessage, error) {
	var (
		msg         domain.OutboxMessage
		processedAt sql.NullTime
	)
	if err := row.Scan(
		&msg.Seq,
		&msg.ID,
		&msg.Type,
		&msg.PayloadJSON,
		&msg.OccurredAtUtc,
		&msg.RetryCount,
		&processedAt,
	); err != nil {
		return domain.OutboxMessage{}, err
	}
	msg.OccurredAtUtc = msg.OccurredAtUtc.UTC()
	msg.ProcessedAtUtc = timePtr(processedAt)
	return msg, nil
}
