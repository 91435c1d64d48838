package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PendingEvent is an outbox row awaiting publication.
type PendingEvent struct {
	ID         string
	Type       string
	Payload    json.RawMessage
	OccurredAt time.Time
}

// OutboxRepository is the relay worker's view of the outbox. Rows are
// written by ListingRepository.AppendEvent inside ledger transactions.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

func (r *OutboxRepository) GetPending(ctx context.Context, limit int) ([]PendingEvent, error) {
	const query = `
SELECT id, event_type, payload, occurred_at
FROM outbox_events
WHERE status = 'pending'
ORDER BY created_at ASC
LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending events: %w", err)
	}
	defer rows.Close()

	var out []PendingEvent
	for rows.Next() {
		var ev PendingEvent
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.Payload, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan pending event: %w", err)
		}
		out = append(out, ev)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate pending events: %w", rows.Err())
	}
	return out, nil
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id string) error {
	const stmt = `UPDATE outbox_events SET status = 'sent', sent_at = NOW() WHERE id = $1`

	if _, err := r.pool.Exec(ctx, stmt, id); err != nil {
		return fmt.Errorf("mark event sent: %w", err)
	}
	return nil
}
