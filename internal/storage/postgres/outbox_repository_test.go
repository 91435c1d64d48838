package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/events"
	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/testutil"
)

func TestOutboxRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	listings := NewListingRepository(pool)
	outbox := NewOutboxRepository(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	appendEvent := func(ctx context.Context, eventType string, at time.Time) events.Envelope {
		env, err := events.NewEnvelope(eventType, at, map[string]string{"listing_id": "l1"})
		if err != nil {
			t.Fatalf("build envelope: %v", err)
		}
		if err := listings.AppendEvent(ctx, env); err != nil {
			t.Fatalf("append event: %v", err)
		}
		return env
	}

	t.Run("GetPending returns rows oldest first", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		now := time.Now().UTC()

		first := appendEvent(ctx, events.TypeReservationCreated, now)
		second := appendEvent(ctx, events.TypeSaleConfirmed, now.Add(time.Second))

		pending, err := outbox.GetPending(ctx, 10)
		if err != nil {
			t.Fatalf("get pending: %v", err)
		}
		if len(pending) != 2 {
			t.Fatalf("expected 2 pending events, got %d", len(pending))
		}
		if pending[0].ID != first.ID || pending[1].ID != second.ID {
			t.Fatalf("expected insertion order, got %v then %v", pending[0].ID, pending[1].ID)
		}
		if pending[0].Type != events.TypeReservationCreated {
			t.Fatalf("unexpected type: %s", pending[0].Type)
		}
		var payload map[string]string
		if err := json.Unmarshal(pending[0].Payload, &payload); err != nil {
			t.Fatalf("payload not JSON: %v", err)
		}
		if payload["listing_id"] != "l1" {
			t.Fatalf("unexpected payload: %v", payload)
		}
	})

	t.Run("GetPending respects the limit", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		now := time.Now().UTC()

		appendEvent(ctx, events.TypeReservationCreated, now)
		appendEvent(ctx, events.TypeReservationReleased, now)
		appendEvent(ctx, events.TypeReservationExpired, now)

		pending, err := outbox.GetPending(ctx, 2)
		if err != nil {
			t.Fatalf("get pending: %v", err)
		}
		if len(pending) != 2 {
			t.Fatalf("expected limit of 2, got %d", len(pending))
		}
	})

	t.Run("MarkSent removes the row from the pending set", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		now := time.Now().UTC()

		env := appendEvent(ctx, events.TypeListingSoldOut, now)
		if err := outbox.MarkSent(ctx, env.ID); err != nil {
			t.Fatalf("mark sent: %v", err)
		}

		pending, err := outbox.GetPending(ctx, 10)
		if err != nil {
			t.Fatalf("get pending: %v", err)
		}
		if len(pending) != 0 {
			t.Fatalf("expected no pending events, got %d", len(pending))
		}

		var status string
		var sentAt *time.Time
		if err := pool.QueryRow(ctx, `SELECT status, sent_at FROM outbox_events WHERE id = $1`, env.ID).Scan(&status, &sentAt); err != nil {
			t.Fatalf("query row: %v", err)
		}
		if status != "sent" || sentAt == nil {
			t.Fatalf("expected sent with timestamp, got %s %v", status, sentAt)
		}
	})
}
