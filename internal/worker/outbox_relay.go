package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/eventbus"
	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/storage/postgres"
)

type OutboxSource interface {
	GetPending(ctx context.Context, limit int) ([]postgres.PendingEvent, error)
	MarkSent(ctx context.Context, id string) error
}

// OutboxRelay drains pending outbox rows to the broker. Publish-then-mark
// means a crash between the two can re-publish an event; consumers are
// expected to dedupe on event id.
type OutboxRelay struct {
	source    OutboxSource
	publisher eventbus.Publisher
	logger    zerolog.Logger
	interval  time.Duration
	batch     int
}

func NewOutboxRelay(source OutboxSource, publisher eventbus.Publisher, logger zerolog.Logger, interval time.Duration, batch int) *OutboxRelay {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &OutboxRelay{
		source:    source,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		batch:     batch,
	}
}

// Run blocks until ctx is cancelled.
func (w *OutboxRelay) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info().Dur("interval", w.interval).Msg("outbox relay started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("outbox relay stopped")
			return
		case <-ticker.C:
			if err := w.Drain(ctx); err != nil {
				w.logger.Error().Err(err).Msg("outbox drain failed")
			}
		}
	}
}

// Drain publishes one batch of pending events.
func (w *OutboxRelay) Drain(ctx context.Context) error {
	pending, err := w.source.GetPending(ctx, w.batch)
	if err != nil {
		return err
	}

	for _, ev := range pending {
		if err := w.publisher.Publish(ctx, ev.Type, ev.Payload); err != nil {
			w.logger.Error().Err(err).
				Str("event_id", ev.ID).
				Str("event_type", ev.Type).
				Msg("publish failed, will retry")
			continue
		}
		if err := w.source.MarkSent(ctx, ev.ID); err != nil {
			w.logger.Error().Err(err).Str("event_id", ev.ID).Msg("mark sent failed")
		}
	}
	return nil
}
