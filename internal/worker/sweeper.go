package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/clock"
	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/domain"
)

type ExpiredLister interface {
	ListingsWithExpiredReservations(ctx context.Context, now time.Time, limit int) ([]string, error)
}

type Purger interface {
	PurgeExpired(ctx context.Context, listingID string) (int, error)
}

// Sweeper is the safety net behind the lazy purge: it finds listings whose
// holds lapsed with no buyer traffic to trigger a purge, so abandoned stock
// becomes visible again on its own. Correctness never depends on its
// timing; every ledger operation purges on access anyway.
type Sweeper struct {
	lister   ExpiredLister
	purger   Purger
	clock    clock.Clock
	logger   zerolog.Logger
	interval time.Duration
	batch    int
}

func NewSweeper(lister ExpiredLister, purger Purger, clk clock.Clock, logger zerolog.Logger, interval time.Duration, batch int) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batch <= 0 {
		batch = 100
	}
	return &Sweeper{
		lister:   lister,
		purger:   purger,
		clock:    clk,
		logger:   logger,
		interval: interval,
		batch:    batch,
	}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("expiry sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("expiry sweeper stopped")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// Sweep purges one batch of listings with lapsed holds.
func (s *Sweeper) Sweep(ctx context.Context) error {
	ids, err := s.lister.ListingsWithExpiredReservations(ctx, s.clock.Now(), s.batch)
	if err != nil {
		return err
	}

	for _, id := range ids {
		purged, err := s.purger.PurgeExpired(ctx, id)
		if err != nil {
			// Contention means buyer traffic is already purging this
			// listing; the next tick picks up anything left.
			if errors.Is(err, domain.ErrContention) {
				continue
			}
			s.logger.Error().Err(err).Str("listing_id", id).Msg("purge failed")
			continue
		}
		if purged > 0 {
			s.logger.Debug().Str("listing_id", id).Int("purged", purged).Msg("expired holds swept")
		}
	}
	return nil
}
