package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/clock"
	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/domain"
	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/events"
)

// LedgerRepository is the storage surface the ledger mutates. Reads inside
// WithTx see a consistent snapshot; UpdateListingGuarded is the conditional
// write that makes the whole read-check-write cycle atomic (it fails when
// another writer bumped the version first, and the transaction rolls back).
type LedgerRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetListing(ctx context.Context, listingID string) (domain.Listing, error)
	UpdateListingGuarded(ctx context.Context, listing domain.Listing, expectedVersion int64) (bool, error)
	InsertReservation(ctx context.Context, res domain.Reservation) error
	DeleteReservation(ctx context.Context, listingID, transactionID string) (bool, error)
	DeleteReservations(ctx context.Context, listingID string, transactionIDs []string) error
	AppendEvent(ctx context.Context, env events.Envelope) error
}

// errVersionConflict signals a lost CAS race; the operation retries from a
// fresh read. Never returned to callers.
var errVersionConflict = errors.New("listing version conflict")

const (
	defaultHoldTTL     = 60 * time.Minute
	defaultMaxAttempts = 5
)

type LedgerService struct {
	repo        LedgerRepository
	clock       clock.Clock
	logger      zerolog.Logger
	holdTTL     time.Duration
	maxAttempts int
}

func NewLedgerService(repo LedgerRepository, clk clock.Clock, logger zerolog.Logger, opts ...LedgerServiceOption) *LedgerService {
	svc := &LedgerService{
		repo:        repo,
		clock:       clk,
		logger:      logger,
		holdTTL:     defaultHoldTTL,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type LedgerServiceOption func(*LedgerService)

// WithHoldTTL overrides the default duration of new holds.
func WithHoldTTL(d time.Duration) LedgerServiceOption {
	return func(s *LedgerService) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

// WithMaxAttempts overrides the CAS retry budget.
func WithMaxAttempts(n int) LedgerServiceOption {
	return func(s *LedgerService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

type ReserveInput struct {
	ListingID     string
	TransactionID string
	Quantity      int
	// HoldFor overrides the service TTL when positive.
	HoldFor time.Duration
}

type ReserveResult struct {
	Reservation      domain.Reservation
	RealAvailability int
	// Created is false when the transaction already held a reservation of
	// the same quantity and the existing hold was returned instead.
	Created bool
}

func (s *LedgerService) Reserve(ctx context.Context, in ReserveInput) (ReserveResult, error) {
	if in.Quantity <= 0 {
		return ReserveResult{}, domain.ErrInvalidQuantity
	}
	if in.TransactionID == "" {
		return ReserveResult{}, domain.ErrTransactionIDRequired
	}
	ttl := s.holdTTL
	if in.HoldFor > 0 {
		ttl = in.HoldFor
	}

	var result ReserveResult
	err := s.withRetry(ctx, "reserve", func(txCtx context.Context) error {
		now := s.clock.Now()
		listing, err := s.repo.GetListing(txCtx, in.ListingID)
		if err != nil {
			return err
		}

		expired := expiredReservations(listing, now)

		if existing, ok := listing.ReservationFor(in.TransactionID); ok && !existing.Expired(now) {
			if existing.Quantity != in.Quantity {
				return domain.ErrReservationConflict
			}
			// Idempotent replay: hand back the existing hold. Committing the
			// purge here would be wasted work on the common path.
			result = ReserveResult{
				Reservation:      existing,
				RealAvailability: listing.RealAvailability(now),
				Created:          false,
			}
			return nil
		}

		if listing.Status.Moderated() {
			return domain.ErrListingUnavailable
		}

		real := listing.RealAvailability(now)
		if in.Quantity > real {
			return &domain.InsufficientStockError{Requested: in.Quantity, Available: real}
		}

		res := domain.Reservation{
			ListingID:     in.ListingID,
			TransactionID: in.TransactionID,
			Quantity:      in.Quantity,
			ExpiresAt:     now.Add(ttl),
			CreatedAt:     now,
		}

		if err := s.purge(txCtx, listing, expired, now); err != nil {
			return err
		}
		if err := s.repo.InsertReservation(txCtx, res); err != nil {
			// A concurrent reserve for the same transaction won the race;
			// retry from a fresh read so the replay branch can answer.
			if errors.Is(err, domain.ErrReservationConflict) {
				return errVersionConflict
			}
			return err
		}

		updated := listing
		updated.Reservations = replaceReservations(listing.Reservations, expired, &res, "")
		updated.Status = domain.ProjectStatus(listing.Status, updated.RealAvailability(now))
		if err := updated.CheckInvariants(now); err != nil {
			return fmt.Errorf("reserve broke invariants for listing %s: %w", listing.ID, err)
		}
		if err := s.commitListing(txCtx, updated, listing.Version, listing.Status, now); err != nil {
			return err
		}

		env, err := events.NewEnvelope(events.TypeReservationCreated, now, events.ReservationCreated{
			ListingID:     res.ListingID,
			TransactionID: res.TransactionID,
			Quantity:      res.Quantity,
			ExpiresAt:     res.ExpiresAt,
		})
		if err != nil {
			return err
		}
		if err := s.repo.AppendEvent(txCtx, env); err != nil {
			return err
		}

		result = ReserveResult{
			Reservation:      res,
			RealAvailability: updated.RealAvailability(now),
			Created:          true,
		}
		return nil
	})
	if err != nil {
		return ReserveResult{}, err
	}

	s.logger.Debug().
		Str("listing_id", in.ListingID).
		Str("transaction_id", in.TransactionID).
		Int("quantity", in.Quantity).
		Bool("created", result.Created).
		Msg("reservation placed")
	return result, nil
}

// Release removes the hold for the transaction. Releasing a transaction
// with no active hold is a no-op, not an error, so callers can retry freely.
func (s *LedgerService) Release(ctx context.Context, listingID, transactionID string) error {
	if transactionID == "" {
		return domain.ErrTransactionIDRequired
	}

	return s.withRetry(ctx, "release", func(txCtx context.Context) error {
		now := s.clock.Now()
		listing, err := s.repo.GetListing(txCtx, listingID)
		if err != nil {
			return err
		}

		expired := expiredReservations(listing, now)
		held, ok := listing.ReservationFor(transactionID)
		if !ok && len(expired) == 0 {
			return nil
		}

		if ok && !held.Expired(now) {
			if _, err := s.repo.DeleteReservation(txCtx, listingID, transactionID); err != nil {
				return err
			}
		}
		if err := s.purge(txCtx, listing, expired, now); err != nil {
			return err
		}

		updated := listing
		updated.Reservations = replaceReservations(listing.Reservations, expired, nil, transactionID)
		updated.Status = domain.ProjectStatus(listing.Status, updated.RealAvailability(now))
		if err := s.commitListing(txCtx, updated, listing.Version, listing.Status, now); err != nil {
			return err
		}

		if ok && !held.Expired(now) {
			env, err := events.NewEnvelope(events.TypeReservationReleased, now, events.ReservationReleased{
				ListingID:     listingID,
				TransactionID: transactionID,
				Quantity:      held.Quantity,
			})
			if err != nil {
				return err
			}
			if err := s.repo.AppendEvent(txCtx, env); err != nil {
				return err
			}
		}
		return nil
	})
}

type ConfirmInput struct {
	ListingID     string
	TransactionID string
	Quantity      int
}

type ConfirmResult struct {
	TotalSold         int
	AvailableQuantity int
}

// Confirm converts the hold into a permanent deduction. The quantity must
// match the held quantity exactly; partial confirmation is not supported.
func (s *LedgerService) Confirm(ctx context.Context, in ConfirmInput) (ConfirmResult, error) {
	if in.TransactionID == "" {
		return ConfirmResult{}, domain.ErrTransactionIDRequired
	}
	if in.Quantity <= 0 {
		return ConfirmResult{}, domain.ErrInvalidQuantity
	}

	var result ConfirmResult
	err := s.withRetry(ctx, "confirm", func(txCtx context.Context) error {
		now := s.clock.Now()
		listing, err := s.repo.GetListing(txCtx, in.ListingID)
		if err != nil {
			return err
		}

		held, ok := listing.ReservationFor(in.TransactionID)
		if !ok || held.Expired(now) {
			// The hold lapsed (or was already confirmed) before payment
			// completed; the caller reconciles out of band.
			return domain.ErrReservationNotFound
		}
		if held.Quantity != in.Quantity {
			return domain.ErrReservationConflict
		}

		expired := expiredReservations(listing, now)
		if _, err := s.repo.DeleteReservation(txCtx, in.ListingID, in.TransactionID); err != nil {
			return err
		}
		if err := s.purge(txCtx, listing, expired, now); err != nil {
			return err
		}

		updated := listing
		updated.Reservations = replaceReservations(listing.Reservations, expired, nil, in.TransactionID)
		updated.AvailableQuantity -= in.Quantity
		updated.TotalSold += in.Quantity
		updated.LastSaleAt = &now
		updated.Status = domain.ProjectStatus(listing.Status, updated.RealAvailability(now))
		if err := updated.CheckInvariants(now); err != nil {
			return fmt.Errorf("confirm broke invariants for listing %s: %w", listing.ID, err)
		}
		if err := s.commitListing(txCtx, updated, listing.Version, listing.Status, now); err != nil {
			return err
		}

		env, err := events.NewEnvelope(events.TypeSaleConfirmed, now, events.SaleConfirmed{
			ListingID:     in.ListingID,
			TransactionID: in.TransactionID,
			Quantity:      in.Quantity,
			TotalSold:     updated.TotalSold,
		})
		if err != nil {
			return err
		}
		if err := s.repo.AppendEvent(txCtx, env); err != nil {
			return err
		}

		result = ConfirmResult{
			TotalSold:         updated.TotalSold,
			AvailableQuantity: updated.AvailableQuantity,
		}
		return nil
	})
	if err != nil {
		return ConfirmResult{}, err
	}

	s.logger.Info().
		Str("listing_id", in.ListingID).
		Str("transaction_id", in.TransactionID).
		Int("quantity", in.Quantity).
		Int("total_sold", result.TotalSold).
		Msg("sale confirmed")
	return result, nil
}

// PurgeExpired removes every lapsed hold on the listing and restores its
// quantity to availability. Safe to run standalone; a no-op when nothing
// has expired.
func (s *LedgerService) PurgeExpired(ctx context.Context, listingID string) (int, error) {
	purged := 0
	err := s.withRetry(ctx, "purge", func(txCtx context.Context) error {
		now := s.clock.Now()
		listing, err := s.repo.GetListing(txCtx, listingID)
		if err != nil {
			return err
		}

		expired := expiredReservations(listing, now)
		purged = len(expired)
		if purged == 0 {
			return nil
		}

		if err := s.purge(txCtx, listing, expired, now); err != nil {
			return err
		}
		updated := listing
		updated.Reservations = replaceReservations(listing.Reservations, expired, nil, "")
		updated.Status = domain.ProjectStatus(listing.Status, updated.RealAvailability(now))
		return s.commitListing(txCtx, updated, listing.Version, listing.Status, now)
	})
	if err != nil {
		return 0, err
	}
	return purged, nil
}

func (s *LedgerService) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := s.repo.WithTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errVersionConflict) {
			return err
		}
		s.logger.Debug().Str("op", op).Int("attempt", attempt).Msg("lost version race, retrying")
	}
	return domain.ErrContention
}

// purge deletes the expired reservation rows and records an expiry event
// per hold, all inside the caller's transaction.
func (s *LedgerService) purge(ctx context.Context, listing domain.Listing, expired []domain.Reservation, now time.Time) error {
	if len(expired) == 0 {
		return nil
	}
	ids := make([]string, 0, len(expired))
	for _, r := range expired {
		ids = append(ids, r.TransactionID)
	}
	if err := s.repo.DeleteReservations(ctx, listing.ID, ids); err != nil {
		return err
	}
	for _, r := range expired {
		env, err := events.NewEnvelope(events.TypeReservationExpired, now, events.ReservationExpired{
			ListingID:     r.ListingID,
			TransactionID: r.TransactionID,
			Quantity:      r.Quantity,
			ExpiredAt:     r.ExpiresAt,
		})
		if err != nil {
			return err
		}
		if err := s.repo.AppendEvent(ctx, env); err != nil {
			return err
		}
	}
	return nil
}

// commitListing performs the guarded write and records a status-transition
// event when the projector flipped the listing between active and sold_out.
func (s *LedgerService) commitListing(ctx context.Context, updated domain.Listing, expectedVersion int64, oldStatus domain.ListingStatus, now time.Time) error {
	updated.Version = expectedVersion + 1
	updated.UpdatedAt = now
	ok, err := s.repo.UpdateListingGuarded(ctx, updated, expectedVersion)
	if err != nil {
		return err
	}
	if !ok {
		return errVersionConflict
	}

	if updated.Status == oldStatus {
		return nil
	}
	switch updated.Status {
	case domain.StatusSoldOut:
		env, err := events.NewEnvelope(events.TypeListingSoldOut, now, events.ListingSoldOut{ListingID: updated.ID})
		if err != nil {
			return err
		}
		return s.repo.AppendEvent(ctx, env)
	case domain.StatusActive:
		env, err := events.NewEnvelope(events.TypeListingBackInStock, now, events.ListingBackInStock{
			ListingID:        updated.ID,
			RealAvailability: updated.RealAvailability(now),
		})
		if err != nil {
			return err
		}
		return s.repo.AppendEvent(ctx, env)
	}
	return nil
}

func expiredReservations(listing domain.Listing, now time.Time) []domain.Reservation {
	var expired []domain.Reservation
	for _, r := range listing.Reservations {
		if r.Expired(now) {
			expired = append(expired, r)
		}
	}
	return expired
}

// replaceReservations rebuilds the in-memory reservation set after a
// mutation: expired holds and the removed transaction drop out, a freshly
// inserted hold is appended.
func replaceReservations(current, expired []domain.Reservation, added *domain.Reservation, removedTransactionID string) []domain.Reservation {
	drop := make(map[string]struct{}, len(expired)+1)
	for _, r := range expired {
		drop[r.TransactionID] = struct{}{}
	}
	if removedTransactionID != "" {
		drop[removedTransactionID] = struct{}{}
	}

	out := make([]domain.Reservation, 0, len(current)+1)
	for _, r := range current {
		if _, gone := drop[r.TransactionID]; gone {
			continue
		}
		out = append(out, r)
	}
	if added != nil {
		out = append(out, *added)
	}
	return out
}
