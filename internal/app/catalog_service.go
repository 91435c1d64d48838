package app

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/clock"
	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/domain"
	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/events"
)

type CatalogRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateListing(ctx context.Context, listing domain.Listing) error
	GetListing(ctx context.Context, listingID string) (domain.Listing, error)
	UpdateListingGuarded(ctx context.Context, listing domain.Listing, expectedVersion int64) (bool, error)
	ListListings(ctx context.Context, limit, offset int) ([]domain.Listing, error)
	AppendEvent(ctx context.Context, env events.Envelope) error
}

// CatalogService covers the seller/moderation side of a listing: creation,
// quantity edits, and moderation status. Quantity edits go through the same
// version guard as the ledger so they reconcile against in-flight holds.
type CatalogService struct {
	repo        CatalogRepository
	clock       clock.Clock
	logger      zerolog.Logger
	maxAttempts int
}

func NewCatalogService(repo CatalogRepository, clk clock.Clock, logger zerolog.Logger) *CatalogService {
	return &CatalogService{
		repo:        repo,
		clock:       clk,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
	}
}

type CreateListingInput struct {
	SellerID string
	Title    string
	Quantity int
}

func (s *CatalogService) CreateListing(ctx context.Context, in CreateListingInput) (domain.Listing, error) {
	if in.SellerID == "" {
		return domain.Listing{}, domain.ErrSellerRequired
	}
	if in.Title == "" {
		return domain.Listing{}, domain.ErrTitleRequired
	}
	if in.Quantity < 1 {
		return domain.Listing{}, domain.ErrInvalidQuantity
	}

	now := s.clock.Now()
	listing := domain.Listing{
		ID:                uuid.New().String(),
		SellerID:          in.SellerID,
		Title:             in.Title,
		Quantity:          in.Quantity,
		AvailableQuantity: in.Quantity,
		Status:            domain.StatusActive,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.CreateListing(ctx, listing); err != nil {
		return domain.Listing{}, err
	}
	s.logger.Info().Str("listing_id", listing.ID).Int("quantity", in.Quantity).Msg("listing created")
	return listing, nil
}

// AdjustQuantity applies a seller's quantity edit. Shrinking below what has
// already been sold is rejected; otherwise the signed delta flows into
// AvailableQuantity and the status is re-projected.
func (s *CatalogService) AdjustQuantity(ctx context.Context, listingID string, newQuantity int) (domain.Listing, error) {
	if newQuantity < 1 {
		return domain.Listing{}, domain.ErrInvalidQuantity
	}

	var result domain.Listing
	err := s.withRetry(ctx, func(txCtx context.Context) error {
		now := s.clock.Now()
		listing, err := s.repo.GetListing(txCtx, listingID)
		if err != nil {
			return err
		}

		if newQuantity < listing.TotalSold {
			return domain.ErrInvalidQuantityReduction
		}

		delta := newQuantity - listing.Quantity
		updated := listing
		updated.Quantity = newQuantity
		updated.AvailableQuantity += delta
		if updated.AvailableQuantity < 0 || updated.RealAvailability(now) < 0 {
			// The edit would cut under outstanding holds.
			return domain.ErrInvalidQuantityReduction
		}
		updated.Status = domain.ProjectStatus(listing.Status, updated.RealAvailability(now))

		updated.Version = listing.Version + 1
		updated.UpdatedAt = now
		ok, err := s.repo.UpdateListingGuarded(txCtx, updated, listing.Version)
		if err != nil {
			return err
		}
		if !ok {
			return errVersionConflict
		}

		env, err := events.NewEnvelope(events.TypeQuantityAdjusted, now, events.QuantityAdjusted{
			ListingID:   listingID,
			OldQuantity: listing.Quantity,
			NewQuantity: newQuantity,
		})
		if err != nil {
			return err
		}
		if err := s.repo.AppendEvent(txCtx, env); err != nil {
			return err
		}

		result = updated
		return nil
	})
	if err != nil {
		return domain.Listing{}, err
	}
	return result, nil
}

// SetModerationStatus suspends or deactivates a listing, or lifts the
// moderation again. Lifting never forces active: the projector decides
// between active and sold_out from the current numbers.
func (s *CatalogService) SetModerationStatus(ctx context.Context, listingID string, status domain.ListingStatus) (domain.Listing, error) {
	if !status.Moderated() && status != domain.StatusActive {
		return domain.Listing{}, domain.ErrInvalidStatus
	}

	var result domain.Listing
	err := s.withRetry(ctx, func(txCtx context.Context) error {
		now := s.clock.Now()
		listing, err := s.repo.GetListing(txCtx, listingID)
		if err != nil {
			return err
		}

		updated := listing
		if status.Moderated() {
			updated.Status = status
		} else {
			updated.Status = domain.ProjectStatus(domain.StatusActive, updated.RealAvailability(now))
		}

		updated.Version = listing.Version + 1
		updated.UpdatedAt = now
		ok, err := s.repo.UpdateListingGuarded(txCtx, updated, listing.Version)
		if err != nil {
			return err
		}
		if !ok {
			return errVersionConflict
		}
		result = updated
		return nil
	})
	if err != nil {
		return domain.Listing{}, err
	}
	return result, nil
}

func (s *CatalogService) GetListing(ctx context.Context, listingID string) (domain.Listing, error) {
	return s.repo.GetListing(ctx, listingID)
}

func (s *CatalogService) ListListings(ctx context.Context, limit, offset int) ([]domain.Listing, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListListings(ctx, limit, offset)
}

func (s *CatalogService) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := s.repo.WithTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errVersionConflict) {
			return err
		}
	}
	return domain.ErrContention
}
