package app

import (
	"context"

	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/clock"
	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/domain"
)

type QueryRepository interface {
	GetListing(ctx context.Context, listingID string) (domain.Listing, error)
	GetListings(ctx context.Context, listingIDs []string) ([]domain.Listing, error)
}

// Purger is the slice of the ledger the read path needs for lazy expiry.
type Purger interface {
	PurgeExpired(ctx context.Context, listingID string) (int, error)
}

// Availability is the read-only projection offered to browsing and search.
type Availability struct {
	ListingID         string
	Quantity          int
	AvailableQuantity int
	ReservedQuantity  int
	RealAvailability  int
	Status            domain.ListingStatus
}

// QueryService exposes real-time availability. Reads never block writers;
// a single-listing read purges lapsed holds first so a detail view never
// shows stock as held when the hold has in fact expired.
type QueryService struct {
	repo   QueryRepository
	purger Purger
	clock  clock.Clock
}

func NewQueryService(repo QueryRepository, purger Purger, clk clock.Clock) *QueryService {
	return &QueryService{
		repo:   repo,
		purger: purger,
		clock:  clk,
	}
}

func (s *QueryService) GetAvailability(ctx context.Context, listingID string) (Availability, error) {
	if _, err := s.purger.PurgeExpired(ctx, listingID); err != nil {
		return Availability{}, err
	}
	listing, err := s.repo.GetListing(ctx, listingID)
	if err != nil {
		return Availability{}, err
	}
	return s.project(listing), nil
}

// BulkAvailability skips the lazy purge for performance; staleness is
// bounded by the background sweep interval.
func (s *QueryService) BulkAvailability(ctx context.Context, listingIDs []string) ([]Availability, error) {
	listings, err := s.repo.GetListings(ctx, listingIDs)
	if err != nil {
		return nil, err
	}
	out := make([]Availability, 0, len(listings))
	for _, l := range listings {
		out = append(out, s.project(l))
	}
	return out, nil
}

func (s *QueryService) project(l domain.Listing) Availability {
	now := s.clock.Now()
	reserved := l.ReservedQuantity(now)
	return Availability{
		ListingID:         l.ID,
		Quantity:          l.Quantity,
		AvailableQuantity: l.AvailableQuantity,
		ReservedQuantity:  reserved,
		RealAvailability:  l.AvailableQuantity - reserved,
		Status:            l.Status,
	}
}
