package app

import (
	"context"
	"sync"
	"time"

	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/domain"
	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/events"
)

// fakeRepo is an in-memory LedgerRepository/CatalogRepository/QueryRepository
// with transaction staging: mutations inside WithTx land only on a successful
// return, mirroring the rollback behaviour of the real store. The guarded
// update honours the version token, so CAS semantics are exercised too.
type fakeRepo struct {
	mu     sync.Mutex
	state  fakeState
	staged *fakeState

	// failGuard forces every guarded update to report a lost race.
	failGuard bool
}

type fakeState struct {
	listings map[string]domain.Listing
	events   []events.Envelope
}

func newFakeRepo(listings ...domain.Listing) *fakeRepo {
	state := fakeState{listings: make(map[string]domain.Listing)}
	for _, l := range listings {
		state.listings[l.ID] = cloneListing(l)
	}
	return &fakeRepo{state: state}
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	staged := f.state.clone()
	f.staged = &staged
	err := fn(ctx)
	if err != nil {
		f.staged = nil
		return err
	}
	f.state = staged
	f.staged = nil
	return nil
}

func (f *fakeRepo) cur() *fakeState {
	if f.staged != nil {
		return f.staged
	}
	return &f.state
}

func (f *fakeRepo) GetListing(_ context.Context, listingID string) (domain.Listing, error) {
	l, ok := f.cur().listings[listingID]
	if !ok {
		return domain.Listing{}, domain.ErrListingNotFound
	}
	return cloneListing(l), nil
}

func (f *fakeRepo) GetListings(_ context.Context, listingIDs []string) ([]domain.Listing, error) {
	var out []domain.Listing
	for _, id := range listingIDs {
		if l, ok := f.cur().listings[id]; ok {
			out = append(out, cloneListing(l))
		}
	}
	return out, nil
}

func (f *fakeRepo) ListListings(_ context.Context, limit, offset int) ([]domain.Listing, error) {
	var out []domain.Listing
	for _, l := range f.cur().listings {
		out = append(out, cloneListing(l))
	}
	return out, nil
}

func (f *fakeRepo) CreateListing(_ context.Context, listing domain.Listing) error {
	f.cur().listings[listing.ID] = cloneListing(listing)
	return nil
}

func (f *fakeRepo) UpdateListingGuarded(_ context.Context, listing domain.Listing, expectedVersion int64) (bool, error) {
	if f.failGuard {
		return false, nil
	}
	state := f.cur()
	stored, ok := state.listings[listing.ID]
	if !ok {
		return false, nil
	}
	if stored.Version != expectedVersion {
		return false, nil
	}
	// Only the listing row's columns change; the reservation set is
	// maintained by the insert/delete calls.
	stored.Quantity = listing.Quantity
	stored.AvailableQuantity = listing.AvailableQuantity
	stored.TotalSold = listing.TotalSold
	stored.Status = listing.Status
	stored.Version = listing.Version
	stored.LastSaleAt = listing.LastSaleAt
	stored.UpdatedAt = listing.UpdatedAt
	state.listings[listing.ID] = stored
	return true, nil
}

func (f *fakeRepo) InsertReservation(_ context.Context, res domain.Reservation) error {
	state := f.cur()
	l, ok := state.listings[res.ListingID]
	if !ok {
		return domain.ErrListingNotFound
	}
	for _, existing := range l.Reservations {
		if existing.TransactionID == res.TransactionID {
			return domain.ErrReservationConflict
		}
	}
	l.Reservations = append(l.Reservations, res)
	state.listings[res.ListingID] = l
	return nil
}

func (f *fakeRepo) DeleteReservation(_ context.Context, listingID, transactionID string) (bool, error) {
	return f.deleteReservations(listingID, map[string]struct{}{transactionID: {}}) > 0, nil
}

func (f *fakeRepo) DeleteReservations(_ context.Context, listingID string, transactionIDs []string) error {
	drop := make(map[string]struct{}, len(transactionIDs))
	for _, id := range transactionIDs {
		drop[id] = struct{}{}
	}
	f.deleteReservations(listingID, drop)
	return nil
}

func (f *fakeRepo) deleteReservations(listingID string, drop map[string]struct{}) int {
	state := f.cur()
	l, ok := state.listings[listingID]
	if !ok {
		return 0
	}
	removed := 0
	kept := l.Reservations[:0:0]
	for _, r := range l.Reservations {
		if _, gone := drop[r.TransactionID]; gone {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	l.Reservations = kept
	state.listings[listingID] = l
	return removed
}

func (f *fakeRepo) AppendEvent(_ context.Context, env events.Envelope) error {
	state := f.cur()
	state.events = append(state.events, env)
	return nil
}

// eventTypes returns the committed event types in append order.
func (f *fakeRepo) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.state.events))
	for _, e := range f.state.events {
		out = append(out, e.Type)
	}
	return out
}

func (f *fakeRepo) listing(id string) domain.Listing {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneListing(f.state.listings[id])
}

func (s fakeState) clone() fakeState {
	out := fakeState{
		listings: make(map[string]domain.Listing, len(s.listings)),
		events:   append([]events.Envelope(nil), s.events...),
	}
	for id, l := range s.listings {
		out.listings[id] = cloneListing(l)
	}
	return out
}

func cloneListing(l domain.Listing) domain.Listing {
	out := l
	out.Reservations = append([]domain.Reservation(nil), l.Reservations...)
	if l.LastSaleAt != nil {
		t := *l.LastSaleAt
		out.LastSaleAt = &t
	}
	return out
}

func activeListing(id string, quantity int) domain.Listing {
	return domain.Listing{
		ID:                id,
		SellerID:          "seller-1",
		Title:             "Charizard Holo 1st Edition",
		Quantity:          quantity,
		AvailableQuantity: quantity,
		Status:            domain.StatusActive,
		Version:           1,
	}
}

func reservationIn(l domain.Listing, transactionID string, quantity int, expiresAt time.Time) domain.Listing {
	l.Reservations = append(l.Reservations, domain.Reservation{
		ListingID:     l.ID,
		TransactionID: transactionID,
		Quantity:      quantity,
		ExpiresAt:     expiresAt,
	})
	return l
}
