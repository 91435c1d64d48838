package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/clock"
	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/domain"
	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/events"
)

func TestCatalogService_CreateListing(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeRepo()
	svc := NewCatalogService(repo, clock.NewFixed(now), zerolog.Nop())

	t.Run("creates an active listing with full availability", func(t *testing.T) {
		l, err := svc.CreateListing(context.Background(), CreateListingInput{
			SellerID: "seller-1",
			Title:    "Blastoise Base Set",
			Quantity: 4,
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if l.ID == "" {
			t.Fatalf("expected a generated id")
		}
		if l.AvailableQuantity != 4 || l.Status != domain.StatusActive || l.Version != 1 {
			t.Fatalf("unexpected listing: %+v", l)
		}
		if !l.CreatedAt.Equal(now) {
			t.Fatalf("expected created_at %v, got %v", now, l.CreatedAt)
		}
	})

	t.Run("validation", func(t *testing.T) {
		cases := []struct {
			name string
			in   CreateListingInput
			want error
		}{
			{"missing seller", CreateListingInput{Title: "x", Quantity: 1}, domain.ErrSellerRequired},
			{"missing title", CreateListingInput{SellerID: "s", Quantity: 1}, domain.ErrTitleRequired},
			{"zero quantity", CreateListingInput{SellerID: "s", Title: "x"}, domain.ErrInvalidQuantity},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				if _, err := svc.CreateListing(context.Background(), tc.in); !errors.Is(err, tc.want) {
					t.Fatalf("expected %v, got %v", tc.want, err)
				}
			})
		}
	})
}

func TestCatalogService_AdjustQuantity(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("raising quantity grows availability", func(t *testing.T) {
		repo := newFakeRepo(activeListing("l1", 5))
		svc := NewCatalogService(repo, clock.NewFixed(now), zerolog.Nop())

		l, err := svc.AdjustQuantity(context.Background(), "l1", 8)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if l.Quantity != 8 || l.AvailableQuantity != 8 {
			t.Fatalf("unexpected listing: %+v", l)
		}
		types := repo.eventTypes()
		if len(types) != 1 || types[0] != events.TypeQuantityAdjusted {
			t.Fatalf("unexpected events: %v", types)
		}
	})

	t.Run("lowering quantity shrinks availability", func(t *testing.T) {
		repo := newFakeRepo(activeListing("l1", 5))
		svc := NewCatalogService(repo, clock.NewFixed(now), zerolog.Nop())

		l, err := svc.AdjustQuantity(context.Background(), "l1", 2)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if l.Quantity != 2 || l.AvailableQuantity != 2 {
			t.Fatalf("unexpected listing: %+v", l)
		}
	})

	t.Run("cannot shrink below what was sold", func(t *testing.T) {
		sold := activeListing("l1", 5)
		sold.AvailableQuantity = 2
		sold.TotalSold = 3
		repo := newFakeRepo(sold)
		svc := NewCatalogService(repo, clock.NewFixed(now), zerolog.Nop())

		_, err := svc.AdjustQuantity(context.Background(), "l1", 2)
		if !errors.Is(err, domain.ErrInvalidQuantityReduction) {
			t.Fatalf("expected ErrInvalidQuantityReduction, got %v", err)
		}
	})

	t.Run("raising quantity with live holds succeeds", func(t *testing.T) {
		repo := newFakeRepo(reservationIn(activeListing("l1", 5), "tx-1", 4, now.Add(30*time.Minute)))
		svc := NewCatalogService(repo, clock.NewFixed(now), zerolog.Nop())

		l, err := svc.AdjustQuantity(context.Background(), "l1", 8)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if l.Quantity != 8 || l.AvailableQuantity != 8 {
			t.Fatalf("unexpected listing: %+v", l)
		}
	})

	t.Run("cannot cut under outstanding holds", func(t *testing.T) {
		repo := newFakeRepo(reservationIn(activeListing("l1", 5), "tx-1", 4, now.Add(30*time.Minute)))
		svc := NewCatalogService(repo, clock.NewFixed(now), zerolog.Nop())

		_, err := svc.AdjustQuantity(context.Background(), "l1", 3)
		if !errors.Is(err, domain.ErrInvalidQuantityReduction) {
			t.Fatalf("expected ErrInvalidQuantityReduction, got %v", err)
		}
	})

	t.Run("raising a sold_out listing reactivates it", func(t *testing.T) {
		depleted := activeListing("l1", 3)
		depleted.AvailableQuantity = 0
		depleted.TotalSold = 3
		depleted.Status = domain.StatusSoldOut
		repo := newFakeRepo(depleted)
		svc := NewCatalogService(repo, clock.NewFixed(now), zerolog.Nop())

		l, err := svc.AdjustQuantity(context.Background(), "l1", 5)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if l.Status != domain.StatusActive || l.AvailableQuantity != 2 {
			t.Fatalf("unexpected listing: %+v", l)
		}
	})

	t.Run("not found and validation", func(t *testing.T) {
		repo := newFakeRepo()
		svc := NewCatalogService(repo, clock.NewFixed(now), zerolog.Nop())

		if _, err := svc.AdjustQuantity(context.Background(), "missing", 3); !errors.Is(err, domain.ErrListingNotFound) {
			t.Fatalf("expected ErrListingNotFound, got %v", err)
		}
		if _, err := svc.AdjustQuantity(context.Background(), "l1", 0); !errors.Is(err, domain.ErrInvalidQuantity) {
			t.Fatalf("expected ErrInvalidQuantity, got %v", err)
		}
	})
}

func TestCatalogService_SetModerationStatus(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("suspend and lift", func(t *testing.T) {
		repo := newFakeRepo(activeListing("l1", 5))
		svc := NewCatalogService(repo, clock.NewFixed(now), zerolog.Nop())

		l, err := svc.SetModerationStatus(context.Background(), "l1", domain.StatusSuspended)
		if err != nil {
			t.Fatalf("suspend: %v", err)
		}
		if l.Status != domain.StatusSuspended {
			t.Fatalf("expected suspended, got %s", l.Status)
		}

		l, err = svc.SetModerationStatus(context.Background(), "l1", domain.StatusActive)
		if err != nil {
			t.Fatalf("lift: %v", err)
		}
		if l.Status != domain.StatusActive {
			t.Fatalf("expected active after lift, got %s", l.Status)
		}
	})

	t.Run("lifting a depleted listing lands on sold_out", func(t *testing.T) {
		depleted := activeListing("l1", 3)
		depleted.AvailableQuantity = 0
		depleted.TotalSold = 3
		depleted.Status = domain.StatusSuspended
		repo := newFakeRepo(depleted)
		svc := NewCatalogService(repo, clock.NewFixed(now), zerolog.Nop())

		l, err := svc.SetModerationStatus(context.Background(), "l1", domain.StatusActive)
		if err != nil {
			t.Fatalf("lift: %v", err)
		}
		if l.Status != domain.StatusSoldOut {
			t.Fatalf("expected sold_out after lift with no stock, got %s", l.Status)
		}
	})

	t.Run("sold_out cannot be set directly", func(t *testing.T) {
		repo := newFakeRepo(activeListing("l1", 5))
		svc := NewCatalogService(repo, clock.NewFixed(now), zerolog.Nop())

		_, err := svc.SetModerationStatus(context.Background(), "l1", domain.StatusSoldOut)
		if !errors.Is(err, domain.ErrInvalidStatus) {
			t.Fatalf("expected ErrInvalidStatus, got %v", err)
		}
	})
}
