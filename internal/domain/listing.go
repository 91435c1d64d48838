package domain

import "time"

type ListingStatus string

const (
	// StatusActive and StatusSoldOut are derived from the numbers by the
	// ledger. StatusInactive and StatusSuspended are set by moderation and
	// are never overwritten by the ledger.
	StatusActive    ListingStatus = "active"
	StatusSoldOut   ListingStatus = "sold_out"
	StatusInactive  ListingStatus = "inactive"
	StatusSuspended ListingStatus = "suspended"
)

func (s ListingStatus) Valid() bool {
	switch s {
	case StatusActive, StatusSoldOut, StatusInactive, StatusSuspended:
		return true
	}
	return false
}

// Moderated reports whether the status was imposed externally, taking the
// listing out of the ledger's active/sold_out toggle.
func (s ListingStatus) Moderated() bool {
	return s == StatusInactive || s == StatusSuspended
}

// Listing is the sellable inventory record. Quantity is only ever changed
// by the seller; AvailableQuantity and TotalSold only by the ledger.
// Version is the optimistic-concurrency token bumped on every mutation.
type Listing struct {
	ID                string
	SellerID          string
	Title             string
	Quantity          int
	AvailableQuantity int
	TotalSold         int
	Status            ListingStatus
	Version           int64
	Reservations      []Reservation
	LastSaleAt        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ReservedQuantity sums the holds still live at the given instant.
func (l Listing) ReservedQuantity(now time.Time) int {
	total := 0
	for _, r := range l.Reservations {
		if !r.Expired(now) {
			total += r.Quantity
		}
	}
	return total
}

// RealAvailability is the only number safe to offer new buyers: stock not
// sold and not currently held.
func (l Listing) RealAvailability(now time.Time) int {
	return l.AvailableQuantity - l.ReservedQuantity(now)
}

// ReservationFor returns the hold for the transaction, expired or not.
func (l Listing) ReservationFor(transactionID string) (Reservation, bool) {
	for _, r := range l.Reservations {
		if r.TransactionID == transactionID {
			return r, true
		}
	}
	return Reservation{}, false
}

// CheckInvariants verifies the stock accounting identities: availability
// stays within bounds, sold and available units account for the full
// quantity, and live holds never exceed what is available. A violation
// means a ledger bug, not bad input.
func (l Listing) CheckInvariants(now time.Time) error {
	if l.AvailableQuantity < 0 || l.AvailableQuantity > l.Quantity {
		return ErrInvalidQuantity
	}
	if l.AvailableQuantity+l.TotalSold != l.Quantity {
		return ErrInvalidQuantity
	}
	if l.RealAvailability(now) < 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// ProjectStatus derives the externally visible status from the numbers.
// It only toggles between active and sold_out; a moderated status is
// returned unchanged.
func ProjectStatus(current ListingStatus, realAvailability int) ListingStatus {
	if current.Moderated() {
		return current
	}
	if realAvailability <= 0 {
		return StatusSoldOut
	}
	return StatusActive
}
