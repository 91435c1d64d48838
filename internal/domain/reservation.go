package domain

import "time"

// Reservation is a temporary claim on a listing's stock, tied to an
// in-flight purchase transaction. It is created by Reserve and destroyed
// by Release, Confirm, or expiry; it has no lifecycle of its own beyond
// the listing it belongs to.
type Reservation struct {
	ListingID     string
	TransactionID string
	Quantity      int
	ExpiresAt     time.Time
	CreatedAt     time.Time
}

// Expired reports whether the hold is void at the given instant.
func (r Reservation) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}
