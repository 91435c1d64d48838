package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the ledger. Collaborators (notifications, search
// indexing) subscribe by routing key; payloads are JSON.
const (
	TypeReservationCreated  = "listing.reservation.created"
	TypeReservationReleased = "listing.reservation.released"
	TypeReservationExpired  = "listing.reservation.expired"
	TypeSaleConfirmed       = "listing.sale.confirmed"
	TypeListingSoldOut      = "listing.sold_out"
	TypeListingBackInStock  = "listing.back_in_stock"
	TypeQuantityAdjusted    = "listing.quantity.adjusted"
)

// Envelope is the persisted outbox record: written in the same transaction
// as the ledger mutation it describes, relayed to the broker afterwards.
type Envelope struct {
	ID         string
	Type       string
	OccurredAt time.Time
	Payload    json.RawMessage
}

func NewEnvelope(eventType string, occurredAt time.Time, payload any) (Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		ID:         uuid.New().String(),
		Type:       eventType,
		OccurredAt: occurredAt,
		Payload:    body,
	}, nil
}

type ReservationCreated struct {
	ListingID     string    `json:"listing_id"`
	TransactionID string    `json:"transaction_id"`
	Quantity      int       `json:"quantity"`
	ExpiresAt     time.Time `json:"expires_at"`
}

type ReservationReleased struct {
	ListingID     string `json:"listing_id"`
	TransactionID string `json:"transaction_id"`
	Quantity      int    `json:"quantity"`
}

type ReservationExpired struct {
	ListingID     string    `json:"listing_id"`
	TransactionID string    `json:"transaction_id"`
	Quantity      int       `json:"quantity"`
	ExpiredAt     time.Time `json:"expired_at"`
}

type SaleConfirmed struct {
	ListingID     string `json:"listing_id"`
	TransactionID string `json:"transaction_id"`
	Quantity      int    `json:"quantity"`
	TotalSold     int    `json:"total_sold"`
}

type ListingSoldOut struct {
	ListingID string `json:"listing_id"`
}

type ListingBackInStock struct {
	ListingID        string `json:"listing_id"`
	RealAvailability int    `json:"real_availability"`
}

type QuantityAdjusted struct {
	ListingID   string `json:"listing_id"`
	OldQuantity int    `json:"old_quantity"`
	NewQuantity int    `json:"new_quantity"`
}
