package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/app"
)

// LedgerService is the slice of the reservation ledger the purchase
// collaborator reaches over HTTP.
type LedgerService interface {
	Reserve(ctx context.Context, in app.ReserveInput) (app.ReserveResult, error)
	Release(ctx context.Context, listingID, transactionID string) error
	Confirm(ctx context.Context, in app.ConfirmInput) (app.ConfirmResult, error)
}

type reserveRequest struct {
	TransactionID  string `json:"transaction_id"`
	Quantity       int    `json:"quantity"`
	HoldForMinutes int    `json:"hold_for_minutes,omitempty"`
}

type reserveResponse struct {
	TransactionID    string    `json:"transaction_id"`
	Quantity         int       `json:"quantity"`
	ExpiresAt        time.Time `json:"expires_at"`
	RealAvailability int       `json:"real_availability"`
}

func handleReserve(w http.ResponseWriter, r *http.Request, svc LedgerService, listingID string) {
	var req reserveRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}
	if req.TransactionID == "" {
		writeError(w, http.StatusBadRequest, codeTransactionIDRequired, "transaction_id is required")
		return
	}
	if req.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, codeInvalidQuantity, "quantity must be at least 1")
		return
	}

	res, err := svc.Reserve(r.Context(), app.ReserveInput{
		ListingID:     listingID,
		TransactionID: req.TransactionID,
		Quantity:      req.Quantity,
		HoldFor:       time.Duration(req.HoldForMinutes) * time.Minute,
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	status := http.StatusCreated
	if !res.Created {
		// Idempotent replay of an existing hold.
		status = http.StatusOK
	}
	writeJSON(w, status, reserveResponse{
		TransactionID:    res.Reservation.TransactionID,
		Quantity:         res.Reservation.Quantity,
		ExpiresAt:        res.Reservation.ExpiresAt,
		RealAvailability: res.RealAvailability,
	})
}

type releaseRequest struct {
	TransactionID string `json:"transaction_id"`
}

func handleRelease(w http.ResponseWriter, r *http.Request, svc LedgerService, listingID string) {
	var req releaseRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}
	if req.TransactionID == "" {
		writeError(w, http.StatusBadRequest, codeTransactionIDRequired, "transaction_id is required")
		return
	}

	if err := svc.Release(r.Context(), listingID, req.TransactionID); err != nil {
		writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type confirmRequest struct {
	TransactionID string `json:"transaction_id"`
	Quantity      int    `json:"quantity"`
}

type confirmResponse struct {
	TotalSold         int `json:"total_sold"`
	AvailableQuantity int `json:"available_quantity"`
}

func handleConfirm(w http.ResponseWriter, r *http.Request, svc LedgerService, listingID string) {
	var req confirmRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}
	if req.TransactionID == "" {
		writeError(w, http.StatusBadRequest, codeTransactionIDRequired, "transaction_id is required")
		return
	}
	if req.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, codeInvalidQuantity, "quantity must be at least 1")
		return
	}

	res, err := svc.Confirm(r.Context(), app.ConfirmInput{
		ListingID:     listingID,
		TransactionID: req.TransactionID,
		Quantity:      req.Quantity,
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse{
		TotalSold:         res.TotalSold,
		AvailableQuantity: res.AvailableQuantity,
	})
}
