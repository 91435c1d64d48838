package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/app"
	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/domain"
)

// CatalogService is the minimal interface needed for listing management.
type CatalogService interface {
	CreateListing(ctx context.Context, in app.CreateListingInput) (domain.Listing, error)
	AdjustQuantity(ctx context.Context, listingID string, newQuantity int) (domain.Listing, error)
	SetModerationStatus(ctx context.Context, listingID string, status domain.ListingStatus) (domain.Listing, error)
	GetListing(ctx context.Context, listingID string) (domain.Listing, error)
	ListListings(ctx context.Context, limit, offset int) ([]domain.Listing, error)
}

type createListingRequest struct {
	SellerID string `json:"seller_id"`
	Title    string `json:"title"`
	Quantity int    `json:"quantity"`
}

type listingResponse struct {
	ID                string     `json:"id"`
	SellerID          string     `json:"seller_id"`
	Title             string     `json:"title"`
	Quantity          int        `json:"quantity"`
	AvailableQuantity int        `json:"available_quantity"`
	TotalSold         int        `json:"total_sold"`
	Status            string     `json:"status"`
	LastSaleAt        *time.Time `json:"last_sale_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func toListingResponse(l domain.Listing) listingResponse {
	return listingResponse{
		ID:                l.ID,
		SellerID:          l.SellerID,
		Title:             l.Title,
		Quantity:          l.Quantity,
		AvailableQuantity: l.AvailableQuantity,
		TotalSold:         l.TotalSold,
		Status:            string(l.Status),
		LastSaleAt:        l.LastSaleAt,
		CreatedAt:         l.CreatedAt,
	}
}

func handleCreateListing(w http.ResponseWriter, r *http.Request, svc CatalogService) {
	var req createListingRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}

	listing, err := svc.CreateListing(r.Context(), app.CreateListingInput{
		SellerID: req.SellerID,
		Title:    req.Title,
		Quantity: req.Quantity,
	})
	if err != nil {
		switch err {
		case domain.ErrSellerRequired:
			writeError(w, http.StatusBadRequest, codeSellerRequired, err.Error())
		case domain.ErrTitleRequired:
			writeError(w, http.StatusBadRequest, codeTitleRequired, err.Error())
		case domain.ErrInvalidQuantity:
			writeError(w, http.StatusBadRequest, codeInvalidQuantity, err.Error())
		case domain.ErrInvalidID:
			writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusCreated, toListingResponse(listing))
}

func handleListListings(w http.ResponseWriter, r *http.Request, svc CatalogService) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	listings, err := svc.ListListings(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		return
	}

	resp := make([]listingResponse, 0, len(listings))
	for _, l := range listings {
		resp = append(resp, toListingResponse(l))
	}
	writeJSON(w, http.StatusOK, resp)
}

func handleGetListing(w http.ResponseWriter, r *http.Request, svc CatalogService, listingID string) {
	listing, err := svc.GetListing(r.Context(), listingID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(listing))
}

type adjustQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func handleAdjustQuantity(w http.ResponseWriter, r *http.Request, svc CatalogService, listingID string) {
	var req adjustQuantityRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}
	if req.Quantity < 1 {
		writeError(w, http.StatusBadRequest, codeInvalidQuantity, "quantity must be at least 1")
		return
	}

	listing, err := svc.AdjustQuantity(r.Context(), listingID, req.Quantity)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(listing))
}

type moderationRequest struct {
	Status string `json:"status"`
}

func handleSetStatus(w http.ResponseWriter, r *http.Request, svc CatalogService, listingID string) {
	var req moderationRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}

	status := domain.ListingStatus(req.Status)
	if !status.Valid() {
		writeError(w, http.StatusBadRequest, codeInvalidStatus, "invalid status")
		return
	}

	listing, err := svc.SetModerationStatus(r.Context(), listingID, status)
	if err != nil {
		switch err {
		case domain.ErrInvalidStatus:
			writeError(w, http.StatusBadRequest, codeInvalidStatus, err.Error())
		default:
			writeLedgerError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(listing))
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
