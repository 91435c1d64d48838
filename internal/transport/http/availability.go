package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/app"
)

// QueryService is the minimal interface needed for the availability reads.
type QueryService interface {
	GetAvailability(ctx context.Context, listingID string) (app.Availability, error)
	BulkAvailability(ctx context.Context, listingIDs []string) ([]app.Availability, error)
}

type availabilityResponse struct {
	ListingID         string `json:"listing_id"`
	Quantity          int    `json:"quantity"`
	AvailableQuantity int    `json:"available_quantity"`
	ReservedQuantity  int    `json:"reserved_quantity"`
	RealAvailability  int    `json:"real_availability"`
	Status            string `json:"status"`
}

func toAvailabilityResponse(a app.Availability) availabilityResponse {
	return availabilityResponse{
		ListingID:         a.ListingID,
		Quantity:          a.Quantity,
		AvailableQuantity: a.AvailableQuantity,
		ReservedQuantity:  a.ReservedQuantity,
		RealAvailability:  a.RealAvailability,
		Status:            string(a.Status),
	}
}

func handleGetAvailability(w http.ResponseWriter, r *http.Request, svc QueryService, listingID string) {
	avail, err := svc.GetAvailability(r.Context(), listingID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAvailabilityResponse(avail))
}

// HandleBulkAvailability serves GET /availability?ids=a,b,c for browse and
// search views. No lazy purge here; staleness is bounded by the sweeper.
func HandleBulkAvailability(svc QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		raw := r.URL.Query().Get("ids")
		var ids []string
		for _, id := range strings.Split(raw, ",") {
			id = strings.TrimSpace(id)
			if id != "" {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "ids query parameter is required")
			return
		}

		availability, err := svc.BulkAvailability(r.Context(), ids)
		if err != nil {
			writeLedgerError(w, err)
			return
		}

		resp := make([]availabilityResponse, 0, len(availability))
		for _, a := range availability {
			resp = append(resp, toAvailabilityResponse(a))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
