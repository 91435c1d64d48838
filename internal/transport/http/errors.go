package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/domain"
)

const (
	codeMethodNotAllowed         = "method_not_allowed"
	codeNotFound                 = "not_found"
	codeInvalidRequestBody       = "invalid_request_body"
	codeInvalidID                = "invalid_id"
	codeInvalidQuantity          = "invalid_quantity"
	codeInvalidStatus            = "invalid_status"
	codeTitleRequired            = "title_required"
	codeSellerRequired           = "seller_id_required"
	codeTransactionIDRequired    = "transaction_id_required"
	codeListingNotFound          = "listing_not_found"
	codeListingUnavailable       = "listing_unavailable"
	codeInsufficientStock        = "insufficient_stock"
	codeReservationConflict      = "reservation_conflict"
	codeReservationNotFound      = "reservation_not_found"
	codeInvalidQuantityReduction = "invalid_quantity_reduction"
	codeContention               = "contention"
	codeInternalError            = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	// Available is set on insufficient-stock errors so the UI can offer
	// the quantity that is actually still open.
	Available *int `json:"available,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeErrorResponse(w, status, errorResponse{Error: msg, Code: code})
}

// writeLedgerError maps the ledger's error taxonomy onto HTTP statuses.
func writeLedgerError(w http.ResponseWriter, err error) {
	var insufficient *domain.InsufficientStockError
	if errors.As(err, &insufficient) {
		writeErrorResponse(w, http.StatusConflict, errorResponse{
			Error:     insufficient.Error(),
			Code:      codeInsufficientStock,
			Available: &insufficient.Available,
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrListingNotFound):
		writeError(w, http.StatusNotFound, codeListingNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidID):
		writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
	case errors.Is(err, domain.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, codeInvalidQuantity, err.Error())
	case errors.Is(err, domain.ErrTransactionIDRequired):
		writeError(w, http.StatusBadRequest, codeTransactionIDRequired, err.Error())
	case errors.Is(err, domain.ErrListingUnavailable):
		writeError(w, http.StatusConflict, codeListingUnavailable, err.Error())
	case errors.Is(err, domain.ErrReservationConflict):
		writeError(w, http.StatusConflict, codeReservationConflict, err.Error())
	case errors.Is(err, domain.ErrReservationNotFound):
		writeError(w, http.StatusConflict, codeReservationNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidQuantityReduction):
		writeError(w, http.StatusConflict, codeInvalidQuantityReduction, err.Error())
	case errors.Is(err, domain.ErrContention):
		// Transient; the collaborator should retry the whole operation.
		writeError(w, http.StatusServiceUnavailable, codeContention, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

func writeErrorResponse(w http.ResponseWriter, status int, resp errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(resp)
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
