package http

import (
	"net/http"
	"strings"
)

// HandleListings owns the /listings subtree:
//
//	POST  /listings                      create listing
//	GET   /listings                      list listings
//	GET   /listings/{id}                 listing detail
//	GET   /listings/{id}/availability    real-time availability (lazy purge)
//	POST  /listings/{id}/reserve         place a hold
//	POST  /listings/{id}/release         release a hold
//	POST  /listings/{id}/confirm         convert a hold into a sale
//	PATCH /listings/{id}/quantity        seller quantity edit
//	PATCH /listings/{id}/status          moderation status
func HandleListings(ledger LedgerService, catalog CatalogService, query QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) == 0 || parts[0] != "listings" {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		switch len(parts) {
		case 1:
			switch r.Method {
			case http.MethodPost:
				handleCreateListing(w, r, catalog)
			case http.MethodGet:
				handleListListings(w, r, catalog)
			default:
				writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			}
		case 2:
			if parts[1] == "" {
				writeError(w, http.StatusNotFound, codeNotFound, "not found")
				return
			}
			if r.Method != http.MethodGet {
				writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
				return
			}
			handleGetListing(w, r, catalog, parts[1])
		case 3:
			listingID := parts[1]
			if listingID == "" {
				writeError(w, http.StatusNotFound, codeNotFound, "not found")
				return
			}
			switch parts[2] {
			case "availability":
				if r.Method != http.MethodGet {
					writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
					return
				}
				handleGetAvailability(w, r, query, listingID)
			case "reserve", "release", "confirm":
				if r.Method != http.MethodPost {
					writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
					return
				}
				switch parts[2] {
				case "reserve":
					handleReserve(w, r, ledger, listingID)
				case "release":
					handleRelease(w, r, ledger, listingID)
				case "confirm":
					handleConfirm(w, r, ledger, listingID)
				}
			case "quantity", "status":
				if r.Method != http.MethodPatch {
					writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
					return
				}
				if parts[2] == "quantity" {
					handleAdjustQuantity(w, r, catalog, listingID)
				} else {
					handleSetStatus(w, r, catalog, listingID)
				}
			default:
				writeError(w, http.StatusNotFound, codeNotFound, "not found")
			}
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
		}
	}
}
