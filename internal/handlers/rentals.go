package handlers

import (
	"encoding/json"
	"net/http"

	"otpsim/internal/middleware"
	"otpsim/internal/services"
	"otpsim/internal/store"
	"otpsim/internal/validator"

	"github.com/go-chi/chi/v5"
)

type buyRentalRequest struct {
	Service string `json:"service"`
}

func (h *Handler) BuyRental(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req buyRentalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := validator.ValidateService(req.Service); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	purchase, err := h.rentals.Buy(r.Context(), userID, req.Service)
	if err != nil {
		if err == services.ErrInsufficientFunds {
			respondError(w, http.StatusBadRequest, "insufficient_funds")
			return
		}
		respondError(w, http.StatusInternalServerError, "rental_purchase_failed")
		return
	}
	payload := rentalRowToMap(purchase.Rental)
	payload["balance"] = purchase.BalanceAfter
	respondData(w, http.StatusCreated, payload)
}

func (h *Handler) GetRental(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	rental, err := h.rentals.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		switch err {
		case services.ErrRentalNotFound:
			respondError(w, http.StatusNotFound, "rental_not_found")
		case services.ErrNotRentalOwner:
			respondError(w, http.StatusForbidden, "rental_access_denied")
		default:
			respondError(w, http.StatusInternalServerError, "unable to load rental")
		}
		return
	}
	respondData(w, http.StatusOK, rentalRowToMap(rental))
}

func (h *Handler) ListRentals(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	query := r.URL.Query()
	page := parseInt(query.Get("page"), 1)
	limit := parseInt(query.Get("limit"), 20)
	rentals, err := h.rentals.History(r.Context(), userID, limit, (page-1)*limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load rentals")
		return
	}
	maps := make([]map[string]any, 0, len(rentals))
	for _, rental := range rentals {
		maps = append(maps, rentalRowToMap(rental))
	}
	respondData(w, http.StatusOK, maps)
}

func rentalRowToMap(row store.RentalRow) map[string]any {
	return map[string]any{
		"id":           row.ID,
		"user_id":      row.UserID,
		"service":      row.Service,
		"phone_number": row.PhoneNumber,
		"code":         valueToString(row.Code),
		"price":        row.Price,
		"status":       row.Status,
		"created_at":   row.CreatedAt,
		"expires_at":   row.ExpiresAt,
	}
}
