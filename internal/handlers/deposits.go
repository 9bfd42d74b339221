package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"otpsim/internal/middleware"
	"otpsim/internal/services"
	"otpsim/internal/store"
)

type createDepositRequest struct {
	Amount int64 `json:"amount"`
}

func (h *Handler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	intent, err := h.deposits.Create(r.Context(), userID, req.Amount)
	if err != nil {
		switch err {
		case services.ErrAmountBelowMinimum:
			respondError(w, http.StatusBadRequest, "amount_below_minimum")
		case services.ErrCodeGeneration:
			respondError(w, http.StatusInternalServerError, "code_generation_failed")
		default:
			respondError(w, http.StatusInternalServerError, "deposit_create_failed")
		}
		return
	}
	respondData(w, http.StatusCreated, map[string]any{
		"id":               intent.Deposit.ID,
		"amount":           intent.Deposit.Amount,
		"payment_code":     intent.Deposit.PaymentCode,
		"status":           intent.Deposit.Status,
		"bank_account":     intent.BankAccount,
		"bank_name":        intent.BankName,
		"transfer_content": intent.TransferContent,
		"expires_at":       intent.Deposit.ExpiresAt,
	})
}

type checkDepositRequest struct {
	PaymentCode string `json:"payment_code"`
}

func (h *Handler) CheckDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req checkDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PaymentCode == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	result, err := h.deposits.Check(r.Context(), userID, req.PaymentCode)
	if err != nil {
		switch err {
		case services.ErrDepositNotFound:
			respondError(w, http.StatusNotFound, "deposit_not_found")
		case services.ErrNotDepositOwner:
			respondError(w, http.StatusForbidden, "deposit_access_denied")
		default:
			respondError(w, http.StatusInternalServerError, "deposit_check_failed")
		}
		return
	}
	respondData(w, http.StatusOK, checkResultToMap(result))
}

func (h *Handler) DepositHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	query := r.URL.Query()
	page := parseInt(query.Get("page"), 1)
	limit := parseInt(query.Get("limit"), 20)
	deposits, err := h.deposits.History(r.Context(), userID, limit, (page-1)*limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load deposits")
		return
	}
	respondData(w, http.StatusOK, depositRowsToMaps(deposits))
}

func checkResultToMap(result services.CheckResult) map[string]any {
	payload := depositRowToMap(result.Deposit)
	if result.Deposit.Status == "completed" {
		payload["balance"] = result.Balance
	}
	if result.GatewayWarning {
		payload["warning"] = "gateway_unavailable"
	}
	return payload
}

func depositRowToMap(row store.DepositRow) map[string]any {
	return map[string]any{
		"id":                     row.ID,
		"user_id":                row.UserID,
		"amount":                 row.Amount,
		"payment_code":           row.PaymentCode,
		"status":                 row.Status,
		"gateway_transaction_id": valueToString(row.GatewayTransactionID),
		"created_at":             row.CreatedAt,
		"expires_at":             row.ExpiresAt,
	}
}

func depositRowsToMaps(rows []store.DepositRow) []map[string]any {
	maps := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		maps = append(maps, depositRowToMap(row))
	}
	return maps
}

func parseInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
