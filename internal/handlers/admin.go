package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"otpsim/internal/middleware"
	"otpsim/internal/services"
)

type depositActionRequest struct {
	DepositID string `json:"deposit_id"`
}

func (h *Handler) ApproveDeposit(w http.ResponseWriter, r *http.Request) {
	h.depositAction(w, r, h.deposits.Approve)
}

func (h *Handler) RejectDeposit(w http.ResponseWriter, r *http.Request) {
	h.depositAction(w, r, h.deposits.Reject)
}

func (h *Handler) depositAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, adminID, depositID string) (services.CheckResult, error)) {
	adminID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req depositActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DepositID == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	result, err := action(r.Context(), adminID, req.DepositID)
	if err != nil {
		if err == services.ErrDepositNotFound {
			respondError(w, http.StatusNotFound, "deposit_not_found")
			return
		}
		respondError(w, http.StatusInternalServerError, "deposit_action_failed")
		return
	}
	respondData(w, http.StatusOK, checkResultToMap(result))
}

func (h *Handler) AdminListDeposits(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	status := query.Get("status")
	page := parseInt(query.Get("page"), 1)
	limit := parseInt(query.Get("limit"), 20)
	deposits, err := h.deposits.ListByStatus(r.Context(), status, limit, (page-1)*limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load deposits")
		return
	}
	respondData(w, http.StatusOK, depositRowsToMaps(deposits))
}

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page := parseInt(query.Get("page"), 1)
	limit := parseInt(query.Get("limit"), 50)
	logs, err := h.audit.List(r.Context(), limit, (page-1)*limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load audit logs")
		return
	}
	respondData(w, http.StatusOK, logs)
}
