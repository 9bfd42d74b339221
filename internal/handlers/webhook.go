package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"otpsim/internal/gateway"
	"otpsim/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func webhookRespond(w http.ResponseWriter, status int, success bool, message, requestID string) {
	respondJSON(w, status, map[string]any{
		"success":   success,
		"message":   message,
		"requestId": requestID,
	})
}

// Webhook is the gateway push path. The gateway retries on non-200, so
// every transaction that was durably recorded answers 200 whatever the
// reconciliation outcome; only malformed payloads and persistence
// failures refuse, inviting a retry.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	gatewayName := chi.URLParam(r, "gateway")

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		webhookRespond(w, http.StatusBadRequest, false, "unreadable body", requestID)
		return
	}
	if h.cfg.SignatureMode != "ignore" {
		signature := r.Header.Get("X-Gateway-Signature")
		if !h.validSignature(body, signature) {
			if h.cfg.SignatureMode == "enforce" {
				webhookRespond(w, http.StatusUnauthorized, false, "invalid signature", requestID)
				return
			}
			log.Printf("webhook %s [%s]: signature mismatch, accepting in warn mode", gatewayName, requestID)
		}
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		webhookRespond(w, http.StatusBadRequest, false, "invalid json", requestID)
		return
	}
	bankTxn := gateway.Normalize(raw)

	result, err := h.reconcile.Reconcile(r.Context(), bankTxn)
	if err != nil {
		log.Printf("webhook %s [%s]: reconcile failed for ref %s: %v", gatewayName, requestID, bankTxn.ReferenceNumber, err)
		webhookRespond(w, http.StatusInternalServerError, false, "reconciliation failed", requestID)
		return
	}
	message := string(result.Outcome)
	if result.Outcome == services.OutcomeAlreadyProcessed {
		message += " (" + result.DepositStatus + ")"
	}
	log.Printf("webhook %s [%s]: ref=%s outcome=%s", gatewayName, requestID, bankTxn.ReferenceNumber, message)
	webhookRespond(w, http.StatusOK, true, message, requestID)
}

// Signature is HMAC-SHA256 over the exact raw request body, hex encoded.
func (h *Handler) validSignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.cfg.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
