package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"otpsim/internal/services"
	"otpsim/internal/store"
)

func TestCreateDepositReturnsPaymentInstructions(t *testing.T) {
	deposits := stubDepositService{
		createFn: func(_ context.Context, userID string, amount int64) (services.DepositIntent, error) {
			if userID != "user-1" || amount != 50000 {
				t.Fatalf("unexpected create: %s %d", userID, amount)
			}
			return services.DepositIntent{
				Deposit: store.DepositRow{
					ID:          "dep-1",
					UserID:      userID,
					Amount:      amount,
					PaymentCode: "OTPTESTCODE1",
					Status:      "pending",
					ExpiresAt:   time.Now().Add(30 * time.Minute),
				},
				BankAccount:     "0123456789",
				BankName:        "ACB",
				TransferContent: "OTPTESTCODE1",
			}, nil
		},
	}
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubTransactionStore{}, stubAdminStore{}, stubAuditStore{}, deposits, stubRentalService{}, stubReconcileService{})

	payload := bytes.NewBufferString(`{"amount":50000}`)
	req := httptest.NewRequest(http.MethodPost, "/deposit/create", payload)
	req.Header.Set("Authorization", "Bearer "+authToken(t, "user-1"))
	rr := serveRoutes(handler, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeEnvelope(t, rr)
	if body.Data["payment_code"] != "OTPTESTCODE1" || body.Data["bank_account"] != "0123456789" {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestCreateDepositBelowMinimum(t *testing.T) {
	deposits := stubDepositService{
		createFn: func(context.Context, string, int64) (services.DepositIntent, error) {
			return services.DepositIntent{}, services.ErrAmountBelowMinimum
		},
	}
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubTransactionStore{}, stubAdminStore{}, stubAuditStore{}, deposits, stubRentalService{}, stubReconcileService{})

	payload := bytes.NewBufferString(`{"amount":500}`)
	req := httptest.NewRequest(http.MethodPost, "/deposit/create", payload)
	req.Header.Set("Authorization", "Bearer "+authToken(t, "user-1"))
	rr := serveRoutes(handler, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if body := decodeEnvelope(t, rr); body.Error != "amount_below_minimum" {
		t.Fatalf("unexpected error: %s", body.Error)
	}
}

func TestCreateDepositRequiresAuth(t *testing.T) {
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubTransactionStore{}, stubAdminStore{}, stubAuditStore{}, stubDepositService{}, stubRentalService{}, stubReconcileService{})
	payload := bytes.NewBufferString(`{"amount":50000}`)
	req := httptest.NewRequest(http.MethodPost, "/deposit/create", payload)
	rr := serveRoutes(handler, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestCheckDepositCompletedIncludesBalance(t *testing.T) {
	deposits := stubDepositService{
		checkFn: func(_ context.Context, userID, code string) (services.CheckResult, error) {
			if code != "OTPTESTCODE1" {
				t.Fatalf("unexpected code: %s", code)
			}
			return services.CheckResult{
				Deposit: store.DepositRow{ID: "dep-1", UserID: userID, Amount: 50000, PaymentCode: code, Status: "completed"},
				Balance: 50000,
			}, nil
		},
	}
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubTransactionStore{}, stubAdminStore{}, stubAuditStore{}, deposits, stubRentalService{}, stubReconcileService{})

	payload := bytes.NewBufferString(`{"payment_code":"OTPTESTCODE1"}`)
	req := httptest.NewRequest(http.MethodPost, "/deposit/check", payload)
	req.Header.Set("Authorization", "Bearer "+authToken(t, "user-1"))
	rr := serveRoutes(handler, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeEnvelope(t, rr)
	if body.Data["status"] != "completed" || body.Data["balance"] != float64(50000) {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestCheckDepositGatewayWarning(t *testing.T) {
	deposits := stubDepositService{
		checkFn: func(_ context.Context, userID, code string) (services.CheckResult, error) {
			return services.CheckResult{
				Deposit:        store.DepositRow{ID: "dep-1", UserID: userID, PaymentCode: code, Status: "pending"},
				GatewayWarning: true,
			}, nil
		},
	}
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubTransactionStore{}, stubAdminStore{}, stubAuditStore{}, deposits, stubRentalService{}, stubReconcileService{})

	payload := bytes.NewBufferString(`{"payment_code":"OTPTESTCODE1"}`)
	req := httptest.NewRequest(http.MethodPost, "/deposit/check", payload)
	req.Header.Set("Authorization", "Bearer "+authToken(t, "user-1"))
	rr := serveRoutes(handler, req)
	body := decodeEnvelope(t, rr)
	if body.Data["status"] != "pending" || body.Data["warning"] != "gateway_unavailable" {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestCheckDepositNotFound(t *testing.T) {
	deposits := stubDepositService{
		checkFn: func(context.Context, string, string) (services.CheckResult, error) {
			return services.CheckResult{}, services.ErrDepositNotFound
		},
	}
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubTransactionStore{}, stubAdminStore{}, stubAuditStore{}, deposits, stubRentalService{}, stubReconcileService{})

	payload := bytes.NewBufferString(`{"payment_code":"OTPMISSING99"}`)
	req := httptest.NewRequest(http.MethodPost, "/deposit/check", payload)
	req.Header.Set("Authorization", "Bearer "+authToken(t, "user-1"))
	rr := serveRoutes(handler, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestDepositHistory(t *testing.T) {
	deposits := stubDepositService{
		historyFn: func(_ context.Context, userID string, limit, offset int) ([]store.DepositRow, error) {
			if userID != "user-1" || limit != 20 || offset != 0 {
				t.Fatalf("unexpected query: %s %d %d", userID, limit, offset)
			}
			return []store.DepositRow{{ID: "dep-1", UserID: userID, Status: "completed"}}, nil
		},
	}
	handler := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubTransactionStore{}, stubAdminStore{}, stubAuditStore{}, deposits, stubRentalService{}, stubReconcileService{})

	req := httptest.NewRequest(http.MethodGet, "/deposit/history", nil)
	req.Header.Set("Authorization", "Bearer "+authToken(t, "user-1"))
	rr := serveRoutes(handler, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}
