package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"otpsim/internal/auth"
	"otpsim/internal/config"
	"otpsim/internal/gateway"
	"otpsim/internal/services"
	"otpsim/internal/store"
	"otpsim/internal/websocket"

	"github.com/jmoiron/sqlx"
)

type fakeTxRunner struct {
	withTxFn func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.withTxFn != nil {
		return f.withTxFn(ctx, fn)
	}
	return fn(nil)
}

type stubUserStore struct {
	createFn     func(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error
	getByEmailFn func(ctx context.Context, email string) (map[string]any, error)
	getByIDFn    func(ctx context.Context, userID string) (map[string]any, error)
}

func (s stubUserStore) Create(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, id, username, email, passwordHash)
}

func (s stubUserStore) GetByEmail(ctx context.Context, email string) (map[string]any, error) {
	if s.getByEmailFn == nil {
		return nil, nil
	}
	return s.getByEmailFn(ctx, email)
}

func (s stubUserStore) GetByID(ctx context.Context, userID string) (map[string]any, error) {
	if s.getByIDFn == nil {
		return nil, nil
	}
	return s.getByIDFn(ctx, userID)
}

type stubTransactionStore struct {
	listByUserFn func(ctx context.Context, userID, txType string, limit, offset int) ([]map[string]any, error)
	listAllFn    func(ctx context.Context, limit, offset int) ([]map[string]any, error)
}

func (s stubTransactionStore) ListByUser(ctx context.Context, userID, txType string, limit, offset int) ([]map[string]any, error) {
	if s.listByUserFn == nil {
		return nil, nil
	}
	return s.listByUserFn(ctx, userID, txType, limit, offset)
}

func (s stubTransactionStore) ListAll(ctx context.Context, limit, offset int) ([]map[string]any, error) {
	if s.listAllFn == nil {
		return nil, nil
	}
	return s.listAllFn(ctx, limit, offset)
}

type stubAdminStore struct {
	isAdminFn     func(ctx context.Context, userID string) (bool, error)
	createAdminFn func(ctx context.Context, tx store.Execer, userID string, createdBy *string) error
	hasAnyAdminFn func(ctx context.Context) (bool, error)
}

func (s stubAdminStore) IsAdmin(ctx context.Context, userID string) (bool, error) {
	if s.isAdminFn == nil {
		return false, nil
	}
	return s.isAdminFn(ctx, userID)
}

func (s stubAdminStore) CreateAdmin(ctx context.Context, tx store.Execer, userID string, createdBy *string) error {
	if s.createAdminFn == nil {
		return nil
	}
	return s.createAdminFn(ctx, tx, userID, createdBy)
}

func (s stubAdminStore) HasAnyAdmin(ctx context.Context) (bool, error) {
	if s.hasAnyAdminFn == nil {
		return false, nil
	}
	return s.hasAnyAdminFn(ctx)
}

type stubAuditStore struct {
	logFn  func(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	listFn func(ctx context.Context, limit, offset int) ([]map[string]any, error)
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, actorID, action, entityType, entityID, data)
}

func (s stubAuditStore) List(ctx context.Context, limit, offset int) ([]map[string]any, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit, offset)
}

type stubDepositService struct {
	createFn       func(ctx context.Context, userID string, amount int64) (services.DepositIntent, error)
	checkFn        func(ctx context.Context, userID, paymentCode string) (services.CheckResult, error)
	approveFn      func(ctx context.Context, adminID, depositID string) (services.CheckResult, error)
	rejectFn       func(ctx context.Context, adminID, depositID string) (services.CheckResult, error)
	historyFn      func(ctx context.Context, userID string, limit, offset int) ([]store.DepositRow, error)
	listByStatusFn func(ctx context.Context, status string, limit, offset int) ([]store.DepositRow, error)
}

func (s stubDepositService) Create(ctx context.Context, userID string, amount int64) (services.DepositIntent, error) {
	if s.createFn == nil {
		return services.DepositIntent{}, nil
	}
	return s.createFn(ctx, userID, amount)
}

func (s stubDepositService) Check(ctx context.Context, userID, paymentCode string) (services.CheckResult, error) {
	if s.checkFn == nil {
		return services.CheckResult{}, nil
	}
	return s.checkFn(ctx, userID, paymentCode)
}

func (s stubDepositService) Approve(ctx context.Context, adminID, depositID string) (services.CheckResult, error) {
	if s.approveFn == nil {
		return services.CheckResult{}, nil
	}
	return s.approveFn(ctx, adminID, depositID)
}

func (s stubDepositService) Reject(ctx context.Context, adminID, depositID string) (services.CheckResult, error) {
	if s.rejectFn == nil {
		return services.CheckResult{}, nil
	}
	return s.rejectFn(ctx, adminID, depositID)
}

func (s stubDepositService) History(ctx context.Context, userID string, limit, offset int) ([]store.DepositRow, error) {
	if s.historyFn == nil {
		return nil, nil
	}
	return s.historyFn(ctx, userID, limit, offset)
}

func (s stubDepositService) ListByStatus(ctx context.Context, status string, limit, offset int) ([]store.DepositRow, error) {
	if s.listByStatusFn == nil {
		return nil, nil
	}
	return s.listByStatusFn(ctx, status, limit, offset)
}

type stubRentalService struct {
	buyFn     func(ctx context.Context, userID, service string) (services.RentalPurchase, error)
	getFn     func(ctx context.Context, userID, rentalID string) (store.RentalRow, error)
	historyFn func(ctx context.Context, userID string, limit, offset int) ([]store.RentalRow, error)
}

func (s stubRentalService) Buy(ctx context.Context, userID, service string) (services.RentalPurchase, error) {
	if s.buyFn == nil {
		return services.RentalPurchase{}, nil
	}
	return s.buyFn(ctx, userID, service)
}

func (s stubRentalService) Get(ctx context.Context, userID, rentalID string) (store.RentalRow, error) {
	if s.getFn == nil {
		return store.RentalRow{}, nil
	}
	return s.getFn(ctx, userID, rentalID)
}

func (s stubRentalService) History(ctx context.Context, userID string, limit, offset int) ([]store.RentalRow, error) {
	if s.historyFn == nil {
		return nil, nil
	}
	return s.historyFn(ctx, userID, limit, offset)
}

type stubReconcileService struct {
	reconcileFn func(ctx context.Context, bankTxn gateway.BankTransaction) (services.ReconcileResult, error)
}

func (s stubReconcileService) Reconcile(ctx context.Context, bankTxn gateway.BankTransaction) (services.ReconcileResult, error) {
	if s.reconcileFn == nil {
		return services.ReconcileResult{}, nil
	}
	return s.reconcileFn(ctx, bankTxn)
}

func testConfig() config.Config {
	return config.Config{
		AppEnv:         "test",
		Port:           "0",
		JWTSecret:      "secret",
		TokenTTL:       time.Minute,
		AllowedOrigins: "*",
		WebhookSecret:  "hook-secret",
		SignatureMode:  "warn",
	}
}

func newTestHandler(txRunner fakeTxRunner, users stubUserStore, ledger stubTransactionStore, admin stubAdminStore, audit stubAuditStore, deposits stubDepositService, rentals stubRentalService, reconcile stubReconcileService) *Handler {
	return New(txRunner, testConfig(), users, ledger, admin, audit, deposits, rentals, reconcile, websocket.NewHub())
}

func authToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.GenerateToken("secret", userID, time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	return token
}

func serveRoutes(h *Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	return rr
}
