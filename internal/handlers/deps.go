package handlers

import (
	"context"

	"otpsim/internal/gateway"
	"otpsim/internal/services"
	"otpsim/internal/store"
)

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error
	GetByEmail(ctx context.Context, email string) (map[string]any, error)
	GetByID(ctx context.Context, userID string) (map[string]any, error)
}

type TransactionStore interface {
	ListByUser(ctx context.Context, userID, txType string, limit, offset int) ([]map[string]any, error)
	ListAll(ctx context.Context, limit, offset int) ([]map[string]any, error)
}

type AdminStore interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
	CreateAdmin(ctx context.Context, tx store.Execer, userID string, createdBy *string) error
	HasAnyAdmin(ctx context.Context) (bool, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	List(ctx context.Context, limit, offset int) ([]map[string]any, error)
}

type DepositService interface {
	Create(ctx context.Context, userID string, amount int64) (services.DepositIntent, error)
	Check(ctx context.Context, userID, paymentCode string) (services.CheckResult, error)
	Approve(ctx context.Context, adminID, depositID string) (services.CheckResult, error)
	Reject(ctx context.Context, adminID, depositID string) (services.CheckResult, error)
	History(ctx context.Context, userID string, limit, offset int) ([]store.DepositRow, error)
	ListByStatus(ctx context.Context, status string, limit, offset int) ([]store.DepositRow, error)
}

type RentalService interface {
	Buy(ctx context.Context, userID, service string) (services.RentalPurchase, error)
	Get(ctx context.Context, userID, rentalID string) (store.RentalRow, error)
	History(ctx context.Context, userID string, limit, offset int) ([]store.RentalRow, error)
}

type ReconcileService interface {
	Reconcile(ctx context.Context, bankTxn gateway.BankTransaction) (services.ReconcileResult, error)
}
