package models

import "time"

type User struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Balance      int64     `db:"balance" json:"balance"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type DepositRequest struct {
	ID                   string    `db:"id" json:"id"`
	UserID               string    `db:"user_id" json:"user_id"`
	Amount               int64     `db:"amount" json:"amount"`
	PaymentCode          string    `db:"payment_code" json:"payment_code"`
	Status               string    `db:"status" json:"status"`
	GatewayTransactionID *string   `db:"gateway_transaction_id" json:"gateway_transaction_id,omitempty"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	ExpiresAt            time.Time `db:"expires_at" json:"expires_at"`
}

// Transaction is the append-only wallet ledger. Amount is signed:
// positive for credits (deposit, refund), negative for debits (purchase).
type Transaction struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	Type          string    `db:"type" json:"type"`
	Amount        int64     `db:"amount" json:"amount"`
	BalanceBefore int64     `db:"balance_before" json:"balance_before"`
	BalanceAfter  int64     `db:"balance_after" json:"balance_after"`
	Description   string    `db:"description" json:"description"`
	ReferenceID   *string   `db:"reference_id" json:"reference_id,omitempty"`
	Status        string    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

type NumberRental struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	Service     string    `db:"service" json:"service"`
	PhoneNumber string    `db:"phone_number" json:"phone_number"`
	Code        *string   `db:"code" json:"code,omitempty"`
	Price       int64     `db:"price" json:"price"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	ExpiresAt   time.Time `db:"expires_at" json:"expires_at"`
}

const (
	DepositStatusPending   = "pending"
	DepositStatusCompleted = "completed"
	DepositStatusExpired   = "expired"

	TxTypeDeposit  = "deposit"
	TxTypePurchase = "purchase"
	TxTypeRefund   = "refund"
	TxTypeWithdraw = "withdraw"

	RentalStatusWaiting   = "waiting"
	RentalStatusDelivered = "delivered"
	RentalStatusExpired   = "expired"
)
