package store

import (
	"context"
	"time"
)

type DepositStore struct {
	db DB
}

func NewDepositStore(db DB) *DepositStore {
	return &DepositStore{db: db}
}

type DepositRow struct {
	ID                   string    `db:"id"`
	UserID               string    `db:"user_id"`
	Amount               int64     `db:"amount"`
	PaymentCode          string    `db:"payment_code"`
	Status               string    `db:"status"`
	GatewayTransactionID *string   `db:"gateway_transaction_id"`
	CreatedAt            time.Time `db:"created_at"`
	ExpiresAt            time.Time `db:"expires_at"`
}

type DepositInput struct {
	ID          string
	UserID      string
	Amount      int64
	PaymentCode string
	ExpiresAt   time.Time
}

const depositColumns = `id, user_id, amount, payment_code, status, gateway_transaction_id, created_at, expires_at`

func (s *DepositStore) Create(ctx context.Context, tx Execer, input DepositInput) error {
	query := `
		INSERT INTO deposit_requests (id, user_id, amount, payment_code, status, expires_at)
		VALUES ($1, $2, $3, $4, 'pending', $5)
	`
	_, err := tx.ExecContext(ctx, query, input.ID, input.UserID, input.Amount, input.PaymentCode, input.ExpiresAt)
	return err
}

func (s *DepositStore) GetByID(ctx context.Context, depositID string) (DepositRow, error) {
	var row DepositRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+depositColumns+`
		FROM deposit_requests
		WHERE id = $1
	`, depositID)
	return row, err
}

// GetByCode looks a deposit up by payment code regardless of status. The
// payment_code column is unique across all statuses, so this is the
// secondary lookup used to distinguish already-processed from no-match.
func (s *DepositStore) GetByCode(ctx context.Context, paymentCode string) (DepositRow, error) {
	var row DepositRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+depositColumns+`
		FROM deposit_requests
		WHERE payment_code = $1
	`, paymentCode)
	return row, err
}

func (s *DepositStore) GetPendingByCode(ctx context.Context, paymentCode string) (DepositRow, error) {
	var row DepositRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+depositColumns+`
		FROM deposit_requests
		WHERE payment_code = $1 AND status = 'pending'
	`, paymentCode)
	return row, err
}

// CompleteIfPending flips a deposit to completed only if it is still
// pending, as one atomic statement. A zero rows-affected result means a
// concurrent caller won the race; the caller must skip the credit.
func (s *DepositStore) CompleteIfPending(ctx context.Context, tx Execer, depositID, gatewayTransactionID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE deposit_requests
		SET status = 'completed', gateway_transaction_id = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'pending'
	`, gatewayTransactionID, depositID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ExpireIfPending is the one-way pending -> expired transition. Safe to
// race against CompleteIfPending: only one of the two can win.
func (s *DepositStore) ExpireIfPending(ctx context.Context, tx Execer, depositID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE deposit_requests
		SET status = 'expired', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, depositID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ExpireOverdue sweeps every pending deposit whose window has passed.
func (s *DepositStore) ExpireOverdue(ctx context.Context, tx Execer, now time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE deposit_requests
		SET status = 'expired', updated_at = NOW()
		WHERE status = 'pending' AND expires_at < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *DepositStore) CodeExists(ctx context.Context, paymentCode string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS(SELECT 1 FROM deposit_requests WHERE payment_code = $1)
	`, paymentCode)
	return exists, err
}

func (s *DepositStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]DepositRow, error) {
	var rows []DepositRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+depositColumns+`
		FROM deposit_requests
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *DepositStore) ListByStatus(ctx context.Context, status string, limit, offset int) ([]DepositRow, error) {
	var rows []DepositRow
	query := `
		SELECT ` + depositColumns + `
		FROM deposit_requests
	`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = append(args, status, limit, offset)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}
	err := s.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
