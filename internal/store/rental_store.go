package store

import (
	"context"
	"time"
)

type RentalStore struct {
	db DB
}

func NewRentalStore(db DB) *RentalStore {
	return &RentalStore{db: db}
}

type RentalRow struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	Service     string    `db:"service"`
	PhoneNumber string    `db:"phone_number"`
	Code        *string   `db:"code"`
	Price       int64     `db:"price"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
	ExpiresAt   time.Time `db:"expires_at"`
}

type RentalInput struct {
	ID          string
	UserID      string
	Service     string
	PhoneNumber string
	Price       int64
	ExpiresAt   time.Time
}

const rentalColumns = `id, user_id, service, phone_number, code, price, status, created_at, expires_at`

func (s *RentalStore) Create(ctx context.Context, tx Execer, input RentalInput) error {
	query := `
		INSERT INTO number_rentals (id, user_id, service, phone_number, price, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, 'waiting', $6)
	`
	_, err := tx.ExecContext(ctx, query, input.ID, input.UserID, input.Service, input.PhoneNumber, input.Price, input.ExpiresAt)
	return err
}

func (s *RentalStore) GetByID(ctx context.Context, rentalID string) (RentalRow, error) {
	var row RentalRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+rentalColumns+`
		FROM number_rentals
		WHERE id = $1
	`, rentalID)
	return row, err
}

// DeliverIfWaiting records the simulated SMS code, guarded the same way
// deposit completion is so a racing refund cannot overlap a delivery.
func (s *RentalStore) DeliverIfWaiting(ctx context.Context, tx Execer, rentalID, code string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE number_rentals
		SET status = 'delivered', code = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'waiting'
	`, code, rentalID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *RentalStore) ExpireIfWaiting(ctx context.Context, tx Execer, rentalID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE number_rentals
		SET status = 'expired', updated_at = NOW()
		WHERE id = $1 AND status = 'waiting'
	`, rentalID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *RentalStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]RentalRow, error) {
	var rows []RentalRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+rentalColumns+`
		FROM number_rentals
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
