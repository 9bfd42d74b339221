package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"otpsim/internal/db"
	"otpsim/internal/models"
	"otpsim/internal/store"
	"otpsim/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrRentalNotFound    = errors.New("rental not found")
	ErrNotRentalOwner    = errors.New("rental belongs to another user")
)

type RentalStore interface {
	Create(ctx context.Context, tx store.Execer, input store.RentalInput) error
	GetByID(ctx context.Context, rentalID string) (store.RentalRow, error)
	DeliverIfWaiting(ctx context.Context, tx store.Execer, rentalID, code string) (int64, error)
	ExpireIfWaiting(ctx context.Context, tx store.Execer, rentalID string) (int64, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]store.RentalRow, error)
}

type RentalConfig struct {
	Price     int64
	TTL       time.Duration
	CodeDelay time.Duration
}

// RentalService simulates renting a virtual number: Buy debits the wallet
// and allocates a number, the SMS code "arrives" a short delay later, and
// a rental that expires without delivery refunds its price.
type RentalService struct {
	txRunner     db.TxRunner
	rentals      RentalStore
	users        UserStore
	transactions TransactionStore
	hub          BalanceHub
	cfg          RentalConfig
}

func NewRentalService(txRunner db.TxRunner, rentals RentalStore, users UserStore, transactions TransactionStore, hub BalanceHub, cfg RentalConfig) *RentalService {
	return &RentalService{
		txRunner:     txRunner,
		rentals:      rentals,
		users:        users,
		transactions: transactions,
		hub:          hub,
		cfg:          cfg,
	}
}

type RentalPurchase struct {
	Rental       store.RentalRow
	BalanceAfter int64
}

func (s *RentalService) Buy(ctx context.Context, userID, service string) (RentalPurchase, error) {
	now := time.Now()
	input := store.RentalInput{
		ID:          uuid.NewString(),
		UserID:      userID,
		Service:     service,
		PhoneNumber: randomPhoneNumber(),
		Price:       s.cfg.Price,
		ExpiresAt:   now.Add(s.cfg.TTL),
	}
	var balanceAfter int64
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		balanceBefore, err := s.users.GetBalanceForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if balanceBefore < s.cfg.Price {
			return ErrInsufficientFunds
		}
		balanceAfter = balanceBefore - s.cfg.Price
		if err := s.users.UpdateBalance(ctx, tx, userID, balanceAfter); err != nil {
			return err
		}
		if err := s.rentals.Create(ctx, tx, input); err != nil {
			return err
		}
		return s.transactions.Create(ctx, tx, store.TransactionInput{
			ID:            uuid.NewString(),
			UserID:        userID,
			Type:          models.TxTypePurchase,
			Amount:        -s.cfg.Price,
			BalanceBefore: balanceBefore,
			BalanceAfter:  balanceAfter,
			Description:   "Number rental " + service,
			Status:        "completed",
		})
	})
	if err != nil {
		return RentalPurchase{}, err
	}

	s.hub.BroadcastBalance(userID, websocket.BalanceUpdate{
		Balance: balanceAfter,
		Event:   "rental_purchased",
	})
	return RentalPurchase{
		Rental: store.RentalRow{
			ID:          input.ID,
			UserID:      userID,
			Service:     service,
			PhoneNumber: input.PhoneNumber,
			Price:       s.cfg.Price,
			Status:      models.RentalStatusWaiting,
			CreatedAt:   now,
			ExpiresAt:   input.ExpiresAt,
		},
		BalanceAfter: balanceAfter,
	}, nil
}

// Get advances the rental state machine on read. A waiting rental past the
// code delay gets its simulated code delivered; one past its window is
// expired and refunded. Both transitions are guarded so concurrent reads
// settle exactly once.
func (s *RentalService) Get(ctx context.Context, userID, rentalID string) (store.RentalRow, error) {
	rental, err := s.rentals.GetByID(ctx, rentalID)
	if err != nil {
		if err == sql.ErrNoRows {
			return store.RentalRow{}, ErrRentalNotFound
		}
		return store.RentalRow{}, err
	}
	if rental.UserID != userID {
		return store.RentalRow{}, ErrNotRentalOwner
	}
	if rental.Status != models.RentalStatusWaiting {
		return rental, nil
	}
	now := time.Now()
	switch {
	case now.After(rental.ExpiresAt):
		if err := s.refund(ctx, rental); err != nil {
			return store.RentalRow{}, err
		}
	case now.After(rental.CreatedAt.Add(s.cfg.CodeDelay)):
		if err := s.deliver(ctx, rental.ID); err != nil {
			return store.RentalRow{}, err
		}
	default:
		return rental, nil
	}
	return s.rentals.GetByID(ctx, rentalID)
}

func (s *RentalService) deliver(ctx context.Context, rentalID string) error {
	code := randomSMSCode()
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := s.rentals.DeliverIfWaiting(ctx, tx, rentalID, code)
		return err
	})
}

func (s *RentalService) refund(ctx context.Context, rental store.RentalRow) error {
	var balanceAfter int64
	refunded := false
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		affected, err := s.rentals.ExpireIfWaiting(ctx, tx, rental.ID)
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		balanceBefore, err := s.users.GetBalanceForUpdate(ctx, tx, rental.UserID)
		if err != nil {
			return err
		}
		balanceAfter = balanceBefore + rental.Price
		if err := s.users.UpdateBalance(ctx, tx, rental.UserID, balanceAfter); err != nil {
			return err
		}
		reference := "REFUND-" + rental.ID
		refunded = true
		return s.transactions.Create(ctx, tx, store.TransactionInput{
			ID:            uuid.NewString(),
			UserID:        rental.UserID,
			Type:          models.TxTypeRefund,
			Amount:        rental.Price,
			BalanceBefore: balanceBefore,
			BalanceAfter:  balanceAfter,
			Description:   "Refund rental " + rental.Service,
			ReferenceID:   &reference,
			Status:        "completed",
		})
	})
	if err != nil {
		return err
	}
	if refunded {
		s.hub.BroadcastBalance(rental.UserID, websocket.BalanceUpdate{
			Balance:     balanceAfter,
			Event:       "rental_refunded",
			ReferenceID: "REFUND-" + rental.ID,
		})
	}
	return nil
}

func (s *RentalService) History(ctx context.Context, userID string, limit, offset int) ([]store.RentalRow, error) {
	return s.rentals.ListByUser(ctx, userID, limit, offset)
}

func randomPhoneNumber() string {
	return fmt.Sprintf("09%08d", rand.Intn(100000000))
}

func randomSMSCode() string {
	return fmt.Sprintf("%06d", rand.Intn(1000000))
}
