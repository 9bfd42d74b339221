package services

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"otpsim/internal/db"
	"otpsim/internal/gateway"
	"otpsim/internal/models"
	"otpsim/internal/notify"
	"otpsim/internal/paycode"
	"otpsim/internal/store"
	"otpsim/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Outcome tags are expected control-flow results, not errors. Most bank
// transactions flowing through a shared account are not deposits at all.
type Outcome string

const (
	OutcomeCompleted         Outcome = "completed"
	OutcomeSkippedNotDeposit Outcome = "skipped-not-deposit"
	OutcomeSkippedNoCode     Outcome = "skipped-no-code"
	OutcomeNoMatchingDeposit Outcome = "no-matching-deposit"
	OutcomeAlreadyProcessed  Outcome = "already-processed"
)

type ReconcileResult struct {
	Outcome        Outcome
	DepositID      string
	DepositStatus  string
	Amount         int64
	BalanceAfter   int64
	AmountMismatch bool
}

var errDepositNotPending = errors.New("deposit no longer pending")

type DepositStore interface {
	GetByID(ctx context.Context, depositID string) (store.DepositRow, error)
	GetByCode(ctx context.Context, paymentCode string) (store.DepositRow, error)
	GetPendingByCode(ctx context.Context, paymentCode string) (store.DepositRow, error)
	CompleteIfPending(ctx context.Context, tx store.Execer, depositID, gatewayTransactionID string) (int64, error)
	ExpireIfPending(ctx context.Context, tx store.Execer, depositID string) (int64, error)
}

type UserStore interface {
	GetBalance(ctx context.Context, userID string) (int64, error)
	GetBalanceForUpdate(ctx context.Context, tx store.Getter, userID string) (int64, error)
	UpdateBalance(ctx context.Context, tx store.Execer, userID string, balance int64) error
}

type TransactionStore interface {
	Create(ctx context.Context, tx store.Execer, input store.TransactionInput) error
}

type BalanceHub interface {
	BroadcastBalance(userID string, update websocket.BalanceUpdate)
}

type ReconcileService struct {
	txRunner     db.TxRunner
	deposits     DepositStore
	users        UserStore
	transactions TransactionStore
	notifier     notify.Notifier
	hub          BalanceHub
	tolerance    int64
}

func NewReconcileService(txRunner db.TxRunner, deposits DepositStore, users UserStore, transactions TransactionStore, notifier notify.Notifier, hub BalanceHub, tolerance int64) *ReconcileService {
	return &ReconcileService{
		txRunner:     txRunner,
		deposits:     deposits,
		users:        users,
		transactions: transactions,
		notifier:     notifier,
		hub:          hub,
		tolerance:    tolerance,
	}
}

// Reconcile matches one incoming bank transaction against pending deposit
// requests and, on a match, credits the transferred amount exactly once.
// Both the webhook push path and the client polling path call this with
// identical semantics; they may race, and the conditional status update
// inside the transaction decides the winner.
func (s *ReconcileService) Reconcile(ctx context.Context, bankTxn gateway.BankTransaction) (ReconcileResult, error) {
	if bankTxn.TransferType != gateway.TransferIn {
		return ReconcileResult{Outcome: OutcomeSkippedNotDeposit}, nil
	}
	code := paycode.Extract(bankTxn.TransactionContent)
	if code == "" {
		return ReconcileResult{Outcome: OutcomeSkippedNoCode}, nil
	}
	deposit, err := s.deposits.GetPendingByCode(ctx, code)
	if err != nil {
		if err == sql.ErrNoRows {
			return s.resolveNonPending(ctx, code)
		}
		return ReconcileResult{}, err
	}
	if time.Now().After(deposit.ExpiresAt) {
		if err := s.expire(ctx, deposit.ID); err != nil {
			return ReconcileResult{}, err
		}
		return ReconcileResult{
			Outcome:       OutcomeAlreadyProcessed,
			DepositID:     deposit.ID,
			DepositStatus: models.DepositStatusExpired,
		}, nil
	}
	// The transferred amount is what gets credited, even on a shortfall
	// beyond tolerance; the mismatch is flagged for operator review, not
	// rejected.
	mismatch := bankTxn.TransferAmount < deposit.Amount-s.tolerance
	if mismatch {
		log.Printf("reconcile: amount mismatch on deposit %s: requested %d, received %d (ref %s)",
			deposit.ID, deposit.Amount, bankTxn.TransferAmount, bankTxn.ReferenceNumber)
	}

	var balanceAfter int64
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		affected, err := s.deposits.CompleteIfPending(ctx, tx, deposit.ID, bankTxn.ReferenceNumber)
		if err != nil {
			return err
		}
		if affected == 0 {
			return errDepositNotPending
		}
		balanceBefore, err := s.users.GetBalanceForUpdate(ctx, tx, deposit.UserID)
		if err != nil {
			return err
		}
		balanceAfter = balanceBefore + bankTxn.TransferAmount
		if err := s.users.UpdateBalance(ctx, tx, deposit.UserID, balanceAfter); err != nil {
			return err
		}
		reference := bankTxn.ReferenceNumber
		return s.transactions.Create(ctx, tx, store.TransactionInput{
			ID:            uuid.NewString(),
			UserID:        deposit.UserID,
			Type:          models.TxTypeDeposit,
			Amount:        bankTxn.TransferAmount,
			BalanceBefore: balanceBefore,
			BalanceAfter:  balanceAfter,
			Description:   "Deposit " + deposit.PaymentCode,
			ReferenceID:   &reference,
			Status:        "completed",
		})
	})
	if err != nil {
		if errors.Is(err, errDepositNotPending) {
			current, lookupErr := s.deposits.GetByID(ctx, deposit.ID)
			if lookupErr != nil {
				return ReconcileResult{}, lookupErr
			}
			return ReconcileResult{
				Outcome:       OutcomeAlreadyProcessed,
				DepositID:     deposit.ID,
				DepositStatus: current.Status,
			}, nil
		}
		return ReconcileResult{}, err
	}

	s.hub.BroadcastBalance(deposit.UserID, websocket.BalanceUpdate{
		Balance:     balanceAfter,
		Event:       "deposit_completed",
		ReferenceID: bankTxn.ReferenceNumber,
	})
	s.notifier.Notify(ctx, notify.Event{
		Kind:        "deposit_completed",
		UserID:      deposit.UserID,
		Amount:      bankTxn.TransferAmount,
		PaymentCode: deposit.PaymentCode,
		ReferenceID: bankTxn.ReferenceNumber,
	})
	return ReconcileResult{
		Outcome:        OutcomeCompleted,
		DepositID:      deposit.ID,
		DepositStatus:  models.DepositStatusCompleted,
		Amount:         bankTxn.TransferAmount,
		BalanceAfter:   balanceAfter,
		AmountMismatch: mismatch,
	}, nil
}

func (s *ReconcileService) resolveNonPending(ctx context.Context, code string) (ReconcileResult, error) {
	deposit, err := s.deposits.GetByCode(ctx, code)
	if err != nil {
		if err == sql.ErrNoRows {
			return ReconcileResult{Outcome: OutcomeNoMatchingDeposit}, nil
		}
		return ReconcileResult{}, err
	}
	return ReconcileResult{
		Outcome:       OutcomeAlreadyProcessed,
		DepositID:     deposit.ID,
		DepositStatus: deposit.Status,
	}, nil
}

func (s *ReconcileService) expire(ctx context.Context, depositID string) error {
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := s.deposits.ExpireIfPending(ctx, tx, depositID)
		return err
	})
}
