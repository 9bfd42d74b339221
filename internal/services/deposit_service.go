package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
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

var (
	ErrAmountBelowMinimum = errors.New("amount below minimum deposit")
	ErrDepositNotFound    = errors.New("deposit request not found")
	ErrNotDepositOwner    = errors.New("deposit belongs to another user")
	ErrCodeGeneration     = errors.New("could not generate a unique payment code")
)

// LifecycleDepositStore is the full surface the deposit lifecycle needs;
// reconciliation only uses the narrower DepositStore subset.
type LifecycleDepositStore interface {
	DepositStore
	Create(ctx context.Context, tx store.Execer, input store.DepositInput) error
	CodeExists(ctx context.Context, paymentCode string) (bool, error)
	ExpireOverdue(ctx context.Context, tx store.Execer, now time.Time) (int64, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]store.DepositRow, error)
	ListByStatus(ctx context.Context, status string, limit, offset int) ([]store.DepositRow, error)
}

type AuditLogger interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

type GatewayClient interface {
	RecentTransactions(ctx context.Context) ([]gateway.BankTransaction, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, bankTxn gateway.BankTransaction) (ReconcileResult, error)
}

type DepositConfig struct {
	MinAmount   int64
	TTL         time.Duration
	BankAccount string
	BankName    string
}

type DepositService struct {
	txRunner     db.TxRunner
	deposits     LifecycleDepositStore
	users        UserStore
	transactions TransactionStore
	audit        AuditLogger
	gateway      GatewayClient
	reconciler   Reconciler
	notifier     notify.Notifier
	hub          BalanceHub
	cfg          DepositConfig
}

func NewDepositService(txRunner db.TxRunner, deposits LifecycleDepositStore, users UserStore, transactions TransactionStore, audit AuditLogger, gatewayClient GatewayClient, reconciler Reconciler, notifier notify.Notifier, hub BalanceHub, cfg DepositConfig) *DepositService {
	return &DepositService{
		txRunner:     txRunner,
		deposits:     deposits,
		users:        users,
		transactions: transactions,
		audit:        audit,
		gateway:      gatewayClient,
		reconciler:   reconciler,
		notifier:     notifier,
		hub:          hub,
		cfg:          cfg,
	}
}

// DepositIntent is everything the client needs to make the bank transfer.
type DepositIntent struct {
	Deposit         store.DepositRow
	BankAccount     string
	BankName        string
	TransferContent string
}

func (s *DepositService) Create(ctx context.Context, userID string, amount int64) (DepositIntent, error) {
	if amount < s.cfg.MinAmount {
		return DepositIntent{}, ErrAmountBelowMinimum
	}
	code, err := s.uniqueCode(ctx)
	if err != nil {
		return DepositIntent{}, err
	}
	now := time.Now()
	input := store.DepositInput{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      amount,
		PaymentCode: code,
		ExpiresAt:   now.Add(s.cfg.TTL),
	}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		return s.deposits.Create(ctx, tx, input)
	})
	if err != nil {
		return DepositIntent{}, err
	}
	return DepositIntent{
		Deposit: store.DepositRow{
			ID:          input.ID,
			UserID:      userID,
			Amount:      amount,
			PaymentCode: code,
			Status:      models.DepositStatusPending,
			CreatedAt:   now,
			ExpiresAt:   input.ExpiresAt,
		},
		BankAccount:     s.cfg.BankAccount,
		BankName:        s.cfg.BankName,
		TransferContent: code,
	}, nil
}

// uniqueCode retries generation a handful of times. The timestamp prefix
// makes collisions nearly impossible, so more than one retry means the
// random source is broken and giving up is the right call.
func (s *DepositService) uniqueCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		code := paycode.Generate()
		exists, err := s.deposits.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", ErrCodeGeneration
}

type CheckResult struct {
	Deposit        store.DepositRow
	Balance        int64
	GatewayWarning bool
}

// Check is the client polling path. It resolves the deposit's current
// status, lazily expiring an overdue one, and otherwise scans recent bank
// transactions for a transfer carrying this payment code. Gateway failure
// degrades to a pending answer with a warning rather than an error; the
// webhook path will still settle the deposit.
func (s *DepositService) Check(ctx context.Context, userID, paymentCode string) (CheckResult, error) {
	paymentCode = strings.ToUpper(strings.TrimSpace(paymentCode))
	deposit, err := s.deposits.GetByCode(ctx, paymentCode)
	if err != nil {
		if err == sql.ErrNoRows {
			return CheckResult{}, ErrDepositNotFound
		}
		return CheckResult{}, err
	}
	if deposit.UserID != userID {
		return CheckResult{}, ErrNotDepositOwner
	}
	if deposit.Status != models.DepositStatusPending {
		return s.resolved(ctx, deposit)
	}
	if time.Now().After(deposit.ExpiresAt) {
		err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
			_, err := s.deposits.ExpireIfPending(ctx, tx, deposit.ID)
			return err
		})
		if err != nil {
			return CheckResult{}, err
		}
		return s.reread(ctx, deposit.ID)
	}

	bankTxns, err := s.gateway.RecentTransactions(ctx)
	if err != nil {
		log.Printf("deposit check: gateway poll failed: %v", err)
		return CheckResult{Deposit: deposit, GatewayWarning: true}, nil
	}
	for _, bankTxn := range bankTxns {
		if bankTxn.TransferType != gateway.TransferIn {
			continue
		}
		if paycode.Extract(bankTxn.TransactionContent) != paymentCode {
			continue
		}
		result, err := s.reconciler.Reconcile(ctx, bankTxn)
		if err != nil {
			return CheckResult{}, err
		}
		switch result.Outcome {
		case OutcomeCompleted, OutcomeAlreadyProcessed:
			return s.reread(ctx, deposit.ID)
		}
	}
	return CheckResult{Deposit: deposit}, nil
}

func (s *DepositService) resolved(ctx context.Context, deposit store.DepositRow) (CheckResult, error) {
	result := CheckResult{Deposit: deposit}
	if deposit.Status == models.DepositStatusCompleted {
		balance, err := s.users.GetBalance(ctx, deposit.UserID)
		if err != nil {
			return CheckResult{}, err
		}
		result.Balance = balance
	}
	return result, nil
}

func (s *DepositService) reread(ctx context.Context, depositID string) (CheckResult, error) {
	deposit, err := s.deposits.GetByID(ctx, depositID)
	if err != nil {
		return CheckResult{}, err
	}
	return s.resolved(ctx, deposit)
}

// Approve manually settles a pending deposit for its requested amount,
// used when a customer paid but garbled the transfer content. Idempotent:
// approving a non-pending deposit reports its current state untouched.
func (s *DepositService) Approve(ctx context.Context, adminID, depositID string) (CheckResult, error) {
	deposit, err := s.deposits.GetByID(ctx, depositID)
	if err != nil {
		if err == sql.ErrNoRows {
			return CheckResult{}, ErrDepositNotFound
		}
		return CheckResult{}, err
	}
	if deposit.Status != models.DepositStatusPending {
		return s.resolved(ctx, deposit)
	}
	reference := "ADMIN-" + uuid.NewString()
	var balanceAfter int64
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		affected, err := s.deposits.CompleteIfPending(ctx, tx, deposit.ID, reference)
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
		balanceAfter = balanceBefore + deposit.Amount
		if err := s.users.UpdateBalance(ctx, tx, deposit.UserID, balanceAfter); err != nil {
			return err
		}
		if err := s.transactions.Create(ctx, tx, store.TransactionInput{
			ID:            uuid.NewString(),
			UserID:        deposit.UserID,
			Type:          models.TxTypeDeposit,
			Amount:        deposit.Amount,
			BalanceBefore: balanceBefore,
			BalanceAfter:  balanceAfter,
			Description:   "Manual approval " + deposit.PaymentCode,
			ReferenceID:   &reference,
			Status:        "completed",
		}); err != nil {
			return err
		}
		data := fmt.Sprintf(`{"amount":%d,"payment_code":%q}`, deposit.Amount, deposit.PaymentCode)
		return s.audit.Log(ctx, tx, adminID, "approve_deposit", "deposit_request", deposit.ID, data)
	})
	if err != nil {
		if errors.Is(err, errDepositNotPending) {
			return s.reread(ctx, deposit.ID)
		}
		return CheckResult{}, err
	}

	s.hub.BroadcastBalance(deposit.UserID, websocket.BalanceUpdate{
		Balance:     balanceAfter,
		Event:       "deposit_completed",
		ReferenceID: reference,
	})
	s.notifier.Notify(ctx, notify.Event{
		Kind:        "deposit_approved",
		UserID:      deposit.UserID,
		Amount:      deposit.Amount,
		PaymentCode: deposit.PaymentCode,
		ReferenceID: reference,
	})
	deposit.Status = models.DepositStatusCompleted
	deposit.GatewayTransactionID = &reference
	return CheckResult{Deposit: deposit, Balance: balanceAfter}, nil
}

// Reject expires a pending deposit early. No money moves, so losing the
// race to a concurrent completion simply reports the completed state.
func (s *DepositService) Reject(ctx context.Context, adminID, depositID string) (CheckResult, error) {
	deposit, err := s.deposits.GetByID(ctx, depositID)
	if err != nil {
		if err == sql.ErrNoRows {
			return CheckResult{}, ErrDepositNotFound
		}
		return CheckResult{}, err
	}
	if deposit.Status != models.DepositStatusPending {
		return s.resolved(ctx, deposit)
	}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		affected, err := s.deposits.ExpireIfPending(ctx, tx, deposit.ID)
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		return s.audit.Log(ctx, tx, adminID, "reject_deposit", "deposit_request", deposit.ID, "{}")
	})
	if err != nil {
		return CheckResult{}, err
	}
	return s.reread(ctx, deposit.ID)
}

// ExpireOverdue is the periodic sweep behind the lazy per-request expiry.
func (s *DepositService) ExpireOverdue(ctx context.Context) (int64, error) {
	var expired int64
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		expired, err = s.deposits.ExpireOverdue(ctx, tx, time.Now())
		return err
	})
	return expired, err
}

func (s *DepositService) History(ctx context.Context, userID string, limit, offset int) ([]store.DepositRow, error) {
	return s.deposits.ListByUser(ctx, userID, limit, offset)
}

func (s *DepositService) ListByStatus(ctx context.Context, status string, limit, offset int) ([]store.DepositRow, error) {
	return s.deposits.ListByStatus(ctx, status, limit, offset)
}
