package services

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"otpsim/internal/gateway"
	"otpsim/internal/notify"
	"otpsim/internal/store"
)

type stubLifecycleDeposits struct {
	stubDeposits
	create        func(input store.DepositInput) error
	codeExists    func(code string) (bool, error)
	expireOverdue func(now time.Time) (int64, error)
}

func (s stubLifecycleDeposits) Create(_ context.Context, _ store.Execer, input store.DepositInput) error {
	return s.create(input)
}

func (s stubLifecycleDeposits) CodeExists(_ context.Context, code string) (bool, error) {
	if s.codeExists == nil {
		return false, nil
	}
	return s.codeExists(code)
}

func (s stubLifecycleDeposits) ExpireOverdue(_ context.Context, _ store.Execer, now time.Time) (int64, error) {
	return s.expireOverdue(now)
}

func (s stubLifecycleDeposits) ListByUser(context.Context, string, int, int) ([]store.DepositRow, error) {
	return nil, nil
}

func (s stubLifecycleDeposits) ListByStatus(context.Context, string, int, int) ([]store.DepositRow, error) {
	return nil, nil
}

type stubAudit struct {
	logged []string
}

func (s *stubAudit) Log(_ context.Context, _ store.Execer, _, action, _, entityID, _ string) error {
	s.logged = append(s.logged, action+":"+entityID)
	return nil
}

type stubGateway struct {
	txns []gateway.BankTransaction
	err  error
}

func (s stubGateway) RecentTransactions(context.Context) ([]gateway.BankTransaction, error) {
	return s.txns, s.err
}

type stubReconciler struct {
	result ReconcileResult
	calls  []gateway.BankTransaction
}

func (s *stubReconciler) Reconcile(_ context.Context, bankTxn gateway.BankTransaction) (ReconcileResult, error) {
	s.calls = append(s.calls, bankTxn)
	return s.result, nil
}

func testDepositConfig() DepositConfig {
	return DepositConfig{
		MinAmount:   10000,
		TTL:         30 * time.Minute,
		BankAccount: "0123456789",
		BankName:    "DEMOBANK",
	}
}

func TestDepositCreateRejectsBelowMinimum(t *testing.T) {
	svc := NewDepositService(stubTxRunner{}, stubLifecycleDeposits{}, &stubUsers{}, &stubTransactions{}, &stubAudit{}, stubGateway{}, &stubReconciler{}, notify.Noop{}, &stubHub{}, testDepositConfig())
	if _, err := svc.Create(context.Background(), "user-1", 9999); err != ErrAmountBelowMinimum {
		t.Fatalf("expected ErrAmountBelowMinimum, got %v", err)
	}
}

func TestDepositCreatePendingWithFreshCode(t *testing.T) {
	var created store.DepositInput
	deposits := stubLifecycleDeposits{
		create: func(input store.DepositInput) error {
			created = input
			return nil
		},
	}
	svc := NewDepositService(stubTxRunner{}, deposits, &stubUsers{}, &stubTransactions{}, &stubAudit{}, stubGateway{}, &stubReconciler{}, notify.Noop{}, &stubHub{}, testDepositConfig())

	intent, err := svc.Create(context.Background(), "user-1", 50000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(created.PaymentCode, "OTP") {
		t.Fatalf("unexpected payment code: %s", created.PaymentCode)
	}
	if created.UserID != "user-1" || created.Amount != 50000 {
		t.Fatalf("unexpected insert: %#v", created)
	}
	window := time.Until(created.ExpiresAt)
	if window < 29*time.Minute || window > 31*time.Minute {
		t.Fatalf("unexpected expiry window: %s", window)
	}
	if intent.Deposit.Status != "pending" || intent.BankAccount != "0123456789" {
		t.Fatalf("unexpected intent: %#v", intent)
	}
	if intent.TransferContent != created.PaymentCode {
		t.Fatalf("transfer content should carry the code: %s", intent.TransferContent)
	}
}

func TestDepositCreateGivesUpOnCodeCollisions(t *testing.T) {
	deposits := stubLifecycleDeposits{
		codeExists: func(string) (bool, error) { return true, nil },
	}
	svc := NewDepositService(stubTxRunner{}, deposits, &stubUsers{}, &stubTransactions{}, &stubAudit{}, stubGateway{}, &stubReconciler{}, notify.Noop{}, &stubHub{}, testDepositConfig())
	if _, err := svc.Create(context.Background(), "user-1", 50000); err != ErrCodeGeneration {
		t.Fatalf("expected ErrCodeGeneration, got %v", err)
	}
}

func TestDepositCheckRejectsForeignDeposit(t *testing.T) {
	deposit := pendingDeposit(100000)
	deposits := stubLifecycleDeposits{
		stubDeposits: stubDeposits{
			getByCode: func(string) (store.DepositRow, error) { return deposit, nil },
		},
	}
	svc := NewDepositService(stubTxRunner{}, deposits, &stubUsers{}, &stubTransactions{}, &stubAudit{}, stubGateway{}, &stubReconciler{}, notify.Noop{}, &stubHub{}, testDepositConfig())
	if _, err := svc.Check(context.Background(), "user-2", deposit.PaymentCode); err != ErrNotDepositOwner {
		t.Fatalf("expected ErrNotDepositOwner, got %v", err)
	}
}

func TestDepositCheckLazilyExpiresOverdue(t *testing.T) {
	deposit := pendingDeposit(100000)
	deposit.ExpiresAt = time.Now().Add(-time.Minute)
	expired := false
	deposits := stubLifecycleDeposits{
		stubDeposits: stubDeposits{
			getByCode: func(string) (store.DepositRow, error) { return deposit, nil },
			expireIfPending: func(string) (int64, error) {
				expired = true
				return 1, nil
			},
			getByID: func(string) (store.DepositRow, error) {
				row := deposit
				row.Status = "expired"
				return row, nil
			},
		},
	}
	svc := NewDepositService(stubTxRunner{}, deposits, &stubUsers{}, &stubTransactions{}, &stubAudit{}, stubGateway{}, &stubReconciler{}, notify.Noop{}, &stubHub{}, testDepositConfig())

	result, err := svc.Check(context.Background(), "user-1", deposit.PaymentCode)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !expired {
		t.Fatal("overdue deposit was not expired")
	}
	if result.Deposit.Status != "expired" {
		t.Fatalf("unexpected status: %s", result.Deposit.Status)
	}
}

func TestDepositCheckDegradesOnGatewayFailure(t *testing.T) {
	deposit := pendingDeposit(100000)
	deposits := stubLifecycleDeposits{
		stubDeposits: stubDeposits{
			getByCode: func(string) (store.DepositRow, error) { return deposit, nil },
		},
	}
	svc := NewDepositService(stubTxRunner{}, deposits, &stubUsers{}, &stubTransactions{}, &stubAudit{}, stubGateway{err: gateway.ErrGatewayUnavailable}, &stubReconciler{}, notify.Noop{}, &stubHub{}, testDepositConfig())

	result, err := svc.Check(context.Background(), "user-1", deposit.PaymentCode)
	if err != nil {
		t.Fatalf("gateway failure must not surface as an error: %v", err)
	}
	if result.Deposit.Status != "pending" || !result.GatewayWarning {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestDepositCheckReconcilesMatchingTransfer(t *testing.T) {
	deposit := pendingDeposit(100000)
	reads := 0
	deposits := stubLifecycleDeposits{
		stubDeposits: stubDeposits{
			getByCode: func(string) (store.DepositRow, error) { return deposit, nil },
			getByID: func(string) (store.DepositRow, error) {
				reads++
				row := deposit
				row.Status = "completed"
				return row, nil
			},
		},
	}
	reconciler := &stubReconciler{result: ReconcileResult{Outcome: OutcomeCompleted, BalanceAfter: 100000}}
	gatewayStub := stubGateway{txns: []gateway.BankTransaction{
		{TransferType: gateway.TransferOut, TransferAmount: 5000, TransactionContent: "RUT TIEN"},
		{TransferType: gateway.TransferIn, TransferAmount: 100000, TransactionContent: "NAP " + deposit.PaymentCode, ReferenceNumber: "FT300"},
	}}
	users := &stubUsers{balance: 100000}
	svc := NewDepositService(stubTxRunner{}, deposits, users, &stubTransactions{}, &stubAudit{}, gatewayStub, reconciler, notify.Noop{}, &stubHub{}, testDepositConfig())

	result, err := svc.Check(context.Background(), "user-1", deposit.PaymentCode)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reconciler.calls) != 1 || reconciler.calls[0].ReferenceNumber != "FT300" {
		t.Fatalf("unexpected reconcile calls: %#v", reconciler.calls)
	}
	if result.Deposit.Status != "completed" || result.Balance != 100000 {
		t.Fatalf("unexpected result: %#v", result)
	}
	if reads != 1 {
		t.Fatalf("expected one re-read, got %d", reads)
	}
}

func TestDepositApproveCreditsRequestedAmount(t *testing.T) {
	deposit := pendingDeposit(100000)
	users := &stubUsers{balance: 5000}
	transactions := &stubTransactions{}
	audit := &stubAudit{}
	deposits := stubLifecycleDeposits{
		stubDeposits: stubDeposits{
			getByID: func(string) (store.DepositRow, error) { return deposit, nil },
			completeIfPending: func(_, ref string) (int64, error) {
				if !strings.HasPrefix(ref, "ADMIN-") {
					t.Fatalf("manual approval needs a synthetic reference: %s", ref)
				}
				return 1, nil
			},
		},
	}
	svc := NewDepositService(stubTxRunner{}, deposits, users, transactions, audit, stubGateway{}, &stubReconciler{}, notify.Noop{}, &stubHub{}, testDepositConfig())

	result, err := svc.Approve(context.Background(), "admin-1", deposit.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Balance != 105000 {
		t.Fatalf("unexpected balance: %d", result.Balance)
	}
	if len(transactions.created) != 1 || transactions.created[0].Amount != 100000 {
		t.Fatalf("unexpected ledger entries: %#v", transactions.created)
	}
	if len(audit.logged) != 1 || audit.logged[0] != "approve_deposit:dep-1" {
		t.Fatalf("approval not audited: %#v", audit.logged)
	}
}

func TestDepositApproveNonPendingIsNoOp(t *testing.T) {
	completed := pendingDeposit(100000)
	completed.Status = "completed"
	users := &stubUsers{balance: 100000}
	transactions := &stubTransactions{}
	deposits := stubLifecycleDeposits{
		stubDeposits: stubDeposits{
			getByID: func(string) (store.DepositRow, error) { return completed, nil },
		},
	}
	svc := NewDepositService(stubTxRunner{}, deposits, users, transactions, &stubAudit{}, stubGateway{}, &stubReconciler{}, notify.Noop{}, &stubHub{}, testDepositConfig())

	result, err := svc.Approve(context.Background(), "admin-1", completed.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Deposit.Status != "completed" || len(transactions.created) != 0 {
		t.Fatalf("approve must not touch a settled deposit: %#v", result)
	}
}

func TestDepositRejectExpiresPending(t *testing.T) {
	deposit := pendingDeposit(100000)
	expired := false
	audit := &stubAudit{}
	deposits := stubLifecycleDeposits{
		stubDeposits: stubDeposits{
			getByID: func(string) (store.DepositRow, error) {
				if expired {
					row := deposit
					row.Status = "expired"
					return row, nil
				}
				return deposit, nil
			},
			expireIfPending: func(string) (int64, error) {
				expired = true
				return 1, nil
			},
		},
	}
	svc := NewDepositService(stubTxRunner{}, deposits, &stubUsers{}, &stubTransactions{}, audit, stubGateway{}, &stubReconciler{}, notify.Noop{}, &stubHub{}, testDepositConfig())

	result, err := svc.Reject(context.Background(), "admin-1", deposit.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Deposit.Status != "expired" {
		t.Fatalf("unexpected status: %s", result.Deposit.Status)
	}
	if len(audit.logged) != 1 || audit.logged[0] != "reject_deposit:dep-1" {
		t.Fatalf("rejection not audited: %#v", audit.logged)
	}
}

func TestDepositCheckMissingCode(t *testing.T) {
	deposits := stubLifecycleDeposits{
		stubDeposits: stubDeposits{
			getByCode: func(string) (store.DepositRow, error) { return store.DepositRow{}, sql.ErrNoRows },
		},
	}
	svc := NewDepositService(stubTxRunner{}, deposits, &stubUsers{}, &stubTransactions{}, &stubAudit{}, stubGateway{}, &stubReconciler{}, notify.Noop{}, &stubHub{}, testDepositConfig())
	if _, err := svc.Check(context.Background(), "user-1", "OTPMISSING99"); err != ErrDepositNotFound {
		t.Fatalf("expected ErrDepositNotFound, got %v", err)
	}
}
