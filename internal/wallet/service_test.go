package wallet

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fafwork/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory mocks for WalletRepo and TransactionRepo. These let us test the
// real Service logic without a database.
// ---------------------------------------------------------------------------

type mockWallets struct {
	mu      sync.Mutex
	wallets map[uuid.UUID]*models.Wallet
}

func newMockWallets() *mockWallets {
	return &mockWallets{wallets: make(map[uuid.UUID]*models.Wallet)}
}

func (m *mockWallets) seed(userID uuid.UUID, balance, locked int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallets[userID] = &models.Wallet{ID: uuid.New(), UserID: userID, BalancePoints: balance, LockedPoints: locked}
}

func (m *mockWallets) ensure(userID uuid.UUID) *models.Wallet {
	w, ok := m.wallets[userID]
	if !ok {
		w = &models.Wallet{ID: uuid.New(), UserID: userID}
		m.wallets[userID] = w
	}
	return w
}

func (m *mockWallets) Ensure(_ context.Context, userID uuid.UUID) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.ensure(userID)
	return &cp, nil
}

func (m *mockWallets) EnsureTx(_ context.Context, _ pgx.Tx, userID uuid.UUID) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.ensure(userID)
	return &cp, nil
}

func (m *mockWallets) Lock(_ context.Context, _ pgx.Tx, userID uuid.UUID, amount int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[userID]
	if !ok {
		return false, fmt.Errorf("wallet for %s not found", userID)
	}
	if w.BalancePoints < amount {
		return false, nil
	}
	w.BalancePoints -= amount
	w.LockedPoints += amount
	return true, nil
}

func (m *mockWallets) ReleaseLocked(_ context.Context, _ pgx.Tx, userID uuid.UUID, amount int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[userID]
	if !ok {
		return false, fmt.Errorf("wallet for %s not found", userID)
	}
	if w.LockedPoints < amount {
		return false, nil
	}
	w.LockedPoints -= amount
	return true, nil
}

func (m *mockWallets) Unlock(_ context.Context, _ pgx.Tx, userID uuid.UUID, amount int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[userID]
	if !ok {
		return false, fmt.Errorf("wallet for %s not found", userID)
	}
	if w.LockedPoints < amount {
		return false, nil
	}
	w.LockedPoints -= amount
	w.BalancePoints += amount
	return true, nil
}

func (m *mockWallets) AddBalance(_ context.Context, _ pgx.Tx, userID uuid.UUID, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(userID).BalancePoints += amount
	return nil
}

func (m *mockWallets) balance(userID uuid.UUID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wallets[userID].BalancePoints
}

func (m *mockWallets) locked(userID uuid.UUID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wallets[userID].LockedPoints
}

// ---

type mockTxns struct {
	mu      sync.Mutex
	entries []*models.Transaction
}

func (m *mockTxns) CreateTx(_ context.Context, _ pgx.Tx, t *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *mockTxns) ListByWalletID(_ context.Context, walletID uuid.UUID, _, _ int) ([]*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Transaction
	for _, e := range m.entries {
		if e.WalletID == walletID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockTxns) byType(typ string) []*models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Transaction
	for _, e := range m.entries {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func (m *mockTxns) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// ---

// fakeTx satisfies pgx.Tx for code paths that only pass the handle through.
type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

type fakeDB struct{}

func (fakeDB) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestLockFunds(t *testing.T) {
	client := uuid.New()
	contract := uuid.New()

	wallets := newMockWallets()
	wallets.seed(client, 1000, 0)
	txns := &mockTxns{}
	svc := NewService(fakeDB{}, wallets, txns)

	ctx := context.Background()
	if err := svc.LockFunds(ctx, nil, client, 200, models.ReferenceContract, contract); err != nil {
		t.Fatalf("LockFunds: %v", err)
	}

	if got := wallets.balance(client); got != 800 {
		t.Errorf("balance after lock: got %d, want 800", got)
	}
	if got := wallets.locked(client); got != 200 {
		t.Errorf("locked after lock: got %d, want 200", got)
	}

	locks := txns.byType(models.TransactionLock)
	if len(locks) != 1 {
		t.Fatalf("LOCK entries: got %d, want 1", len(locks))
	}
	if locks[0].Amount != 200 {
		t.Errorf("lock amount: got %d, want 200", locks[0].Amount)
	}
	if locks[0].ReferenceID != contract || locks[0].ReferenceType != models.ReferenceContract {
		t.Error("lock entry should reference the contract")
	}

	// Insufficient-funds path: balance and ledger must be untouched.
	if err := svc.LockFunds(ctx, nil, client, 9999, models.ReferenceContract, uuid.New()); err != ErrInsufficientBalance {
		t.Errorf("expected ErrInsufficientBalance, got: %v", err)
	}
	if got := wallets.balance(client); got != 800 {
		t.Errorf("balance after failed lock: got %d, want 800", got)
	}
	if got := len(txns.byType(models.TransactionLock)); got != 1 {
		t.Errorf("LOCK entries after failed lock: got %d, want 1", got)
	}
}

func TestReleaseFundsTakesPlatformFee(t *testing.T) {
	client := uuid.New()
	worker := uuid.New()
	checkpoint := uuid.New()

	const amount = 1000
	const expectedFee = 50     // 5% of 1000
	const expectedPayout = 950 // 1000 - 50

	wallets := newMockWallets()
	wallets.seed(client, 0, amount)
	wallets.seed(worker, 0, 0)
	wallets.seed(models.PlatformUserID, 0, 0)
	txns := &mockTxns{}
	svc := NewService(fakeDB{}, wallets, txns)

	payout, fee, err := svc.ReleaseFunds(context.Background(), nil, client, worker, amount, models.ReferenceCheckpoint, checkpoint)
	if err != nil {
		t.Fatalf("ReleaseFunds: %v", err)
	}
	if payout != expectedPayout || fee != expectedFee {
		t.Errorf("payout/fee: got %d/%d, want %d/%d", payout, fee, expectedPayout, expectedFee)
	}

	if got := wallets.balance(worker); got != expectedPayout {
		t.Errorf("worker balance: got %d, want %d", got, expectedPayout)
	}
	if got := wallets.balance(models.PlatformUserID); got != expectedFee {
		t.Errorf("platform balance: got %d, want %d", got, expectedFee)
	}
	if got := wallets.locked(client); got != 0 {
		t.Errorf("client locked: got %d, want 0", got)
	}

	fees := txns.byType(models.TransactionFee)
	if len(fees) != 1 || fees[0].Amount != expectedFee {
		t.Fatalf("FEE entries: got %d, want exactly one of amount %d", len(fees), expectedFee)
	}
	releases := txns.byType(models.TransactionRelease)
	if len(releases) != 2 {
		t.Fatalf("RELEASE entries: got %d, want 2", len(releases))
	}
}

func TestReleaseFundsFeeFloorsToZero(t *testing.T) {
	client := uuid.New()
	worker := uuid.New()

	wallets := newMockWallets()
	wallets.seed(client, 0, 19)
	wallets.seed(worker, 0, 0)
	txns := &mockTxns{}
	svc := NewService(fakeDB{}, wallets, txns)

	// 19 * 5 / 100 floors to 0: no fee leg, worker keeps everything.
	payout, fee, err := svc.ReleaseFunds(context.Background(), nil, client, worker, 19, models.ReferenceCheckpoint, uuid.New())
	if err != nil {
		t.Fatalf("ReleaseFunds: %v", err)
	}
	if payout != 19 || fee != 0 {
		t.Errorf("payout/fee: got %d/%d, want 19/0", payout, fee)
	}
	if got := len(txns.byType(models.TransactionFee)); got != 0 {
		t.Errorf("FEE entries: got %d, want 0", got)
	}
	if got := wallets.balance(worker); got != 19 {
		t.Errorf("worker balance: got %d, want 19", got)
	}
}

func TestReleaseFundsInsufficientEscrow(t *testing.T) {
	client := uuid.New()
	worker := uuid.New()

	wallets := newMockWallets()
	wallets.seed(client, 500, 50)
	wallets.seed(worker, 0, 0)
	txns := &mockTxns{}
	svc := NewService(fakeDB{}, wallets, txns)

	_, _, err := svc.ReleaseFunds(context.Background(), nil, client, worker, 100, models.ReferenceCheckpoint, uuid.New())
	if err != ErrInsufficientLockedFunds {
		t.Fatalf("expected ErrInsufficientLockedFunds, got: %v", err)
	}
	// Spendable balance must never cover a release.
	if got := wallets.balance(client); got != 500 {
		t.Errorf("client balance: got %d, want 500", got)
	}
	if got := wallets.balance(worker); got != 0 {
		t.Errorf("worker balance: got %d, want 0", got)
	}
	if got := txns.count(); got != 0 {
		t.Errorf("ledger entries: got %d, want 0", got)
	}
}

func TestRefundLockedFunds(t *testing.T) {
	client := uuid.New()
	contract := uuid.New()

	wallets := newMockWallets()
	wallets.seed(client, 100, 300)
	txns := &mockTxns{}
	svc := NewService(fakeDB{}, wallets, txns)

	ctx := context.Background()
	if err := svc.RefundLockedFunds(ctx, nil, client, 300, models.ReferenceContractTermination, contract); err != nil {
		t.Fatalf("RefundLockedFunds: %v", err)
	}

	if got := wallets.balance(client); got != 400 {
		t.Errorf("balance after refund: got %d, want 400", got)
	}
	if got := wallets.locked(client); got != 0 {
		t.Errorf("locked after refund: got %d, want 0", got)
	}

	refunds := txns.byType(models.TransactionRefund)
	if len(refunds) != 1 || refunds[0].Amount != 300 {
		t.Fatalf("REFUND entries: got %d, want exactly one of amount 300", len(refunds))
	}

	if err := svc.RefundLockedFunds(ctx, nil, client, 1, models.ReferenceContractTermination, contract); err != ErrInsufficientLockedFunds {
		t.Errorf("expected ErrInsufficientLockedFunds, got: %v", err)
	}
}

func TestDeposit(t *testing.T) {
	user := uuid.New()

	wallets := newMockWallets()
	txns := &mockTxns{}
	svc := NewService(fakeDB{}, wallets, txns)

	w, err := svc.Deposit(context.Background(), user, 500, uuid.New())
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if w.BalancePoints != 500 {
		t.Errorf("returned balance: got %d, want 500", w.BalancePoints)
	}
	if got := wallets.balance(user); got != 500 {
		t.Errorf("stored balance: got %d, want 500", got)
	}
	deposits := txns.byType(models.TransactionDeposit)
	if len(deposits) != 1 || deposits[0].Amount != 500 {
		t.Fatalf("DEPOSIT entries: got %d, want exactly one of amount 500", len(deposits))
	}
}

// Full cycle: deposit -> lock -> release one checkpoint -> refund the rest.
// Total points in the system must equal the deposit at every step, and no
// wallet may go negative.
func TestPointConservation(t *testing.T) {
	client := uuid.New()
	worker := uuid.New()
	contract := uuid.New()

	wallets := newMockWallets()
	wallets.seed(worker, 0, 0)
	wallets.seed(models.PlatformUserID, 0, 0)
	txns := &mockTxns{}
	svc := NewService(fakeDB{}, wallets, txns)

	ctx := context.Background()

	const deposit = 3000
	if _, err := svc.Deposit(ctx, client, deposit, uuid.New()); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if err := svc.LockFunds(ctx, nil, client, 3000, models.ReferenceContract, contract); err != nil {
		t.Fatalf("LockFunds: %v", err)
	}
	if _, _, err := svc.ReleaseFunds(ctx, nil, client, worker, 1000, models.ReferenceCheckpoint, uuid.New()); err != nil {
		t.Fatalf("ReleaseFunds: %v", err)
	}
	if err := svc.RefundLockedFunds(ctx, nil, client, 2000, models.ReferenceContractTermination, contract); err != nil {
		t.Fatalf("RefundLockedFunds: %v", err)
	}

	total := int64(0)
	for _, id := range []uuid.UUID{client, worker, models.PlatformUserID} {
		if wallets.balance(id) < 0 || wallets.locked(id) < 0 {
			t.Errorf("wallet %s went negative: balance %d, locked %d", id, wallets.balance(id), wallets.locked(id))
		}
		total += wallets.balance(id) + wallets.locked(id)
	}
	if total != deposit {
		t.Errorf("point conservation violated: total %d, want %d", total, deposit)
	}

	// Client ends with 2000 spendable, nothing locked.
	if got := wallets.balance(client); got != 2000 {
		t.Errorf("client balance: got %d, want 2000", got)
	}
	if got := wallets.locked(client); got != 0 {
		t.Errorf("client locked: got %d, want 0", got)
	}
}
