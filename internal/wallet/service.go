package wallet

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fafwork/backend/internal/models"
)

// FeePercent is the platform's cut of every release, floored.
const FeePercent = 5

var (
	// ErrInsufficientBalance is returned when a lock exceeds the spendable balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInsufficientLockedFunds is returned when a release or refund exceeds the locked balance.
	ErrInsufficientLockedFunds = errors.New("insufficient locked funds")
)

// WalletRepo is the minimal wallet-row interface the ledger needs. Every
// mutating method is a single conditional UPDATE, which is the sole
// concurrency-safety mechanism for the point columns.
type WalletRepo interface {
	Ensure(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	EnsureTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error)
	Lock(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) (bool, error)
	ReleaseLocked(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) (bool, error)
	Unlock(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) (bool, error)
	AddBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) error
}

// TransactionRepo appends to and reads the ledger's audit log.
type TransactionRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
	ListByWalletID(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*models.Transaction, error)
}

// DB begins the transactions the service owns (deposits). The escrow
// primitives run inside a caller-owned tx instead.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service owns each user's point balance and locked balance. Funds move only
// through LockFunds, ReleaseFunds, RefundLockedFunds and Deposit, and every
// movement appends to the transaction log inside the same database
// transaction.
type Service struct {
	db      DB
	wallets WalletRepo
	txns    TransactionRepo
}

func NewService(db DB, wallets WalletRepo, txns TransactionRepo) *Service {
	return &Service{db: db, wallets: wallets, txns: txns}
}

// LockFunds moves amount from the user's balance into escrow. The balance
// guard and the mutation are the same conditional UPDATE, so two concurrent
// locks cannot both pass on a stale read. Call within a transaction.
func (s *Service) LockFunds(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, refType string, refID uuid.UUID) error {
	w, err := s.wallets.EnsureTx(ctx, tx, userID)
	if err != nil {
		return err
	}
	ok, err := s.wallets.Lock(ctx, tx, userID, amount)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInsufficientBalance
	}
	return s.txns.CreateTx(ctx, tx, &models.Transaction{
		ID:            uuid.New(),
		WalletID:      w.ID,
		Type:          models.TransactionLock,
		Amount:        amount,
		Status:        models.TransactionStatusSuccess,
		ReferenceType: refType,
		ReferenceID:   refID,
	})
}

// ReleaseFunds pays amount of the client's escrow to the worker. The platform
// keeps fee = amount * FeePercent / 100 (floored) in the system wallet; the
// worker receives the remainder. Three ledger entries are written: the client
// logs the full amount, the worker the payout, the platform the fee. Call
// within a transaction.
func (s *Service) ReleaseFunds(ctx context.Context, tx pgx.Tx, clientID, workerID uuid.UUID, amount int64, refType string, refID uuid.UUID) (payout, fee int64, err error) {
	fee = amount * FeePercent / 100
	payout = amount - fee

	clientWallet, err := s.wallets.EnsureTx(ctx, tx, clientID)
	if err != nil {
		return 0, 0, err
	}
	ok, err := s.wallets.ReleaseLocked(ctx, tx, clientID, amount)
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, ErrInsufficientLockedFunds
	}

	workerWallet, err := s.wallets.EnsureTx(ctx, tx, workerID)
	if err != nil {
		return 0, 0, err
	}
	if err := s.wallets.AddBalance(ctx, tx, workerID, payout); err != nil {
		return 0, 0, err
	}

	if err := s.txns.CreateTx(ctx, tx, &models.Transaction{
		ID: uuid.New(), WalletID: clientWallet.ID,
		Type: models.TransactionRelease, Amount: amount,
		Status: models.TransactionStatusSuccess, ReferenceType: refType, ReferenceID: refID,
	}); err != nil {
		return 0, 0, err
	}
	if err := s.txns.CreateTx(ctx, tx, &models.Transaction{
		ID: uuid.New(), WalletID: workerWallet.ID,
		Type: models.TransactionRelease, Amount: payout,
		Status: models.TransactionStatusSuccess, ReferenceType: refType, ReferenceID: refID,
	}); err != nil {
		return 0, 0, err
	}

	if fee > 0 {
		platformWallet, err := s.wallets.EnsureTx(ctx, tx, models.PlatformUserID)
		if err != nil {
			return 0, 0, err
		}
		if err := s.wallets.AddBalance(ctx, tx, models.PlatformUserID, fee); err != nil {
			return 0, 0, err
		}
		if err := s.txns.CreateTx(ctx, tx, &models.Transaction{
			ID: uuid.New(), WalletID: platformWallet.ID,
			Type: models.TransactionFee, Amount: fee,
			Status: models.TransactionStatusSuccess, ReferenceType: refType, ReferenceID: refID,
		}); err != nil {
			return 0, 0, err
		}
	}
	return payout, fee, nil
}

// RefundLockedFunds returns amount of escrow to the user's spendable balance.
// Call within a transaction.
func (s *Service) RefundLockedFunds(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, refType string, refID uuid.UUID) error {
	w, err := s.wallets.EnsureTx(ctx, tx, userID)
	if err != nil {
		return err
	}
	ok, err := s.wallets.Unlock(ctx, tx, userID, amount)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInsufficientLockedFunds
	}
	return s.txns.CreateTx(ctx, tx, &models.Transaction{
		ID:            uuid.New(),
		WalletID:      w.ID,
		Type:          models.TransactionRefund,
		Amount:        amount,
		Status:        models.TransactionStatusSuccess,
		ReferenceType: refType,
		ReferenceID:   refID,
	})
}

// GetBalance returns the wallet, creating a zero one on first access.
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return s.wallets.Ensure(ctx, userID)
}

// ListTransactions returns the user's ledger entries, newest first.
func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Transaction, error) {
	w, err := s.wallets.Ensure(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.txns.ListByWalletID(ctx, w.ID, limit, offset)
}

// Deposit credits an externally validated top-up to the user's balance.
// Gateway verification happens upstream; here the money already cleared.
func (s *Service) Deposit(ctx context.Context, userID uuid.UUID, amount int64, refID uuid.UUID) (*models.Wallet, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	w, err := s.wallets.EnsureTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.wallets.AddBalance(ctx, tx, userID, amount); err != nil {
		return nil, err
	}
	if err := s.txns.CreateTx(ctx, tx, &models.Transaction{
		ID:            uuid.New(),
		WalletID:      w.ID,
		Type:          models.TransactionDeposit,
		Amount:        amount,
		Status:        models.TransactionStatusSuccess,
		ReferenceType: models.ReferenceDeposit,
		ReferenceID:   refID,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	w.BalancePoints += amount
	return w, nil
}
