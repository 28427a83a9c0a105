package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fafwork/backend/internal/models"
)

type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// Ensure returns the user's wallet, creating a zero wallet on first access.
func (r *WalletRepo) Ensure(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO wallets (id, user_id, balance_points, locked_points)
		VALUES ($1, $2, 0, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, uuid.New(), userID)
	if err != nil {
		return nil, err
	}
	return r.GetByUserID(ctx, userID)
}

func (r *WalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var w models.Wallet
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, balance_points, locked_points, updated_at
		FROM wallets WHERE user_id = $1
	`, userID).Scan(&w.ID, &w.UserID, &w.BalancePoints, &w.LockedPoints, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// EnsureTx is Ensure inside the caller's transaction.
func (r *WalletRepo) EnsureTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO wallets (id, user_id, balance_points, locked_points)
		VALUES ($1, $2, 0, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, uuid.New(), userID)
	if err != nil {
		return nil, err
	}
	var w models.Wallet
	err = tx.QueryRow(ctx, `
		SELECT id, user_id, balance_points, locked_points, updated_at
		FROM wallets WHERE user_id = $1
	`, userID).Scan(&w.ID, &w.UserID, &w.BalancePoints, &w.LockedPoints, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Lock atomically moves amount from balance to locked if the balance covers it.
// Returns false when the balance is insufficient; the guard and the mutation
// are one conditional UPDATE.
func (r *WalletRepo) Lock(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE wallets
		SET balance_points = balance_points - $1, locked_points = locked_points + $1, updated_at = now()
		WHERE user_id = $2 AND balance_points >= $1
	`, amount, userID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// ReleaseLocked deducts amount from locked points (the client side of a
// release). Returns false when locked points are insufficient.
func (r *WalletRepo) ReleaseLocked(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE wallets
		SET locked_points = locked_points - $1, updated_at = now()
		WHERE user_id = $2 AND locked_points >= $1
	`, amount, userID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// Unlock moves amount from locked back to balance (a refund). Returns false
// when locked points are insufficient.
func (r *WalletRepo) Unlock(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE wallets
		SET locked_points = locked_points - $1, balance_points = balance_points + $1, updated_at = now()
		WHERE user_id = $2 AND locked_points >= $1
	`, amount, userID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// AddBalance credits amount to the wallet's spendable balance.
func (r *WalletRepo) AddBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE wallets
		SET balance_points = balance_points + $1, updated_at = now()
		WHERE user_id = $2
	`, amount, userID)
	return err
}
