package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fafwork/backend/internal/models"
)

type ContractRepo struct {
	pool *pgxpool.Pool
}

func NewContractRepo(pool *pgxpool.Pool) *ContractRepo {
	return &ContractRepo{pool: pool}
}

const selectContract = `
	SELECT id, job_id, client_id, worker_id, total_amount, status, funds_locked,
	       client_signature, worker_signature, signed_at, settlement_requested_at,
	       created_at, updated_at
	FROM contracts`

func (r *ContractRepo) CreateTx(ctx context.Context, tx pgx.Tx, c *models.Contract) error {
	return tx.QueryRow(ctx, `
		INSERT INTO contracts (id, job_id, client_id, worker_id, total_amount, status, funds_locked)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, c.ID, c.JobID, c.ClientID, c.WorkerID, c.TotalAmount, c.Status, c.FundsLocked).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *ContractRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	return scanContract(r.pool.QueryRow(ctx, selectContract+` WHERE id = $1`, id))
}

// GetByIDForUpdate locks the contract row. Call within a transaction; the row
// lock serializes checkpoint-cascade checks and dispute settlement against
// concurrent approvals on the same contract.
func (r *ContractRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Contract, error) {
	return scanContract(tx.QueryRow(ctx, selectContract+` WHERE id = $1 FOR UPDATE`, id))
}

// GetDraftByJobTx returns the job's DRAFT contract, locked for update.
func (r *ContractRepo) GetDraftByJobTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (*models.Contract, error) {
	return scanContract(tx.QueryRow(ctx, selectContract+` WHERE job_id = $1 AND status = 'DRAFT' FOR UPDATE`, jobID))
}

// HasActiveByWorkerTx reports whether the worker is bound to any ACTIVE
// contract (exclusive-work policy).
func (r *ContractRepo) HasActiveByWorkerTx(ctx context.Context, tx pgx.Tx, workerID uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM contracts WHERE worker_id = $1 AND status = 'ACTIVE')
	`, workerID).Scan(&exists)
	return exists, err
}

// HasActiveByWorker is the pool-level variant used for pre-checks outside a
// transaction (applying is re-validated at acceptance time).
func (r *ContractRepo) HasActiveByWorker(ctx context.Context, workerID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM contracts WHERE worker_id = $1 AND status = 'ACTIVE')
	`, workerID).Scan(&exists)
	return exists, err
}

// AssignWorkerTx binds the worker and activates the contract. Conditional on
// DRAFT status; returns false if the contract was not a draft.
func (r *ContractRepo) AssignWorkerTx(ctx context.Context, tx pgx.Tx, id, workerID uuid.UUID) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE contracts
		SET worker_id = $2, status = 'ACTIVE', updated_at = now()
		WHERE id = $1 AND status = 'DRAFT'
	`, id, workerID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *ContractRepo) UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error {
	_, err := tx.Exec(ctx, `UPDATE contracts SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	return err
}

func (r *ContractRepo) SetFundsLockedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	_, err := tx.Exec(ctx, `UPDATE contracts SET funds_locked = TRUE, updated_at = now() WHERE id = $1`, id)
	return err
}

func (r *ContractRepo) SetSettlementRequestedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	_, err := tx.Exec(ctx, `UPDATE contracts SET settlement_requested_at = now(), updated_at = now() WHERE id = $1`, id)
	return err
}

// SignTx records a participant signature. column must be "client_signature"
// or "worker_signature"; signed_at is stamped once both are present.
func (r *ContractRepo) SignTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, column, signature string) (*models.Contract, error) {
	if column != "client_signature" && column != "worker_signature" {
		panic("repository: invalid signature column " + column)
	}
	_, err := tx.Exec(ctx, `UPDATE contracts SET `+column+` = $2, updated_at = now() WHERE id = $1`, id, signature)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE contracts SET signed_at = now()
		WHERE id = $1 AND signed_at IS NULL
		  AND client_signature IS NOT NULL AND worker_signature IS NOT NULL
	`, id)
	if err != nil {
		return nil, err
	}
	return scanContract(tx.QueryRow(ctx, selectContract+` WHERE id = $1`, id))
}

func (r *ContractRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Contract, error) {
	rows, err := r.pool.Query(ctx, selectContract+` WHERE client_id = $1 OR worker_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func scanContract(row pgx.Row) (*models.Contract, error) {
	var c models.Contract
	err := row.Scan(&c.ID, &c.JobID, &c.ClientID, &c.WorkerID, &c.TotalAmount, &c.Status, &c.FundsLocked,
		&c.ClientSignature, &c.WorkerSignature, &c.SignedAt, &c.SettlementRequestedAt,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
