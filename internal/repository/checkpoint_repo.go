package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fafwork/backend/internal/models"
)

type CheckpointRepo struct {
	pool *pgxpool.Pool
}

func NewCheckpointRepo(pool *pgxpool.Pool) *CheckpointRepo {
	return &CheckpointRepo{pool: pool}
}

const selectCheckpoint = `
	SELECT id, contract_id, title, description, amount, status,
	       submission_url, review_notes, due_date, created_at
	FROM checkpoints`

func (r *CheckpointRepo) CreateTx(ctx context.Context, tx pgx.Tx, cp *models.Checkpoint) error {
	return tx.QueryRow(ctx, `
		INSERT INTO checkpoints (id, contract_id, title, description, amount, status, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, cp.ID, cp.ContractID, cp.Title, cp.Description, cp.Amount, cp.Status, cp.DueDate).Scan(&cp.CreatedAt)
}

func (r *CheckpointRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Checkpoint, error) {
	return scanCheckpoint(r.pool.QueryRow(ctx, selectCheckpoint+` WHERE id = $1`, id))
}

// GetByIDTx re-reads a checkpoint inside the caller's transaction, after the
// contract row lock has been taken.
func (r *CheckpointRepo) GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Checkpoint, error) {
	return scanCheckpoint(tx.QueryRow(ctx, selectCheckpoint+` WHERE id = $1`, id))
}

func (r *CheckpointRepo) ListByContract(ctx context.Context, contractID uuid.UUID) ([]*models.Checkpoint, error) {
	rows, err := r.pool.Query(ctx, selectCheckpoint+` WHERE contract_id = $1 ORDER BY created_at`, contractID)
	if err != nil {
		return nil, err
	}
	return collectCheckpoints(rows)
}

func (r *CheckpointRepo) ListByContractTx(ctx context.Context, tx pgx.Tx, contractID uuid.UUID) ([]*models.Checkpoint, error) {
	rows, err := tx.Query(ctx, selectCheckpoint+` WHERE contract_id = $1 ORDER BY created_at`, contractID)
	if err != nil {
		return nil, err
	}
	return collectCheckpoints(rows)
}

// UpdateStatusFromTx transitions status only when the current status matches
// from. Returns false when the row was in another state.
func (r *CheckpointRepo) UpdateStatusFromTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE checkpoints SET status = $3 WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// SubmitTx marks the checkpoint SUBMITTED and records the submission URL.
func (r *CheckpointRepo) SubmitTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, submissionURL string) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE checkpoints SET status = 'SUBMITTED', submission_url = $2
		WHERE id = $1 AND status IN ('PENDING', 'REJECTED')
	`, id, submissionURL)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// RejectTx returns a SUBMITTED checkpoint to PENDING with review notes so the
// worker can resubmit.
func (r *CheckpointRepo) RejectTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, notes string) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE checkpoints SET status = 'PENDING', review_notes = $2
		WHERE id = $1 AND status = 'SUBMITTED'
	`, id, notes)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// CancelPendingByContractTx cancels the contract's still-PENDING checkpoints
// (termination path).
func (r *CheckpointRepo) CancelPendingByContractTx(ctx context.Context, tx pgx.Tx, contractID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE checkpoints SET status = 'CANCELLED' WHERE contract_id = $1 AND status = 'PENDING'
	`, contractID)
	return err
}

// CancelNonApprovedByContractTx cancels everything not yet APPROVED
// (settlement and CLIENT_WINS dispute paths).
func (r *CheckpointRepo) CancelNonApprovedByContractTx(ctx context.Context, tx pgx.Tx, contractID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE checkpoints SET status = 'CANCELLED' WHERE contract_id = $1 AND status != 'APPROVED'
	`, contractID)
	return err
}

// ApproveNonApprovedByContractTx approves everything not yet APPROVED
// (WORKER_WINS dispute path).
func (r *CheckpointRepo) ApproveNonApprovedByContractTx(ctx context.Context, tx pgx.Tx, contractID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE checkpoints SET status = 'APPROVED' WHERE contract_id = $1 AND status != 'APPROVED'
	`, contractID)
	return err
}

func collectCheckpoints(rows pgx.Rows) ([]*models.Checkpoint, error) {
	defer rows.Close()
	var list []*models.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, cp)
	}
	return list, rows.Err()
}

func scanCheckpoint(row pgx.Row) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	err := row.Scan(&cp.ID, &cp.ContractID, &cp.Title, &cp.Description, &cp.Amount, &cp.Status,
		&cp.SubmissionURL, &cp.ReviewNotes, &cp.DueDate, &cp.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &cp, nil
}
