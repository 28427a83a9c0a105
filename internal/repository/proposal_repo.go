package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fafwork/backend/internal/models"
)

type ProposalRepo struct {
	pool *pgxpool.Pool
}

func NewProposalRepo(pool *pgxpool.Pool) *ProposalRepo {
	return &ProposalRepo{pool: pool}
}

const selectProposal = `
	SELECT id, job_id, worker_id, cover_letter, proposed_price, status, created_at, updated_at
	FROM proposals`

func (r *ProposalRepo) Create(ctx context.Context, p *models.Proposal) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO proposals (id, job_id, worker_id, cover_letter, proposed_price, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, p.ID, p.JobID, p.WorkerID, p.CoverLetter, p.ProposedPrice, p.Status).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *ProposalRepo) GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Proposal, error) {
	return scanProposal(tx.QueryRow(ctx, selectProposal+` WHERE id = $1 FOR UPDATE`, id))
}

func (r *ProposalRepo) ExistsByJobAndWorker(ctx context.Context, jobID, workerID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM proposals WHERE job_id = $1 AND worker_id = $2)
	`, jobID, workerID).Scan(&exists)
	return exists, err
}

func (r *ProposalRepo) UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error {
	_, err := tx.Exec(ctx, `UPDATE proposals SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	return err
}

// WithdrawOtherPendingTx withdraws the worker's other pending proposals once
// one is accepted (exclusive-work policy).
func (r *ProposalRepo) WithdrawOtherPendingTx(ctx context.Context, tx pgx.Tx, workerID, exceptID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE proposals SET status = 'WITHDRAWN', updated_at = now()
		WHERE worker_id = $1 AND status = 'PENDING' AND id != $2
	`, workerID, exceptID)
	return err
}

// ResetAcceptedTx returns the worker's ACCEPTED proposal on a job to PENDING
// after termination frees the worker.
func (r *ProposalRepo) ResetAcceptedTx(ctx context.Context, tx pgx.Tx, jobID, workerID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE proposals SET status = 'PENDING', updated_at = now()
		WHERE job_id = $1 AND worker_id = $2 AND status = 'ACCEPTED'
	`, jobID, workerID)
	return err
}

func (r *ProposalRepo) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Proposal, error) {
	return r.list(ctx, selectProposal+` WHERE job_id = $1 ORDER BY created_at DESC`, jobID)
}

func (r *ProposalRepo) ListByWorker(ctx context.Context, workerID uuid.UUID) ([]*models.Proposal, error) {
	return r.list(ctx, selectProposal+` WHERE worker_id = $1 ORDER BY created_at DESC`, workerID)
}

func (r *ProposalRepo) list(ctx context.Context, query string, args ...any) ([]*models.Proposal, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func scanProposal(row pgx.Row) (*models.Proposal, error) {
	var p models.Proposal
	err := row.Scan(&p.ID, &p.JobID, &p.WorkerID, &p.CoverLetter, &p.ProposedPrice, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
