package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fafwork/backend/internal/models"
)

type DisputeRepo struct {
	pool *pgxpool.Pool
}

func NewDisputeRepo(pool *pgxpool.Pool) *DisputeRepo {
	return &DisputeRepo{pool: pool}
}

const selectDispute = `
	SELECT id, contract_id, raised_by, reason, status, resolution, resolved_by, created_at, resolved_at
	FROM disputes`

func (r *DisputeRepo) CreateTx(ctx context.Context, tx pgx.Tx, d *models.Dispute) error {
	return tx.QueryRow(ctx, `
		INSERT INTO disputes (id, contract_id, raised_by, reason, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, d.ID, d.ContractID, d.RaisedBy, d.Reason, d.Status).Scan(&d.CreatedAt)
}

func (r *DisputeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return scanDispute(r.pool.QueryRow(ctx, selectDispute+` WHERE id = $1`, id))
}

// GetByIDForUpdate locks the dispute row so resolution runs exactly once.
func (r *DisputeRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Dispute, error) {
	return scanDispute(tx.QueryRow(ctx, selectDispute+` WHERE id = $1 FOR UPDATE`, id))
}

// ResolveTx closes an OPEN dispute. Returns false if it was already resolved.
func (r *DisputeRepo) ResolveTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, resolution string, resolvedBy uuid.UUID) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE disputes
		SET status = 'RESOLVED', resolution = $2, resolved_by = $3, resolved_at = now()
		WHERE id = $1 AND status = 'OPEN'
	`, id, resolution, resolvedBy)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *DisputeRepo) ListOpen(ctx context.Context) ([]*models.Dispute, error) {
	rows, err := r.pool.Query(ctx, selectDispute+` WHERE status = 'OPEN' ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

func scanDispute(row pgx.Row) (*models.Dispute, error) {
	var d models.Dispute
	err := row.Scan(&d.ID, &d.ContractID, &d.RaisedBy, &d.Reason, &d.Status, &d.Resolution, &d.ResolvedBy, &d.CreatedAt, &d.ResolvedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
