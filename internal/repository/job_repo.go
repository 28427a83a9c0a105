package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fafwork/backend/internal/models"
)

type JobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

func (r *JobRepo) CreateTx(ctx context.Context, tx pgx.Tx, j *models.Job) error {
	return tx.QueryRow(ctx, `
		INSERT INTO jobs (id, client_id, title, description, category, budget, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, j.ID, j.ClientID, j.Title, j.Description, j.Category, j.Budget, j.Status).Scan(&j.CreatedAt, &j.UpdatedAt)
}

func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return scanJob(r.pool.QueryRow(ctx, selectJob+` WHERE id = $1`, id))
}

func (r *JobRepo) GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Job, error) {
	return scanJob(tx.QueryRow(ctx, selectJob+` WHERE id = $1`, id))
}

func (r *JobRepo) UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error {
	_, err := tx.Exec(ctx, `UPDATE jobs SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	return err
}

func (r *JobRepo) ListOpen(ctx context.Context, limit, offset int) ([]*models.Job, error) {
	return r.list(ctx, selectJob+` WHERE status = 'OPEN' ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
}

func (r *JobRepo) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.Job, error) {
	return r.list(ctx, selectJob+` WHERE client_id = $1 ORDER BY created_at DESC`, clientID)
}

const selectJob = `SELECT id, client_id, title, description, category, budget, status, created_at, updated_at FROM jobs`

func (r *JobRepo) list(ctx context.Context, query string, args ...any) ([]*models.Job, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Job
	for rows.Next() {
		var j models.Job
		if err := rows.Scan(&j.ID, &j.ClientID, &j.Title, &j.Description, &j.Category, &j.Budget, &j.Status, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &j)
	}
	return list, rows.Err()
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.ClientID, &j.Title, &j.Description, &j.Category, &j.Budget, &j.Status, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}
