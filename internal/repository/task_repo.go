package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hourbank/backend/internal/models"
)

const taskColumns = `id, creator_id, acceptor_id, type, title, description, estimated_credits, mode, status, location_city, location_country, online_platform, proposed_times, confirmed_time, version, created_at, updated_at`

type TaskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

func scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.CreatorID, &t.AcceptorID, &t.Type, &t.Title, &t.Description, &t.EstimatedCredits, &t.Mode, &t.Status, &t.LocationCity, &t.LocationCountry, &t.OnlinePlatform, &t.ProposedTimes, &t.ConfirmedTime, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TaskRepo) Create(ctx context.Context, t *models.Task) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO tasks (id, creator_id, acceptor_id, type, title, description, estimated_credits, mode, status, location_city, location_country, online_platform, proposed_times, confirmed_time, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at
	`, t.ID, t.CreatorID, t.AcceptorID, t.Type, t.Title, t.Description, t.EstimatedCredits, t.Mode, t.Status, t.LocationCity, t.LocationCountry, t.OnlinePlatform, t.ProposedTimes, t.ConfirmedTime, t.Version).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *TaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return scanTask(r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
}

// UpdateTx persists the task with an optimistic version check. The version
// was already bumped by the caller; the WHERE clause matches the previous
// value, so a concurrent transition makes this update touch zero rows.
func (r *TaskRepo) UpdateTx(ctx context.Context, tx pgx.Tx, t *models.Task) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE tasks SET acceptor_id = $2, status = $3, confirmed_time = $4, proposed_times = $5, version = $6, updated_at = now()
		WHERE id = $1 AND version = $7
	`, t.ID, t.AcceptorID, t.Status, t.ConfirmedTime, t.ProposedTimes, t.Version, t.Version-1)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListOpen returns open tasks for the marketplace, newest first.
func (r *TaskRepo) ListOpen(ctx context.Context) ([]*models.Task, error) {
	return r.list(ctx, `SELECT `+taskColumns+` FROM tasks WHERE status = 'open' ORDER BY created_at DESC`)
}

// ListByUser returns tasks the user created or accepted.
func (r *TaskRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Task, error) {
	return r.list(ctx, `SELECT `+taskColumns+` FROM tasks WHERE creator_id = $1 OR acceptor_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *TaskRepo) list(ctx context.Context, query string, args ...any) ([]*models.Task, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}
