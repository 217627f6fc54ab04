package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hourbank/backend/internal/models"
)

// AuditRepo is append-only, like the transactions table.
type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

func (r *AuditRepo) Create(ctx context.Context, e *models.AuditEntry) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO audit_log (id, actor_id, action, escrow_id, task_id, dispute_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, e.ID, e.ActorID, e.Action, e.EscrowID, e.TaskID, e.DisputeID, e.Detail).Scan(&e.CreatedAt)
}

// List returns the newest entries for the admin console.
func (r *AuditRepo) List(ctx context.Context, limit int) ([]*models.AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, actor_id, action, escrow_id, task_id, dispute_id, detail, created_at
		FROM audit_log ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.EscrowID, &e.TaskID, &e.DisputeID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
