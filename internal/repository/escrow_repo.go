package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hourbank/backend/internal/models"
)

const escrowColumns = `id, task_id, requester_id, provider_id, credits_locked, credits_released, status, locked_at, released_at, auto_release_at, dispute_id, is_finalized, version, created_at`

type EscrowRepo struct {
	pool *pgxpool.Pool
}

func NewEscrowRepo(pool *pgxpool.Pool) *EscrowRepo {
	return &EscrowRepo{pool: pool}
}

func scanEscrow(row pgx.Row) (*models.Escrow, error) {
	var e models.Escrow
	err := row.Scan(&e.ID, &e.TaskID, &e.RequesterID, &e.ProviderID, &e.CreditsLocked, &e.CreditsReleased, &e.Status, &e.LockedAt, &e.ReleasedAt, &e.AutoReleaseAt, &e.DisputeID, &e.IsFinalized, &e.Version, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EscrowRepo) CreateTx(ctx context.Context, tx pgx.Tx, e *models.Escrow) error {
	return tx.QueryRow(ctx, `
		INSERT INTO escrows (id, task_id, requester_id, provider_id, credits_locked, credits_released, status, locked_at, auto_release_at, dispute_id, is_finalized, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`, e.ID, e.TaskID, e.RequesterID, e.ProviderID, e.CreditsLocked, e.CreditsReleased, e.Status, e.LockedAt, e.AutoReleaseAt, e.DisputeID, e.IsFinalized, e.Version).Scan(&e.CreatedAt)
}

func (r *EscrowRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	return scanEscrow(r.pool.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE id = $1`, id))
}

// GetForUpdate locks the escrow row. Call within a transaction.
func (r *EscrowRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Escrow, error) {
	return scanEscrow(tx.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE id = $1 FOR UPDATE`, id))
}

// ActiveByTask returns the task's non-finalized escrow with a row lock, or
// nil if none exists. The partial unique index on (task_id) WHERE NOT
// is_finalized guarantees at most one row.
func (r *EscrowRepo) ActiveByTask(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) (*models.Escrow, error) {
	e, err := scanEscrow(tx.QueryRow(ctx, `
		SELECT `+escrowColumns+` FROM escrows WHERE task_id = $1 AND NOT is_finalized FOR UPDATE
	`, taskID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// UpdateTx persists the escrow with an optimistic version check; returns
// rows updated.
func (r *EscrowRepo) UpdateTx(ctx context.Context, tx pgx.Tx, e *models.Escrow) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE escrows SET credits_released = $2, status = $3, released_at = $4, dispute_id = $5, is_finalized = $6, version = $7
		WHERE id = $1 AND version = $8
	`, e.ID, e.CreditsReleased, e.Status, e.ReleasedAt, e.DisputeID, e.IsFinalized, e.Version, e.Version-1)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListDueForAutoRelease returns locked, undisputed escrows whose
// auto_release_at has passed. The auto-release worker settles each one
// through the normal release path.
func (r *EscrowRepo) ListDueForAutoRelease(ctx context.Context, now time.Time, limit int) ([]*models.Escrow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+escrowColumns+` FROM escrows
		WHERE status = 'locked' AND NOT is_finalized AND auto_release_at IS NOT NULL AND auto_release_at <= $1
		ORDER BY auto_release_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Escrow
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}
