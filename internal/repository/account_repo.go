package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hourbank/backend/internal/models"
)

const accountColumns = `id, email, password_hash, display_name, bio, skills, credits, locked_credits, role, reputation_score, completed_tasks_count, is_approved, is_suspended, created_at, updated_at`

type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.DisplayName, &a.Bio, &a.Skills, &a.Credits, &a.LockedCredits, &a.Role, &a.ReputationScore, &a.CompletedTasksCount, &a.IsApproved, &a.IsSuspended, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) Create(ctx context.Context, a *models.Account) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, email, password_hash, display_name, bio, skills, credits, locked_credits, role, is_approved)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, a.ID, a.Email, a.PasswordHash, a.DisplayName, a.Bio, a.Skills, a.Credits, a.LockedCredits, a.Role, a.IsApproved).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email))
}

func (r *AccountRepo) List(ctx context.Context) ([]*models.Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// GetForUpdate locks the account row. Call within a transaction; the lock
// is held until commit, serializing balance mutation per account.
func (r *AccountRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error) {
	return scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
}

// SetBalances writes both balance columns. Only the ledger calls this,
// after GetForUpdate in the same transaction.
func (r *AccountRepo) SetBalances(ctx context.Context, tx pgx.Tx, id uuid.UUID, credits, lockedCredits int) error {
	_, err := tx.Exec(ctx, `
		UPDATE accounts SET credits = $2, locked_credits = $3, updated_at = now() WHERE id = $1
	`, id, credits, lockedCredits)
	return err
}

func (r *AccountRepo) SetSuspended(ctx context.Context, id uuid.UUID, suspended bool) error {
	_, err := r.pool.Exec(ctx, `UPDATE accounts SET is_suspended = $2, updated_at = now() WHERE id = $1`, id, suspended)
	return err
}

func (r *AccountRepo) SetApproved(ctx context.Context, id uuid.UUID, approved bool) error {
	_, err := r.pool.Exec(ctx, `UPDATE accounts SET is_approved = $2, updated_at = now() WHERE id = $1`, id, approved)
	return err
}

// IncrementCompleted bumps the completed-tasks counter shown on profiles.
func (r *AccountRepo) IncrementCompleted(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE accounts SET completed_tasks_count = completed_tasks_count + 1, updated_at = now() WHERE id = $1`, id)
	return err
}

// RecalcReputation recomputes the account's reputation from its visible
// reviews. Called after a review is created or moderated.
func (r *AccountRepo) RecalcReputation(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE accounts SET reputation_score = COALESCE(
			(SELECT AVG(rating) FROM reviews WHERE reviewee_id = $1 AND NOT is_hidden), 0
		), updated_at = now() WHERE id = $1
	`, id)
	return err
}
