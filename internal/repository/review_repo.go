package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hourbank/backend/internal/models"
)

const reviewColumns = `id, task_id, reviewer_id, reviewee_id, rating, title, comment, tags, is_anonymous, is_hidden, created_at`

type ReviewRepo struct {
	pool *pgxpool.Pool
}

func NewReviewRepo(pool *pgxpool.Pool) *ReviewRepo {
	return &ReviewRepo{pool: pool}
}

func scanReview(row pgx.Row) (*models.Review, error) {
	var v models.Review
	err := row.Scan(&v.ID, &v.TaskID, &v.ReviewerID, &v.RevieweeID, &v.Rating, &v.Title, &v.Comment, &v.Tags, &v.IsAnonymous, &v.IsHidden, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *ReviewRepo) Create(ctx context.Context, v *models.Review) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO reviews (id, task_id, reviewer_id, reviewee_id, rating, title, comment, tags, is_anonymous, is_hidden)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`, v.ID, v.TaskID, v.ReviewerID, v.RevieweeID, v.Rating, v.Title, v.Comment, v.Tags, v.IsAnonymous, v.IsHidden).Scan(&v.CreatedAt)
}

func (r *ReviewRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Review, error) {
	return scanReview(r.pool.QueryRow(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id = $1`, id))
}

// ListByTask returns public (non-hidden) reviews for a task.
func (r *ReviewRepo) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*models.Review, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reviewColumns+` FROM reviews WHERE task_id = $1 AND NOT is_hidden ORDER BY created_at DESC
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Review
	for rows.Next() {
		v, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, v)
	}
	return list, rows.Err()
}

// SetHidden is the moderation switch; it never touches the ledger. Returns
// the reviewee id so the caller can recompute that account's reputation.
func (r *ReviewRepo) SetHidden(ctx context.Context, id uuid.UUID, hidden bool) (uuid.UUID, error) {
	var reviewee uuid.UUID
	err := r.pool.QueryRow(ctx, `
		UPDATE reviews SET is_hidden = $2 WHERE id = $1 RETURNING reviewee_id
	`, id, hidden).Scan(&reviewee)
	if err != nil {
		return uuid.Nil, err
	}
	return reviewee, nil
}
