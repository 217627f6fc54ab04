package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RequestRepo backs escrow idempotency. A request id is written in the
// same transaction as the operation it guards, so a replay after a partial
// failure finds either the committed key (and returns the original result)
// or nothing (and the whole operation reruns cleanly).
type RequestRepo struct {
	pool *pgxpool.Pool
}

func NewRequestRepo(pool *pgxpool.Pool) *RequestRepo {
	return &RequestRepo{pool: pool}
}

func (r *RequestRepo) Get(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) (uuid.UUID, bool, error) {
	var escrowID uuid.UUID
	err := tx.QueryRow(ctx, `
		SELECT escrow_id FROM idempotency_keys WHERE request_id = $1
	`, requestID).Scan(&escrowID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	return escrowID, true, nil
}

func (r *RequestRepo) Put(ctx context.Context, tx pgx.Tx, requestID, escrowID uuid.UUID, operation string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO idempotency_keys (request_id, escrow_id, operation) VALUES ($1, $2, $3)
	`, requestID, escrowID, operation)
	return err
}
