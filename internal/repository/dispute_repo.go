package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hourbank/backend/internal/models"
)

const disputeColumns = `id, escrow_id, raised_by, reason, details, evidence, status, admin_decision, decision_payload, created_at, resolved_at`

type DisputeRepo struct {
	pool *pgxpool.Pool
}

func NewDisputeRepo(pool *pgxpool.Pool) *DisputeRepo {
	return &DisputeRepo{pool: pool}
}

func scanDispute(row pgx.Row) (*models.Dispute, error) {
	var d models.Dispute
	err := row.Scan(&d.ID, &d.EscrowID, &d.RaisedBy, &d.Reason, &d.Details, &d.Evidence, &d.Status, &d.AdminDecision, &d.DecisionPayload, &d.CreatedAt, &d.ResolvedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DisputeRepo) CreateTx(ctx context.Context, tx pgx.Tx, d *models.Dispute) error {
	return tx.QueryRow(ctx, `
		INSERT INTO disputes (id, escrow_id, raised_by, reason, details, evidence, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, d.ID, d.EscrowID, d.RaisedBy, d.Reason, d.Details, d.Evidence, d.Status).Scan(&d.CreatedAt)
}

func (r *DisputeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return scanDispute(r.pool.QueryRow(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id))
}

// GetForUpdate locks the dispute row. Call within a transaction.
func (r *DisputeRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Dispute, error) {
	return scanDispute(tx.QueryRow(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1 FOR UPDATE`, id))
}

func (r *DisputeRepo) UpdateTx(ctx context.Context, tx pgx.Tx, d *models.Dispute) error {
	_, err := tx.Exec(ctx, `
		UPDATE disputes SET status = $2, admin_decision = $3, decision_payload = $4, resolved_at = $5 WHERE id = $1
	`, d.ID, d.Status, d.AdminDecision, d.DecisionPayload, d.ResolvedAt)
	return err
}

// List returns disputes, optionally filtered by status ("" for all),
// newest first. The admin console polls this.
func (r *DisputeRepo) List(ctx context.Context, status models.DisputeStatus) ([]*models.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes ORDER BY created_at DESC`
	args := []any{}
	if status != "" {
		query = `SELECT ` + disputeColumns + ` FROM disputes WHERE status = $1 ORDER BY created_at DESC`
		args = append(args, status)
	}
	rows, err := r.pool.Query(ctx, query, args...)
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
