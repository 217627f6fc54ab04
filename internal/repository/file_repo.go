package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hourbank/backend/internal/models"
)

// FileRepo stores evidence metadata. The blobs themselves live in an
// external store; this table only records the references.
type FileRepo struct {
	pool *pgxpool.Pool
}

func NewFileRepo(pool *pgxpool.Pool) *FileRepo {
	return &FileRepo{pool: pool}
}

func (r *FileRepo) Create(ctx context.Context, f *models.FileRecord) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO files (id, owner_id, bucket, path, url, file_hash, size_bytes, mime_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING uploaded_at
	`, f.ID, f.OwnerID, f.Bucket, f.Path, f.URL, f.FileHash, f.SizeBytes, f.MimeType).Scan(&f.UploadedAt)
}

func (r *FileRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.FileRecord, error) {
	var f models.FileRecord
	err := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, bucket, path, url, file_hash, size_bytes, mime_type, uploaded_at
		FROM files WHERE id = $1
	`, id).Scan(&f.ID, &f.OwnerID, &f.Bucket, &f.Path, &f.URL, &f.FileHash, &f.SizeBytes, &f.MimeType, &f.UploadedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *FileRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.FileRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, owner_id, bucket, path, url, file_hash, size_bytes, mime_type, uploaded_at
		FROM files WHERE owner_id = $1 ORDER BY uploaded_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.FileRecord
	for rows.Next() {
		var f models.FileRecord
		if err := rows.Scan(&f.ID, &f.OwnerID, &f.Bucket, &f.Path, &f.URL, &f.FileHash, &f.SizeBytes, &f.MimeType, &f.UploadedAt); err != nil {
			return nil, err
		}
		list = append(list, &f)
	}
	return list, rows.Err()
}
