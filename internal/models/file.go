package models

import (
	"time"

	"github.com/google/uuid"
)

// FileRecord is evidence metadata. The blob itself lives in an external
// store; the core only keeps the reference.
type FileRecord struct {
	ID         uuid.UUID `json:"id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	Bucket     string    `json:"bucket"`
	Path       string    `json:"path"`
	URL        string    `json:"url"`
	FileHash   *string   `json:"file_hash,omitempty"`
	SizeBytes  int64     `json:"size_bytes"`
	MimeType   string    `json:"mime_type"`
	UploadedAt time.Time `json:"uploaded_at"`
}
