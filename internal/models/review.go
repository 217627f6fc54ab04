package models

import (
	"time"

	"github.com/google/uuid"
)

// Review is post-completion feedback. It never touches the ledger; the only
// moderated field is IsHidden.
type Review struct {
	ID          uuid.UUID `json:"id"`
	TaskID      uuid.UUID `json:"task_id"`
	ReviewerID  uuid.UUID `json:"reviewer_id"`
	RevieweeID  uuid.UUID `json:"reviewee_id"`
	Rating      int       `json:"rating"`
	Title       *string   `json:"title,omitempty"`
	Comment     *string   `json:"comment,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	IsAnonymous bool      `json:"is_anonymous"`
	IsHidden    bool      `json:"is_hidden"`
	CreatedAt   time.Time `json:"created_at"`
}
