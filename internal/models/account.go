package models

import (
	"time"

	"github.com/google/uuid"
)

// Account roles.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// Account is one user of the time bank. Credits and LockedCredits are only
// ever mutated through the ledger; every mutation appends a Transaction row
// in the same database transaction.
type Account struct {
	ID                  uuid.UUID `json:"id"`
	Email               string    `json:"email"`
	PasswordHash        string    `json:"-"`
	DisplayName         string    `json:"display_name"`
	Bio                 string    `json:"bio,omitempty"`
	Skills              []string  `json:"skills,omitempty"`
	Credits             int       `json:"credits"`
	LockedCredits       int       `json:"locked_credits"`
	Role                string    `json:"role"`
	ReputationScore     float64   `json:"reputation_score"`
	CompletedTasksCount int       `json:"completed_tasks_count"`
	IsApproved          bool      `json:"is_approved"`
	IsSuspended         bool      `json:"is_suspended"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// IsAdmin reports whether the account may call admin-only operations.
func (a *Account) IsAdmin() bool { return a.Role == RoleAdmin }
