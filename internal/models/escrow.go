package models

import (
	"time"

	"github.com/google/uuid"
)

// EscrowStatus values. locked is the only status from which release,
// refund, split, or a dispute mark is permitted; disputed blocks everything
// until resolution. A finalized escrow never transitions again.
type EscrowStatus string

const (
	EscrowLocked   EscrowStatus = "locked"
	EscrowReleased EscrowStatus = "released"
	EscrowRefunded EscrowStatus = "refunded"
	EscrowSplit    EscrowStatus = "split"
	EscrowDisputed EscrowStatus = "disputed"
)

// Escrow holds credits for exactly one task's acceptance. At most one
// non-finalized escrow exists per task (partial unique index on task_id).
type Escrow struct {
	ID              uuid.UUID    `json:"id"`
	TaskID          uuid.UUID    `json:"task_id"`
	RequesterID     uuid.UUID    `json:"requester_id"`
	ProviderID      uuid.UUID    `json:"provider_id"`
	CreditsLocked   int          `json:"credits_locked"`
	CreditsReleased int          `json:"credits_released"`
	Status          EscrowStatus `json:"status"`
	LockedAt        time.Time    `json:"locked_at"`
	ReleasedAt      *time.Time   `json:"released_at,omitempty"`
	AutoReleaseAt   *time.Time   `json:"auto_release_at,omitempty"`
	DisputeID       *uuid.UUID   `json:"dispute_id,omitempty"`
	IsFinalized     bool         `json:"is_finalized"`
	Version         int          `json:"version"`
	CreatedAt       time.Time    `json:"created_at"`
}

// Outstanding is the locked amount not yet disposed of.
func (e *Escrow) Outstanding() int { return e.CreditsLocked - e.CreditsReleased }
