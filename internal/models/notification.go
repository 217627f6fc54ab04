package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Notification is a user-facing record written by the notify emitter.
// Delivery transport (poll, push, socket) is external; this row is the
// contract.
type Notification struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	IsRead    bool            `json:"is_read"`
	CreatedAt time.Time       `json:"created_at"`
}

// AuditEntry records every balance-affecting event and dispute state change
// for the admin console. Append-only.
type AuditEntry struct {
	ID        uuid.UUID       `json:"id"`
	ActorID   *uuid.UUID      `json:"actor_id,omitempty"`
	Action    string          `json:"action"`
	EscrowID  *uuid.UUID      `json:"escrow_id,omitempty"`
	TaskID    *uuid.UUID      `json:"task_id,omitempty"`
	DisputeID *uuid.UUID      `json:"dispute_id,omitempty"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
