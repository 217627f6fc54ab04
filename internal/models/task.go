package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskType says whether the creator is offering their time or requesting
// someone else's.
type TaskType string

const (
	TaskOffer   TaskType = "offer"
	TaskRequest TaskType = "request"
)

// TaskMode is how the session happens.
type TaskMode string

const (
	ModeOnline   TaskMode = "online"
	ModeInPerson TaskMode = "in_person"
	ModeHybrid   TaskMode = "hybrid"
)

// TaskStatus values. Transitions are monotonic along
// open -> accepted -> in_progress -> completed, with cancelled reachable
// from open or accepted only. The lifecycle package enforces this.
type TaskStatus string

const (
	TaskOpen       TaskStatus = "open"
	TaskAccepted   TaskStatus = "accepted"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

// Task is one unit of work offered or requested on the marketplace.
// Version backs the optimistic concurrency check on every status
// transition: the UPDATE carries WHERE version = $n and the loser of a
// race sees zero rows affected.
type Task struct {
	ID               uuid.UUID   `json:"id"`
	CreatorID        uuid.UUID   `json:"creator_id"`
	AcceptorID       *uuid.UUID  `json:"acceptor_id,omitempty"`
	Type             TaskType    `json:"type"`
	Title            string      `json:"title"`
	Description      string      `json:"description"`
	EstimatedCredits int         `json:"estimated_credits"`
	Mode             TaskMode    `json:"mode"`
	Status           TaskStatus  `json:"status"`
	LocationCity     *string     `json:"location_city,omitempty"`
	LocationCountry  *string     `json:"location_country,omitempty"`
	OnlinePlatform   *string     `json:"online_platform,omitempty"`
	ProposedTimes    []time.Time `json:"proposed_times,omitempty"`
	ConfirmedTime    *time.Time  `json:"confirmed_time,omitempty"`
	Version          int         `json:"version"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// RequesterProviderIDs returns who pays and who gets paid for this task.
// For a "request" task the creator pays the acceptor; for an "offer" task
// the acceptor pays the creator.
func (t *Task) RequesterProviderIDs() (requester, provider uuid.UUID) {
	if t.AcceptorID == nil {
		return t.CreatorID, uuid.Nil
	}
	if t.Type == TaskRequest {
		return t.CreatorID, *t.AcceptorID
	}
	return *t.AcceptorID, t.CreatorID
}
