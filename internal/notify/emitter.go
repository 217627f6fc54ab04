package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hourbank/backend/internal/models"
)

// Domain event types published by the core.
const (
	EventEscrowLocked    = "escrow_locked"
	EventEscrowReleased  = "escrow_released"
	EventEscrowRefunded  = "escrow_refunded"
	EventEscrowSplit     = "escrow_split"
	EventDisputeRaised   = "dispute_raised"
	EventDisputeResolved = "dispute_resolved"
	EventTaskAccepted    = "task_accepted"
	EventTaskCompleted   = "task_completed"
	EventTaskCancelled   = "task_cancelled"
	EventTaskScheduled   = "task_scheduled"
	EventAdminAdjust     = "admin_adjust"
)

// Event is a domain event. Recipients get a Notification row each; every
// event also lands in the audit log.
type Event struct {
	Type       string
	ActorID    *uuid.UUID
	Recipients []uuid.UUID
	EscrowID   *uuid.UUID
	TaskID     *uuid.UUID
	DisputeID  *uuid.UUID
	Payload    json.RawMessage
}

// NotificationStore persists per-user notification rows.
type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
}

// AuditStore persists audit entries.
type AuditStore interface {
	Create(ctx context.Context, e *models.AuditEntry) error
}

// Subscriber receives events after they are recorded. Transports (push,
// socket, poll trigger) hang off this interface; they run outside the
// transactional boundary of the operation that produced the event.
type Subscriber interface {
	Notify(ctx context.Context, ev Event)
}

// Enqueuer schedules an asynchronous delivery retry for a notification.
// Backed by the river job queue in production; nil disables retries.
type Enqueuer interface {
	EnqueueDelivery(ctx context.Context, notificationID uuid.UUID) error
}

// Emitter is a passive observer of the escrow core. Emit never returns an
// error: failures here must not turn a successful financial operation into
// a reported failure, so they are logged and (where possible) retried
// asynchronously.
type Emitter struct {
	notifications NotificationStore
	audit         AuditStore
	enqueuer      Enqueuer
	subscribers   []Subscriber
	log           *slog.Logger
}

// New returns an Emitter. enqueuer may be nil.
func New(notifications NotificationStore, audit AuditStore, enqueuer Enqueuer, log *slog.Logger) *Emitter {
	if log == nil {
		log = slog.Default()
	}
	return &Emitter{notifications: notifications, audit: audit, enqueuer: enqueuer, log: log}
}

// Subscribe registers an external transport. Not safe to call after the
// emitter is in use.
func (e *Emitter) Subscribe(s Subscriber) { e.subscribers = append(e.subscribers, s) }

// Emit records the event for every recipient and appends an audit entry.
// Call after the underlying transaction has committed.
func (e *Emitter) Emit(ctx context.Context, ev Event) {
	for _, userID := range ev.Recipients {
		n := &models.Notification{
			ID:      uuid.New(),
			UserID:  userID,
			Type:    ev.Type,
			Payload: ev.Payload,
		}
		if err := e.notifications.Create(ctx, n); err != nil {
			e.log.Error("notification write failed", "type", ev.Type, "user_id", userID, "error", err)
			continue
		}
		if e.enqueuer != nil {
			if err := e.enqueuer.EnqueueDelivery(ctx, n.ID); err != nil {
				e.log.Error("notification delivery enqueue failed", "notification_id", n.ID, "error", err)
			}
		}
	}

	if err := e.audit.Create(ctx, &models.AuditEntry{
		ID:        uuid.New(),
		ActorID:   ev.ActorID,
		Action:    ev.Type,
		EscrowID:  ev.EscrowID,
		TaskID:    ev.TaskID,
		DisputeID: ev.DisputeID,
		Detail:    ev.Payload,
	}); err != nil {
		e.log.Error("audit write failed", "type", ev.Type, "error", err)
	}

	for _, s := range e.subscribers {
		s.Notify(ctx, ev)
	}
}
