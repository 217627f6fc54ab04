package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hourbank/backend/internal/models"
	"github.com/hourbank/backend/internal/notify"
)

// Errors returned by lifecycle transitions.
var (
	ErrInvalidTransition = errors.New("invalid task status transition")
	ErrConflict          = errors.New("concurrent task mutation lost the race")
	ErrNotFound          = errors.New("task not found")
	ErrForbidden         = errors.New("caller may not perform this transition")
	ErrInvalidTask       = errors.New("invalid task")
)

// TxBeginner abstracts transaction creation so tests don't need a
// pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TaskStore is the task repository interface used by the state machine.
type TaskStore interface {
	Create(ctx context.Context, t *models.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	// UpdateTx persists t with WHERE version = t.Version-1; returns rows
	// updated so a lost race is visible.
	UpdateTx(ctx context.Context, tx pgx.Tx, t *models.Task) (int64, error)
}

// EscrowOps is the subset of the escrow manager the state machine calls.
// The machine never touches the ledger directly; balance invariants are
// enforced at this single choke point.
type EscrowOps interface {
	Lock(ctx context.Context, tx pgx.Tx, requestID, taskID, requesterID, providerID uuid.UUID, amount int) (*models.Escrow, error)
	Release(ctx context.Context, tx pgx.Tx, requestID, escrowID uuid.UUID, amount int) (*models.Escrow, error)
	Refund(ctx context.Context, tx pgx.Tx, requestID, escrowID uuid.UUID, amount int) (*models.Escrow, error)
	ActiveForTask(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) (*models.Escrow, error)
}

// Events receives domain events after commit.
type Events interface {
	Emit(ctx context.Context, ev notify.Event)
}

// ProfileStore updates per-account counters outside the balance path.
type ProfileStore interface {
	IncrementCompleted(ctx context.Context, id uuid.UUID) error
}

// Machine governs task status transitions and which of them trigger escrow
// operations:
//
//	open        --accept-->    accepted      (escrow lock)
//	accepted    --schedule-->  accepted      (sets confirmed_time)
//	accepted    --check_in-->  in_progress
//	in_progress --complete-->  completed     (escrow release)
//	open|accepted --cancel-->  cancelled     (escrow refund if locked)
type Machine struct {
	pool     TxBeginner
	tasks    TaskStore
	escrows  EscrowOps
	profiles ProfileStore
	events   Events
	log      *slog.Logger
}

// New returns a task lifecycle Machine. profiles may be nil; completed-task
// counters are then skipped.
func New(pool TxBeginner, tasks TaskStore, escrows EscrowOps, profiles ProfileStore, events Events, log *slog.Logger) *Machine {
	if log == nil {
		log = slog.Default()
	}
	return &Machine{pool: pool, tasks: tasks, escrows: escrows, profiles: profiles, events: events, log: log}
}

// Create validates and persists a new open task.
func (m *Machine) Create(ctx context.Context, t *models.Task) error {
	if t.Title == "" || t.EstimatedCredits <= 0 {
		return ErrInvalidTask
	}
	switch t.Type {
	case models.TaskOffer, models.TaskRequest:
	default:
		return ErrInvalidTask
	}
	switch t.Mode {
	case models.ModeOnline, models.ModeInPerson, models.ModeHybrid:
	default:
		return ErrInvalidTask
	}
	t.ID = uuid.New()
	t.Status = models.TaskOpen
	t.Version = 1
	return m.tasks.Create(ctx, t)
}

// Accept transitions open -> accepted and locks the task's estimated
// credits in escrow, all in one transaction. Exactly one of two concurrent
// accepts commits; the loser gets ErrConflict.
func (m *Machine) Accept(ctx context.Context, requestID, taskID, userID uuid.UUID) (*models.Task, *models.Escrow, error) {
	task, err := m.load(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	if task.Status != models.TaskOpen {
		return nil, nil, ErrInvalidTransition
	}
	if task.CreatorID == userID {
		return nil, nil, ErrForbidden
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	task.Status = models.TaskAccepted
	task.AcceptorID = &userID
	if err := m.casUpdate(ctx, tx, task); err != nil {
		return nil, nil, err
	}

	requester, provider := task.RequesterProviderIDs()
	esc, err := m.escrows.Lock(ctx, tx, requestID, task.ID, requester, provider, task.EstimatedCredits)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}

	m.events.Emit(ctx, notify.Event{
		Type:       notify.EventTaskAccepted,
		ActorID:    &userID,
		Recipients: []uuid.UUID{task.CreatorID, userID},
		TaskID:     &task.ID,
		EscrowID:   &esc.ID,
		Payload:    eventPayload("credits_locked", esc.CreditsLocked),
	})
	m.events.Emit(ctx, notify.Event{
		Type:       notify.EventEscrowLocked,
		ActorID:    &userID,
		Recipients: []uuid.UUID{esc.RequesterID},
		TaskID:     &task.ID,
		EscrowID:   &esc.ID,
	})
	return task, esc, nil
}

// Schedule records the confirmed session time. Allowed only in accepted
// status and only for participants; no escrow effect.
func (m *Machine) Schedule(ctx context.Context, taskID, userID uuid.UUID, when time.Time) (*models.Task, error) {
	task, err := m.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != models.TaskAccepted {
		return nil, ErrInvalidTransition
	}
	if !isParticipant(task, userID) {
		return nil, ErrForbidden
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	task.ConfirmedTime = &when
	if err := m.casUpdate(ctx, tx, task); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	m.events.Emit(ctx, notify.Event{
		Type:       notify.EventTaskScheduled,
		ActorID:    &userID,
		Recipients: participants(task),
		TaskID:     &task.ID,
	})
	return task, nil
}

// CheckIn transitions accepted -> in_progress when the session starts.
func (m *Machine) CheckIn(ctx context.Context, taskID, userID uuid.UUID) (*models.Task, error) {
	task, err := m.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != models.TaskAccepted {
		return nil, ErrInvalidTransition
	}
	if !isParticipant(task, userID) {
		return nil, ErrForbidden
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	task.Status = models.TaskInProgress
	if err := m.casUpdate(ctx, tx, task); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return task, nil
}

// Complete transitions in_progress -> completed and releases the escrow to
// the provider in the same transaction.
func (m *Machine) Complete(ctx context.Context, requestID, taskID, userID uuid.UUID) (*models.Task, *models.Escrow, error) {
	task, err := m.load(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	if task.Status != models.TaskInProgress {
		return nil, nil, ErrInvalidTransition
	}
	if !isParticipant(task, userID) {
		return nil, nil, ErrForbidden
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	task.Status = models.TaskCompleted
	if err := m.casUpdate(ctx, tx, task); err != nil {
		return nil, nil, err
	}

	esc, err := m.escrows.ActiveForTask(ctx, tx, task.ID)
	if err != nil {
		return nil, nil, err
	}
	if esc != nil {
		esc, err = m.escrows.Release(ctx, tx, requestID, esc.ID, 0)
		if err != nil {
			return nil, nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}

	if m.profiles != nil {
		for _, id := range participants(task) {
			if err := m.profiles.IncrementCompleted(ctx, id); err != nil {
				m.log.Warn("completed counter update failed", "account_id", id, "error", err)
			}
		}
	}

	m.events.Emit(ctx, notify.Event{
		Type:       notify.EventTaskCompleted,
		ActorID:    &userID,
		Recipients: participants(task),
		TaskID:     &task.ID,
	})
	if esc != nil {
		m.events.Emit(ctx, notify.Event{
			Type:       notify.EventEscrowReleased,
			ActorID:    &userID,
			Recipients: []uuid.UUID{esc.RequesterID, esc.ProviderID},
			TaskID:     &task.ID,
			EscrowID:   &esc.ID,
			Payload:    eventPayload("credits_released", esc.CreditsReleased),
		})
	}
	return task, esc, nil
}

// Cancel is the escape hatch from open or accepted. A locked escrow is
// refunded to the requester in the same transaction. A disputed escrow
// blocks cancellation (the refund fails ErrNotLocked).
func (m *Machine) Cancel(ctx context.Context, requestID, taskID, userID uuid.UUID) (*models.Task, error) {
	task, err := m.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != models.TaskOpen && task.Status != models.TaskAccepted {
		return nil, ErrInvalidTransition
	}
	if !isParticipant(task, userID) {
		return nil, ErrForbidden
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	task.Status = models.TaskCancelled
	if err := m.casUpdate(ctx, tx, task); err != nil {
		return nil, err
	}

	esc, err := m.escrows.ActiveForTask(ctx, tx, task.ID)
	if err != nil {
		return nil, err
	}
	if esc != nil {
		if esc, err = m.escrows.Refund(ctx, tx, requestID, esc.ID, 0); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	m.events.Emit(ctx, notify.Event{
		Type:       notify.EventTaskCancelled,
		ActorID:    &userID,
		Recipients: participants(task),
		TaskID:     &task.ID,
	})
	if esc != nil {
		m.events.Emit(ctx, notify.Event{
			Type:       notify.EventEscrowRefunded,
			ActorID:    &userID,
			Recipients: []uuid.UUID{esc.RequesterID},
			TaskID:     &task.ID,
			EscrowID:   &esc.ID,
		})
	}
	return task, nil
}

// Get returns the task.
func (m *Machine) Get(ctx context.Context, taskID uuid.UUID) (*models.Task, error) {
	return m.load(ctx, taskID)
}

func (m *Machine) load(ctx context.Context, taskID uuid.UUID) (*models.Task, error) {
	task, err := m.tasks.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return task, nil
}

func (m *Machine) casUpdate(ctx context.Context, tx pgx.Tx, task *models.Task) error {
	task.Version++
	n, err := m.tasks.UpdateTx(ctx, tx, task)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func isParticipant(t *models.Task, userID uuid.UUID) bool {
	if t.CreatorID == userID {
		return true
	}
	return t.AcceptorID != nil && *t.AcceptorID == userID
}

func participants(t *models.Task) []uuid.UUID {
	ids := []uuid.UUID{t.CreatorID}
	if t.AcceptorID != nil {
		ids = append(ids, *t.AcceptorID)
	}
	return ids
}

func eventPayload(key string, value int) []byte {
	return []byte(fmt.Sprintf(`{%q:%d}`, key, value))
}
