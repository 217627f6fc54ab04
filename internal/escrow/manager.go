package escrow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hourbank/backend/internal/ledger"
	"github.com/hourbank/backend/internal/models"
)

// Errors returned by escrow operations.
var (
	ErrAlreadyLocked    = errors.New("task already has an active escrow")
	ErrNotLocked        = errors.New("escrow is not in locked status")
	ErrNotDisputed      = errors.New("escrow is not in disputed status")
	ErrAlreadyFinalized = errors.New("escrow is finalized")
	ErrConflict         = errors.New("concurrent escrow mutation lost the race")
	ErrNotFound         = errors.New("escrow not found")
	ErrBadSplit         = errors.New("split shares must sum to the outstanding balance")
)

// Store is the escrow repository interface used by the Manager.
type Store interface {
	CreateTx(ctx context.Context, tx pgx.Tx, e *models.Escrow) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Escrow, error)
	ActiveByTask(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) (*models.Escrow, error)
	// UpdateTx persists e with WHERE version = e.Version-1; returns the
	// number of rows updated so the caller can detect a lost race.
	UpdateTx(ctx context.Context, tx pgx.Tx, e *models.Escrow) (int64, error)
}

// RequestStore records which request ids have already been applied, so a
// replayed request returns the original escrow instead of moving credits
// twice. Keys are written in the same transaction as the operation they
// guard.
type RequestStore interface {
	Get(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) (escrowID uuid.UUID, found bool, err error)
	Put(ctx context.Context, tx pgx.Tx, requestID, escrowID uuid.UUID, operation string) error
}

// Ledger is the balance-mutation interface (implemented by ledger.Store).
type Ledger interface {
	Adjust(ctx context.Context, tx pgx.Tx, userID uuid.UUID, delta, lockedDelta int, meta ledger.Meta) (*models.Transaction, error)
}

// Manager creates, holds, releases, refunds, and splits locked credit
// amounts tied to a task. Every method runs inside the caller's pgx.Tx;
// the caller commits or rolls back the whole unit. The Manager is the only
// component permitted to call the ledger.
type Manager struct {
	escrows  Store
	requests RequestStore
	ledger   Ledger
	// AutoReleaseAfter is added to the lock time to produce
	// auto_release_at. Zero disables auto release.
	AutoReleaseAfter time.Duration
}

// New returns an escrow Manager.
func New(escrows Store, requests RequestStore, lg Ledger) *Manager {
	return &Manager{escrows: escrows, requests: requests, ledger: lg, AutoReleaseAfter: 7 * 24 * time.Hour}
}

// replay returns the previously created escrow if requestID was already
// applied.
func (m *Manager) replay(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) (*models.Escrow, bool, error) {
	escrowID, found, err := m.requests.Get(ctx, tx, requestID)
	if err != nil || !found {
		return nil, false, err
	}
	e, err := m.escrows.GetForUpdate(ctx, tx, escrowID)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

// Lock moves amount from the requester's available credits to locked and
// creates the escrow row. Fails ErrAlreadyLocked if a non-finalized escrow
// already exists for the task, and with whatever the ledger reports on
// insufficient balance.
func (m *Manager) Lock(ctx context.Context, tx pgx.Tx, requestID, taskID, requesterID, providerID uuid.UUID, amount int) (*models.Escrow, error) {
	if e, done, err := m.replay(ctx, tx, requestID); done || err != nil {
		return e, err
	}
	if existing, err := m.escrows.ActiveByTask(ctx, tx, taskID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, ErrAlreadyLocked
	}

	e := &models.Escrow{
		ID:            uuid.New(),
		TaskID:        taskID,
		RequesterID:   requesterID,
		ProviderID:    providerID,
		CreditsLocked: amount,
		Status:        models.EscrowLocked,
		LockedAt:      time.Now().UTC(),
		Version:       1,
	}
	if m.AutoReleaseAfter > 0 {
		t := e.LockedAt.Add(m.AutoReleaseAfter)
		e.AutoReleaseAt = &t
	}

	if _, err := m.ledger.Adjust(ctx, tx, requesterID, -amount, amount, ledger.Meta{
		Type:     models.TxLock,
		EscrowID: &e.ID,
		TaskID:   &taskID,
	}); err != nil {
		return nil, err
	}
	if err := m.escrows.CreateTx(ctx, tx, e); err != nil {
		return nil, err
	}
	if err := m.requests.Put(ctx, tx, requestID, e.ID, "lock"); err != nil {
		return nil, err
	}
	return e, nil
}

// Release moves amount (0 means the full outstanding balance) from the
// requester's locked credits to the provider's available credits. When the
// full locked amount has been released the escrow is finalized.
// Permitted only while the escrow is in locked status.
func (m *Manager) Release(ctx context.Context, tx pgx.Tx, requestID, escrowID uuid.UUID, amount int) (*models.Escrow, error) {
	if e, done, err := m.replay(ctx, tx, requestID); done || err != nil {
		return e, err
	}
	e, err := m.fetch(ctx, tx, escrowID, models.EscrowLocked)
	if err != nil {
		return nil, err
	}
	return m.settle(ctx, tx, requestID, e, "release", settlement{
		providerAmount: defaultAmount(amount, e.Outstanding()),
		finalStatus:    models.EscrowReleased,
	})
}

// Refund is symmetric to Release but returns the credits to the requester.
func (m *Manager) Refund(ctx context.Context, tx pgx.Tx, requestID, escrowID uuid.UUID, amount int) (*models.Escrow, error) {
	if e, done, err := m.replay(ctx, tx, requestID); done || err != nil {
		return e, err
	}
	e, err := m.fetch(ctx, tx, escrowID, models.EscrowLocked)
	if err != nil {
		return nil, err
	}
	return m.settle(ctx, tx, requestID, e, "refund", settlement{
		requesterAmount: defaultAmount(amount, e.Outstanding()),
		finalStatus:     models.EscrowRefunded,
	})
}

// MarkDisputed freezes the escrow: no release or refund may run until the
// dispute is resolved. Permitted only from locked status.
func (m *Manager) MarkDisputed(ctx context.Context, tx pgx.Tx, escrowID, disputeID uuid.UUID) (*models.Escrow, error) {
	e, err := m.fetch(ctx, tx, escrowID, models.EscrowLocked)
	if err != nil {
		return nil, err
	}
	e.Status = models.EscrowDisputed
	e.DisputeID = &disputeID
	return m.update(ctx, tx, e)
}

// ResolveDisputed executes a dispute settlement against an escrow in
// disputed status: full refund, full release, or a split whose shares must
// sum to the outstanding balance. The escrow is finalized in the same
// transaction. Only the dispute resolver calls this.
func (m *Manager) ResolveDisputed(ctx context.Context, tx pgx.Tx, requestID, escrowID, disputeID uuid.UUID, providerShare, requesterShare int) (*models.Escrow, error) {
	if e, done, err := m.replay(ctx, tx, requestID); done || err != nil {
		return e, err
	}
	e, err := m.fetch(ctx, tx, escrowID, models.EscrowDisputed)
	if err != nil {
		return nil, err
	}
	if e.DisputeID == nil || *e.DisputeID != disputeID {
		return nil, ErrNotDisputed
	}
	if providerShare < 0 || requesterShare < 0 || providerShare+requesterShare != e.Outstanding() {
		return nil, ErrBadSplit
	}

	status := models.EscrowSplit
	switch {
	case requesterShare == 0:
		status = models.EscrowReleased
	case providerShare == 0:
		status = models.EscrowRefunded
	}
	return m.settle(ctx, tx, requestID, e, "resolve", settlement{
		providerAmount:  providerShare,
		requesterAmount: requesterShare,
		finalStatus:     status,
	})
}

// Get returns the escrow with a row lock. Callers coordinating a
// settlement (the dispute resolver) read the outstanding balance through
// this so the amount cannot change under them.
func (m *Manager) Get(ctx context.Context, tx pgx.Tx, escrowID uuid.UUID) (*models.Escrow, error) {
	e, err := m.escrows.GetForUpdate(ctx, tx, escrowID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

// ActiveForTask returns the task's non-finalized escrow, or nil if none
// exists. Lifecycle transitions use this instead of querying the store so
// escrow access stays behind the manager.
func (m *Manager) ActiveForTask(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) (*models.Escrow, error) {
	return m.escrows.ActiveByTask(ctx, tx, taskID)
}

// settlement describes how the outstanding balance is disposed of.
type settlement struct {
	providerAmount  int
	requesterAmount int
	finalStatus     models.EscrowStatus
}

// settle performs the ledger moves for s and persists the escrow row.
// The requester's locked balance always decreases by the total moved;
// the provider's available balance increases by providerAmount and the
// requester's available balance by requesterAmount.
func (m *Manager) settle(ctx context.Context, tx pgx.Tx, requestID uuid.UUID, e *models.Escrow, op string, s settlement) (*models.Escrow, error) {
	total := s.providerAmount + s.requesterAmount
	if total <= 0 || total > e.Outstanding() {
		return nil, ledger.ErrInvalidAmount
	}

	if s.providerAmount > 0 {
		// Payer side first: unlock from the requester, then pay the provider.
		if _, err := m.ledger.Adjust(ctx, tx, e.RequesterID, 0, -s.providerAmount, ledger.Meta{
			Type: models.TxRelease, EscrowID: &e.ID, TaskID: &e.TaskID,
		}); err != nil {
			return nil, err
		}
		if _, err := m.ledger.Adjust(ctx, tx, e.ProviderID, s.providerAmount, 0, ledger.Meta{
			Type: models.TxRelease, EscrowID: &e.ID, TaskID: &e.TaskID,
		}); err != nil {
			return nil, err
		}
	}
	if s.requesterAmount > 0 {
		if _, err := m.ledger.Adjust(ctx, tx, e.RequesterID, s.requesterAmount, -s.requesterAmount, ledger.Meta{
			Type: models.TxRefund, EscrowID: &e.ID, TaskID: &e.TaskID,
		}); err != nil {
			return nil, err
		}
	}

	e.CreditsReleased += total
	if e.CreditsReleased == e.CreditsLocked {
		now := time.Now().UTC()
		e.ReleasedAt = &now
		e.Status = s.finalStatus
		e.IsFinalized = true
	}
	updated, err := m.update(ctx, tx, e)
	if err != nil {
		return nil, err
	}
	if err := m.requests.Put(ctx, tx, requestID, e.ID, op); err != nil {
		return nil, err
	}
	return updated, nil
}

// fetch loads the escrow with a row lock and checks it is still mutable and
// in the expected status.
func (m *Manager) fetch(ctx context.Context, tx pgx.Tx, escrowID uuid.UUID, want models.EscrowStatus) (*models.Escrow, error) {
	e, err := m.escrows.GetForUpdate(ctx, tx, escrowID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if e.IsFinalized {
		return nil, ErrAlreadyFinalized
	}
	if e.Status != want {
		if want == models.EscrowDisputed {
			return nil, ErrNotDisputed
		}
		return nil, ErrNotLocked
	}
	return e, nil
}

// update bumps the version and persists; zero rows updated means a
// concurrent mutation won the race.
func (m *Manager) update(ctx context.Context, tx pgx.Tx, e *models.Escrow) (*models.Escrow, error) {
	e.Version++
	n, err := m.escrows.UpdateTx(ctx, tx, e)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrConflict
	}
	return e, nil
}

func defaultAmount(amount, outstanding int) int {
	if amount == 0 {
		return outstanding
	}
	return amount
}
