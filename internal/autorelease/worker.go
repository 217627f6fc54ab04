package autorelease

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"github.com/hourbank/backend/internal/escrow"
	"github.com/hourbank/backend/internal/models"
	"github.com/hourbank/backend/internal/notify"
)

// autoReleaseNamespace derives one stable request id per escrow, so a
// rerun of the scanner replays instead of double-releasing.
var autoReleaseNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// ScanArgs is the periodic job that releases escrows past their
// auto_release_at. It carries no payload; each run scans the table.
type ScanArgs struct{}

func (ScanArgs) Kind() string { return "escrow_auto_release_scan" }

// TxBeginner abstracts transaction creation.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// DueLister finds escrows eligible for automatic release.
type DueLister interface {
	ListDueForAutoRelease(ctx context.Context, now time.Time, limit int) ([]*models.Escrow, error)
}

// Releaser is the escrow manager's release operation.
type Releaser interface {
	Release(ctx context.Context, tx pgx.Tx, requestID, escrowID uuid.UUID, amount int) (*models.Escrow, error)
}

// Events receives domain events after commit.
type Events interface {
	Emit(ctx context.Context, ev notify.Event)
}

// Worker releases due escrows through the normal release path, one
// transaction per escrow. A concurrent manual action (complete, cancel,
// dispute) wins the race safely: the release then fails the status check
// and the escrow is skipped.
type Worker struct {
	river.WorkerDefaults[ScanArgs]
	pool     TxBeginner
	escrows  DueLister
	releaser Releaser
	events   Events
	log      *slog.Logger
}

// NewWorker returns the auto-release scan worker.
func NewWorker(pool TxBeginner, escrows DueLister, releaser Releaser, events Events, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{pool: pool, escrows: escrows, releaser: releaser, events: events, log: log}
}

func (w *Worker) Work(ctx context.Context, job *river.Job[ScanArgs]) error {
	due, err := w.escrows.ListDueForAutoRelease(ctx, time.Now().UTC(), 100)
	if err != nil {
		return err
	}
	for _, e := range due {
		if err := w.releaseOne(ctx, e); err != nil {
			w.log.Error("auto release failed", "escrow_id", e.ID, "error", err)
		}
	}
	return nil
}

func (w *Worker) releaseOne(ctx context.Context, e *models.Escrow) error {
	requestID := uuid.NewSHA1(autoReleaseNamespace, []byte("auto-release:"+e.ID.String()))

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	released, err := w.releaser.Release(ctx, tx, requestID, e.ID, 0)
	if err != nil {
		// A manual action got there first; nothing to do.
		if errors.Is(err, escrow.ErrNotLocked) || errors.Is(err, escrow.ErrAlreadyFinalized) || errors.Is(err, escrow.ErrConflict) {
			return nil
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	w.log.Info("escrow auto-released", "escrow_id", e.ID, "task_id", e.TaskID, "credits", released.CreditsLocked)
	w.events.Emit(ctx, notify.Event{
		Type:       notify.EventEscrowReleased,
		Recipients: []uuid.UUID{released.RequesterID, released.ProviderID},
		EscrowID:   &released.ID,
		TaskID:     &released.TaskID,
	})
	return nil
}
