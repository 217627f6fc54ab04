package autorelease

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/riverqueue/river"

	"github.com/hourbank/backend/internal/escrow"
	"github.com/hourbank/backend/internal/models"
	"github.com/hourbank/backend/internal/notify"
)

type noopTx struct{}

func (noopTx) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(context.Context) error          { return nil }
func (noopTx) Rollback(context.Context) error        { return nil }
func (noopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (noopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (noopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (noopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (noopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Conn() *pgx.Conn { return nil }

type mockPool struct{}

func (mockPool) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }

type mockDue struct {
	due []*models.Escrow
}

func (m *mockDue) ListDueForAutoRelease(_ context.Context, _ time.Time, _ int) ([]*models.Escrow, error) {
	return m.due, nil
}

type mockReleaser struct {
	mu       sync.Mutex
	requests map[uuid.UUID][]uuid.UUID // escrow id -> request ids seen
	errs     map[uuid.UUID]error
}

func newMockReleaser() *mockReleaser {
	return &mockReleaser{requests: make(map[uuid.UUID][]uuid.UUID), errs: make(map[uuid.UUID]error)}
}

func (m *mockReleaser) Release(_ context.Context, _ pgx.Tx, requestID, escrowID uuid.UUID, _ int) (*models.Escrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[escrowID] = append(m.requests[escrowID], requestID)
	if err := m.errs[escrowID]; err != nil {
		return nil, err
	}
	return &models.Escrow{
		ID:            escrowID,
		TaskID:        uuid.New(),
		RequesterID:   uuid.New(),
		ProviderID:    uuid.New(),
		CreditsLocked: 3,
		Status:        models.EscrowReleased,
		IsFinalized:   true,
	}, nil
}

type mockEvents struct {
	mu     sync.Mutex
	events []notify.Event
}

func (m *mockEvents) Emit(_ context.Context, ev notify.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func dueEscrow() *models.Escrow {
	return &models.Escrow{ID: uuid.New(), TaskID: uuid.New(), Status: models.EscrowLocked}
}

func TestScanReleasesDueEscrows(t *testing.T) {
	e1, e2 := dueEscrow(), dueEscrow()
	releaser := newMockReleaser()
	events := &mockEvents{}
	w := NewWorker(mockPool{}, &mockDue{due: []*models.Escrow{e1, e2}}, releaser, events, nil)

	if err := w.Work(context.Background(), &river.Job[ScanArgs]{Args: ScanArgs{}}); err != nil {
		t.Fatalf("Work: %v", err)
	}

	if len(releaser.requests[e1.ID]) != 1 || len(releaser.requests[e2.ID]) != 1 {
		t.Fatalf("requests = %v", releaser.requests)
	}
	if len(events.events) != 2 {
		t.Fatalf("got %d events, want 2", len(events.events))
	}
	for _, ev := range events.events {
		if ev.Type != notify.EventEscrowReleased {
			t.Errorf("event type = %s, want escrow_released", ev.Type)
		}
	}
}

func TestScanRequestIDsAreDeterministic(t *testing.T) {
	e := dueEscrow()
	releaser := newMockReleaser()
	w := NewWorker(mockPool{}, &mockDue{due: []*models.Escrow{e}}, releaser, &mockEvents{}, nil)

	for i := 0; i < 2; i++ {
		if err := w.Work(context.Background(), &river.Job[ScanArgs]{Args: ScanArgs{}}); err != nil {
			t.Fatalf("Work: %v", err)
		}
	}

	ids := releaser.requests[e.ID]
	if len(ids) != 2 || ids[0] != ids[1] {
		t.Fatalf("request ids differ across runs: %v", ids)
	}
}

func TestScanSkipsEscrowsWonByManualAction(t *testing.T) {
	contested, due := dueEscrow(), dueEscrow()
	releaser := newMockReleaser()
	releaser.errs[contested.ID] = escrow.ErrNotLocked
	events := &mockEvents{}
	w := NewWorker(mockPool{}, &mockDue{due: []*models.Escrow{contested, due}}, releaser, events, nil)

	if err := w.Work(context.Background(), &river.Job[ScanArgs]{Args: ScanArgs{}}); err != nil {
		t.Fatalf("Work: %v", err)
	}
	// Only the uncontested escrow produced an event.
	if len(events.events) != 1 {
		t.Fatalf("got %d events, want 1", len(events.events))
	}
}
