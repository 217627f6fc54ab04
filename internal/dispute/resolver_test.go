package dispute

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hourbank/backend/internal/escrow"
	"github.com/hourbank/backend/internal/ledger"
	"github.com/hourbank/backend/internal/models"
	"github.com/hourbank/backend/internal/notify"
)

// ---------------------------------------------------------------------------
// Mocks. The escrow side is the real Manager over in-memory stores, so the
// resolution paths below move real (mock-backed) balances.
// ---------------------------------------------------------------------------

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

type mockAccounts struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*models.Account
}

func newMockAccounts(accs ...*models.Account) *mockAccounts {
	m := &mockAccounts{accounts: make(map[uuid.UUID]*models.Account)}
	for _, a := range accs {
		cp := *a
		m.accounts[a.ID] = &cp
	}
	return m
}

func (m *mockAccounts) GetForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (m *mockAccounts) SetBalances(_ context.Context, _ pgx.Tx, id uuid.UUID, credits, lockedCredits int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accounts[id]
	a.Credits = credits
	a.LockedCredits = lockedCredits
	return nil
}

func (m *mockAccounts) balances(id uuid.UUID) (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accounts[id]
	return a.Credits, a.LockedCredits
}

type mockTransactions struct {
	mu      sync.Mutex
	entries []*models.Transaction
}

func (m *mockTransactions) CreateTx(_ context.Context, _ pgx.Tx, t *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.entries = append(m.entries, &cp)
	return nil
}

type mockEscrows struct {
	mu      sync.Mutex
	escrows map[uuid.UUID]*models.Escrow
}

func newMockEscrows() *mockEscrows {
	return &mockEscrows{escrows: make(map[uuid.UUID]*models.Escrow)}
}

func (m *mockEscrows) CreateTx(_ context.Context, _ pgx.Tx, e *models.Escrow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.escrows[e.ID] = &cp
	return nil
}

func (m *mockEscrows) GetForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Escrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.escrows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *e
	return &cp, nil
}

func (m *mockEscrows) ActiveByTask(_ context.Context, _ pgx.Tx, taskID uuid.UUID) (*models.Escrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.escrows {
		if e.TaskID == taskID && !e.IsFinalized {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockEscrows) UpdateTx(_ context.Context, _ pgx.Tx, e *models.Escrow) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.escrows[e.ID]
	if !ok || cur.Version != e.Version-1 {
		return 0, nil
	}
	cp := *e
	m.escrows[e.ID] = &cp
	return 1, nil
}

type mockRequests struct {
	mu   sync.Mutex
	keys map[uuid.UUID]uuid.UUID
}

func newMockRequests() *mockRequests { return &mockRequests{keys: make(map[uuid.UUID]uuid.UUID)} }

func (m *mockRequests) Get(_ context.Context, _ pgx.Tx, requestID uuid.UUID) (uuid.UUID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.keys[requestID]
	return id, ok, nil
}

func (m *mockRequests) Put(_ context.Context, _ pgx.Tx, requestID, escrowID uuid.UUID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[requestID] = escrowID
	return nil
}

type mockDisputes struct {
	mu       sync.Mutex
	disputes map[uuid.UUID]*models.Dispute
}

func newMockDisputes() *mockDisputes {
	return &mockDisputes{disputes: make(map[uuid.UUID]*models.Dispute)}
}

func (m *mockDisputes) CreateTx(_ context.Context, _ pgx.Tx, d *models.Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.disputes[d.ID] = &cp
	return nil
}

func (m *mockDisputes) GetByID(_ context.Context, id uuid.UUID) (*models.Dispute, error) {
	return m.get(id)
}

func (m *mockDisputes) GetForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Dispute, error) {
	return m.get(id)
}

func (m *mockDisputes) get(id uuid.UUID) (*models.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.disputes[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *d
	return &cp, nil
}

func (m *mockDisputes) UpdateTx(_ context.Context, _ pgx.Tx, d *models.Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.disputes[d.ID] = &cp
	return nil
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

func (m *mockEvents) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.Type)
	}
	return out
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type fixture struct {
	resolver  *Resolver
	mgr       *escrow.Manager
	accounts  *mockAccounts
	events    *mockEvents
	requester uuid.UUID
	provider  uuid.UUID
	esc       *models.Escrow
	admin     *models.Account
}

// newFixture sets up a locked 5-credit escrow between requester and
// provider.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		requester: uuid.New(),
		provider:  uuid.New(),
		admin:     &models.Account{ID: uuid.New(), Role: models.RoleAdmin},
		events:    &mockEvents{},
	}
	f.accounts = newMockAccounts(
		&models.Account{ID: f.requester, Credits: 10},
		&models.Account{ID: f.provider},
	)
	f.mgr = escrow.New(newMockEscrows(), newMockRequests(), ledger.New(f.accounts, &mockTransactions{}))
	f.resolver = New(mockPool{}, newMockDisputes(), f.mgr, f.events, nil)

	var err error
	f.esc, err = f.mgr.Lock(context.Background(), noopTx{}, uuid.New(), uuid.New(), f.requester, f.provider, 5)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	return f
}

func (f *fixture) raise(t *testing.T) *models.Dispute {
	t.Helper()
	d, err := f.resolver.Raise(context.Background(), f.esc.ID, f.provider, models.ReasonNotCompleted, "no show", nil)
	if err != nil {
		t.Fatalf("Raise: %v", err)
	}
	return d
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestRaiseFreezesEscrow(t *testing.T) {
	f := newFixture(t)
	d := f.raise(t)

	if d.Status != models.DisputeOpen || d.EscrowID != f.esc.ID {
		t.Fatalf("dispute = %+v", d)
	}
	// The frozen escrow rejects normal settlement.
	if _, err := f.mgr.Release(context.Background(), noopTx{}, uuid.New(), f.esc.ID, 0); !errors.Is(err, escrow.ErrNotLocked) {
		t.Errorf("release err = %v, want ErrNotLocked", err)
	}
	if _, err := f.mgr.Refund(context.Background(), noopTx{}, uuid.New(), f.esc.ID, 0); !errors.Is(err, escrow.ErrNotLocked) {
		t.Errorf("refund err = %v, want ErrNotLocked", err)
	}
	if got := f.events.types(); len(got) != 1 || got[0] != notify.EventDisputeRaised {
		t.Errorf("events = %v", got)
	}
}

func TestRaiseRejectsOutsiders(t *testing.T) {
	f := newFixture(t)
	_, err := f.resolver.Raise(context.Background(), f.esc.ID, uuid.New(), models.ReasonNotCompleted, "", nil)
	if !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("err = %v, want ErrNotParticipant", err)
	}
}

func TestRaiseRejectsUnknownReason(t *testing.T) {
	f := newFixture(t)
	_, err := f.resolver.Raise(context.Background(), f.esc.ID, f.provider, "vibes", "", nil)
	if !errors.Is(err, ErrBadReason) {
		t.Fatalf("err = %v, want ErrBadReason", err)
	}
}

func TestRaiseTwiceFails(t *testing.T) {
	f := newFixture(t)
	f.raise(t)
	_, err := f.resolver.Raise(context.Background(), f.esc.ID, f.requester, models.ReasonPoorQuality, "", nil)
	if !errors.Is(err, escrow.ErrNotLocked) {
		t.Fatalf("err = %v, want escrow.ErrNotLocked", err)
	}
}

func TestResolveSplit(t *testing.T) {
	f := newFixture(t)
	d := f.raise(t)

	payload, _ := json.Marshal(SplitPayload{ProviderShare: 2, RequesterShare: 3})
	resolved, esc, err := f.resolver.Resolve(context.Background(), uuid.New(), d.ID, f.admin, models.DecisionSplit, payload)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Status != models.DisputeResolved || resolved.AdminDecision == nil || *resolved.AdminDecision != models.DecisionSplit {
		t.Fatalf("dispute = %+v", resolved)
	}
	if resolved.ResolvedAt == nil {
		t.Error("resolved_at not set")
	}
	if esc.Status != models.EscrowSplit || !esc.IsFinalized {
		t.Fatalf("escrow = %+v", esc)
	}
	if credits, locked := f.accounts.balances(f.requester); credits != 8 || locked != 0 {
		t.Errorf("requester balances = (%d, %d), want (8, 0)", credits, locked)
	}
	if credits, _ := f.accounts.balances(f.provider); credits != 2 {
		t.Errorf("provider credits = %d, want 2", credits)
	}
	if got := f.events.types(); got[len(got)-1] != notify.EventDisputeResolved {
		t.Errorf("events = %v", got)
	}
}

func TestResolveFullDecisions(t *testing.T) {
	cases := []struct {
		name             string
		decision         models.DisputeDecision
		wantStatus       models.EscrowStatus
		requesterCredits int
		providerCredits  int
	}{
		{"release provider", models.DecisionReleaseProvider, models.EscrowReleased, 5, 5},
		{"refund requester", models.DecisionRefundRequester, models.EscrowRefunded, 10, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			d := f.raise(t)
			_, esc, err := f.resolver.Resolve(context.Background(), uuid.New(), d.ID, f.admin, tc.decision, nil)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if esc.Status != tc.wantStatus {
				t.Fatalf("status = %s, want %s", esc.Status, tc.wantStatus)
			}
			if credits, _ := f.accounts.balances(f.requester); credits != tc.requesterCredits {
				t.Errorf("requester credits = %d, want %d", credits, tc.requesterCredits)
			}
			if credits, _ := f.accounts.balances(f.provider); credits != tc.providerCredits {
				t.Errorf("provider credits = %d, want %d", credits, tc.providerCredits)
			}
		})
	}
}

func TestResolveRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	d := f.raise(t)

	member := &models.Account{ID: uuid.New(), Role: models.RoleMember}
	if _, _, err := f.resolver.Resolve(context.Background(), uuid.New(), d.ID, member, models.DecisionRefundRequester, nil); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("member err = %v, want ErrUnauthorized", err)
	}
	if _, _, err := f.resolver.Resolve(context.Background(), uuid.New(), d.ID, nil, models.DecisionRefundRequester, nil); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("nil account err = %v, want ErrUnauthorized", err)
	}
}

func TestResolveTwiceFails(t *testing.T) {
	f := newFixture(t)
	d := f.raise(t)

	if _, _, err := f.resolver.Resolve(context.Background(), uuid.New(), d.ID, f.admin, models.DecisionRefundRequester, nil); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	_, _, err := f.resolver.Resolve(context.Background(), uuid.New(), d.ID, f.admin, models.DecisionReleaseProvider, nil)
	if !errors.Is(err, ErrDisputeNotOpen) {
		t.Fatalf("err = %v, want ErrDisputeNotOpen", err)
	}
}

func TestResolveBadSplitPayload(t *testing.T) {
	f := newFixture(t)
	d := f.raise(t)

	cases := []struct {
		name    string
		payload json.RawMessage
	}{
		{"wrong sum", mustJSON(SplitPayload{ProviderShare: 2, RequesterShare: 2})},
		{"negative share", mustJSON(SplitPayload{ProviderShare: 6, RequesterShare: -1})},
		{"malformed", json.RawMessage(`{`)},
		{"missing", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := f.resolver.Resolve(context.Background(), uuid.New(), d.ID, f.admin, models.DecisionSplit, tc.payload)
			if !errors.Is(err, ErrBadDecision) {
				t.Fatalf("err = %v, want ErrBadDecision", err)
			}
		})
	}

	_, _, err := f.resolver.Resolve(context.Background(), uuid.New(), d.ID, f.admin, "arbitration", nil)
	if !errors.Is(err, ErrBadDecision) {
		t.Fatalf("unknown decision err = %v, want ErrBadDecision", err)
	}
}

func TestMarkReviewedThenResolve(t *testing.T) {
	f := newFixture(t)
	d := f.raise(t)

	reviewed, err := f.resolver.MarkReviewed(context.Background(), d.ID, f.admin)
	if err != nil {
		t.Fatalf("MarkReviewed: %v", err)
	}
	if reviewed.Status != models.DisputeAdminReviewed {
		t.Fatalf("status = %s, want admin_reviewed", reviewed.Status)
	}
	if _, err := f.resolver.MarkReviewed(context.Background(), d.ID, f.admin); !errors.Is(err, ErrDisputeNotOpen) {
		t.Errorf("second review err = %v, want ErrDisputeNotOpen", err)
	}

	// Resolution is still possible from admin_reviewed.
	if _, _, err := f.resolver.Resolve(context.Background(), uuid.New(), d.ID, f.admin, models.DecisionRefundRequester, nil); err != nil {
		t.Fatalf("Resolve after review: %v", err)
	}
}

func TestResolveUnknownDispute(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.resolver.Resolve(context.Background(), uuid.New(), uuid.New(), f.admin, models.DecisionRefundRequester, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
