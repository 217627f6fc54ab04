package dispute

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hourbank/backend/internal/models"
	"github.com/hourbank/backend/internal/notify"
)

// Errors returned by the resolver.
var (
	ErrUnauthorized   = errors.New("only admins may resolve disputes")
	ErrDisputeNotOpen = errors.New("dispute is not open")
	ErrNotFound       = errors.New("dispute not found")
	ErrNotParticipant = errors.New("caller is not a party to the escrow")
	ErrBadReason      = errors.New("unknown dispute reason")
	ErrBadDecision    = errors.New("unknown or malformed decision")
)

// TxBeginner abstracts transaction creation.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is the dispute repository interface.
type Store interface {
	CreateTx(ctx context.Context, tx pgx.Tx, d *models.Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Dispute, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, d *models.Dispute) error
}

// EscrowOps is the subset of the escrow manager the resolver calls.
type EscrowOps interface {
	Get(ctx context.Context, tx pgx.Tx, escrowID uuid.UUID) (*models.Escrow, error)
	MarkDisputed(ctx context.Context, tx pgx.Tx, escrowID, disputeID uuid.UUID) (*models.Escrow, error)
	ResolveDisputed(ctx context.Context, tx pgx.Tx, requestID, escrowID, disputeID uuid.UUID, providerShare, requesterShare int) (*models.Escrow, error)
}

// Events receives domain events after commit.
type Events interface {
	Emit(ctx context.Context, ev notify.Event)
}

// SplitPayload is the decision payload for a split resolution. The two
// shares must sum to the escrow's outstanding balance.
type SplitPayload struct {
	ProviderShare  int    `json:"provider_share"`
	RequesterShare int    `json:"requester_share"`
	Notes          string `json:"notes,omitempty"`
}

// Resolver handles dispute intake and admin decision application. Raising
// a dispute freezes the escrow; resolving it settles and finalizes the
// escrow in the same transaction as the dispute status change.
type Resolver struct {
	pool     TxBeginner
	disputes Store
	escrows  EscrowOps
	events   Events
	log      *slog.Logger
}

// New returns a dispute Resolver.
func New(pool TxBeginner, disputes Store, escrows EscrowOps, events Events, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{pool: pool, disputes: disputes, escrows: escrows, events: events, log: log}
}

// Raise opens a dispute against an escrow in locked status and marks the
// escrow disputed, blocking release and refund until resolution. Only the
// requester or provider of the escrow may raise.
func (r *Resolver) Raise(ctx context.Context, escrowID, raisedBy uuid.UUID, reason models.DisputeReason, details string, evidence []uuid.UUID) (*models.Dispute, error) {
	if !models.ValidDisputeReason(reason) {
		return nil, ErrBadReason
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	esc, err := r.escrows.Get(ctx, tx, escrowID)
	if err != nil {
		return nil, err
	}
	if raisedBy != esc.RequesterID && raisedBy != esc.ProviderID {
		return nil, ErrNotParticipant
	}

	d := &models.Dispute{
		ID:       uuid.New(),
		EscrowID: escrowID,
		RaisedBy: raisedBy,
		Reason:   reason,
		Details:  details,
		Evidence: evidence,
		Status:   models.DisputeOpen,
	}
	if err := r.disputes.CreateTx(ctx, tx, d); err != nil {
		return nil, err
	}
	// MarkDisputed requires locked status, which also guarantees at most
	// one open dispute per escrow.
	if _, err := r.escrows.MarkDisputed(ctx, tx, escrowID, d.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	r.events.Emit(ctx, notify.Event{
		Type:       notify.EventDisputeRaised,
		ActorID:    &raisedBy,
		Recipients: []uuid.UUID{esc.RequesterID, esc.ProviderID},
		EscrowID:   &escrowID,
		TaskID:     &esc.TaskID,
		DisputeID:  &d.ID,
		Payload:    mustJSON(map[string]any{"reason": reason}),
	})
	return d, nil
}

// MarkReviewed moves an open dispute to admin_reviewed. Admin only; no
// escrow effect. Resolution is still required to settle.
func (r *Resolver) MarkReviewed(ctx context.Context, disputeID uuid.UUID, admin *models.Account) (*models.Dispute, error) {
	if admin == nil || !admin.IsAdmin() {
		return nil, ErrUnauthorized
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	d, err := r.fetch(ctx, tx, disputeID)
	if err != nil {
		return nil, err
	}
	if d.Status != models.DisputeOpen {
		return nil, ErrDisputeNotOpen
	}
	d.Status = models.DisputeAdminReviewed
	if err := r.disputes.UpdateTx(ctx, tx, d); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Resolve applies an admin decision: refund_requester, release_provider,
// or split. The settlement amounts are derived from the escrow's
// outstanding balance; the escrow reaches a finalized state in the same
// transaction as the dispute status change. Only admins may call this;
// the check lives here, not in the transport layer.
func (r *Resolver) Resolve(ctx context.Context, requestID, disputeID uuid.UUID, admin *models.Account, decision models.DisputeDecision, payload json.RawMessage) (*models.Dispute, *models.Escrow, error) {
	if admin == nil || !admin.IsAdmin() {
		return nil, nil, ErrUnauthorized
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	d, err := r.fetch(ctx, tx, disputeID)
	if err != nil {
		return nil, nil, err
	}
	if d.Status == models.DisputeResolved {
		return nil, nil, ErrDisputeNotOpen
	}

	esc, err := r.escrows.Get(ctx, tx, d.EscrowID)
	if err != nil {
		return nil, nil, err
	}

	providerShare, requesterShare, err := shares(decision, esc.Outstanding(), payload)
	if err != nil {
		return nil, nil, err
	}
	esc, err = r.escrows.ResolveDisputed(ctx, tx, requestID, d.EscrowID, d.ID, providerShare, requesterShare)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	d.Status = models.DisputeResolved
	d.AdminDecision = &decision
	d.DecisionPayload = payload
	d.ResolvedAt = &now
	if err := r.disputes.UpdateTx(ctx, tx, d); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}

	r.events.Emit(ctx, notify.Event{
		Type:       notify.EventDisputeResolved,
		ActorID:    &admin.ID,
		Recipients: []uuid.UUID{esc.RequesterID, esc.ProviderID},
		EscrowID:   &esc.ID,
		TaskID:     &esc.TaskID,
		DisputeID:  &d.ID,
		Payload: mustJSON(map[string]any{
			"decision":        decision,
			"provider_share":  providerShare,
			"requester_share": requesterShare,
		}),
	})
	return d, esc, nil
}

// Get returns a dispute by id.
func (r *Resolver) Get(ctx context.Context, disputeID uuid.UUID) (*models.Dispute, error) {
	d, err := r.disputes.GetByID(ctx, disputeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

func (r *Resolver) fetch(ctx context.Context, tx pgx.Tx, disputeID uuid.UUID) (*models.Dispute, error) {
	d, err := r.disputes.GetForUpdate(ctx, tx, disputeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

// shares maps a decision onto (providerShare, requesterShare) of the
// outstanding balance.
func shares(decision models.DisputeDecision, outstanding int, payload json.RawMessage) (int, int, error) {
	switch decision {
	case models.DecisionReleaseProvider:
		return outstanding, 0, nil
	case models.DecisionRefundRequester:
		return 0, outstanding, nil
	case models.DecisionSplit:
		var p SplitPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return 0, 0, ErrBadDecision
		}
		if p.ProviderShare < 0 || p.RequesterShare < 0 || p.ProviderShare+p.RequesterShare != outstanding {
			return 0, 0, ErrBadDecision
		}
		return p.ProviderShare, p.RequesterShare, nil
	default:
		return 0, 0, ErrBadDecision
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
