package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hourbank/backend/internal/ledger"
	"github.com/hourbank/backend/internal/middleware"
	"github.com/hourbank/backend/internal/models"
	"github.com/hourbank/backend/internal/notify"
)

// DisputeAdmin is the admin side of the dispute resolver.
type DisputeAdmin interface {
	MarkReviewed(ctx context.Context, disputeID uuid.UUID, admin *models.Account) (*models.Dispute, error)
	Resolve(ctx context.Context, requestID, disputeID uuid.UUID, admin *models.Account, decision models.DisputeDecision, payload json.RawMessage) (*models.Dispute, *models.Escrow, error)
}

// DisputeLister lists disputes for the admin console.
type DisputeLister interface {
	List(ctx context.Context, status models.DisputeStatus) ([]*models.Dispute, error)
}

// AccountAdmin flips moderation flags on accounts.
type AccountAdmin interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	SetSuspended(ctx context.Context, id uuid.UUID, suspended bool) error
	SetApproved(ctx context.Context, id uuid.UUID, approved bool) error
	RecalcReputation(ctx context.Context, id uuid.UUID) error
}

// ReviewAdmin hides and unhides reviews. SetHidden returns the reviewee id
// or pgx.ErrNoRows.
type ReviewAdmin interface {
	SetHidden(ctx context.Context, id uuid.UUID, hidden bool) (uuid.UUID, error)
}

// AuditLister serves the append-only audit trail.
type AuditLister interface {
	List(ctx context.Context, limit int) ([]*models.AuditEntry, error)
}

// Adjuster is the ledger's balance mutation entry point.
type Adjuster interface {
	Adjust(ctx context.Context, tx pgx.Tx, userID uuid.UUID, delta, lockedDelta int, meta ledger.Meta) (*models.Transaction, error)
}

// TxBeginner abstracts transaction creation.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Events receives domain events after commit.
type Events interface {
	Emit(ctx context.Context, ev notify.Event)
}

type AdminHandler struct {
	pool     TxBeginner
	resolver DisputeAdmin
	disputes DisputeLister
	accounts AccountAdmin
	reviews  ReviewAdmin
	audit    AuditLister
	ledger   Adjuster
	events   Events
	log      *slog.Logger
}

func NewAdminHandler(pool TxBeginner, resolver DisputeAdmin, disputes DisputeLister, accounts AccountAdmin, reviews ReviewAdmin, audit AuditLister, lg Adjuster, events Events, log *slog.Logger) *AdminHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AdminHandler{
		pool:     pool,
		resolver: resolver,
		disputes: disputes,
		accounts: accounts,
		reviews:  reviews,
		audit:    audit,
		ledger:   lg,
		events:   events,
		log:      log,
	}
}

func (h *AdminHandler) ListDisputes(w http.ResponseWriter, r *http.Request) {
	status := models.DisputeStatus(r.URL.Query().Get("status"))
	ds, err := h.disputes.List(r.Context(), status)
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (h *AdminHandler) MarkDisputeReviewed(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid dispute id")
		return
	}
	d, err := h.resolver.MarkReviewed(r.Context(), id, acc)
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type resolveDisputeRequest struct {
	Decision models.DisputeDecision `json:"decision"`
	Payload  json.RawMessage        `json:"payload,omitempty"`
}

type resolveDisputeResponse struct {
	Dispute *models.Dispute `json:"dispute"`
	Escrow  *models.Escrow  `json:"escrow"`
}

func (h *AdminHandler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid dispute id")
		return
	}
	var req resolveDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	d, esc, err := h.resolver.Resolve(r.Context(), requestID(r), id, acc, req.Decision, req.Payload)
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	h.log.Info("dispute resolved", "dispute_id", d.ID, "escrow_id", esc.ID, "decision", req.Decision, "admin_id", acc.ID)
	writeJSON(w, http.StatusOK, resolveDisputeResponse{Dispute: d, Escrow: esc})
}

type adjustRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

// AdjustAccount applies a signed admin correction to available credits.
// It goes through the ledger like every other balance change, so it shows
// up in the transaction history with before/after snapshots.
func (h *AdminHandler) AdjustAccount(w http.ResponseWriter, r *http.Request) {
	admin := middleware.AccountFromCtx(r.Context())
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	detail, _ := json.Marshal(map[string]string{"reason": req.Reason, "admin_id": admin.ID.String()})
	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	defer tx.Rollback(r.Context())

	entry, err := h.ledger.Adjust(r.Context(), tx, id, req.Delta, 0, ledger.Meta{
		Type:   models.TxAdminAdjust,
		Detail: detail,
	})
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		writeDomainError(w, h.log, err)
		return
	}

	h.log.Info("admin adjustment applied", "account_id", id, "delta", req.Delta, "admin_id", admin.ID)
	h.events.Emit(r.Context(), notify.Event{
		Type:       notify.EventAdminAdjust,
		ActorID:    &admin.ID,
		Recipients: []uuid.UUID{id},
		Payload:    detail,
	})
	writeJSON(w, http.StatusOK, entry)
}

func (h *AdminHandler) SuspendAccount(w http.ResponseWriter, r *http.Request) {
	h.setAccountFlag(w, r, "suspend")
}

func (h *AdminHandler) ApproveAccount(w http.ResponseWriter, r *http.Request) {
	h.setAccountFlag(w, r, "approve")
}

func (h *AdminHandler) setAccountFlag(w http.ResponseWriter, r *http.Request, action string) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	if _, err := h.accounts.GetByID(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	var err error
	switch action {
	case "suspend":
		err = h.accounts.SetSuspended(r.Context(), id, true)
	case "approve":
		err = h.accounts.SetApproved(r.Context(), id, true)
	}
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	h.log.Info("account flag changed", "account_id", id, "action", action)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) HideReview(w http.ResponseWriter, r *http.Request) {
	h.setReviewHidden(w, r, true)
}

func (h *AdminHandler) UnhideReview(w http.ResponseWriter, r *http.Request) {
	h.setReviewHidden(w, r, false)
}

func (h *AdminHandler) setReviewHidden(w http.ResponseWriter, r *http.Request, hidden bool) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid review id")
		return
	}
	reviewee, err := h.reviews.SetHidden(r.Context(), id, hidden)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "review not found")
			return
		}
		writeDomainError(w, h.log, err)
		return
	}
	// Hidden reviews are excluded from the average, so refresh it now.
	if err := h.accounts.RecalcReputation(r.Context(), reviewee); err != nil {
		h.log.Warn("reputation recalc failed", "account_id", reviewee, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.audit.List(r.Context(), 200)
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
