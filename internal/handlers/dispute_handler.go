package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/hourbank/backend/internal/middleware"
	"github.com/hourbank/backend/internal/models"
)

// DisputeRaiser is the member-facing side of the dispute resolver.
type DisputeRaiser interface {
	Raise(ctx context.Context, escrowID, raisedBy uuid.UUID, reason models.DisputeReason, details string, evidence []uuid.UUID) (*models.Dispute, error)
	Get(ctx context.Context, disputeID uuid.UUID) (*models.Dispute, error)
}

type DisputeHandler struct {
	resolver DisputeRaiser
	log      *slog.Logger
}

func NewDisputeHandler(resolver DisputeRaiser, log *slog.Logger) *DisputeHandler {
	if log == nil {
		log = slog.Default()
	}
	return &DisputeHandler{resolver: resolver, log: log}
}

type raiseDisputeRequest struct {
	Reason   models.DisputeReason `json:"reason"`
	Details  string               `json:"details"`
	Evidence []uuid.UUID          `json:"evidence,omitempty"`
}

// Raise handles POST /escrows/{id}/disputes. The escrow must be in locked
// status; a second dispute on the same escrow fails with 409.
func (h *DisputeHandler) Raise(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	escrowID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid escrow id")
		return
	}
	var req raiseDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	d, err := h.resolver.Raise(r.Context(), escrowID, acc.ID, req.Reason, req.Details, req.Evidence)
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	h.log.Info("dispute raised", "dispute_id", d.ID, "escrow_id", escrowID, "raised_by", acc.ID, "reason", d.Reason)
	writeJSON(w, http.StatusCreated, d)
}

func (h *DisputeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid dispute id")
		return
	}
	d, err := h.resolver.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	acc := middleware.AccountFromCtx(r.Context())
	if !acc.IsAdmin() && d.RaisedBy != acc.ID {
		writeError(w, http.StatusForbidden, "not a party to this dispute")
		return
	}
	writeJSON(w, http.StatusOK, d)
}
