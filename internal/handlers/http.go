package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/hourbank/backend/internal/dispute"
	"github.com/hourbank/backend/internal/escrow"
	"github.com/hourbank/backend/internal/ledger"
	"github.com/hourbank/backend/internal/lifecycle"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps core errors onto HTTP statuses. Balance- and
// state-affecting failures surface the specific reason; nothing downgrades
// to success.
func writeDomainError(w http.ResponseWriter, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance):
		writeError(w, http.StatusPaymentRequired, "insufficient balance")
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, escrow.ErrBadSplit),
		errors.Is(err, lifecycle.ErrInvalidTask),
		errors.Is(err, dispute.ErrBadReason),
		errors.Is(err, dispute.ErrBadDecision):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, lifecycle.ErrNotFound),
		errors.Is(err, escrow.ErrNotFound),
		errors.Is(err, dispute.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, lifecycle.ErrForbidden),
		errors.Is(err, dispute.ErrNotParticipant),
		errors.Is(err, dispute.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, escrow.ErrAlreadyLocked),
		errors.Is(err, escrow.ErrNotLocked),
		errors.Is(err, escrow.ErrNotDisputed),
		errors.Is(err, escrow.ErrAlreadyFinalized),
		errors.Is(err, escrow.ErrConflict),
		errors.Is(err, lifecycle.ErrConflict),
		errors.Is(err, lifecycle.ErrInvalidTransition),
		errors.Is(err, dispute.ErrDisputeNotOpen):
		writeError(w, http.StatusConflict, err.Error())
	default:
		if log != nil {
			log.Error("internal error", "error", err)
		}
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// pathID parses the {id} path segment.
func pathID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	return id, err == nil
}

// requestID returns the caller-supplied Idempotency-Key, or a fresh id
// when the header is absent or malformed. Replaying the same key after a
// partial failure returns the original result instead of double-spending.
func requestID(r *http.Request) uuid.UUID {
	if id, err := uuid.Parse(r.Header.Get("Idempotency-Key")); err == nil {
		return id
	}
	return uuid.New()
}
