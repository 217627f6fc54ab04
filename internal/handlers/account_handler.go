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

// TransactionLister serves the caller's ledger history.
type TransactionLister interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Transaction, error)
}

// NotificationAccess is the poll-and-ack surface over notification rows.
type NotificationAccess interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Notification, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) (int64, error)
}

// FileStore registers evidence metadata. The blob lives elsewhere.
type FileStore interface {
	Create(ctx context.Context, f *models.FileRecord) error
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.FileRecord, error)
}

type AccountHandler struct {
	transactions  TransactionLister
	notifications NotificationAccess
	files         FileStore
	log           *slog.Logger
}

func NewAccountHandler(transactions TransactionLister, notifications NotificationAccess, files FileStore, log *slog.Logger) *AccountHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AccountHandler{transactions: transactions, notifications: notifications, files: files, log: log}
}

type meResponse struct {
	ID                  uuid.UUID `json:"id"`
	Email               string    `json:"email"`
	DisplayName         string    `json:"display_name"`
	Bio                 string    `json:"bio,omitempty"`
	Skills              []string  `json:"skills,omitempty"`
	Role                string    `json:"role"`
	Credits             int       `json:"credits"`
	LockedCredits       int       `json:"locked_credits"`
	ReputationScore     float64   `json:"reputation_score"`
	CompletedTasksCount int       `json:"completed_tasks_count"`
	IsApproved          bool      `json:"is_approved"`
}

// Me returns the caller's profile and balances. The account row comes from
// the auth middleware, so the balances are as fresh as the token check.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	writeJSON(w, http.StatusOK, meResponse{
		ID:                  acc.ID,
		Email:               acc.Email,
		DisplayName:         acc.DisplayName,
		Bio:                 acc.Bio,
		Skills:              acc.Skills,
		Role:                acc.Role,
		Credits:             acc.Credits,
		LockedCredits:       acc.LockedCredits,
		ReputationScore:     acc.ReputationScore,
		CompletedTasksCount: acc.CompletedTasksCount,
		IsApproved:          acc.IsApproved,
	})
}

func (h *AccountHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	txs, err := h.transactions.ListByUser(r.Context(), acc.ID)
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (h *AccountHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	ns, err := h.notifications.ListByUser(r.Context(), acc.ID)
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ns)
}

// MarkNotificationRead scopes the update to the caller, so reading someone
// else's notification id is a 404, not a leak.
func (h *AccountHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid notification id")
		return
	}
	n, err := h.notifications.MarkRead(r.Context(), id, acc.ID)
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type registerFileRequest struct {
	Bucket    string  `json:"bucket"`
	Path      string  `json:"path"`
	URL       string  `json:"url"`
	FileHash  *string `json:"file_hash,omitempty"`
	SizeBytes int64   `json:"size_bytes"`
	MimeType  string  `json:"mime_type"`
}

// RegisterFile records evidence metadata for later reference from disputes.
func (h *AccountHandler) RegisterFile(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	var req registerFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.URL == "" || req.MimeType == "" {
		writeError(w, http.StatusBadRequest, "url and mime_type required")
		return
	}
	f := &models.FileRecord{
		ID:        uuid.New(),
		OwnerID:   acc.ID,
		Bucket:    req.Bucket,
		Path:      req.Path,
		URL:       req.URL,
		FileHash:  req.FileHash,
		SizeBytes: req.SizeBytes,
		MimeType:  req.MimeType,
	}
	if err := h.files.Create(r.Context(), f); err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (h *AccountHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	fs, err := h.files.ListByOwner(r.Context(), acc.ID)
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, fs)
}
