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

// ReviewStore persists reviews and serves the non-hidden list per task.
type ReviewStore interface {
	Create(ctx context.Context, v *models.Review) error
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]*models.Review, error)
}

// TaskReader loads the task being reviewed.
type TaskReader interface {
	Get(ctx context.Context, taskID uuid.UUID) (*models.Task, error)
}

// ReputationUpdater refreshes an account's reputation from its reviews.
type ReputationUpdater interface {
	RecalcReputation(ctx context.Context, id uuid.UUID) error
}

type ReviewHandler struct {
	reviews  ReviewStore
	tasks    TaskReader
	accounts ReputationUpdater
	log      *slog.Logger
}

func NewReviewHandler(reviews ReviewStore, tasks TaskReader, accounts ReputationUpdater, log *slog.Logger) *ReviewHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ReviewHandler{reviews: reviews, tasks: tasks, accounts: accounts, log: log}
}

type createReviewRequest struct {
	Rating      int      `json:"rating"`
	Title       *string  `json:"title,omitempty"`
	Comment     *string  `json:"comment,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	IsAnonymous bool     `json:"is_anonymous"`
}

// Create handles POST /tasks/{id}/reviews. Only a participant of a
// completed task may review, and the reviewee is always the other
// participant. Reviews never touch balances.
func (h *ReviewHandler) Create(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	taskID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	var req createReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		writeError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}

	t, err := h.tasks.Get(r.Context(), taskID)
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	if t.Status != models.TaskCompleted {
		writeError(w, http.StatusConflict, "task is not completed")
		return
	}
	reviewee, ok := counterpart(t, acc.ID)
	if !ok {
		writeError(w, http.StatusForbidden, "not a participant of this task")
		return
	}

	v := &models.Review{
		ID:          uuid.New(),
		TaskID:      t.ID,
		ReviewerID:  acc.ID,
		RevieweeID:  reviewee,
		Rating:      req.Rating,
		Title:       req.Title,
		Comment:     req.Comment,
		Tags:        req.Tags,
		IsAnonymous: req.IsAnonymous,
	}
	if err := h.reviews.Create(r.Context(), v); err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	if err := h.accounts.RecalcReputation(r.Context(), reviewee); err != nil {
		h.log.Warn("reputation recalc failed", "account_id", reviewee, "error", err)
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *ReviewHandler) ListByTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	vs, err := h.reviews.ListByTask(r.Context(), taskID)
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

// counterpart returns the other participant of the task.
func counterpart(t *models.Task, userID uuid.UUID) (uuid.UUID, bool) {
	if t.AcceptorID == nil {
		return uuid.Nil, false
	}
	switch userID {
	case t.CreatorID:
		return *t.AcceptorID, true
	case *t.AcceptorID:
		return t.CreatorID, true
	}
	return uuid.Nil, false
}
