package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hourbank/backend/internal/middleware"
	"github.com/hourbank/backend/internal/models"
)

// Lifecycle is the task state machine interface used by the handler.
type Lifecycle interface {
	Create(ctx context.Context, t *models.Task) error
	Get(ctx context.Context, taskID uuid.UUID) (*models.Task, error)
	Accept(ctx context.Context, requestID, taskID, userID uuid.UUID) (*models.Task, *models.Escrow, error)
	Schedule(ctx context.Context, taskID, userID uuid.UUID, when time.Time) (*models.Task, error)
	CheckIn(ctx context.Context, taskID, userID uuid.UUID) (*models.Task, error)
	Complete(ctx context.Context, requestID, taskID, userID uuid.UUID) (*models.Task, *models.Escrow, error)
	Cancel(ctx context.Context, requestID, taskID, userID uuid.UUID) (*models.Task, error)
}

// TaskLister is the read-only listing side, served straight from the
// repository.
type TaskLister interface {
	ListOpen(ctx context.Context) ([]*models.Task, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Task, error)
}

type TaskHandler struct {
	machine Lifecycle
	tasks   TaskLister
	log     *slog.Logger
}

func NewTaskHandler(machine Lifecycle, tasks TaskLister, log *slog.Logger) *TaskHandler {
	if log == nil {
		log = slog.Default()
	}
	return &TaskHandler{machine: machine, tasks: tasks, log: log}
}

type createTaskRequest struct {
	Type             models.TaskType `json:"type"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	EstimatedCredits int             `json:"estimated_credits"`
	Mode             models.TaskMode `json:"mode"`
	LocationCity     *string         `json:"location_city,omitempty"`
	LocationCountry  *string         `json:"location_country,omitempty"`
	OnlinePlatform   *string         `json:"online_platform,omitempty"`
	ProposedTimes    []time.Time     `json:"proposed_times,omitempty"`
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	t := &models.Task{
		CreatorID:        acc.ID,
		Type:             req.Type,
		Title:            req.Title,
		Description:      req.Description,
		EstimatedCredits: req.EstimatedCredits,
		Mode:             req.Mode,
		LocationCity:     req.LocationCity,
		LocationCountry:  req.LocationCountry,
		OnlinePlatform:   req.OnlinePlatform,
		ProposedTimes:    req.ProposedTimes,
	}
	if err := h.machine.Create(r.Context(), t); err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	h.log.Info("task created", "task_id", t.ID, "creator_id", acc.ID, "credits", t.EstimatedCredits)
	writeJSON(w, http.StatusCreated, t)
}

// List returns the open board, or the caller's own tasks with ?mine=1.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		tasks []*models.Task
		err   error
	)
	if r.URL.Query().Get("mine") != "" {
		acc := middleware.AccountFromCtx(r.Context())
		tasks, err = h.tasks.ListByUser(r.Context(), acc.ID)
	} else {
		tasks, err = h.tasks.ListOpen(r.Context())
	}
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	t, err := h.machine.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type taskEscrowResponse struct {
	Task   *models.Task   `json:"task"`
	Escrow *models.Escrow `json:"escrow,omitempty"`
}

func (h *TaskHandler) Accept(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	t, esc, err := h.machine.Accept(r.Context(), requestID(r), id, acc.ID)
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	h.log.Info("task accepted", "task_id", t.ID, "acceptor_id", acc.ID, "escrow_id", esc.ID)
	writeJSON(w, http.StatusOK, taskEscrowResponse{Task: t, Escrow: esc})
}

type scheduleRequest struct {
	ConfirmedTime time.Time `json:"confirmed_time"`
}

func (h *TaskHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ConfirmedTime.IsZero() {
		writeError(w, http.StatusBadRequest, "confirmed_time required")
		return
	}
	t, err := h.machine.Schedule(r.Context(), id, acc.ID, req.ConfirmedTime)
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TaskHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	t, err := h.machine.CheckIn(r.Context(), id, acc.ID)
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	t, esc, err := h.machine.Complete(r.Context(), requestID(r), id, acc.ID)
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	h.log.Info("task completed", "task_id", t.ID, "actor_id", acc.ID)
	writeJSON(w, http.StatusOK, taskEscrowResponse{Task: t, Escrow: esc})
}

func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	t, err := h.machine.Cancel(r.Context(), requestID(r), id, acc.ID)
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	h.log.Info("task cancelled", "task_id", t.ID, "actor_id", acc.ID)
	writeJSON(w, http.StatusOK, t)
}
