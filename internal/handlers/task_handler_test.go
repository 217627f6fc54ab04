package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hourbank/backend/internal/escrow"
	"github.com/hourbank/backend/internal/ledger"
	"github.com/hourbank/backend/internal/lifecycle"
	"github.com/hourbank/backend/internal/middleware"
	"github.com/hourbank/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

// mockLifecycle returns canned results and records the request ids it saw.
type mockLifecycle struct {
	task       *models.Task
	esc        *models.Escrow
	err        error
	requestIDs []uuid.UUID
}

func (m *mockLifecycle) Create(_ context.Context, t *models.Task) error {
	if m.err != nil {
		return m.err
	}
	t.ID = uuid.New()
	t.Status = models.TaskOpen
	t.Version = 1
	return nil
}

func (m *mockLifecycle) Get(context.Context, uuid.UUID) (*models.Task, error) {
	return m.task, m.err
}

func (m *mockLifecycle) Accept(_ context.Context, requestID, _, _ uuid.UUID) (*models.Task, *models.Escrow, error) {
	m.requestIDs = append(m.requestIDs, requestID)
	return m.task, m.esc, m.err
}

func (m *mockLifecycle) Schedule(context.Context, uuid.UUID, uuid.UUID, time.Time) (*models.Task, error) {
	return m.task, m.err
}

func (m *mockLifecycle) CheckIn(context.Context, uuid.UUID, uuid.UUID) (*models.Task, error) {
	return m.task, m.err
}

func (m *mockLifecycle) Complete(_ context.Context, requestID, _, _ uuid.UUID) (*models.Task, *models.Escrow, error) {
	m.requestIDs = append(m.requestIDs, requestID)
	return m.task, m.esc, m.err
}

func (m *mockLifecycle) Cancel(_ context.Context, requestID, _, _ uuid.UUID) (*models.Task, error) {
	m.requestIDs = append(m.requestIDs, requestID)
	return m.task, m.err
}

type mockTaskLister struct {
	open []*models.Task
	mine []*models.Task
}

func (m *mockTaskLister) ListOpen(context.Context) ([]*models.Task, error) { return m.open, nil }
func (m *mockTaskLister) ListByUser(context.Context, uuid.UUID) ([]*models.Task, error) {
	return m.mine, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func authedRequest(method, target, body string, acc *models.Account) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	return r.WithContext(middleware.WithAccount(r.Context(), acc))
}

func member() *models.Account {
	return &models.Account{ID: uuid.New(), Role: models.RoleMember, Credits: 10}
}

// serve routes the request through a mux with the handler's patterns so
// r.PathValue works.
func serve(pattern string, fn http.HandlerFunc, r *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, fn)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestCreateTask(t *testing.T) {
	h := NewTaskHandler(&mockLifecycle{}, &mockTaskLister{}, nil)
	body := `{"type":"request","title":"walk my dog","estimated_credits":2,"mode":"in_person"}`
	w := serve("POST /tasks", h.Create, authedRequest(http.MethodPost, "/tasks", body, member()))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	var got models.Task
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != models.TaskOpen || got.Title != "walk my dog" {
		t.Fatalf("task = %+v", got)
	}
}

func TestCreateTaskBadJSON(t *testing.T) {
	h := NewTaskHandler(&mockLifecycle{}, &mockTaskLister{}, nil)
	w := serve("POST /tasks", h.Create, authedRequest(http.MethodPost, "/tasks", `{`, member()))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestCreateTaskInvalid(t *testing.T) {
	h := NewTaskHandler(&mockLifecycle{err: lifecycle.ErrInvalidTask}, &mockTaskLister{}, nil)
	body := `{"type":"request","title":"","estimated_credits":0,"mode":"online"}`
	w := serve("POST /tasks", h.Create, authedRequest(http.MethodPost, "/tasks", body, member()))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestAcceptUsesIdempotencyKeyHeader(t *testing.T) {
	taskID := uuid.New()
	ml := &mockLifecycle{
		task: &models.Task{ID: taskID, Status: models.TaskAccepted},
		esc:  &models.Escrow{ID: uuid.New(), TaskID: taskID, CreditsLocked: 2},
	}
	h := NewTaskHandler(ml, &mockTaskLister{}, nil)

	key := uuid.New()
	r := authedRequest(http.MethodPost, "/tasks/"+taskID.String()+"/accept", "", member())
	r.Header.Set("Idempotency-Key", key.String())
	w := serve("POST /tasks/{id}/accept", h.Accept, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if len(ml.requestIDs) != 1 || ml.requestIDs[0] != key {
		t.Fatalf("request ids = %v, want [%s]", ml.requestIDs, key)
	}
}

func TestAcceptGeneratesRequestIDWithoutHeader(t *testing.T) {
	taskID := uuid.New()
	ml := &mockLifecycle{
		task: &models.Task{ID: taskID, Status: models.TaskAccepted},
		esc:  &models.Escrow{ID: uuid.New()},
	}
	h := NewTaskHandler(ml, &mockTaskLister{}, nil)

	r := authedRequest(http.MethodPost, "/tasks/"+taskID.String()+"/accept", "", member())
	w := serve("POST /tasks/{id}/accept", h.Accept, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(ml.requestIDs) != 1 || ml.requestIDs[0] == uuid.Nil {
		t.Fatalf("request ids = %v", ml.requestIDs)
	}
}

func TestAcceptErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"insufficient balance", ledger.ErrInsufficientBalance, http.StatusPaymentRequired},
		{"invalid transition", lifecycle.ErrInvalidTransition, http.StatusConflict},
		{"lost race", lifecycle.ErrConflict, http.StatusConflict},
		{"already locked", escrow.ErrAlreadyLocked, http.StatusConflict},
		{"own task", lifecycle.ErrForbidden, http.StatusForbidden},
		{"unknown task", lifecycle.ErrNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewTaskHandler(&mockLifecycle{err: tc.err}, &mockTaskLister{}, nil)
			r := authedRequest(http.MethodPost, "/tasks/"+uuid.New().String()+"/accept", "", member())
			w := serve("POST /tasks/{id}/accept", h.Accept, r)
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}

func TestAcceptBadTaskID(t *testing.T) {
	h := NewTaskHandler(&mockLifecycle{}, &mockTaskLister{}, nil)
	r := authedRequest(http.MethodPost, "/tasks/not-a-uuid/accept", "", member())
	w := serve("POST /tasks/{id}/accept", h.Accept, r)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestListTasks(t *testing.T) {
	lister := &mockTaskLister{
		open: []*models.Task{{ID: uuid.New()}, {ID: uuid.New()}},
		mine: []*models.Task{{ID: uuid.New()}},
	}
	h := NewTaskHandler(&mockLifecycle{}, lister, nil)

	w := serve("GET /tasks", h.List, authedRequest(http.MethodGet, "/tasks", "", member()))
	var open []*models.Task
	_ = json.Unmarshal(w.Body.Bytes(), &open)
	if len(open) != 2 {
		t.Fatalf("open board = %d tasks, want 2", len(open))
	}

	w = serve("GET /tasks", h.List, authedRequest(http.MethodGet, "/tasks?mine=1", "", member()))
	var mine []*models.Task
	_ = json.Unmarshal(w.Body.Bytes(), &mine)
	if len(mine) != 1 {
		t.Fatalf("mine = %d tasks, want 1", len(mine))
	}
}

func TestScheduleRequiresConfirmedTime(t *testing.T) {
	h := NewTaskHandler(&mockLifecycle{task: &models.Task{}}, &mockTaskLister{}, nil)
	r := authedRequest(http.MethodPost, "/tasks/"+uuid.New().String()+"/schedule", `{}`, member())
	w := serve("POST /tasks/{id}/schedule", h.Schedule, r)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestCompleteReturnsEscrow(t *testing.T) {
	taskID := uuid.New()
	ml := &mockLifecycle{
		task: &models.Task{ID: taskID, Status: models.TaskCompleted},
		esc:  &models.Escrow{ID: uuid.New(), Status: models.EscrowReleased, IsFinalized: true},
	}
	h := NewTaskHandler(ml, &mockTaskLister{}, nil)
	r := authedRequest(http.MethodPost, "/tasks/"+taskID.String()+"/complete", "", member())
	w := serve("POST /tasks/{id}/complete", h.Complete, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp taskEscrowResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Escrow == nil || resp.Escrow.Status != models.EscrowReleased {
		t.Fatalf("escrow = %+v", resp.Escrow)
	}
}

func TestCancelDisputedEscrowConflict(t *testing.T) {
	h := NewTaskHandler(&mockLifecycle{err: escrow.ErrNotLocked}, &mockTaskLister{}, nil)
	r := authedRequest(http.MethodPost, "/tasks/"+uuid.New().String()+"/cancel", "", member())
	w := serve("POST /tasks/{id}/cancel", h.Cancel, r)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}
