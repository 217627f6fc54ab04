package router

import (
	"net/http"

	"github.com/hourbank/backend/internal/auth"
	"github.com/hourbank/backend/internal/handlers"
	"github.com/hourbank/backend/internal/middleware"
)

// Handlers bundles the HTTP surface for route registration.
type Handlers struct {
	Auth     *auth.Handler
	Tasks    *handlers.TaskHandler
	Disputes *handlers.DisputeHandler
	Accounts *handlers.AccountHandler
	Reviews  *handlers.ReviewHandler
	Admin    *handlers.AdminHandler
}

// New returns the API handler. Everything under /api/v1 except auth
// requires a bearer token; /api/v1/admin additionally requires the admin
// role.
func New(h Handlers, validator middleware.TokenValidator) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	mux.HandleFunc("POST "+base+"/auth/register", h.Auth.Register)
	mux.HandleFunc("POST "+base+"/auth/login", h.Auth.Login)

	authed := middleware.BearerAuth(validator)
	route := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, authed(fn))
	}

	route("POST "+base+"/tasks", h.Tasks.Create)
	route("GET "+base+"/tasks", h.Tasks.List)
	route("GET "+base+"/tasks/{id}", h.Tasks.Get)
	route("POST "+base+"/tasks/{id}/accept", h.Tasks.Accept)
	route("POST "+base+"/tasks/{id}/schedule", h.Tasks.Schedule)
	route("POST "+base+"/tasks/{id}/checkin", h.Tasks.CheckIn)
	route("POST "+base+"/tasks/{id}/complete", h.Tasks.Complete)
	route("POST "+base+"/tasks/{id}/cancel", h.Tasks.Cancel)

	route("POST "+base+"/tasks/{id}/reviews", h.Reviews.Create)
	route("GET "+base+"/tasks/{id}/reviews", h.Reviews.ListByTask)

	route("POST "+base+"/escrows/{id}/disputes", h.Disputes.Raise)
	route("GET "+base+"/disputes/{id}", h.Disputes.Get)

	route("GET "+base+"/account/me", h.Accounts.Me)
	route("GET "+base+"/transactions", h.Accounts.ListTransactions)
	route("GET "+base+"/notifications", h.Accounts.ListNotifications)
	route("POST "+base+"/notifications/{id}/read", h.Accounts.MarkNotificationRead)
	route("POST "+base+"/files", h.Accounts.RegisterFile)
	route("GET "+base+"/files", h.Accounts.ListFiles)

	admin := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, authed(middleware.RequireAdmin(fn)))
	}
	admin("GET "+base+"/admin/disputes", h.Admin.ListDisputes)
	admin("POST "+base+"/admin/disputes/{id}/review", h.Admin.MarkDisputeReviewed)
	admin("POST "+base+"/admin/disputes/{id}/resolve", h.Admin.ResolveDispute)
	admin("POST "+base+"/admin/accounts/{id}/adjust", h.Admin.AdjustAccount)
	admin("POST "+base+"/admin/accounts/{id}/suspend", h.Admin.SuspendAccount)
	admin("POST "+base+"/admin/accounts/{id}/approve", h.Admin.ApproveAccount)
	admin("POST "+base+"/admin/reviews/{id}/hide", h.Admin.HideReview)
	admin("POST "+base+"/admin/reviews/{id}/unhide", h.Admin.UnhideReview)
	admin("GET "+base+"/admin/audit", h.Admin.ListAudit)

	return mux
}
