package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/plantvision/inspection-api/pkg/apperrors"
	"github.com/plantvision/inspection-api/pkg/auth"
	"github.com/plantvision/inspection-api/pkg/models"
	"github.com/plantvision/inspection-api/pkg/services"
)

// SearchScreener rejects free-text search input that looks like an injection attempt.
type SearchScreener interface {
	ScreenSearch(ctx context.Context, field, value string) error
}

// UsersHandler handles user administration for managers and admins.
type UsersHandler struct {
	userService services.UserService
	screener    SearchScreener
	logger      *zap.Logger
}

// NewUsersHandler creates a new users handler.
func NewUsersHandler(userService services.UserService, screener SearchScreener, logger *zap.Logger) *UsersHandler {
	return &UsersHandler{
		userService: userService,
		screener:    screener,
		logger:      logger,
	}
}

// RegisterRoutes registers the users handler's routes on the given mux.
func (h *UsersHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	base := "/api/v1/users"
	supervisor := authMiddleware.Authorize(models.RoleManager, models.RoleAdmin)

	mux.HandleFunc("GET "+base, supervisor(h.List))
	mux.HandleFunc("GET "+base+"/workers/list", supervisor(h.Workers))
	mux.HandleFunc("GET "+base+"/stats/overview", supervisor(h.Overview))
	mux.HandleFunc("GET "+base+"/{id}", supervisor(h.Get))
	mux.HandleFunc("GET "+base+"/{id}/activity", supervisor(h.Activity))
	mux.HandleFunc("PUT "+base+"/{id}/status", supervisor(h.SetStatus))
}

type setStatusRequest struct {
	IsActive *bool `json:"isActive"`
}

// List handles GET /api/v1/users
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "list users")
		return
	}

	q := newQuery(r)
	filter := models.UserFilter{
		PlantArea: q.optString("plantArea"),
		IsActive:  q.optBool("isActive"),
		Search:    q.str("search"),
	}
	if role := q.optString("role"); role != nil {
		r := models.Role(*role)
		filter.Role = &r
	}
	page := q.page(DefaultPageLimit)
	if q.err != nil {
		WriteServiceError(w, h.logger, q.err, "list users")
		return
	}
	if err := h.screener.ScreenSearch(r.Context(), "search", filter.Search); err != nil {
		WriteServiceError(w, h.logger, err, "list users")
		return
	}

	result, err := h.userService.List(r.Context(), caller, filter, page)
	if err != nil {
		WriteServiceError(w, h.logger, err, "list users")
		return
	}
	writeData(w, h.logger, http.StatusOK, result)
}

// Get handles GET /api/v1/users/{id}
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "get user")
		return
	}
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}

	user, err := h.userService.Get(r.Context(), caller, id)
	if err != nil {
		WriteServiceError(w, h.logger, err, "get user")
		return
	}
	writeData(w, h.logger, http.StatusOK, user)
}

// Workers handles GET /api/v1/users/workers/list
func (h *UsersHandler) Workers(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "list workers")
		return
	}

	workers, err := h.userService.Workers(r.Context(), caller)
	if err != nil {
		WriteServiceError(w, h.logger, err, "list workers")
		return
	}
	writeData(w, h.logger, http.StatusOK, workers)
}

// Activity handles GET /api/v1/users/{id}/activity
func (h *UsersHandler) Activity(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "user activity")
		return
	}
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}

	q := newQuery(r)
	days := q.intIn("days", services.DefaultActivityDays, 1, services.MaxActivityDays)
	if q.err != nil {
		WriteServiceError(w, h.logger, q.err, "user activity")
		return
	}

	activity, err := h.userService.Activity(r.Context(), caller, id, days)
	if err != nil {
		WriteServiceError(w, h.logger, err, "user activity")
		return
	}
	writeData(w, h.logger, http.StatusOK, activity)
}

// SetStatus handles PUT /api/v1/users/{id}/status
func (h *UsersHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "set user status")
		return
	}
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}

	var req setStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteServiceError(w, h.logger, err, "set user status")
		return
	}
	if req.IsActive == nil {
		WriteServiceError(w, h.logger, apperrors.Validation("isActive must be a boolean value"), "set user status")
		return
	}

	user, err := h.userService.SetActive(r.Context(), caller, id, *req.IsActive)
	if err != nil {
		WriteServiceError(w, h.logger, err, "set user status")
		return
	}
	writeData(w, h.logger, http.StatusOK, user)
}

// Overview handles GET /api/v1/users/stats/overview
func (h *UsersHandler) Overview(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "user overview")
		return
	}

	overview, err := h.userService.Overview(r.Context(), caller)
	if err != nil {
		WriteServiceError(w, h.logger, err, "user overview")
		return
	}
	writeData(w, h.logger, http.StatusOK, overview)
}
