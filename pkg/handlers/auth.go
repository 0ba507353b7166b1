package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/plantvision/inspection-api/pkg/auth"
	"github.com/plantvision/inspection-api/pkg/models"
	"github.com/plantvision/inspection-api/pkg/services"
)

// AuthHandler handles sign-in, sign-out and the caller's own account.
type AuthHandler struct {
	authService services.AuthService
	logger      *zap.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(authService services.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// RegisterRoutes registers the auth handler's routes on the given mux.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	base := "/api/v1/auth"

	mux.HandleFunc("POST "+base+"/login", h.Login)
	mux.HandleFunc("POST "+base+"/refresh", h.Refresh)
	mux.HandleFunc("POST "+base+"/logout", authMiddleware.RequireAuth(h.Logout))
	mux.HandleFunc("GET "+base+"/me", authMiddleware.RequireAuth(h.Me))
	mux.HandleFunc("PUT "+base+"/profile", authMiddleware.RequireAuth(h.UpdateProfile))
	mux.HandleFunc("PUT "+base+"/change-password", authMiddleware.RequireAuth(h.ChangePassword))
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteServiceError(w, h.logger, err, "login")
		return
	}

	session, err := h.authService.Login(r.Context(), req)
	if err != nil {
		WriteServiceError(w, h.logger, err, "login")
		return
	}
	writeData(w, h.logger, http.StatusOK, session)
}

// Refresh handles POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteServiceError(w, h.logger, err, "refresh")
		return
	}

	pair, err := h.authService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		WriteServiceError(w, h.logger, err, "refresh")
		return
	}
	writeData(w, h.logger, http.StatusOK, pair)
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "logout")
		return
	}
	claims, _ := auth.GetClaims(r.Context())

	if err := h.authService.Logout(r.Context(), caller, claims); err != nil {
		WriteServiceError(w, h.logger, err, "logout")
		return
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "Logged out successfully"}); err != nil {
		h.logger.Error("Failed to write logout response", zap.Error(err))
	}
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "me")
		return
	}

	user, err := h.authService.Me(r.Context(), caller)
	if err != nil {
		WriteServiceError(w, h.logger, err, "me")
		return
	}
	writeData(w, h.logger, http.StatusOK, user)
}

// UpdateProfile handles PUT /api/v1/auth/profile
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "update profile")
		return
	}

	var update models.ProfileUpdate
	if err := decodeJSON(r, &update); err != nil {
		WriteServiceError(w, h.logger, err, "update profile")
		return
	}

	user, err := h.authService.UpdateProfile(r.Context(), caller, update)
	if err != nil {
		WriteServiceError(w, h.logger, err, "update profile")
		return
	}
	writeData(w, h.logger, http.StatusOK, user)
}

// ChangePassword handles PUT /api/v1/auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "change password")
		return
	}

	var change models.PasswordChange
	if err := decodeJSON(r, &change); err != nil {
		WriteServiceError(w, h.logger, err, "change password")
		return
	}

	if err := h.authService.ChangePassword(r.Context(), caller, change); err != nil {
		WriteServiceError(w, h.logger, err, "change password")
		return
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "Password changed successfully"}); err != nil {
		h.logger.Error("Failed to write change password response", zap.Error(err))
	}
}
