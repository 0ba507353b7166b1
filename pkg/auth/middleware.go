package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plantvision/inspection-api/pkg/apperrors"
	"github.com/plantvision/inspection-api/pkg/models"
)

// UserLoader loads the current state of a user. RequireAuth calls it on every
// request so role and plant area always come from the store.
type UserLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// AccessDeniedRecorder is told about every request rejected by RequireRole.
type AccessDeniedRecorder interface {
	RecordAccessDenied(ctx context.Context, caller models.Caller, r *http.Request, required []models.Role)
}

// Middleware provides HTTP authentication middleware.
type Middleware struct {
	tokens      TokenService
	users       UserLoader
	revocations RevocationStore
	denials     AccessDeniedRecorder
	logger      *zap.Logger
}

// NewMiddleware creates a new auth middleware.
func NewMiddleware(
	tokens TokenService,
	users UserLoader,
	revocations RevocationStore,
	denials AccessDeniedRecorder,
	logger *zap.Logger,
) *Middleware {
	return &Middleware{
		tokens:      tokens,
		users:       users,
		revocations: revocations,
		denials:     denials,
		logger:      logger,
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingAuthorization
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" || token == "" {
		return "", ErrInvalidAuthFormat
	}
	return token, nil
}

// RequireAuth verifies the access token, loads the caller from the store, rejects
// inactive accounts and puts the caller in context for downstream handlers.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := BearerToken(r)
		if err != nil {
			m.unauthorized(w, "Access token required")
			return
		}

		claims, err := m.tokens.VerifyKind(token, TokenKindAccess)
		if err != nil {
			m.logger.Debug("Token verification failed",
				zap.String("path", r.URL.Path),
				zap.Error(err))
			m.unauthorized(w, "Invalid or expired token")
			return
		}

		revoked, err := m.revocations.IsRevoked(r.Context(), claims.ID)
		if err != nil {
			m.logger.Error("Failed to check token revocation", zap.Error(err))
			m.unauthorized(w, "Token could not be verified")
			return
		}
		if revoked {
			m.unauthorized(w, "Token has been revoked")
			return
		}

		user, err := m.users.GetByID(r.Context(), claims.SubjectID())
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				m.unauthorized(w, "User not found")
				return
			}
			m.logger.Error("Failed to load user for request",
				zap.String("user_id", claims.Subject),
				zap.Error(err))
			m.writeError(w, http.StatusInternalServerError, "internal_error", "Authentication failed")
			return
		}

		if !user.IsActive {
			m.unauthorized(w, "Account is inactive")
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsKey, claims)
		ctx = WithCaller(ctx, user.Caller())
		next(w, r.WithContext(ctx))
	}
}

// RequireRole rejects callers whose role is not in roles. It must run behind
// RequireAuth. Every denial is reported to the AccessDeniedRecorder.
func (m *Middleware) RequireRole(roles ...models.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			caller, ok := GetCaller(r.Context())
			if !ok {
				m.unauthorized(w, "Authentication required")
				return
			}

			if !slices.Contains(roles, caller.Role) {
				if m.denials != nil {
					m.denials.RecordAccessDenied(r.Context(), caller, r, roles)
				}
				m.writeError(w, http.StatusForbidden, "forbidden", "Insufficient permissions")
				return
			}

			next(w, r)
		}
	}
}

// Authorize is RequireAuth followed by RequireRole(roles...).
func (m *Middleware) Authorize(roles ...models.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return m.RequireAuth(m.RequireRole(roles...)(next))
	}
}

// unauthorized returns a 401 response with JSON error body.
func (m *Middleware) unauthorized(w http.ResponseWriter, message string) {
	m.writeError(w, http.StatusUnauthorized, "unauthorized", message)
}

func (m *Middleware) writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
