package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/plantvision/inspection-api/pkg/apperrors"
	"github.com/plantvision/inspection-api/pkg/audit"
	"github.com/plantvision/inspection-api/pkg/auth"
	"github.com/plantvision/inspection-api/pkg/models"
	"github.com/plantvision/inspection-api/pkg/repositories"
)

// AuthService signs users in and out and manages their own account.
type AuthService interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.Session, error)
	// Refresh exchanges a refresh token for a new token pair. The presented
	// refresh token is revoked.
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	// Logout revokes the access token described by claims and clears the push token.
	Logout(ctx context.Context, caller models.Caller, claims *auth.Claims) error
	Me(ctx context.Context, caller models.Caller) (*models.User, error)
	UpdateProfile(ctx context.Context, caller models.Caller, update models.ProfileUpdate) (*models.User, error)
	ChangePassword(ctx context.Context, caller models.Caller, change models.PasswordChange) error
}

type authService struct {
	users       repositories.UserRepository
	tokens      auth.TokenService
	hasher      auth.PasswordHasher
	revocations auth.RevocationStore
	audit       audit.Recorder
	accessTTL   time.Duration
	refreshTTL  time.Duration
	logger      *zap.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(
	users repositories.UserRepository,
	tokens auth.TokenService,
	hasher auth.PasswordHasher,
	revocations auth.RevocationStore,
	recorder audit.Recorder,
	accessTTL, refreshTTL time.Duration,
	logger *zap.Logger,
) AuthService {
	return &authService{
		users:       users,
		tokens:      tokens,
		hasher:      hasher,
		revocations: revocations,
		audit:       recorder,
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
		logger:      logger.Named("auth-service"),
	}
}

var _ AuthService = (*authService)(nil)

func (s *authService) Login(ctx context.Context, req models.LoginRequest) (*models.Session, error) {
	req.Login = strings.TrimSpace(req.Login)
	if req.Login == "" || req.Password == "" {
		return nil, apperrors.Validation("Username and password are required")
	}

	user, err := s.users.GetByLogin(ctx, req.Login)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
		s.loginFailed(ctx, nil, req.Login, "user_not_found")
		return nil, apperrors.ErrInvalidCredentials
	}

	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		s.loginFailed(ctx, user, req.Login, "invalid_password")
		return nil, apperrors.ErrInvalidCredentials
	}
	if !user.IsActive {
		s.loginFailed(ctx, user, req.Login, "inactive_account")
		return nil, apperrors.ErrInvalidCredentials
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}

	if err := s.users.RecordLogin(ctx, user.ID, req.FCMToken); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, models.AuditLogEntry{
		UserID:       &user.ID,
		Action:       models.AuditActionLoginSuccess,
		ResourceType: models.AuditResourceAuth,
		Metadata:     map[string]any{"username": req.Login},
	})

	s.logger.Info("User logged in",
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(user.Role)))

	now := time.Now()
	user.LastLoginAt = &now
	return &models.Session{User: user, TokenPair: *pair}, nil
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	if refreshToken == "" {
		return nil, apperrors.Validation("Refresh token is required")
	}

	claims, err := s.tokens.VerifyKind(refreshToken, auth.TokenKindRefresh)
	if err != nil {
		return nil, apperrors.Unauthorized("Invalid or expired refresh token")
	}
	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, apperrors.Unauthorized("Invalid or expired refresh token")
	}

	user, err := s.users.GetByID(ctx, claims.SubjectID())
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized("User not found or inactive")
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, apperrors.Unauthorized("User not found or inactive")
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}
	if claims.ExpiresAt != nil {
		if err := s.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
			s.logger.Warn("Failed to revoke used refresh token", zap.Error(err))
		}
	}
	return pair, nil
}

func (s *authService) Logout(ctx context.Context, caller models.Caller, claims *auth.Claims) error {
	if claims != nil && claims.ExpiresAt != nil {
		if err := s.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
			return err
		}
	}
	if err := s.users.ClearFCMToken(ctx, caller.ID); err != nil {
		return err
	}

	s.audit.Record(ctx, models.AuditLogEntry{
		UserID:       callerID(caller),
		Action:       models.AuditActionLogout,
		ResourceType: models.AuditResourceAuth,
	})

	s.logger.Info("User logged out", zap.String("user_id", caller.ID.String()))
	return nil
}

func (s *authService) Me(ctx context.Context, caller models.Caller) (*models.User, error) {
	user, err := s.users.GetByID(ctx, caller.ID)
	if err != nil {
		return nil, userNotFound(err)
	}
	return user, nil
}

func (s *authService) UpdateProfile(ctx context.Context, caller models.Caller, update models.ProfileUpdate) (*models.User, error) {
	if update.FirstName != nil && strings.TrimSpace(*update.FirstName) == "" {
		return nil, apperrors.Validation("First name cannot be empty")
	}
	if update.LastName != nil && strings.TrimSpace(*update.LastName) == "" {
		return nil, apperrors.Validation("Last name cannot be empty")
	}
	if len(update.Preferences) > 0 && !isJSONObject(update.Preferences) {
		return nil, apperrors.Validation("Preferences must be an object")
	}

	written, err := s.users.UpdateProfile(ctx, caller.ID, update)
	if err != nil {
		return nil, userNotFound(err)
	}

	s.audit.Record(ctx, models.AuditLogEntry{
		UserID:       callerID(caller),
		Action:       models.AuditActionUpdate,
		ResourceType: models.AuditResourceUser,
		ResourceID:   resourceID(caller.ID),
		NewValues:    written,
	})

	return s.Me(ctx, caller)
}

func (s *authService) ChangePassword(ctx context.Context, caller models.Caller, change models.PasswordChange) error {
	if change.CurrentPassword == "" {
		return apperrors.Validation("Current password is required")
	}
	if len(change.NewPassword) < auth.MinPasswordLength {
		return apperrors.Validation("New password must be at least %d characters", auth.MinPasswordLength)
	}
	if change.ConfirmPassword != "" && change.ConfirmPassword != change.NewPassword {
		return apperrors.Validation("Password confirmation does not match")
	}

	user, err := s.users.GetByID(ctx, caller.ID)
	if err != nil {
		return userNotFound(err)
	}
	if !s.hasher.Verify(change.CurrentPassword, user.PasswordHash) {
		return apperrors.Validation("Current password is incorrect")
	}

	digest, err := s.hasher.Hash(change.NewPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, caller.ID, digest); err != nil {
		return err
	}

	s.audit.Record(ctx, models.AuditLogEntry{
		UserID:       callerID(caller),
		Action:       models.AuditActionPasswordChange,
		ResourceType: models.AuditResourceUser,
		ResourceID:   resourceID(caller.ID),
	})

	s.logger.Info("Password changed", zap.String("user_id", caller.ID.String()))
	return nil
}

func (s *authService) issuePair(user *models.User) (*models.TokenPair, error) {
	access, err := s.tokens.Issue(user.ID, auth.TokenKindAccess, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.Issue(user.ID, auth.TokenKindRefresh, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &models.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL / time.Second),
	}, nil
}

// loginFailed records a failed sign-in. user is nil when no account matched.
func (s *authService) loginFailed(ctx context.Context, user *models.User, login, reason string) {
	entry := models.AuditLogEntry{
		Action:       models.AuditActionLoginFailed,
		ResourceType: models.AuditResourceAuth,
		Metadata:     map[string]any{"username": login, "reason": reason},
	}
	if user != nil {
		entry.UserID = &user.ID
	}
	s.audit.Record(ctx, entry)

	info, _ := audit.RequestInfoFrom(ctx)
	s.logger.Warn("Login failed",
		zap.String("reason", reason),
		zap.String("ip", info.IPAddress))
}

func isJSONObject(raw []byte) bool {
	trimmed := strings.TrimSpace(string(raw))
	return strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")
}
