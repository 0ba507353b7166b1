package testhelpers

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/plantvision/inspection-api/pkg/auth"
)

// Signing parameters shared by tests that issue real tokens.
const (
	TestJWTSecret = "test-secret-do-not-use-in-production"
	TestJWTIssuer = "plantvision-test"
)

// TestTokenService returns an HS256 token service keyed with TestJWTSecret.
func TestTokenService() auth.TokenService {
	return auth.NewTokenService(TestJWTSecret, TestJWTIssuer)
}

// GenerateTestJWT issues a one-hour access token for subject signed by
// TestTokenService.
func GenerateTestJWT(t *testing.T, subject uuid.UUID) string {
	t.Helper()
	token, err := TestTokenService().Issue(subject, auth.TokenKindAccess, time.Hour)
	if err != nil {
		t.Fatalf("failed to issue test token: %v", err)
	}
	return token
}

// GenerateTestJWTWithBearer returns token with "Bearer " prefix for Authorization header.
func GenerateTestJWTWithBearer(t *testing.T, subject uuid.UUID) string {
	t.Helper()
	return "Bearer " + GenerateTestJWT(t, subject)
}
