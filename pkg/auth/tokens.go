package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token errors.
var (
	ErrMissingAuthorization = errors.New("missing authorization")
	ErrInvalidAuthFormat    = errors.New("invalid authorization header format")
	ErrInvalidToken         = errors.New("invalid or expired token")
	ErrWrongTokenKind       = errors.New("wrong token type")
	ErrTokenRevoked         = errors.New("token has been revoked")
)

// TokenService issues and verifies signed tokens.
type TokenService interface {
	// Issue returns a signed token for subject that expires after ttl.
	Issue(subject uuid.UUID, kind TokenKind, ttl time.Duration) (string, error)

	// Verify checks the signature and expiry of token and returns its claims.
	Verify(token string) (*Claims, error)

	// VerifyKind is Verify plus a check that the token is of the given kind.
	VerifyKind(token string, kind TokenKind) (*Claims, error)
}

type jwtTokenService struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokenService creates an HS256 TokenService.
func NewTokenService(secret, issuer string) TokenService {
	return &jwtTokenService{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
}

func (s *jwtTokenService) Issue(subject uuid.UUID, kind TokenKind, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Kind: kind,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", kind, err)
	}
	return signed, nil
}

func (s *jwtTokenService) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, fmt.Errorf("%w: subject is not a user id", ErrInvalidToken)
	}
	return claims, nil
}

func (s *jwtTokenService) VerifyKind(tokenString string, kind TokenKind) (*Claims, error) {
	claims, err := s.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: expected %s, got %q", ErrWrongTokenKind, kind, claims.Kind)
	}
	return claims, nil
}

// SubjectID returns the subject of verified claims as a user id.
func (c *Claims) SubjectID() uuid.UUID {
	id, _ := uuid.Parse(c.Subject)
	return id
}

// Ensure jwtTokenService implements TokenService at compile time.
var _ TokenService = (*jwtTokenService)(nil)
