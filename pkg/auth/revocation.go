package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore remembers revoked token ids until the token would have expired.
type RevocationStore interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

const revokedKeyPrefix = "plantvision:revoked:"

type redisRevocationStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRevocationStore returns a Redis-backed store, or a store that never revokes
// when client is nil.
func NewRevocationStore(client *redis.Client) RevocationStore {
	if client == nil {
		return nopRevocationStore{}
	}
	return &redisRevocationStore{client: client, now: time.Now}
}

func (s *redisRevocationStore) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, revokedKeyPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

func (s *redisRevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	err := s.client.Get(ctx, revokedKeyPrefix+jti).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return true, nil
}

type nopRevocationStore struct{}

func (nopRevocationStore) Revoke(context.Context, string, time.Time) error { return nil }

func (nopRevocationStore) IsRevoked(context.Context, string) (bool, error) { return false, nil }
