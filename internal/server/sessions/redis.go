// Package sessions maps opaque session tokens to user ids in Redis with a
// sliding TTL.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/mycloud/internal/common"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "session:"
	// tokenBytes is the entropy of a token before hex encoding.
	tokenBytes = 16
	// createAttempts bounds retries on the (practically impossible) token
	// collision.
	createAttempts = 3
)

// DefaultTTL applies when NewRedisStore gets a non-positive ttl. Redis
// treats a zero expiry as "keep forever".
const DefaultTTL = 30 * time.Minute

var ErrTokenCollision = errors.New("session token collision")

// RedisStore keeps sessions as plain string keys with an expiry.
type RedisStore struct {
	rdb redis.Cmdable
	ttl time.Duration
	// newToken is safe for concurrent use: crypto/rand has no shared state.
	newToken func() (string, error)
}

func NewRedisStore(rdb redis.Cmdable, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		rdb: rdb,
		ttl: ttl,
		newToken: func() (string, error) {
			return common.MakeRandHexString(tokenBytes)
		},
	}
}

func key(token string) string {
	return keyPrefix + token
}

// Create stores a new token for userID and returns it.
func (s *RedisStore) Create(ctx context.Context, userID string) (string, error) {
	for range createAttempts {
		token, err := s.newToken()
		if err != nil {
			return "", fmt.Errorf("generate token: %w", err)
		}

		ok, err := s.rdb.SetNX(ctx, key(token), userID, s.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("redis set: %w", err)
		}
		if ok {
			return token, nil
		}
	}
	return "", ErrTokenCollision
}

// Resolve returns the user id behind token and renews its TTL. An unknown
// or expired token yields ok == false with a nil error.
func (s *RedisStore) Resolve(ctx context.Context, token string) (string, bool, error) {
	if token == "" {
		return "", false, nil
	}

	userID, err := s.rdb.GetEx(ctx, key(token), s.ttl).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis getex: %w", err)
	}
	return userID, true, nil
}

// Revoke deletes token. Revoking an unknown token is not an error.
func (s *RedisStore) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.rdb.Del(ctx, key(token)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
