package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionPrefix = "session:"

// RedisSessions keeps session tokens in Redis so they survive restarts and
// are shared between server instances. Values are logins; a token only
// authenticates where that login is registered.
type RedisSessions struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisSessions returns a session store whose tokens expire after ttl.
// A zero ttl keeps tokens until they are deleted.
func NewRedisSessions(rdb *redis.Client, ttl time.Duration) *RedisSessions {
	return &RedisSessions{rdb: rdb, ttl: ttl}
}

func sessionKey(token string) string {
	return sessionPrefix + token
}

func (s *RedisSessions) Put(ctx context.Context, token, login string) error {
	if err := s.rdb.Set(ctx, sessionKey(token), login, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *RedisSessions) Lookup(ctx context.Context, token string) (string, error) {
	login, err := s.rdb.Get(ctx, sessionKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load session: %w", err)
	}
	return login, nil
}

func (s *RedisSessions) Delete(ctx context.Context, token string) error {
	if err := s.rdb.Del(ctx, sessionKey(token)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (s *RedisSessions) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
