package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Runs against a real server; set REDIS_ADDR to enable.
func newTestRedisSessions(t *testing.T, ttl time.Duration) *RedisSessions {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })
	s := NewRedisSessions(rdb, ttl)
	if err := s.Ping(context.Background()); err != nil {
		t.Skipf("redis at %s unreachable: %v", addr, err)
	}
	return s
}

func TestRedisSessions(t *testing.T) {
	s := newTestRedisSessions(t, time.Minute)
	ctx := context.Background()
	token := uuid.NewString()

	if _, err := s.Lookup(ctx, token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Lookup before Put = %v, want ErrNotFound", err)
	}
	if err := s.Put(ctx, token, "alice"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	login, err := s.Lookup(ctx, token)
	if err != nil || login != "alice" {
		t.Fatalf("Lookup = %q, %v", login, err)
	}
	if err := s.Delete(ctx, token); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Lookup(ctx, token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Lookup after Delete = %v, want ErrNotFound", err)
	}
}

func TestRedisSessionsExpire(t *testing.T) {
	s := newTestRedisSessions(t, time.Second)
	ctx := context.Background()
	token := uuid.NewString()

	if err := s.Put(ctx, token, "bob"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	time.Sleep(1500 * time.Millisecond)
	if _, err := s.Lookup(ctx, token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Lookup after ttl = %v, want ErrNotFound", err)
	}
}
