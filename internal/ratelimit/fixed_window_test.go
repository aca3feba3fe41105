package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestLimiter(t *testing.T, addr string, limit int, failOpen bool) *FixedWindowLimiter {
	t.Helper()
	limiter, err := NewFixedWindowLimiter(Config{
		Addr:     addr,
		Prefix:   "test:quota",
		Limit:    limit,
		Window:   time.Hour,
		FailOpen: failOpen,
	})
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	t.Cleanup(func() { _ = limiter.Close() })
	return limiter
}

func TestFixedWindowLimiterPerUser(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter := newTestLimiter(t, redis.Addr(), 2, false)
	ctx := context.Background()
	if !limiter.AllowUser(ctx, 42) || !limiter.AllowUser(ctx, 42) {
		t.Fatalf("first two photos should pass")
	}
	if limiter.AllowUser(ctx, 42) {
		t.Fatalf("third photo should be blocked")
	}
	if !limiter.AllowUser(ctx, 43) {
		t.Fatalf("other users keep their own quota")
	}
}

func TestFixedWindowLimiterNewWindow(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter := newTestLimiter(t, redis.Addr(), 1, false)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return base }
	ctx := context.Background()
	if !limiter.AllowUser(ctx, 1) {
		t.Fatalf("first photo should pass")
	}
	if limiter.AllowUser(ctx, 1) {
		t.Fatalf("second photo in the same window should be blocked")
	}
	limiter.now = func() time.Time { return base.Add(time.Hour) }
	if !limiter.AllowUser(ctx, 1) {
		t.Fatalf("next window should reset the quota")
	}
}

func TestFixedWindowLimiterSetsExpiry(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter := newTestLimiter(t, redis.Addr(), 5, false)
	limiter.AllowUser(context.Background(), 9)
	keys := redis.Keys()
	if len(keys) != 1 {
		t.Fatalf("expected one key, got %v", keys)
	}
	if ttl := redis.TTL(keys[0]); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}
}

func TestFixedWindowLimiterFailureModes(t *testing.T) {
	redis := miniredis.RunT(t)
	closed := newTestLimiter(t, redis.Addr(), 1, false)
	open := newTestLimiter(t, redis.Addr(), 1, true)
	redis.Close()
	ctx := context.Background()
	if closed.AllowUser(ctx, 1) {
		t.Fatalf("fail-closed limiter should block on redis errors")
	}
	if !open.AllowUser(ctx, 1) {
		t.Fatalf("fail-open limiter should allow on redis errors")
	}
}

func TestFixedWindowLimiterValidation(t *testing.T) {
	if l, err := NewFixedWindowLimiter(Config{Limit: 1, Window: time.Second}); err == nil || l != nil {
		t.Fatalf("expected error for empty redis addr")
	}
	if _, err := NewFixedWindowLimiter(Config{Addr: "localhost:6379", Window: time.Second}); err == nil {
		t.Fatalf("expected error for zero limit")
	}
	var nilLimiter *FixedWindowLimiter
	if !nilLimiter.AllowUser(context.Background(), 1) {
		t.Fatalf("nil limiter allows everything")
	}
}
