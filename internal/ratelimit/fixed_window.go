package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "palmreader:quota"

var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// Config describes a per-user photo quota.
type Config struct {
	Addr     string
	Password string
	Prefix   string
	Limit    int
	Window   time.Duration
	// FailOpen lets requests through while Redis is unreachable.
	FailOpen bool
}

// FixedWindowLimiter counts photos per user in fixed Redis windows.
type FixedWindowLimiter struct {
	limit    int
	window   time.Duration
	failOpen bool
	prefix   string
	client   *redis.Client
	now      func() time.Time
}

// NewFixedWindowLimiter creates a Redis-backed limiter.
func NewFixedWindowLimiter(cfg Config) (*FixedWindowLimiter, error) {
	if cfg.Limit <= 0 || cfg.Window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("rate limiter redis addr is required")
	}
	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &FixedWindowLimiter{
		limit:    cfg.Limit,
		window:   cfg.Window,
		failOpen: cfg.FailOpen,
		prefix:   prefix,
		client:   redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		now:      time.Now,
	}, nil
}

// AllowUser reports whether userID still has quota in the current window.
func (l *FixedWindowLimiter) AllowUser(ctx context.Context, userID int64) bool {
	return l.Allow(ctx, "user:"+strconv.FormatInt(userID, 10))
}

// Allow reports whether key is within quota. Redis failures are resolved by
// the FailOpen setting.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	count, err := l.incr(ctx, key)
	if err != nil {
		slog.Warn("rate limiter unavailable", "key", key, "fail_open", l.failOpen, "err", err)
		return l.failOpen
	}
	return count <= int64(l.limit)
}

func (l *FixedWindowLimiter) incr(ctx context.Context, key string) (int64, error) {
	windowMs := l.window.Milliseconds()
	slot := l.now().UTC().UnixMilli() / windowMs
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return fixedWindowScript.Run(ctx, l.client, []string{redisKey}, windowMs).Int64()
}

// Close releases the Redis client.
func (l *FixedWindowLimiter) Close() error {
	if l == nil {
		return nil
	}
	return l.client.Close()
}
