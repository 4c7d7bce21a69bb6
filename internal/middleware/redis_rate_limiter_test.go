package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisLimiter(t *testing.T, requests int, window time.Duration) (*RedisRateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisRateLimiter(client, requests, window), mr
}

func TestRedisRateLimiterSlidingWindow(t *testing.T) {
	limiter, mr := newTestRedisLimiter(t, 3, time.Minute)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "203.0.113.7")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	allowed, err := limiter.Allow(ctx, "203.0.113.7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatal("4th request within the window should be rejected")
	}

	members, err := mr.ZMembers(redisKeyPrefix + "203.0.113.7")
	if err != nil {
		t.Fatalf("read window: %v", err)
	}
	if len(members) != 3 {
		t.Fatalf("expected rejected hits not to be recorded, have %d members", len(members))
	}

	if allowed, _ := limiter.Allow(ctx, "198.51.100.1"); !allowed {
		t.Fatal("a different client should have its own window")
	}

	now = start.Add(time.Minute)
	if allowed, _ := limiter.Allow(ctx, "203.0.113.7"); !allowed {
		t.Fatal("expected the window to slide past the earlier hits")
	}
}

func TestRedisRateLimiterSurfacesErrors(t *testing.T) {
	limiter, mr := newTestRedisLimiter(t, 3, time.Minute)
	mr.Close()

	if _, err := limiter.Allow(context.Background(), "client"); err == nil {
		t.Fatal("expected an error when redis is unreachable")
	}
}
