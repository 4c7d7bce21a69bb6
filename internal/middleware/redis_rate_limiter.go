package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "streamer:ratelimit:"

// slidingWindowScript trims the sorted set to the current window, then records
// the hit only when the caller is still under the limit.
//
// KEYS[1] window key; ARGV: now ms, cutoff ms, window ms, limit, member.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
redis.call("ZREMRANGEBYSCORE", key, "-inf", ARGV[2])
if redis.call("ZCARD", key) >= tonumber(ARGV[4]) then
  return 0
end
redis.call("ZADD", key, ARGV[1], ARGV[5])
redis.call("PEXPIRE", key, ARGV[3])
return 1
`)

// RedisRateLimiter shares one sliding window per key across every process
// that points at the same Redis.
type RedisRateLimiter struct {
	client redis.Scripter
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedisRateLimiter constructs a limiter allowing requests events per window.
func NewRedisRateLimiter(client redis.Scripter, requests int, window time.Duration) *RedisRateLimiter {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisRateLimiter{client: client, limit: requests, window: window, now: time.Now}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if key == "" {
		key = "unknown"
	}

	now := l.now().UnixMilli()
	windowMs := l.window.Milliseconds()
	member := strconv.FormatInt(now, 10) + "-" + uuid.NewString()

	allowed, err := slidingWindowScript.Run(ctx, l.client,
		[]string{redisKeyPrefix + key},
		now, now-windowMs, windowMs, l.limit, member,
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis rate limit: %w", err)
	}
	return allowed == 1, nil
}
