// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow prunes expired entries, rejects if the window is full,
// otherwise records the attempt. Runs server-side so two concurrent
// requests cannot both pass a boundary check.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count >= max then
  return -1
end
redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window)
return max - count - 1
`)

// RedisLimiter is the shared sliding-window limiter for multi-process
// deployments. Backend errors fail open with a warning: an unreachable
// Redis must not turn into a login outage.
type RedisLimiter struct {
	client redis.UniversalClient
}

// NewRedisLimiter creates a limiter backed by the given Redis client.
func NewRedisLimiter(client redis.UniversalClient) *RedisLimiter {
	return &RedisLimiter{client: client}
}

// Check implements Limiter.
func (l *RedisLimiter) Check(ctx context.Context, key string, maxAttempts int, window time.Duration) (bool, int, error) {
	now := time.Now().UnixMilli()
	member := fmt.Sprintf("%d-%s", now, uuid.NewString())

	res, err := slidingWindow.Run(ctx, l.client, []string{key},
		now, window.Milliseconds(), maxAttempts, member).Int()
	if err != nil {
		slog.Warn("rate_limit_backend_error", "key", key, "error", err)
		return false, maxAttempts, nil
	}
	if res < 0 {
		return true, 0, nil
	}
	return false, res, nil
}

// Reset implements Limiter.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, key).Err()
}
