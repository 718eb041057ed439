package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/AlibekovAA/session-guard/internal/common/clock"
	"github.com/AlibekovAA/session-guard/internal/observability/metrics"
)

const redisKeyPrefix = "session-guard:rotation:"

// slidingWindowScript checks every key first and records the attempt only
// when all of them are under the limit. It returns 0 when allowed, otherwise
// the number of milliseconds until the oldest blocking entry leaves the
// window.
var slidingWindowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]
local retry = 0

for _, key in ipairs(KEYS) do
	redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
	if redis.call('ZCARD', key) >= limit then
		local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
		local wait = tonumber(oldest[2]) + window - now
		if wait > retry then
			retry = wait
		end
	end
end

if retry > 0 then
	return retry
end

for _, key in ipairs(KEYS) do
	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, window)
end
return 0
`)

// RedisLimiter shares the sliding window between instances. The whole
// check-and-record runs as one script, so concurrent callers cannot both
// take the last slot.
type RedisLimiter struct {
	client redis.Scripter
	limit  int
	window time.Duration
	clock  clock.Clock
}

func NewRedisLimiter(client redis.Scripter, limit int, window time.Duration, clk clock.Clock) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
		clock:  clk,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, keys ...string) (Decision, error) {
	if len(keys) == 0 {
		return Decision{Allowed: true}, nil
	}

	redisKeys := make([]string, len(keys))
	for i, key := range keys {
		redisKeys[i] = redisKeyPrefix + key
	}

	now := l.clock.Now().UnixMilli()
	retryMs, err := slidingWindowScript.Run(
		ctx,
		l.client,
		redisKeys,
		now,
		l.window.Milliseconds(),
		l.limit,
		fmt.Sprintf("%d-%s", now, uuid.NewString()),
	).Int64()
	if err != nil {
		metrics.RateLimiterBackendErrors.WithLabelValues("redis").Inc()
		return Decision{}, fmt.Errorf("rate limiter backend unavailable: %w", err)
	}

	if retryMs > 0 {
		metrics.RateLimitBlocked.WithLabelValues("rotation", "redis").Inc()
		return Decision{Allowed: false, RetryAfter: time.Duration(retryMs) * time.Millisecond}, nil
	}
	return Decision{Allowed: true}, nil
}
