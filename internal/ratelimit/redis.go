package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// checkScript increments the window counter only while it is under the
// limit and sets the key to expire when the window resets.
var checkScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
if current >= limit then
	return {0, current}
end
current = redis.call('INCR', KEYS[1])
if current == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return {1, current}
`)

// Redis is a Limiter whose counters live in Redis so that several server
// processes share one budget per key. Expiry is left to Redis.
type Redis struct {
	rdb       redis.UniversalClient
	keyPrefix string
	interval  time.Duration
	now       Clock
}

// NewRedis creates a Redis-backed limiter.
func NewRedis(rdb redis.UniversalClient, keyPrefix string, interval time.Duration, clock Clock) *Redis {
	if keyPrefix == "" {
		keyPrefix = "gitcms"
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clock == nil {
		clock = time.Now
	}
	return &Redis{rdb: rdb, keyPrefix: keyPrefix, interval: interval, now: clock}
}

// Interval returns the window length.
func (l *Redis) Interval() time.Duration { return l.interval }

// Check counts one call for key against limit in the current window.
func (l *Redis) Check(ctx context.Context, limit int, key string) (Result, error) {
	now := l.now()
	index, resetAt := windowFor(now, l.interval)

	redisKey := l.keyPrefix + ":ratelimit:" + key + ":" + strconv.FormatInt(index, 10)
	ttl := resetAt.Sub(now).Milliseconds() + 1

	vals, err := checkScript.Run(ctx, l.rdb, []string{redisKey}, limit, ttl).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("checking rate limit for %s: %w", key, err)
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("unexpected rate limit reply %v", vals)
	}

	result := Result{Limit: limit, ResetAt: resetAt}
	if vals[0] == 1 {
		result.Success = true
		result.Remaining = limit - int(vals[1])
	}
	return result, nil
}
