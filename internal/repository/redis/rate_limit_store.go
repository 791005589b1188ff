package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"shopfloor-service/internal/client"
	"shopfloor-service/internal/config"
	"shopfloor-service/internal/ratelimit"
	"shopfloor-service/internal/util"
)

const (
	verifyWindowPrefix = "verify_window:"
	verifyFailPrefix   = "verify_fail:"

	// failure state outlives the longest backoff by a wide margin
	failStateTTL = time.Hour
)

// checkScript evaluates both throttle gates and reserves the attempt slot in
// one atomic step. Returns {1, 0} when allowed, {0, retry_after_ms} when
// denied. The attempt is only recorded when it is allowed through, so denied
// probes cannot extend the window against the caller.
const checkScript = `
local window_key = KEYS[1]
local fail_key = KEYS[2]
local now_ms = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

local next_allowed = tonumber(redis.call('HGET', fail_key, 'next_allowed_at') or '0')
if next_allowed > now_ms then
    return {0, next_allowed - now_ms}
end

redis.call('ZREMRANGEBYSCORE', window_key, '-inf', now_ms - window_ms)
local count = redis.call('ZCARD', window_key)
if count >= limit then
    local oldest = redis.call('ZRANGE', window_key, 0, 0, 'WITHSCORES')
    local retry = (tonumber(oldest[2]) + window_ms) - now_ms
    if retry < 1 then
        retry = 1
    end
    return {0, retry}
end

redis.call('ZADD', window_key, now_ms, now_ms .. '-' .. count)
redis.call('PEXPIRE', window_key, window_ms)
return {1, 0}
`

// failureScript increments the consecutive-failure counter and advances
// next_allowed_at per the backoff ladder. next_allowed_at never moves
// backwards for a key.
const failureScript = `
local fail_key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local ttl_ms = tonumber(ARGV[2])

local failures = redis.call('HINCRBY', fail_key, 'failures', 1)
local rung = failures + 1
if rung > #ARGV - 2 then
    rung = #ARGV - 2
end
local delay = tonumber(ARGV[rung + 2])

local next_allowed = now_ms + delay
local current = tonumber(redis.call('HGET', fail_key, 'next_allowed_at') or '0')
if next_allowed > current then
    redis.call('HSET', fail_key, 'next_allowed_at', next_allowed)
end
redis.call('PEXPIRE', fail_key, ttl_ms)
return failures
`

// RateLimitStore is the redis-backed implementation of ratelimit.Limiter.
type RateLimitStore struct {
	client *client.RedisClient
	cfg    config.RateLimitConfig
}

func NewRateLimitStore(redisClient *client.RedisClient, cfg *config.Config) *RateLimitStore {
	return &RateLimitStore{
		client: redisClient,
		cfg:    cfg.RateLimit,
	}
}

func (s *RateLimitStore) Check(ctx context.Context, sourceKey string) (ratelimit.Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	now := time.Now()
	keys := []string{verifyWindowPrefix + sourceKey, verifyFailPrefix + sourceKey}

	result, err := s.client.Eval(ctx, checkScript, keys,
		now.UnixMilli(), s.cfg.Window.Milliseconds(), s.cfg.WindowAttempts)
	if err != nil {
		util.Error("Rate limit check failed",
			zap.String("source_key", sourceKey),
			zap.Error(err))
		return ratelimit.Decision{}, fmt.Errorf("rate limit check failed: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return ratelimit.Decision{}, fmt.Errorf("unexpected result from rate limit script")
	}

	allowed := values[0].(int64) == 1
	retryAfter := time.Duration(values[1].(int64)) * time.Millisecond

	if !allowed {
		util.Debug("Verification attempt throttled",
			zap.String("source_key", sourceKey),
			zap.Duration("retry_after", retryAfter))
	}

	return ratelimit.Decision{Allowed: allowed, RetryAfter: retryAfter}, nil
}

func (s *RateLimitStore) RecordFailure(ctx context.Context, sourceKey string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	args := []interface{}{time.Now().UnixMilli(), failStateTTL.Milliseconds()}
	for _, rung := range ratelimit.LadderMillis() {
		args = append(args, rung)
	}

	failures, err := s.client.Eval(ctx, failureScript,
		[]string{verifyFailPrefix + sourceKey}, args...)
	if err != nil {
		util.Error("Failed to record verification failure",
			zap.String("source_key", sourceKey),
			zap.Error(err))
		return fmt.Errorf("failed to record verification failure: %w", err)
	}

	util.Debug("Verification failure recorded",
		zap.String("source_key", sourceKey),
		zap.Int64("consecutive_failures", failures.(int64)))

	return nil
}

// RecordSuccess clears the failure counter and lifts any active backoff.
func (s *RateLimitStore) RecordSuccess(ctx context.Context, sourceKey string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.client.Del(ctx, verifyFailPrefix+sourceKey); err != nil {
		util.Error("Failed to clear verification failures",
			zap.String("source_key", sourceKey),
			zap.Error(err))
		return fmt.Errorf("failed to clear verification failures: %w", err)
	}
	return nil
}
