package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles manual dispatch triggers per event with a Redis
// sliding window. Each member of the sorted set is one trigger scored by
// its arrival time; a Lua script trims, counts and adds atomically.
type RateLimiter struct {
	redisClient *redis.Client
	logger      *slog.Logger
	script      *redis.Script
	limit       int
	window      time.Duration
}

// Lua script for atomic sliding window rate limiting.
// 1. Remove entries older than the window
// 2. Count remaining entries
// 3. If under the limit, add a new entry and return 1 (allowed)
// 4. If at/over the limit, return 0 (denied)
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, member)
    redis.call('PEXPIRE', key, window + 1000)
    return 1
else
    return 0
end
`)

// NewRateLimiter allows limit triggers per event per second. A limit of 0
// or less disables throttling.
func NewRateLimiter(redisClient *redis.Client, limit int, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		logger:      logger,
		script:      slidingWindowScript,
		limit:       limit,
		window:      time.Second,
	}
}

func rlKey(eventID string) string {
	return fmt.Sprintf("rl:dispatch:%s", eventID)
}

// Allow reports whether another trigger for eventID fits in the window.
// Redis failures allow the trigger.
func (rl *RateLimiter) Allow(ctx context.Context, eventID string) bool {
	if rl == nil || rl.limit <= 0 {
		return true
	}

	now := time.Now().UnixMilli()
	result, err := rl.script.Run(ctx, rl.redisClient, []string{rlKey(eventID)},
		now, rl.window.Milliseconds(), rl.limit, uuid.NewString(),
	).Int64()
	if err != nil {
		rl.logger.Error("rate limiter script failed", "error", err, "event_id", eventID)
		return true
	}

	if result == 0 {
		rl.logger.Debug("dispatch trigger rate limited",
			"event_id", eventID,
			"limit", rl.limit,
		)
		return false
	}

	return true
}
