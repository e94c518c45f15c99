package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow trims the set to the window, then records the request only if
// there is room. Rejected requests do not extend the caller's penalty.
// Returns {allowed, count, oldest_ms}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, window)
local oldest = now
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if first[2] then
  oldest = tonumber(first[2])
end
return {allowed, count, oldest}
`)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	// Reset is when the oldest counted request leaves the window.
	Reset time.Time
}

// Limiter is a sliding-window limiter over Redis sorted sets, one set per key
// scored by arrival time in milliseconds.
type Limiter struct {
	Client *redis.Client
	Prefix string
	now    func() time.Time
}

// Allow counts a request against key. A nil client or a non-positive limit or
// window disables limiting.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, limit int) (Decision, error) {
	now := time.Now()
	if l.now != nil {
		now = l.now()
	}
	if l.Client == nil || limit <= 0 || window <= 0 {
		return Decision{Allowed: true, Remaining: limit, Reset: now.Add(window)}, nil
	}
	windowMs := window.Milliseconds()
	if windowMs < 1 {
		windowMs = 1
	}

	res, err := slidingWindow.Run(ctx, l.Client, []string{l.Prefix + key},
		now.UnixMilli(), windowMs, limit, uuid.NewString()).Int64Slice()
	if err != nil {
		return Decision{Reset: now.Add(window)}, fmt.Errorf("ratelimit: %w", err)
	}
	if len(res) != 3 {
		return Decision{Reset: now.Add(window)}, fmt.Errorf("ratelimit: unexpected script reply %v", res)
	}

	remaining := limit - int(res[1])
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   res[0] == 1,
		Remaining: remaining,
		Reset:     time.UnixMilli(res[2] + windowMs),
	}, nil
}
