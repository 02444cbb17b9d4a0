package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter caps outbound deliveries per destination host using an atomic
// Redis Lua script. The GET -> check -> INCR pattern races under concurrent
// workers; the script checks and increments in one step.
type RateLimiter struct {
	redis       *redis.Client // nil disables limiting
	perMinute   int
	limitScript *redis.Script
}

const rateLimitLuaScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", key) or "0")
if current + 1 > limit then
    return 0
end

local v = redis.call("INCR", key)
if v == 1 then
    redis.call("EXPIRE", key, ttl)
end
return 1
`

// NewRateLimiter creates a per-host delivery limiter. A nil client or
// non-positive limit disables limiting.
func NewRateLimiter(redisClient *redis.Client, perMinute int) *RateLimiter {
	return &RateLimiter{
		redis:       redisClient,
		perMinute:   perMinute,
		limitScript: redis.NewScript(rateLimitLuaScript),
	}
}

// Allow reports whether one more delivery to the host is permitted this
// minute. Fails open on Redis errors: a broken limiter must not stop
// deliveries.
func (rl *RateLimiter) Allow(ctx context.Context, host string) bool {
	if rl.redis == nil || rl.perMinute <= 0 {
		return true
	}

	key := fmt.Sprintf("pulse:webhook_rate:%s:%d", host, time.Now().Unix()/60)
	res, err := rl.limitScript.Run(ctx, rl.redis, []string{key}, rl.perMinute, 120).Int()
	if err != nil {
		return true
	}
	return res == 1
}
