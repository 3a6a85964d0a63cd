package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// INCR и EXPIRE на первом инкременте одной операцией
var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("TTL", KEYS[1])
return {current, ttl}
`)

// RateLimitResult - решение лимитера
type RateLimitResult struct {
	Allowed   bool
	Remaining int64
	ResetIn   time.Duration
}

// RateLimiter - фиксированное окно на пользователя и действие
type RateLimiter struct {
	client redis.UniversalClient
	keys   keyspace
}

func NewRateLimiter(client redis.UniversalClient, prefix string) *RateLimiter {
	return &RateLimiter{client: client, keys: keyspace(prefix)}
}

func (l *RateLimiter) CheckRateLimit(ctx context.Context, userID, action string, limit int64, window time.Duration) (RateLimitResult, error) {
	windowSeconds := int64(window / time.Second)
	if windowSeconds < 1 {
		windowSeconds = 1
	}

	raw, err := rateLimitScript.Run(ctx, l.client, []string{l.keys.key("rl", userID, action)}, windowSeconds).Result()
	if err != nil {
		return RateLimitResult{}, err
	}
	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return RateLimitResult{}, fmt.Errorf("unexpected rate limit script result %T", raw)
	}
	count, err := parseRedisInt64(values[0])
	if err != nil {
		return RateLimitResult{}, err
	}
	ttl, err := parseRedisInt64(values[1])
	if err != nil {
		return RateLimitResult{}, err
	}
	if ttl < 0 {
		ttl = windowSeconds
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitResult{
		Allowed:   count <= limit,
		Remaining: remaining,
		ResetIn:   time.Duration(ttl) * time.Second,
	}, nil
}
