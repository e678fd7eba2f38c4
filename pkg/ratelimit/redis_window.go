package ratelimit

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// redisWindowScript checks and records spend against a rolling window
// atomically in Redis. State is written only for allowed spends, matching
// the in-process window: a rejected action never advances the window.
// KEYS[1] = window key (e.g. "rate_window:agent-1")
// ARGV[1] = max amount per window
// ARGV[2] = window length (seconds)
// ARGV[3] = amount to spend
// ARGV[4] = current unix timestamp (seconds)
var redisWindowScript = redis.NewScript(`
local key = KEYS[1]
local max = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local amount = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "started", "spent")
local started = tonumber(state[1])
local spent = tonumber(state[2])

if not started or not spent then
    started = now
    spent = 0
end

-- Roll the window forward on the first observation after expiry
if now >= started + window then
    started = now
    spent = 0
end

local allowed = 0
if amount <= max - spent then
    spent = spent + amount
    allowed = 1
    redis.call("HMSET", key, "started", started, "spent", spent)
    redis.call("EXPIRE", key, window * 2)
end

return {allowed, max - spent}
`)

// RedisWindow gates spend through a rolling window held in Redis. It mirrors
// the in-process window's semantics for deployments where several processes
// act for the same agent.
type RedisWindow struct {
	client *redis.Client
}

var _ Window = (*RedisWindow)(nil)

// NewRedisWindow creates a window store backed by Redis.
func NewRedisWindow(addr, password string, db int) *RedisWindow {
	return &RedisWindow{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// Take attempts to record amount against the agent's window. It returns
// whether the spend was allowed and the remaining window budget.
func (w *RedisWindow) Take(ctx context.Context, agent string, maxAmount, windowSeconds, amount, now int64) (bool, int64, error) {
	res, err := redisWindowScript.Run(ctx, w.client,
		[]string{windowKey(agent)},
		maxAmount, windowSeconds, amount, now,
	).Result()
	if err != nil {
		return false, 0, fmt.Errorf("redis window check failed: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return false, 0, fmt.Errorf("unexpected redis window reply: %v", res)
	}
	allowed, _ := vals[0].(int64)
	remaining, _ := vals[1].(int64)
	return allowed == 1, remaining, nil
}

// State reads the agent's persisted window state.
func (w *RedisWindow) State(ctx context.Context, agent string) (int64, int64, bool, error) {
	vals, err := w.client.HMGet(ctx, windowKey(agent), "started", "spent").Result()
	if err != nil {
		return 0, 0, false, fmt.Errorf("redis window read failed: %w", err)
	}
	started, okStarted := redisInt(vals[0])
	spent, okSpent := redisInt(vals[1])
	if !okStarted || !okSpent {
		return 0, 0, false, nil
	}
	return started, spent, true, nil
}

// Close releases the Redis client.
func (w *RedisWindow) Close() error {
	return w.client.Close()
}

func windowKey(agent string) string {
	return "rate_window:" + agent
}

func redisInt(v interface{}) (int64, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
