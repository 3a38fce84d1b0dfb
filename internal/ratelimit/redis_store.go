package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store with INCR/PEXPIRE so every process shares the window.
type RedisStore struct {
	rc *redis.Client
}

func NewRedisStore(addr string, db int) *RedisStore {
	return &RedisStore{rc: redis.NewClient(&redis.Options{Addr: addr, DB: db})}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rc.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.rc.Close()
}

var luaFixedWindow = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current == 1 then redis.call('PEXPIRE', KEYS[1], ARGV[1]) end
local ttl = redis.call('PTTL', KEYS[1])
return {current, ttl}
`)

func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	res, err := luaFixedWindow.Run(ctx, s.rc, []string{"rl:" + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}
	current, ttl := res[0], res[1]
	if current <= int64(limit) {
		return true, 0, nil
	}
	if ttl < 0 {
		ttl = 0
	}
	return false, time.Duration(ttl) * time.Millisecond, nil
}
