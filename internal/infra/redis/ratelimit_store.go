package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kursadbilgin/escalation-engine/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

var incrementScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

var _ ratelimit.Store = (*RateLimitStore)(nil)

// RateLimitStore shares rate-limit windows and blocks across instances through Redis.
type RateLimitStore struct {
	client *goredis.Client
	script *goredis.Script
}

func NewRateLimitStore(client *goredis.Client) (*RateLimitStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &RateLimitStore{client: client, script: incrementScript}, nil
}

func (s *RateLimitStore) Check(ctx context.Context, key string, now time.Time) (ratelimit.Entry, error) {
	pipe := s.client.Pipeline()
	countCmd := pipe.Get(ctx, countKey(key))
	ttlCmd := pipe.PTTL(ctx, countKey(key))
	blockCmd := pipe.Get(ctx, blockKey(key))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return ratelimit.Entry{}, fmt.Errorf("failed to read rate limit state: %w", err)
	}

	var entry ratelimit.Entry
	if count, err := countCmd.Int(); err == nil {
		entry.Count = count
		if ttl := ttlCmd.Val(); ttl > 0 {
			entry.ResetAt = now.Add(ttl)
		}
	}
	if raw, err := blockCmd.Result(); err == nil {
		millis, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			return ratelimit.Entry{}, fmt.Errorf("invalid block value for %q: %w", key, parseErr)
		}
		entry.BlockedUntil = time.UnixMilli(millis)
	}

	return entry, nil
}

func (s *RateLimitStore) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (ratelimit.Entry, error) {
	result, err := s.script.Run(ctx, s.client, []string{countKey(key)}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return ratelimit.Entry{}, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}
	if len(result) != 2 {
		return ratelimit.Entry{}, fmt.Errorf("unexpected rate limit script result %v", result)
	}

	entry := ratelimit.Entry{Count: int(result[0])}
	if result[1] > 0 {
		entry.ResetAt = now.Add(time.Duration(result[1]) * time.Millisecond)
	}
	return entry, nil
}

func (s *RateLimitStore) Block(ctx context.Context, key string, d time.Duration, now time.Time) error {
	if d <= 0 {
		return nil
	}
	value := strconv.FormatInt(now.Add(d).UnixMilli(), 10)

	// The counter dies with the block so the key starts fresh once it lifts.
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, blockKey(key), value, d)
	pipe.PExpire(ctx, countKey(key), d)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to block rate limit key: %w", err)
	}
	return nil
}

func (s *RateLimitStore) Expire(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, countKey(key), blockKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to expire rate limit key: %w", err)
	}
	return nil
}

func countKey(key string) string {
	return keyPrefix + key + ":count"
}

func blockKey(key string) string {
	return keyPrefix + key + ":block"
}
