package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Entry is the window and block state of one client key.
type Entry struct {
	Count        int
	ResetAt      time.Time
	BlockedUntil time.Time
}

// Store keeps per-key counters. Implementations must make Increment atomic per key.
type Store interface {
	// Check returns the current state for key without counting a request.
	Check(ctx context.Context, key string, now time.Time) (Entry, error)
	// Increment counts one request, opening a new window when the previous one elapsed.
	Increment(ctx context.Context, key string, window time.Duration, now time.Time) (Entry, error)
	// Block rejects every request for key for duration d starting at now.
	Block(ctx context.Context, key string, d time.Duration, now time.Time) error
	// Expire drops all state for key.
	Expire(ctx context.Context, key string) error
}

// Policy configures a limiter.
type Policy struct {
	Name          string
	MaxRequests   int
	Window        time.Duration
	BlockDuration time.Duration
}

var (
	PolicyWebhooks = Policy{Name: "webhooks", MaxRequests: 100, Window: time.Minute, BlockDuration: time.Minute}
	PolicyWhatsApp = Policy{Name: "whatsapp", MaxRequests: 5, Window: time.Minute, BlockDuration: 10 * time.Minute}
	PolicyGeneral  = Policy{Name: "general", MaxRequests: 100, Window: 15 * time.Minute, BlockDuration: 15 * time.Minute}
)

// Decision is the limiter verdict for one request.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter applies a Policy against a Store.
type Limiter struct {
	store  Store
	policy Policy
	now    func() time.Time
}

func NewLimiter(store Store, policy Policy) (*Limiter, error) {
	return newLimiter(store, policy, time.Now)
}

func newLimiter(store Store, policy Policy, nowFn func() time.Time) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("rate limit store is required")
	}
	if policy.MaxRequests <= 0 {
		return nil, fmt.Errorf("max requests must be positive")
	}
	if policy.Window <= 0 {
		return nil, fmt.Errorf("window must be positive")
	}
	if policy.BlockDuration <= 0 {
		policy.BlockDuration = policy.Window
	}
	if nowFn == nil {
		nowFn = time.Now
	}

	return &Limiter{store: store, policy: policy, now: nowFn}, nil
}

func (l *Limiter) Policy() Policy {
	return l.policy
}

// Allow counts a request for key and decides whether it may proceed.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	normalizedKey := strings.TrimSpace(key)
	if normalizedKey == "" {
		normalizedKey = "unknown"
	}
	storeKey := l.policy.Name + ":" + normalizedKey
	now := l.now()

	entry, err := l.store.Check(ctx, storeKey, now)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to check rate limit: %w", err)
	}

	if entry.BlockedUntil.After(now) {
		return Decision{
			Allowed:    false,
			Limit:      l.policy.MaxRequests,
			ResetAt:    entry.BlockedUntil,
			RetryAfter: ceilSeconds(entry.BlockedUntil.Sub(now)),
		}, nil
	}
	if !entry.BlockedUntil.IsZero() {
		if err := l.store.Expire(ctx, storeKey); err != nil {
			return Decision{}, fmt.Errorf("failed to expire rate limit block: %w", err)
		}
	}

	entry, err = l.store.Increment(ctx, storeKey, l.policy.Window, now)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if entry.Count > l.policy.MaxRequests {
		until := now.Add(l.policy.BlockDuration)
		if err := l.store.Block(ctx, storeKey, l.policy.BlockDuration, now); err != nil {
			return Decision{}, fmt.Errorf("failed to block rate limit key: %w", err)
		}
		return Decision{
			Allowed:    false,
			Limit:      l.policy.MaxRequests,
			ResetAt:    until,
			RetryAfter: ceilSeconds(l.policy.BlockDuration),
		}, nil
	}

	return Decision{
		Allowed:   true,
		Limit:     l.policy.MaxRequests,
		Remaining: l.policy.MaxRequests - entry.Count,
		ResetAt:   entry.ResetAt,
	}, nil
}

func ceilSeconds(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	if rem := d % time.Second; rem != 0 {
		d += time.Second - rem
	}
	return d
}
