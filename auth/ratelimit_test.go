package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"voxhall.io/authgate/kv"
)

// brokenStore fails every operation, simulating a store outage.
type brokenStore struct{}

var errStoreDown = errors.New("store down")

func (brokenStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return errStoreDown
}
func (brokenStore) Get(ctx context.Context, key string) (string, error) { return "", errStoreDown }
func (brokenStore) Del(ctx context.Context, keys ...string) error       { return errStoreDown }
func (brokenStore) Incr(ctx context.Context, key string) (int64, error) { return 0, errStoreDown }
func (brokenStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return errStoreDown
}
func (brokenStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	return 0, errStoreDown
}
func (brokenStore) Scan(ctx context.Context, pattern string, fn func(key string) error) error {
	return errStoreDown
}

func TestFixedWindowLimit(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	limiter := NewRateLimiter(kv.NewMemoryStoreWithClock(clock.Now))

	window := time.Minute
	var max int64 = 3

	// Requests up to the limit are allowed with a shrinking remainder.
	for i := int64(1); i <= max; i++ {
		decision := limiter.CheckAndIncrement(ctx, "test:scope", window, max)
		if !decision.Allowed {
			t.Fatalf("Request %d should be allowed", i)
		}
		if decision.Current != i {
			t.Errorf("Expected current %d, got %d", i, decision.Current)
		}
		if decision.Remaining != max-i {
			t.Errorf("Expected remaining %d, got %d", max-i, decision.Remaining)
		}
	}

	// The next request exceeds the window.
	decision := limiter.CheckAndIncrement(ctx, "test:scope", window, max)
	if decision.Allowed {
		t.Fatal("Request beyond the limit should be denied")
	}
	if decision.Current != max+1 {
		t.Errorf("Expected current %d, got %d", max+1, decision.Current)
	}
	if decision.Remaining != 0 {
		t.Errorf("Expected remaining 0, got %d", decision.Remaining)
	}
	if decision.Limit != max {
		t.Errorf("Expected limit %d, got %d", max, decision.Limit)
	}
	if decision.RetryAfter <= 0 || decision.RetryAfter > window {
		t.Errorf("Expected retry-after within the window, got %v", decision.RetryAfter)
	}
}

func TestWindowReset(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	limiter := NewRateLimiter(kv.NewMemoryStoreWithClock(clock.Now))

	window := time.Minute
	var max int64 = 2

	limiter.CheckAndIncrement(ctx, "reset:scope", window, max)
	limiter.CheckAndIncrement(ctx, "reset:scope", window, max)
	if decision := limiter.CheckAndIncrement(ctx, "reset:scope", window, max); decision.Allowed {
		t.Fatal("Third request should be denied")
	}

	// After the window lapses the counter restarts from scratch.
	clock.Advance(window + time.Second)
	decision := limiter.CheckAndIncrement(ctx, "reset:scope", window, max)
	if !decision.Allowed {
		t.Fatal("Request after window reset should be allowed")
	}
	if decision.Current != 1 {
		t.Errorf("Expected fresh window to start at 1, got %d", decision.Current)
	}
}

func TestScopesAreIndependent(t *testing.T) {
	ctx := context.Background()
	limiter := NewRateLimiter(kv.NewMemoryStore())

	window := time.Minute
	var max int64 = 1

	if decision := limiter.CheckAndIncrement(ctx, "scope:a", window, max); !decision.Allowed {
		t.Fatal("First request on scope:a should be allowed")
	}
	if decision := limiter.CheckAndIncrement(ctx, "scope:a", window, max); decision.Allowed {
		t.Fatal("Second request on scope:a should be denied")
	}
	// A different scope has its own counter.
	if decision := limiter.CheckAndIncrement(ctx, "scope:b", window, max); !decision.Allowed {
		t.Fatal("First request on scope:b should be allowed")
	}
}

func TestLimiterFailsOpen(t *testing.T) {
	limiter := NewRateLimiter(brokenStore{})

	decision := limiter.CheckAndIncrement(context.Background(), "down:scope", time.Minute, 1)
	if !decision.Allowed {
		t.Fatal("Limiter must allow traffic while the store is down")
	}
	if !decision.FailedOpen {
		t.Error("Decision should be marked as failed-open")
	}
}
