package auth

import (
	"context"
	"log/slog"
	"time"

	"voxhall.io/authgate/kv"
)

const rateLimitKeyPrefix = "authgate:ratelimit:"

// Decision is the rate limiter's verdict for one request. It is returned,
// never raised: callers map a disallowed decision to a 429.
type Decision struct {
	Allowed   bool
	Current   int64
	Limit     int64
	Remaining int64

	// RetryAfter and ResetAt hint when the current window ends.
	RetryAfter time.Duration
	ResetAt    time.Time

	// FailedOpen marks decisions made while the store was unreachable.
	FailedOpen bool
}

// RateLimiter implements approximate fixed-window limiting on the shared
// store: one atomic increment per request, with the window opened by the
// first hit. Burst traffic at a window boundary can reach twice the nominal
// rate; that is the accepted cost of O(1) state per scope. The limiter
// fails OPEN when the store is unreachable.
type RateLimiter struct {
	store kv.Store
}

// NewRateLimiter creates a new instance of the RateLimiter.
func NewRateLimiter(store kv.Store) *RateLimiter {
	return &RateLimiter{store: store}
}

// CheckAndIncrement counts this request against scopeKey and decides
// whether it fits the window. The scope string is composed by the caller
// (tenant id, user id, network origin).
func (l *RateLimiter) CheckAndIncrement(ctx context.Context, scopeKey string, window time.Duration, max int64) Decision {
	key := rateLimitKeyPrefix + scopeKey

	current, err := l.store.Incr(ctx, key)
	if err != nil {
		slog.Warn("rate limiter store failure, failing open", "scope", scopeKey, "error", err)
		return Decision{
			Allowed:    true,
			Limit:      max,
			Remaining:  max,
			RetryAfter: window,
			ResetAt:    time.Now().Add(window),
			FailedOpen: true,
		}
	}

	retryAfter := window
	if current == 1 {
		// First request opens the window.
		if err := l.store.Expire(ctx, key, window); err != nil {
			slog.Warn("rate limiter failed to set window expiry", "scope", scopeKey, "error", err)
		}
	} else if ttl, err := l.store.TTL(ctx, key); err == nil {
		if ttl > 0 {
			retryAfter = ttl
		} else {
			// A counter must never live without an expiry; re-arm the
			// window if a previous Expire was lost.
			if err := l.store.Expire(ctx, key, window); err != nil {
				slog.Warn("rate limiter failed to re-arm window expiry", "scope", scopeKey, "error", err)
			}
		}
	}

	remaining := max - current
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:    current <= max,
		Current:    current,
		Limit:      max,
		Remaining:  remaining,
		RetryAfter: retryAfter,
		ResetAt:    time.Now().Add(retryAfter),
	}
}
