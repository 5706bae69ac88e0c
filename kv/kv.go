// Package kv is the shared key-value store behind sessions, rate-limit
// counters and the service registry. The interface is the small command set
// the gateway actually uses; RedisStore is the production implementation and
// MemoryStore backs tests and single-instance deployments.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get and TTL for absent keys. Callers must not
// distinguish expired from never-written keys.
var ErrNotFound = errors.New("kv: key not found")

// Store is the gateway's contract with the key-value backend. Incr must be
// atomic across concurrent callers and across processes sharing the backend.
type Store interface {
	// Set writes value under key with an expiry. ttl <= 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns the value or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Del removes keys; missing keys are not an error.
	Del(ctx context.Context, keys ...string) error
	// Incr atomically increments the integer at key, creating it at 1.
	Incr(ctx context.Context, key string) (int64, error)
	// Expire sets key's TTL; absent keys are ignored.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// TTL returns the remaining lifetime, 0 for keys without expiry, or
	// ErrNotFound.
	TTL(ctx context.Context, key string) (time.Duration, error)
	// Scan visits every key matching a trailing-wildcard pattern such as
	// "session:*". fn returning an error stops the walk.
	Scan(ctx context.Context, pattern string, fn func(key string) error) error
}
