package kv

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is an in-process Store: a mutex-guarded map with lazy expiry
// and a periodic cleanup goroutine. Counters are only atomic within one
// process, so it is unsuitable for multi-instance deployments.
type MemoryStore struct {
	entries map[string]*memoryEntry
	mu      sync.RWMutex
	now     func() time.Time
}

// NewMemoryStore creates a store using the wall clock.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock lets tests drive expiry deterministically.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	store := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     now,
	}

	// Start cleanup goroutine
	go store.startCleanup()

	return store
}

func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := &memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = entry
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	entry, exists := s.entries[key]
	s.mu.RUnlock()

	if !exists {
		return "", ErrNotFound
	}
	if entry.expired(s.now()) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return "", ErrNotFound
	}
	return entry.value, nil
}

func (s *MemoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.entries, key)
	}
	return nil
}

func (s *MemoryStore) Incr(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if entry, exists := s.entries[key]; exists && !entry.expired(s.now()) {
		parsed, err := strconv.ParseInt(entry.value, 10, 64)
		if err != nil {
			return 0, err
		}
		current = parsed
		current++
		entry.value = strconv.FormatInt(current, 10)
		return current, nil
	}

	// Absent or expired: the counter restarts at 1 with no expiry until
	// Expire is called, matching the backend's INCR semantics.
	s.entries[key] = &memoryEntry{value: "1"}
	return 1, nil
}

func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[key]
	if !exists || entry.expired(s.now()) {
		return nil
	}
	if ttl <= 0 {
		entry.expiresAt = time.Time{}
		return nil
	}
	entry.expiresAt = s.now().Add(ttl)
	return nil
}

func (s *MemoryStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.entries[key]
	if !exists || entry.expired(s.now()) {
		return 0, ErrNotFound
	}
	if entry.expiresAt.IsZero() {
		return 0, nil
	}
	return entry.expiresAt.Sub(s.now()), nil
}

func (s *MemoryStore) Scan(ctx context.Context, pattern string, fn func(key string) error) error {
	prefix := strings.TrimSuffix(pattern, "*")

	s.mu.RLock()
	matched := make([]string, 0)
	now := s.now()
	for key, entry := range s.entries {
		if entry.expired(now) {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			matched = append(matched, key)
		}
	}
	s.mu.RUnlock()

	for _, key := range matched {
		if err := fn(key); err != nil {
			return err
		}
	}
	return nil
}

// cleanupExpired removes expired entries (called with lock held).
func (s *MemoryStore) cleanupExpired() {
	now := s.now()
	for key, entry := range s.entries {
		if entry.expired(now) {
			delete(s.entries, key)
		}
	}
}

// startCleanup runs periodic cleanup in background.
func (s *MemoryStore) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.Lock()
		s.cleanupExpired()
		s.mu.Unlock()
	}
}
