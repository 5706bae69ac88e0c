package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"voxhall.io/authgate/kv"
)

// testClock is a manually advanced clock for driving store expiry.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1700000000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestSessionPutGetDelete(t *testing.T) {
	ctx := context.Background()
	sessions := NewSessionStore(kv.NewMemoryStore())

	if err := sessions.Put(ctx, "user123", "tenant456", time.Minute); err != nil {
		t.Fatalf("Failed to put session: %v", err)
	}

	record, err := sessions.Get(ctx, "user123")
	if err != nil {
		t.Fatalf("Failed to get session: %v", err)
	}
	if record == nil {
		t.Fatal("Expected a live session")
	}
	if record.UserID != "user123" || record.TenantID != "tenant456" {
		t.Errorf("Unexpected session record: %+v", record)
	}
	if record.CreatedAt.IsZero() {
		t.Error("Session should carry its creation time")
	}

	if err := sessions.Delete(ctx, "user123"); err != nil {
		t.Fatalf("Failed to delete session: %v", err)
	}
	record, err = sessions.Get(ctx, "user123")
	if err != nil {
		t.Fatalf("Get after delete failed: %v", err)
	}
	if record != nil {
		t.Error("Expected no session after delete")
	}
}

func TestSessionAbsentIsNotAnError(t *testing.T) {
	sessions := NewSessionStore(kv.NewMemoryStore())

	record, err := sessions.Get(context.Background(), "never-logged-in")
	if err != nil {
		t.Fatalf("Absent session should not be an error, got %v", err)
	}
	if record != nil {
		t.Error("Expected nil record for absent session")
	}

	// Deleting an absent session is fine too.
	if err := sessions.Delete(context.Background(), "never-logged-in"); err != nil {
		t.Errorf("Deleting absent session should not fail, got %v", err)
	}
}

func TestSessionExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	sessions := NewSessionStore(kv.NewMemoryStoreWithClock(clock.Now))

	if err := sessions.Put(ctx, "user123", "tenant456", 10*time.Second); err != nil {
		t.Fatalf("Failed to put session: %v", err)
	}

	clock.Advance(9 * time.Second)
	if record, _ := sessions.Get(ctx, "user123"); record == nil {
		t.Fatal("Session should still be live inside its TTL")
	}

	clock.Advance(2 * time.Second)
	record, err := sessions.Get(ctx, "user123")
	if err != nil {
		t.Fatalf("Get after expiry failed: %v", err)
	}
	if record != nil {
		t.Error("Expected session to expire with its TTL")
	}
}

func TestSessionOverwrite(t *testing.T) {
	ctx := context.Background()
	sessions := NewSessionStore(kv.NewMemoryStore())

	if err := sessions.Put(ctx, "user123", "tenant456", time.Minute); err != nil {
		t.Fatalf("Failed to put session: %v", err)
	}
	// A second put for the same subject replaces the record, last writer
	// wins.
	if err := sessions.Put(ctx, "user123", "tenant456", time.Minute); err != nil {
		t.Fatalf("Failed to overwrite session: %v", err)
	}

	record, err := sessions.Get(ctx, "user123")
	if err != nil || record == nil {
		t.Fatalf("Expected one live session, got record=%v err=%v", record, err)
	}
}

func TestSessionCorruptRecordTreatedAsAbsent(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	sessions := NewSessionStore(store)

	if err := store.Set(ctx, "authgate:session:user123", "{not json", time.Minute); err != nil {
		t.Fatalf("Failed to seed corrupt record: %v", err)
	}

	record, err := sessions.Get(ctx, "user123")
	if err != nil {
		t.Fatalf("Corrupt record should not surface an error, got %v", err)
	}
	if record != nil {
		t.Error("Corrupt record should read as absent")
	}

	// The corrupt entry is dropped so it cannot shadow a later session.
	if _, err := store.Get(ctx, "authgate:session:user123"); err != kv.ErrNotFound {
		t.Errorf("Expected corrupt entry to be deleted, got %v", err)
	}
}

func TestDeleteByTenant(t *testing.T) {
	ctx := context.Background()
	sessions := NewSessionStore(kv.NewMemoryStore())

	if err := sessions.Put(ctx, "user-a", "tenant-1", time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := sessions.Put(ctx, "user-b", "tenant-1", time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := sessions.Put(ctx, "user-c", "tenant-2", time.Minute); err != nil {
		t.Fatal(err)
	}

	removed, err := sessions.DeleteByTenant(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("Failed to sweep tenant sessions: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 sessions removed, got %d", removed)
	}

	if record, _ := sessions.Get(ctx, "user-a"); record != nil {
		t.Error("tenant-1 session should be gone")
	}
	if record, _ := sessions.Get(ctx, "user-b"); record != nil {
		t.Error("tenant-1 session should be gone")
	}
	if record, _ := sessions.Get(ctx, "user-c"); record == nil {
		t.Error("tenant-2 session should survive the sweep")
	}
}
