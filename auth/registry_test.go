package auth

import (
	"context"
	"testing"
	"time"

	"voxhall.io/authgate/kv"
)

func TestHeartbeatAndList(t *testing.T) {
	ctx := context.Background()
	registry := NewServiceRegistry(kv.NewMemoryStore(), 90*time.Second)

	if err := registry.Heartbeat(ctx, "billing"); err != nil {
		t.Fatalf("Failed to heartbeat: %v", err)
	}
	if err := registry.Heartbeat(ctx, "analytics"); err != nil {
		t.Fatalf("Failed to heartbeat: %v", err)
	}

	live, err := registry.Live(ctx, "billing")
	if err != nil {
		t.Fatalf("Liveness check failed: %v", err)
	}
	if !live {
		t.Error("billing should be live after a heartbeat")
	}

	live, err = registry.Live(ctx, "never-seen")
	if err != nil {
		t.Fatalf("Liveness check failed: %v", err)
	}
	if live {
		t.Error("A service that never heartbeat should not be live")
	}

	services, err := registry.List(ctx)
	if err != nil {
		t.Fatalf("Failed to list services: %v", err)
	}
	if len(services) != 2 {
		t.Fatalf("Expected 2 live services, got %d", len(services))
	}
	// Sorted by name.
	if services[0].Name != "analytics" || services[1].Name != "billing" {
		t.Errorf("Expected [analytics billing], got [%s %s]", services[0].Name, services[1].Name)
	}
	if services[0].LastSeen.IsZero() {
		t.Error("Liveness entries should carry their last-seen time")
	}
}

func TestLivenessLapsesWithoutHeartbeat(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	registry := NewServiceRegistry(kv.NewMemoryStoreWithClock(clock.Now), 90*time.Second)

	if err := registry.Heartbeat(ctx, "billing"); err != nil {
		t.Fatalf("Failed to heartbeat: %v", err)
	}

	clock.Advance(91 * time.Second)

	live, err := registry.Live(ctx, "billing")
	if err != nil {
		t.Fatalf("Liveness check failed: %v", err)
	}
	if live {
		t.Error("Liveness should lapse after the TTL")
	}

	services, err := registry.List(ctx)
	if err != nil {
		t.Fatalf("Failed to list services: %v", err)
	}
	if len(services) != 0 {
		t.Errorf("Expected no live services, got %d", len(services))
	}
}

func TestHeartbeatRefreshesTTL(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	registry := NewServiceRegistry(kv.NewMemoryStoreWithClock(clock.Now), 90*time.Second)

	if err := registry.Heartbeat(ctx, "billing"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(60 * time.Second)
	if err := registry.Heartbeat(ctx, "billing"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(60 * time.Second)

	// 120s since the first heartbeat, 60s since the second: still live.
	live, err := registry.Live(ctx, "billing")
	if err != nil {
		t.Fatal(err)
	}
	if !live {
		t.Error("A refreshed heartbeat should extend liveness")
	}
}
