package profileban

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/echoreel/moderation/internal/item"
)

// newTestStore creates a Store connected to a local Redis instance and
// flushes all test keys before returning. Tests that call this helper
// require a running Redis on localhost:6379.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	clean := func() {
		for _, pattern := range []string{BanPrefix + "test_*", WarnPrefix + "test_*", OffensePrefix + "test_*"} {
			iter := client.Scan(ctx, 0, pattern, 100).Iterator()
			for iter.Next(ctx) {
				client.Del(ctx, iter.Val())
			}
		}
	}
	clean()
	t.Cleanup(func() {
		clean()
		client.Close()
	})
	return NewStore(client)
}

func TestStatus_Active(t *testing.T) {
	store := newTestStore(t)
	status, err := store.Status(context.Background(), "test_clean")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != item.ProfileActive {
		t.Errorf("status = %s, want active", status)
	}
}

func TestBanAndStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Ban(ctx, "test_p1", 30*time.Second, "harassment"); err != nil {
		t.Fatalf("Ban: %v", err)
	}
	status, err := store.Status(ctx, "test_p1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != item.ProfileBanned {
		t.Errorf("status = %s, want banned", status)
	}

	if err := store.Unban(ctx, "test_p1"); err != nil {
		t.Fatalf("Unban: %v", err)
	}
	status, _ = store.Status(ctx, "test_p1")
	if status != item.ProfileActive {
		t.Errorf("status after unban = %s, want active", status)
	}
}

func TestWarn(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Warn(ctx, "test_p2"); err != nil {
		t.Fatalf("Warn: %v", err)
	}
	status, err := store.Status(ctx, "test_p2")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != item.ProfileWarned {
		t.Errorf("status = %s, want warned", status)
	}
}

func TestEscalate_Durations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	want := []time.Duration{Ban15Min, Ban1Hour, Ban24Hour, Ban24Hour}

	for i, wantDur := range want {
		dur, err := store.Escalate(ctx, "test_p3", "spam")
		if err != nil {
			t.Fatalf("Escalate offense %d: %v", i+1, err)
		}
		if dur != wantDur {
			t.Errorf("offense %d: duration = %v, want %v", i+1, dur, wantDur)
		}
	}
}

func TestCounters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Ban(ctx, "test_c1", time.Minute, "spam")
	store.Ban(ctx, "test_c2", time.Minute, "spam")
	store.Warn(ctx, "test_c3")

	c, err := store.Counters(ctx)
	if err != nil {
		t.Fatalf("Counters: %v", err)
	}
	if c.ActiveBans < 2 {
		t.Errorf("activeBans = %d, want >= 2", c.ActiveBans)
	}
	if c.ActiveWarnings < 1 {
		t.Errorf("activeWarnings = %d, want >= 1", c.ActiveWarnings)
	}
}
