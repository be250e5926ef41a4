package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/earshotfm/earshot/internal/kv"
)

func TestCheckCountsWithinWindow(t *testing.T) {
	store := kv.NewMemory()
	defer store.Close()
	l := New(store)

	base := time.Now()
	l.now = func() time.Time { return base }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		res, err := l.Check(ctx, "capture:user-1", 3, time.Minute)
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("hit %d unexpectedly blocked", i+1)
		}
	}

	res, err := l.Check(ctx, "capture:user-1", 3, time.Minute)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Allowed {
		t.Fatalf("expected 4th hit to be blocked")
	}
	if res.RetryAfter <= 0 || res.RetryAfter > time.Minute {
		t.Fatalf("unexpected retry-after %v", res.RetryAfter)
	}
}

func TestCheckResetsAfterWindow(t *testing.T) {
	store := kv.NewMemory()
	defer store.Close()
	l := New(store)

	base := time.Now()
	now := base
	l.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if res, _ := l.Check(ctx, "k", 2, time.Minute); !res.Allowed {
			t.Fatalf("hit %d unexpectedly blocked", i+1)
		}
	}
	if res, _ := l.Check(ctx, "k", 2, time.Minute); res.Allowed {
		t.Fatalf("expected block at limit")
	}

	now = base.Add(61 * time.Second)
	res, err := l.Check(ctx, "k", 2, time.Minute)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("expected fresh window to allow")
	}
}

func TestCheckKeysAreIndependent(t *testing.T) {
	store := kv.NewMemory()
	defer store.Close()
	l := New(store)
	ctx := context.Background()

	if res, _ := l.Check(ctx, "feedback:user-1", 1, time.Minute); !res.Allowed {
		t.Fatalf("first key blocked")
	}
	if res, _ := l.Check(ctx, "feedback:user-1", 1, time.Minute); res.Allowed {
		t.Fatalf("first key should now be blocked")
	}
	if res, _ := l.Check(ctx, "feedback:user-2", 1, time.Minute); !res.Allowed {
		t.Fatalf("second key should be unaffected")
	}
}

func TestCheckDisabledLimit(t *testing.T) {
	store := kv.NewMemory()
	defer store.Close()
	l := New(store)

	res, err := l.Check(context.Background(), "k", 0, time.Minute)
	if err != nil || !res.Allowed {
		t.Fatalf("zero max should disable limiting, got %+v, %v", res, err)
	}
}
