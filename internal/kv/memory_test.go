package kv

import (
	"context"
	"testing"
	"time"
)

func TestMemorySetGetDelete(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	if err := m.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	val, ok, err := m.Get(ctx, "k")
	if err != nil || !ok || string(val) != "v" {
		t.Fatalf("Get = %q, %v, %v", val, ok, err)
	}

	if err := m.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatalf("expected miss after delete")
	}
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	if err := m.Set(ctx, "k", []byte("v"), 20*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := m.Get(ctx, "k"); !ok {
		t.Fatalf("expected hit before expiry")
	}
	time.Sleep(40 * time.Millisecond)
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatalf("expected miss after expiry")
	}
}

func TestMemorySweep(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	_ = m.Set(ctx, "old", []byte("v"), time.Millisecond)
	_ = m.Set(ctx, "keep", []byte("v"), time.Hour)
	m.sweep(time.Now().Add(time.Second))

	m.mu.Lock()
	_, oldThere := m.items["old"]
	_, keepThere := m.items["keep"]
	m.mu.Unlock()
	if oldThere || !keepThere {
		t.Fatalf("sweep kept old=%v keep=%v", oldThere, keepThere)
	}
}

func TestMemoryCopiesValue(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	src := []byte("abc")
	_ = m.Set(ctx, "k", src, 0)
	src[0] = 'x'

	val, _, _ := m.Get(ctx, "k")
	if string(val) != "abc" {
		t.Fatalf("stored value aliased caller buffer: %q", val)
	}
}
