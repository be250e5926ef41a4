// Package ratelimit implements a fixed-window request counter on top of the
// kv store. Each key gets one window record; the first hit opens the window
// with TTL equal to its length, later hits increment the count.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/earshotfm/earshot/internal/kv"
)

const keyPrefix = "ratelimit:"

// Result reports the limiter's verdict. RetryAfter is zero when allowed.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
}

type window struct {
	Count       int       `json:"count"`
	WindowStart time.Time `json:"window_start"`
}

// Limiter counts hits per key. The mutex serializes read-modify-write within
// one process; across replicas the shared Redis store keeps counts roughly
// aligned, which is all a fixed window promises.
type Limiter struct {
	store kv.Store
	mu    sync.Mutex
	now   func() time.Time
}

func New(store kv.Store) *Limiter {
	return &Limiter{store: store, now: time.Now}
}

// Check records one hit against key and reports whether it fit inside
// maxCount for the current window.
func (l *Limiter) Check(ctx context.Context, key string, maxCount int, windowLen time.Duration) (Result, error) {
	if maxCount <= 0 || windowLen <= 0 {
		return Result{Allowed: true}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	storeKey := keyPrefix + key

	var w window
	raw, ok, err := l.store.Get(ctx, storeKey)
	if err != nil {
		return Result{}, fmt.Errorf("rate limit read: %w", err)
	}
	if ok {
		if err := json.Unmarshal(raw, &w); err != nil {
			ok = false
		}
	}
	windowEnd := w.WindowStart.Add(windowLen)
	if !ok || !now.Before(windowEnd) {
		w = window{Count: 0, WindowStart: now}
		windowEnd = now.Add(windowLen)
	}

	w.Count++
	encoded, err := json.Marshal(w)
	if err != nil {
		return Result{}, err
	}
	if err := l.store.Set(ctx, storeKey, encoded, windowEnd.Sub(now)); err != nil {
		return Result{}, fmt.Errorf("rate limit write: %w", err)
	}

	if w.Count > maxCount {
		return Result{Allowed: false, RetryAfter: windowEnd.Sub(now)}, nil
	}
	return Result{Allowed: true}, nil
}
