// Package kv is a small expiring key-value view shared by the rate limiter
// and the auth revocation cache. Swapping the in-process store for Redis
// changes no call sites.
package kv

import (
	"context"
	"time"
)

// Store is the contract both implementations satisfy. A zero ttl on Set means
// the value does not expire.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
