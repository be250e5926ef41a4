package runtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/earshotfm/earshot/internal/kv"
)

// revocationTTL bounds how long a disabled or deleted account keeps working:
// the cached access view expires after this long at the latest.
const revocationTTL = 60 * time.Second

const revocationKeyPrefix = "authz:"

// UserAccessStore is the store slice the revocation cache reads through to.
type UserAccessStore interface {
	UserAccess(ctx context.Context, userID string) (exists bool, revoked bool, err error)
}

type accessRecord struct {
	Exists  bool `json:"exists"`
	Revoked bool `json:"revoked"`
}

// RevocationCache caches the users.disabled_at view in the KV store so the
// request hot path does not hit Postgres on every call.
type RevocationCache struct {
	users UserAccessStore
	cache kv.Store
	ttl   time.Duration
}

// NewRevocationCache builds the cached access view.
func NewRevocationCache(users UserAccessStore, cache kv.Store) *RevocationCache {
	return &RevocationCache{users: users, cache: cache, ttl: revocationTTL}
}

// Check implements AccessChecker. A stale or unreadable cache entry falls
// back to the store.
func (r *RevocationCache) Check(ctx context.Context, userID string) (bool, bool, error) {
	key := revocationKeyPrefix + userID
	if raw, ok, err := r.cache.Get(ctx, key); err == nil && ok {
		var rec accessRecord
		if json.Unmarshal(raw, &rec) == nil {
			return rec.Exists, rec.Revoked, nil
		}
	}

	exists, revoked, err := r.users.UserAccess(ctx, userID)
	if err != nil {
		return false, false, err
	}
	if raw, err := json.Marshal(accessRecord{Exists: exists, Revoked: revoked}); err == nil {
		_ = r.cache.Set(ctx, key, raw, r.ttl)
	}
	return exists, revoked, nil
}

// Invalidate drops the cached view, used right after an admin deletes or
// disables an account so the change lands before the TTL.
func (r *RevocationCache) Invalidate(ctx context.Context, userID string) {
	_ = r.cache.Delete(ctx, revocationKeyPrefix+userID)
}
