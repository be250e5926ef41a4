// Package blob is the object-storage seam for published audio artifacts.
package blob

import "context"

// PutOptions carry the HTTP metadata stored alongside an object.
type PutOptions struct {
	ContentType  string
	CacheControl string
}

// Store is implemented by GCS in production and by in-test fakes.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Upload(ctx context.Context, key string, data []byte, opts PutOptions) error
	PublicURL(key string) string
}
