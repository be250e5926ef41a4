package blob

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCS stores objects in one Google Cloud Storage bucket.
type GCS struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

// NewGCS dials GCS. An empty credentialsFile falls back to ambient
// credentials (workload identity, GOOGLE_APPLICATION_CREDENTIALS).
// publicBaseURL overrides the storage.googleapis.com URL when the bucket sits
// behind a CDN.
func NewGCS(ctx context.Context, bucket, credentialsFile, publicBaseURL string) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket must be provided")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCS{client: client, bucket: bucket, baseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

func (g *GCS) Exists(ctx context.Context, key string) (bool, error) {
	_, err := g.client.Bucket(g.bucket).Object(key).Attrs(ctx)
	if err == storage.ErrObjectNotExist {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("probe %s: %w", key, err)
	}
	return true, nil
}

func (g *GCS) Upload(ctx context.Context, key string, data []byte, opts PutOptions) error {
	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = opts.ContentType
	w.CacheControl = opts.CacheControl
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

func (g *GCS) PublicURL(key string) string {
	if g.baseURL != "" {
		return g.baseURL + "/" + key
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", g.bucket, key)
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	return g.client.Close()
}
