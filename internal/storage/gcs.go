package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// GCS stores blobs in a Google Cloud Storage bucket and builds public URLs
// for them. publicPrefix can point at a CDN; it defaults to the bucket's
// storage.googleapis.com address.
type GCS struct {
	client       *storage.Client
	bucket       string
	publicPrefix string
}

func New(ctx context.Context, bucket, publicPrefix string) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	if publicPrefix == "" {
		publicPrefix = "https://storage.googleapis.com/" + bucket
	}
	return &GCS{
		client:       client,
		bucket:       bucket,
		publicPrefix: strings.TrimSuffix(publicPrefix, "/"),
	}, nil
}

func (g *GCS) Upload(ctx context.Context, key, contentType string, r io.Reader) error {
	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=86400"
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (g *GCS) Delete(ctx context.Context, key string) error {
	return g.client.Bucket(g.bucket).Object(key).Delete(ctx)
}

func (g *GCS) PublicURL(key string) string {
	return g.publicPrefix + "/" + strings.TrimPrefix(key, "/")
}

func (g *GCS) Close() error {
	return g.client.Close()
}
