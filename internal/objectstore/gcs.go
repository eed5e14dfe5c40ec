package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSPublicBaseURL is the public host for objects in Google Cloud Storage buckets.
const GCSPublicBaseURL = "https://storage.googleapis.com"

// GCSStore stores objects in a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore creates a client using application default credentials unless options override them.
func NewGCSStore(ctx context.Context, bucket string, options ...option.ClientOption) (*GCSStore, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("objectstore.gcs.new: %w", errEmptyBucket)
	}
	client, err := storage.NewClient(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("objectstore.gcs.new: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// Upload streams body into key.
func (store *GCSStore) Upload(ctx context.Context, key string, contentType string, body io.Reader) error {
	if key == "" {
		return fmt.Errorf("objectstore.gcs.upload: %w", errEmptyKey)
	}
	writerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	writer := store.client.Bucket(store.bucket).Object(key).NewWriter(writerCtx)
	writer.ContentType = contentType
	if _, copyErr := io.Copy(writer, body); copyErr != nil {
		// Cancelling before Close aborts the upload instead of committing a partial object.
		cancel()
		_ = writer.Close()
		return fmt.Errorf("objectstore.gcs.upload: %w", copyErr)
	}
	if closeErr := writer.Close(); closeErr != nil {
		return fmt.Errorf("objectstore.gcs.upload: %w", closeErr)
	}
	return nil
}

// Delete removes key; a missing object is not an error.
func (store *GCSStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("objectstore.gcs.delete: %w", errEmptyKey)
	}
	err := store.client.Bucket(store.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("objectstore.gcs.delete: %w", err)
	}
	return nil
}

// PublicURL returns the public address of key.
func (store *GCSStore) PublicURL(key string) string {
	return joinURL(GCSPublicBaseURL, store.bucket, escapeKey(key))
}

// Close releases the underlying client.
func (store *GCSStore) Close() error {
	return store.client.Close()
}
