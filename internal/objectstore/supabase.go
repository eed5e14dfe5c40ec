package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	storage_go "github.com/supabase-community/storage-go"
)

var (
	errMissingSupabaseURL = errors.New("objectstore.supabase.missing_url")
	errMissingServiceKey  = errors.New("objectstore.supabase.missing_service_key")
)

// SupabaseConfig configures the Supabase Storage backend.
type SupabaseConfig struct {
	ProjectURL string
	ServiceKey string
	Bucket     string
}

// SupabaseStore keeps objects in a Supabase Storage bucket.
type SupabaseStore struct {
	client *storage_go.Client
	bucket string
}

// NewSupabaseStore validates configuration and builds a store authenticated with the service key.
func NewSupabaseStore(configuration SupabaseConfig) (*SupabaseStore, error) {
	if strings.TrimSpace(configuration.ProjectURL) == "" {
		return nil, fmt.Errorf("objectstore.supabase.new: %w", errMissingSupabaseURL)
	}
	if strings.TrimSpace(configuration.ServiceKey) == "" {
		return nil, fmt.Errorf("objectstore.supabase.new: %w", errMissingServiceKey)
	}
	bucket := configuration.Bucket
	if bucket == "" {
		bucket = DefaultBucket
	}
	storageURL := joinURL(configuration.ProjectURL, "storage/v1")
	client := storage_go.NewClient(storageURL, configuration.ServiceKey, map[string]string{
		"apikey": configuration.ServiceKey,
	})
	return &SupabaseStore{client: client, bucket: bucket}, nil
}

// Upload writes body to key, replacing any existing object.
func (store *SupabaseStore) Upload(ctx context.Context, key string, contentType string, body io.Reader) error {
	if key == "" {
		return fmt.Errorf("objectstore.supabase.upload: %w", errEmptyKey)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("objectstore.supabase.upload: %w", err)
	}
	upsert := true
	if _, err := store.client.UploadFile(store.bucket, key, body, storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	}); err != nil {
		return fmt.Errorf("objectstore.supabase.upload: %w", err)
	}
	return nil
}

// Delete removes key from the bucket.
func (store *SupabaseStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("objectstore.supabase.delete: %w", errEmptyKey)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("objectstore.supabase.delete: %w", err)
	}
	if _, err := store.client.RemoveFile(store.bucket, []string{key}); err != nil {
		return fmt.Errorf("objectstore.supabase.delete: %w", err)
	}
	return nil
}

// PublicURL returns the public-bucket address of key.
func (store *SupabaseStore) PublicURL(key string) string {
	return store.client.GetPublicUrl(store.bucket, key).SignedURL
}
