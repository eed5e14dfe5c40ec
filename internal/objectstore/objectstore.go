package objectstore

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
)

// DefaultBucket holds uploaded recordings.
const DefaultBucket = "audio-recordings"

var (
	errEmptyKey    = errors.New("objectstore.empty_key")
	errEmptyBucket = errors.New("objectstore.empty_bucket")
)

// Store uploads, deletes, and addresses objects in a bucket.
type Store interface {
	Upload(ctx context.Context, key string, contentType string, body io.Reader) error
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}

func escapeKey(key string) string {
	segments := strings.Split(strings.Trim(key, "/"), "/")
	for index, segment := range segments {
		segments[index] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

func joinURL(base string, parts ...string) string {
	joined := strings.TrimRight(base, "/")
	for _, part := range parts {
		joined += "/" + strings.Trim(part, "/")
	}
	return joined
}
