package objectstore

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// Object is a stored blob held by MemoryStore.
type Object struct {
	ContentType string
	Data        []byte
}

// MemoryStore keeps objects in process memory. Intended for tests and local runs.
type MemoryStore struct {
	mutex         sync.Mutex
	objects       map[string]Object
	deletedKeys   []string
	publicBaseURL string
	// UploadErr and DeleteErr, when set, are returned instead of performing the operation.
	UploadErr error
	DeleteErr error
}

// NewMemoryStore constructs an empty store whose public URLs start with publicBaseURL.
func NewMemoryStore(publicBaseURL string) *MemoryStore {
	return &MemoryStore{
		objects:       make(map[string]Object),
		publicBaseURL: publicBaseURL,
	}
}

// Upload stores body under key.
func (store *MemoryStore) Upload(ctx context.Context, key string, contentType string, body io.Reader) error {
	if key == "" {
		return fmt.Errorf("objectstore.memory.upload: %w", errEmptyKey)
	}
	if store.UploadErr != nil {
		return fmt.Errorf("objectstore.memory.upload: %w", store.UploadErr)
	}
	data, readErr := io.ReadAll(body)
	if readErr != nil {
		return fmt.Errorf("objectstore.memory.upload: %w", readErr)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.objects[key] = Object{ContentType: contentType, Data: data}
	return nil
}

// Delete removes key; deleting a missing key is not an error.
func (store *MemoryStore) Delete(ctx context.Context, key string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.deletedKeys = append(store.deletedKeys, key)
	if store.DeleteErr != nil {
		return fmt.Errorf("objectstore.memory.delete: %w", store.DeleteErr)
	}
	delete(store.objects, key)
	return nil
}

// PublicURL returns the address an uploaded object is served from.
func (store *MemoryStore) PublicURL(key string) string {
	return joinURL(store.publicBaseURL, escapeKey(key))
}

// Get returns the object stored under key.
func (store *MemoryStore) Get(key string) (Object, bool) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	object, ok := store.objects[key]
	return object, ok
}

// Keys lists stored keys in lexical order.
func (store *MemoryStore) Keys() []string {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	keys := make([]string, 0, len(store.objects))
	for key := range store.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// DeletedKeys returns every key passed to Delete, in call order.
func (store *MemoryStore) DeletedKeys() []string {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	cloned := make([]string, len(store.deletedKeys))
	copy(cloned, store.deletedKeys)
	return cloned
}
