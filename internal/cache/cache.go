// Package cache persists the last known-good message list of each
// conversation as one opaque blob.
package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/matheus3301/chatsync/internal/chat"
)

// BlobStore reads and writes opaque values by key.
type BlobStore interface {
	GetBlob(ctx context.Context, key string) ([]byte, bool, error)
	SetBlob(ctx context.Context, key string, blob []byte) error
}

// Cache is the contract the sync controller depends on.
type Cache interface {
	Load(ctx context.Context, conversationID string) (chat.List, bool, error)
	Save(ctx context.Context, conversationID string, l chat.List) error
}

// Key returns the blob key for a conversation.
func Key(conversationID string) string {
	return "conversation:" + conversationID
}

// BlobCache encodes lists into a BlobStore.
type BlobCache struct {
	store BlobStore
}

// New creates a cache over store.
func New(store BlobStore) *BlobCache {
	return &BlobCache{store: store}
}

// Load returns the cached list. found is false when nothing was ever saved.
func (c *BlobCache) Load(ctx context.Context, conversationID string) (chat.List, bool, error) {
	blob, ok, err := c.store.GetBlob(ctx, Key(conversationID))
	if err != nil {
		return nil, false, fmt.Errorf("read cache %s: %w", conversationID, err)
	}
	if !ok {
		return nil, false, nil
	}
	l, err := Decode(blob)
	if err != nil {
		return nil, false, fmt.Errorf("decode cache %s: %w", conversationID, err)
	}
	return l, true, nil
}

// Save overwrites the cached list.
func (c *BlobCache) Save(ctx context.Context, conversationID string, l chat.List) error {
	if err := c.store.SetBlob(ctx, Key(conversationID), Encode(l)); err != nil {
		return fmt.Errorf("write cache %s: %w", conversationID, err)
	}
	return nil
}

// MemoryStore is a BlobStore held in memory.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (m *MemoryStore) GetBlob(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

func (m *MemoryStore) SetBlob(_ context.Context, key string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), blob...)
	return nil
}
