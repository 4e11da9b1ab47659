package mediastore

import (
	"context"
	"sort"
	"sync"

	"github.com/photosentry/photosentry/internal/domain/scanning"
)

var _ scanning.MediaStore = (*MemStore)(nil)

// MemStore is an in-memory MediaStore. It backs the demo path and tests that
// need a library without touching the filesystem.
type MemStore struct {
	mu     sync.RWMutex
	order  []string
	assets map[string][]byte
}

// NewMemStore creates an empty in-memory media store.
func NewMemStore() *MemStore {
	return &MemStore{assets: make(map[string][]byte)}
}

// Put adds or replaces an asset. Insertion order defines enumeration order.
func (s *MemStore) Put(id string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.assets[id]; !exists {
		s.order = append(s.order, id)
	}
	s.assets[id] = content
}

// RequestAccess always grants access.
func (s *MemStore) RequestAccess(context.Context) (bool, error) { return true, nil }

// ListAll returns the asset identifiers in insertion order.
func (s *MemStore) ListAll(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.order))
	for _, id := range s.order {
		if _, ok := s.assets[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// Fetch returns the asset's bytes, or (nil, nil) when it was removed.
func (s *MemStore) Fetch(_ context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	content, ok := s.assets[id]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(content))
	copy(out, content)
	return out, nil
}

// Delete removes the given assets. Unknown identifiers are ignored.
func (s *MemStore) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.assets, id)
	}
	return nil
}

// IDs returns all current identifiers sorted, for test assertions.
func (s *MemStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.assets))
	for id := range s.assets {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
