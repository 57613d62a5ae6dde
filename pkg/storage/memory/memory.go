// Package memory provides a process-local [storage.Storage].
package memory

import (
	"context"
	"sync"

	"github.com/MrWong99/voicelink/pkg/storage"
)

var (
	_ storage.Storage = (*Store)(nil)
	_ storage.Deleter = (*Store)(nil)
)

// Store keeps items in a map. The zero value is ready to use.
type Store struct {
	mu    sync.RWMutex
	items map[string]string
}

// New returns an empty Store.
func New() *Store { return &Store{} }

// GetItem implements [storage.Storage].
func (s *Store) GetItem(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok, nil
}

// SetItem implements [storage.Storage].
func (s *Store) SetItem(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.items == nil {
		s.items = make(map[string]string)
	}
	s.items[key] = value
	return nil
}

// DeleteItem implements [storage.Deleter].
func (s *Store) DeleteItem(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
