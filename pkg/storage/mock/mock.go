// Package mock provides a recording [storage.Storage] for use in unit tests.
//
// Set Items to pre-populate values and the error fields to simulate backend
// failures; inspect GetCalls and SetCalls afterwards.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voicelink/pkg/storage"
)

var (
	_ storage.Storage = (*Storage)(nil)
	_ storage.Deleter = (*Storage)(nil)
)

// SetCall records the arguments of a single SetItem invocation.
type SetCall struct {
	Key   string
	Value string
}

// Storage is a mock implementation of [storage.Storage].
type Storage struct {
	mu sync.Mutex

	// Items holds the stored values. A nil map is created on first write.
	Items map[string]string

	// GetErr is returned by GetItem.
	GetErr error

	// SetErr is returned by SetItem. The value is not stored when set.
	SetErr error

	// GetCalls records every key passed to GetItem.
	GetCalls []string

	// SetCalls records every SetItem invocation.
	SetCalls []SetCall

	// DeleteCalls records every key passed to DeleteItem.
	DeleteCalls []string
}

// GetItem implements [storage.Storage].
func (s *Storage) GetItem(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GetCalls = append(s.GetCalls, key)
	if s.GetErr != nil {
		return "", false, s.GetErr
	}
	v, ok := s.Items[key]
	return v, ok, nil
}

// SetItem implements [storage.Storage].
func (s *Storage) SetItem(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SetCalls = append(s.SetCalls, SetCall{Key: key, Value: value})
	if s.SetErr != nil {
		return s.SetErr
	}
	if s.Items == nil {
		s.Items = make(map[string]string)
	}
	s.Items[key] = value
	return nil
}

// DeleteItem implements [storage.Deleter].
func (s *Storage) DeleteItem(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DeleteCalls = append(s.DeleteCalls, key)
	delete(s.Items, key)
	return nil
}

// Calls returns the number of GetItem and SetItem calls so far.
func (s *Storage) Calls() (get, set int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.GetCalls), len(s.SetCalls)
}

// LastSet returns the most recent SetItem call. ok is false if there was none.
func (s *Storage) LastSet() (SetCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.SetCalls) == 0 {
		return SetCall{}, false
	}
	return s.SetCalls[len(s.SetCalls)-1], true
}
