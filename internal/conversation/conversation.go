// Package conversation accumulates the utterances of a voice session and
// optionally persists them through a [storage.Storage].
//
// The history is append-only. With a storage backend the entire ordered
// history is serialised as a JSON array and written under one key after every
// append. Storage failures never reach the caller: a failed restore yields an
// empty history and a failed write leaves the in-memory history intact. Both
// are logged and recorded as a [StorageError] available through [Store.Err].
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voicelink/pkg/protocol"
	"github.com/MrWong99/voicelink/pkg/storage"
)

// DefaultKey is the storage key used when none is configured.
const DefaultKey = "voicelink:conversation-history"

// Message is one utterance.
type Message struct {
	Role      protocol.Role `json:"role"`
	Content   string        `json:"content"`
	Timestamp time.Time     `json:"timestamp"`
}

// StorageError reports a failed restore or persist.
type StorageError struct {
	Op  string // "restore", "decode", "persist" or "clear"
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("conversation: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Option configures a [Store].
type Option func(*Store)

// WithKey overrides [DefaultKey].
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithErrorHandler registers fn to be called with every [StorageError]. fn
// runs without the store lock held.
func WithErrorHandler(fn func(*StorageError)) Option {
	return func(s *Store) { s.onError = fn }
}

// Store is the conversation history.
//
// All methods are safe for concurrent use.
type Store struct {
	backend storage.Storage
	key     string
	logger  *slog.Logger
	onError func(*StorageError)

	// persistMu serialises backend writes so they land in append order.
	persistMu sync.Mutex

	mu       sync.Mutex
	messages []Message
	lastErr  *StorageError
	restored bool
}

// New returns an empty store. backend may be nil, in which case the history
// lives only in memory and the backend is never called.
func New(backend storage.Storage, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		key:     DefaultKey,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Key returns the storage key.
func (s *Store) Key() string { return s.key }

// Restore loads the persisted history, replacing the in-memory one. Missing
// data leaves the history empty. Restore without a backend does nothing.
func (s *Store) Restore(ctx context.Context) {
	if s.backend == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	s.restoreLocked(ctx)
}

// restoreLocked requires persistMu.
func (s *Store) restoreLocked(ctx context.Context) {
	raw, ok, err := s.backend.GetItem(ctx, s.key)
	if err != nil {
		s.fail(&StorageError{Op: "restore", Key: s.key, Err: err})
		s.replace(nil)
		return
	}
	if !ok || raw == "" {
		s.replace(nil)
		return
	}

	var msgs []Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		s.fail(&StorageError{Op: "decode", Key: s.key, Err: err})
		s.replace(nil)
		return
	}
	s.replace(msgs)
	s.logger.Debug("conversation: history restored", "key", s.key, "messages", len(msgs))
}

func (s *Store) replace(msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = msgs
	s.restored = true
}

// Restored reports whether Restore has run.
func (s *Store) Restored() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restored
}

// Append adds m to the history and persists the full history. A zero
// Timestamp is set to the current time. The first Append on a store with a
// backend restores the persisted history before writing, so it never
// overwrites earlier sessions.
func (s *Store) Append(ctx context.Context, m Message) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if s.backend != nil && !s.Restored() {
		s.restoreLocked(ctx)
	}

	s.mu.Lock()
	s.messages = append(s.messages, m)
	snapshot := s.messages
	s.mu.Unlock()

	s.persist(ctx, snapshot)
}

func (s *Store) persist(ctx context.Context, msgs []Message) {
	if s.backend == nil {
		return
	}
	if msgs == nil {
		msgs = []Message{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		s.fail(&StorageError{Op: "persist", Key: s.key, Err: err})
		return
	}
	if err := s.backend.SetItem(ctx, s.key, string(data)); err != nil {
		s.fail(&StorageError{Op: "persist", Key: s.key, Err: err})
	}
}

// Clear empties the history and removes it from the backend. If the backend
// cannot delete keys an empty array is stored instead.
func (s *Store) Clear(ctx context.Context) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	s.messages = nil
	s.mu.Unlock()

	if s.backend == nil {
		return
	}
	if d, ok := s.backend.(storage.Deleter); ok {
		if err := d.DeleteItem(ctx, s.key); err != nil {
			s.fail(&StorageError{Op: "clear", Key: s.key, Err: err})
		}
		return
	}
	s.persist(ctx, nil)
}

// History returns a copy of the messages in arrival order.
func (s *Store) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Err returns the most recent storage failure, or nil.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastErr == nil {
		return nil
	}
	return s.lastErr
}

func (s *Store) fail(err *StorageError) {
	s.logger.Warn("conversation: storage failure, continuing without persistence",
		"op", err.Op, "key", err.Key, "err", err.Err)

	s.mu.Lock()
	s.lastErr = err
	cb := s.onError
	s.mu.Unlock()

	if cb != nil {
		cb(err)
	}
}
