// Package storage defines the key/value persistence collaborator used to
// keep conversation history across sessions.
//
// Implementations:
//
//   - storage/memory   process-local map, for tests and ephemeral runs
//   - storage/file     one JSON file per store on local disk
//   - storage/postgres a table in PostgreSQL via pgx
//   - storage/sqlite   an embedded SQLite database (pure Go driver)
//   - storage/mock     recording test double
package storage

import (
	"context"
	"errors"
)

// Storage stores string values under string keys.
//
// Implementations must be safe for concurrent use.
type Storage interface {
	// GetItem returns the value for key. ok is false when the key is absent;
	// absence is not an error.
	GetItem(ctx context.Context, key string) (value string, ok bool, err error)

	// SetItem stores value under key, replacing any previous value.
	SetItem(ctx context.Context, key, value string) error
}

// Deleter is implemented by backends that can remove a key.
type Deleter interface {
	DeleteItem(ctx context.Context, key string) error
}

// Pinger is implemented by backends with a remote dependency whose
// reachability can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ErrClosed is returned by backends used after Close.
var ErrClosed = errors.New("storage: closed")
