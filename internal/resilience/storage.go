package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/voicelink/pkg/storage"
)

var (
	_ storage.Storage = (*GuardedStorage)(nil)
	_ storage.Deleter = (*GuardedStorage)(nil)
	_ storage.Pinger  = (*GuardedStorage)(nil)
)

// errNotSupported is returned by optional methods the wrapped backend lacks.
var errNotSupported = errors.New("resilience: operation not supported by backend")

// GuardedStorage routes every call to the wrapped backend through a [Breaker].
type GuardedStorage struct {
	inner   storage.Storage
	breaker *Breaker
}

// Guard wraps s with breaker b.
func Guard(s storage.Storage, b *Breaker) *GuardedStorage {
	return &GuardedStorage{inner: s, breaker: b}
}

// Breaker returns the breaker guarding the backend.
func (g *GuardedStorage) Breaker() *Breaker { return g.breaker }

// Unwrap returns the wrapped backend.
func (g *GuardedStorage) Unwrap() storage.Storage { return g.inner }

// GetItem implements [storage.Storage].
func (g *GuardedStorage) GetItem(ctx context.Context, key string) (value string, ok bool, err error) {
	err = g.breaker.Execute(func() error {
		var inner error
		value, ok, inner = g.inner.GetItem(ctx, key)
		return inner
	})
	return value, ok, err
}

// SetItem implements [storage.Storage].
func (g *GuardedStorage) SetItem(ctx context.Context, key, value string) error {
	return g.breaker.Execute(func() error {
		return g.inner.SetItem(ctx, key, value)
	})
}

// DeleteItem implements [storage.Deleter].
func (g *GuardedStorage) DeleteItem(ctx context.Context, key string) error {
	d, ok := g.inner.(storage.Deleter)
	if !ok {
		return errNotSupported
	}
	return g.breaker.Execute(func() error {
		return d.DeleteItem(ctx, key)
	})
}

// Ping implements [storage.Pinger]. It bypasses the breaker so health checks
// see the real backend state. Backends without a remote dependency report
// healthy.
func (g *GuardedStorage) Ping(ctx context.Context) error {
	if p, ok := g.inner.(storage.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
