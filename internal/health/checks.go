package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/voicelink/internal/resilience"
	"github.com/MrWong99/voicelink/internal/session"
	"github.com/MrWong99/voicelink/pkg/storage"
	"github.com/MrWong99/voicelink/pkg/transport"
)

// SessionState is the read side of a coordinator used by [SessionCheck].
type SessionState interface {
	Running() bool
	ConnectionState(svc session.Service) transport.State
}

var _ SessionState = (*session.Coordinator)(nil)

// SessionCheck passes while the session is running and svc is connected.
func SessionCheck(s SessionState, svc session.Service) Checker {
	return Checker{
		Name: string(svc),
		Check: func(context.Context) error {
			if !s.Running() {
				return errors.New("session not running")
			}
			if st := s.ConnectionState(svc); st != transport.StateConnected {
				return fmt.Errorf("connection %s", st)
			}
			return nil
		},
	}
}

// StorageCheck pings the backend when it supports it and reports an open
// circuit breaker when s is guarded.
func StorageCheck(s storage.Storage) Checker {
	return Checker{
		Name: "storage",
		Check: func(ctx context.Context) error {
			if g, ok := s.(*resilience.GuardedStorage); ok && g.Breaker().State() == resilience.StateOpen {
				if err := g.Breaker().LastError(); err != nil {
					return fmt.Errorf("circuit open: %w", err)
				}
				return errors.New("circuit open")
			}
			if p, ok := s.(storage.Pinger); ok {
				return p.Ping(ctx)
			}
			return nil
		},
	}
}

// FuncCheck adapts a boolean health function such as a bus client's Healthy method.
// The check is optional: the session keeps working without it.
func FuncCheck(name string, healthy func() bool) Checker {
	return Checker{
		Name:     name,
		Optional: true,
		Check: func(context.Context) error {
			if !healthy() {
				return errors.New("unhealthy")
			}
			return nil
		},
	}
}
