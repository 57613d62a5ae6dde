// Package resilience protects the session from a failing storage backend.
//
// [Breaker] is a three-state circuit breaker (closed → open → half-open).
// [GuardedStorage] wraps a [storage.Storage] so that, once the backend has
// failed repeatedly, persistence calls fail fast with [ErrCircuitOpen] instead
// of blocking every conversation append on a dead database.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker rejects a call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls until the reset timeout elapses.
	StateOpen

	// StateHalfOpen lets a limited number of trial calls through.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds tuning knobs for a [Breaker]. Zero values select the
// defaults noted on each field.
type BreakerConfig struct {
	// Name labels log messages.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful trial calls needed to close again.
	// Default: 1.
	HalfOpenMax int

	// OnStateChange, if set, is called after every transition without the
	// breaker lock held.
	OnStateChange func(from, to State)

	// Clock overrides time.Now.
	Clock func() time.Time
}

// Breaker implements the circuit breaker pattern.
type Breaker struct {
	name          string
	maxFailures   int
	resetTimeout  time.Duration
	halfOpenMax   int
	onStateChange func(from, to State)
	now           func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	openedAt    time.Time
	trials      int
	trialOK     int
	lastFailure error
}

// NewBreaker creates a [Breaker] in the closed state.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Breaker{
		name:          cfg.Name,
		maxFailures:   cfg.MaxFailures,
		resetTimeout:  cfg.ResetTimeout,
		halfOpenMax:   cfg.HalfOpenMax,
		onStateChange: cfg.OnStateChange,
		now:           cfg.Clock,
	}
}

// Execute runs fn unless the breaker is open. fn's error is returned
// unchanged; a rejected call returns [ErrCircuitOpen] without calling fn.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	from := b.state
	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.trials, b.trialOK = 0, 0
	}
	mid := b.state
	if mid == StateHalfOpen {
		if b.trials >= b.halfOpenMax {
			b.mu.Unlock()
			b.notify(from, mid)
			return ErrCircuitOpen
		}
		b.trials++
	}
	probing := mid == StateHalfOpen
	b.mu.Unlock()
	b.notify(from, mid)

	err := fn()

	b.mu.Lock()
	from = b.state
	if err != nil {
		b.lastFailure = err
		b.failures++
		if probing || b.failures >= b.maxFailures {
			b.state = StateOpen
			b.openedAt = b.now()
		}
	} else {
		b.failures = 0
		if probing {
			b.trialOK++
			if b.trialOK >= b.halfOpenMax {
				b.state = StateClosed
			}
		}
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
	return err
}

func (b *Breaker) notify(from, to State) {
	if from == to {
		return
	}
	switch to {
	case StateOpen:
		slog.Warn("circuit breaker opened", "name", b.name, "from", from.String())
	default:
		slog.Info("circuit breaker state changed", "name", b.name, "from", from.String(), "to", to.String())
	}
	if b.onStateChange != nil {
		b.onStateChange(from, to)
	}
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition happens on the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.resetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// LastError returns the most recent error returned by a guarded call.
func (b *Breaker) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastFailure
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.failures, b.trials, b.trialOK = 0, 0, 0
	b.mu.Unlock()
	b.notify(from, StateClosed)
}
