package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Default reconnection parameters.
const (
	defaultMaxRetries = 10
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// Starter opens services. [*Coordinator] implements it.
type Starter interface {
	Start(ctx context.Context, services ...Service) error
}

var _ Starter = (*Coordinator)(nil)

// Reconnector reopens services whose connection ended unexpectedly.
//
// Reconnection is never implicit: the owner reports drops through
// [Reconnector.NotifyDisconnect], typically from [Callbacks.OnDisconnect],
// after calling [Reconnector.Monitor]. Each drop starts at most one retry
// cycle with exponential backoff.
//
// All methods are safe for concurrent use.
type Reconnector struct {
	starter     Starter
	maxRetries  int
	backoff     time.Duration
	maxBackoff  time.Duration
	onReconnect func(Service)
	onGiveUp    func(Service, error)

	done         chan struct{}
	stopOnce     sync.Once
	disconnected chan Service

	mu       sync.Mutex
	attempts int
	queued   map[Service]bool
}

// ReconnectorConfig configures a [Reconnector].
type ReconnectorConfig struct {
	// Starter reopens the service.
	Starter Starter

	// MaxRetries is the maximum number of attempts per drop. Defaults to 10.
	MaxRetries int

	// Backoff is the initial wait between attempts, doubled each time up to
	// MaxBackoff. Defaults to 1s.
	Backoff time.Duration

	// MaxBackoff caps the wait. Defaults to 30s.
	MaxBackoff time.Duration

	// OnReconnect is called after a successful reconnection. May be nil.
	OnReconnect func(Service)

	// OnGiveUp is called with the last error once MaxRetries attempts have
	// failed. May be nil.
	OnGiveUp func(Service, error)
}

// NewReconnector creates a [Reconnector].
func NewReconnector(cfg ReconnectorConfig) *Reconnector {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	return &Reconnector{
		starter:      cfg.Starter,
		maxRetries:   maxRetries,
		backoff:      backoff,
		maxBackoff:   maxBackoff,
		onReconnect:  cfg.OnReconnect,
		onGiveUp:     cfg.OnGiveUp,
		done:         make(chan struct{}),
		disconnected: make(chan Service, len(allServices)),
		queued:       make(map[Service]bool, len(allServices)),
	}
}

// Monitor starts handling disconnect notifications in a background
// goroutine until ctx is cancelled or Stop is called.
func (r *Reconnector) Monitor(ctx context.Context) {
	go r.monitorLoop(ctx)
}

// NotifyDisconnect schedules a retry cycle for svc. Notifications arriving
// while one is already queued for svc are dropped; once its cycle starts a
// new notification queues the next one. It never blocks.
func (r *Reconnector) NotifyDisconnect(svc Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.queued[svc] {
		slog.Debug("reconnection already queued", "service", svc)
		return
	}
	select {
	case r.disconnected <- svc:
		r.queued[svc] = true
	default:
		slog.Warn("reconnection queue full, dropping notification", "service", svc)
	}
}

// Queued reports whether a retry cycle for svc is waiting to start.
func (r *Reconnector) Queued(svc Service) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queued[svc]
}

// Stop halts monitoring and any retry cycle in progress. Safe to call
// multiple times.
func (r *Reconnector) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
	})
}

// Attempts returns the total number of reconnection attempts made.
func (r *Reconnector) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

func (r *Reconnector) monitorLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case svc := <-r.disconnected:
			r.mu.Lock()
			delete(r.queued, svc)
			r.mu.Unlock()
			r.attemptReconnect(ctx, svc)
		}
	}
}

func (r *Reconnector) attemptReconnect(ctx context.Context, svc Service) {
	currentBackoff := r.backoff
	var lastErr error

	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		default:
		}

		r.mu.Lock()
		r.attempts++
		r.mu.Unlock()

		slog.Info("attempting reconnection",
			"service", svc,
			"attempt", attempt,
			"max_retries", r.maxRetries,
			"backoff", currentBackoff,
		)

		lastErr = r.starter.Start(ctx, svc)
		if lastErr == nil {
			slog.Info("reconnection successful", "service", svc, "attempt", attempt)
			if r.onReconnect != nil {
				r.onReconnect(svc)
			}
			return
		}

		slog.Warn("reconnection attempt failed",
			"service", svc,
			"attempt", attempt,
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-time.After(currentBackoff):
		}

		currentBackoff *= 2
		if currentBackoff > r.maxBackoff {
			currentBackoff = r.maxBackoff
		}
	}

	slog.Error("reconnection failed after max retries",
		"service", svc,
		"max_retries", r.maxRetries,
	)
	if r.onGiveUp != nil {
		r.onGiveUp(svc, lastErr)
	}
}
