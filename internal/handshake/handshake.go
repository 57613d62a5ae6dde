// Package handshake tracks the one-time configuration exchange on a single
// service connection.
//
// A [Controller] belongs to exactly one connection. It sends the configuration
// snapshot the first time the connection opens and never again: there is no
// way to update the configuration through a controller. A new configuration
// requires a new connection and therefore a new (or [Controller.Reset])
// controller.
package handshake

import (
	"errors"
	"sync"
)

// State is the handshake progress.
type State int

const (
	// NotSent means no configuration has been sent on this connection.
	NotSent State = iota

	// Sent means the configuration was sent and no acknowledgement has been
	// received yet.
	Sent

	// Applied means the service acknowledged the configuration.
	Applied
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case NotSent:
		return "not_sent"
	case Sent:
		return "sent"
	case Applied:
		return "applied"
	default:
		return "unknown"
	}
}

// ErrNoSender is returned by OnOpen when send is nil.
var ErrNoSender = errors.New("handshake: no send function")

// Option configures a [Controller].
type Option func(*Controller)

// WithRequireAck makes the controller wait for [Controller.OnAck] before
// reporting the configuration as applied. Without it Sent counts as success.
func WithRequireAck(require bool) Option {
	return func(c *Controller) { c.requireAck = require }
}

// Controller is the handshake state machine for one connection.
//
// All methods are safe for concurrent use.
type Controller struct {
	requireAck bool

	mu       sync.Mutex
	state    State
	sending  bool
	gen      uint64
	ignored  int
	snapshot any
}

// New returns a controller in state NotSent.
func New(opts ...Option) *Controller {
	c := &Controller{}
	for _, o := range opts {
		o(c)
	}
	return c
}

// OnOpen sends snapshot through send if nothing has been sent yet. Later
// calls, and calls made while another send is in flight, do nothing and
// report sent=false. If send fails the controller stays in NotSent and the
// error is returned.
//
// send runs without the controller's lock held, so the other methods never
// wait on a slow connection.
func (c *Controller) OnOpen(send func(any) error, snapshot any) (sent bool, err error) {
	c.mu.Lock()
	if c.state != NotSent || c.sending {
		c.ignored++
		c.mu.Unlock()
		return false, nil
	}
	if send == nil {
		c.mu.Unlock()
		return false, ErrNoSender
	}
	c.sending = true
	gen := c.gen
	c.mu.Unlock()

	err = send(snapshot)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		// Reset while sending; the payload went to a connection that is gone.
		return false, err
	}
	c.sending = false
	if err != nil {
		return false, err
	}
	c.state = Sent
	c.snapshot = snapshot
	return true, nil
}

// OnAck records the service's acknowledgement. It reports whether the state
// changed; an acknowledgement in any state other than Sent is ignored.
func (c *Controller) OnAck() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Sent {
		return false
	}
	c.state = Applied
	return true
}

// Reset returns the controller to NotSent and forgets the snapshot.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = NotSent
	c.sending = false
	c.gen++
	c.ignored = 0
	c.snapshot = nil
}

// State returns the current handshake state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Applied reports whether the configuration is in effect. Without a required
// acknowledgement this is true as soon as it was sent.
func (c *Controller) Applied() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.requireAck {
		return c.state == Applied
	}
	return c.state != NotSent
}

// Snapshot returns the configuration that was sent, or nil.
func (c *Controller) Snapshot() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Ignored returns how many OnOpen calls were ignored because the
// configuration had already been sent.
func (c *Controller) Ignored() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ignored
}
