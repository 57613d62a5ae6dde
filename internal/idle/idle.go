// Package idle implements the inactivity timeout of a voice session.
//
// A [Coordinator] tracks the agent's activity state and arms a single timer
// on activity events. Activity only re-arms the timer while the agent is not
// busy: while it is thinking or speaking the activity is recorded but the
// timer is left alone, so a long agent response never counts as user
// inactivity. When the timer expires the timeout callback runs exactly once;
// the coordinator then stays disarmed until the next eligible activity.
package idle

import (
	"sync"
	"time"
)

// State is the agent's turn-taking phase. Values other than the constants
// below are stored verbatim.
type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
	StateThinking  State = "thinking"
	StateSpeaking  State = "speaking"
)

// Busy reports whether the agent is producing a response.
func (s State) Busy() bool {
	return s == StateThinking || s == StateSpeaking
}

// Kind discriminates the variants of [Event].
type Kind int

const (
	// AgentStateChanged sets the agent state to Event.State. It never arms the
	// timer on its own; a change to thinking or speaking disarms it.
	AgentStateChanged Kind = iota

	// UserActivity is meaningful user activity (speech start, injected text).
	UserActivity

	// AgentTurnEnded marks the end of the agent's audio for a turn.
	AgentTurnEnded

	// SessionOpened marks the agent connection becoming ready.
	SessionOpened
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case AgentStateChanged:
		return "agent_state_changed"
	case UserActivity:
		return "user_activity"
	case AgentTurnEnded:
		return "agent_turn_ended"
	case SessionOpened:
		return "session_opened"
	default:
		return "unknown"
	}
}

// Event is the input of [Coordinator.HandleEvent].
type Event struct {
	Kind  Kind
	State State // only for AgentStateChanged
}

// Result reports what HandleEvent did.
type Result int

const (
	// Applied means the event changed the agent state.
	Applied Result = iota

	// Armed means the timer was (re)scheduled.
	Armed

	// Recorded means activity was noted but the timer was not touched because
	// the agent is busy or the timeout is disabled.
	Recorded
)

// Timer is the handle returned by an [AfterFunc].
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run once after d.
type AfterFunc func(d time.Duration, f func()) Timer

func stdAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Option configures a [Coordinator].
type Option func(*Coordinator)

// WithAfterFunc replaces the timer implementation, typically with a fake in
// tests.
func WithAfterFunc(fn AfterFunc) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.afterFunc = fn
		}
	}
}

// WithClock sets the time source used for LastActivity.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// Coordinator is the idle-timeout state machine.
//
// All methods are safe for concurrent use. The timeout callback runs without
// any coordinator lock held.
type Coordinator struct {
	timeout   time.Duration
	onTimeout func()
	afterFunc AfterFunc
	now       func() time.Time

	mu           sync.Mutex
	state        State
	timer        Timer
	gen          uint64
	armed        bool
	arms         int
	lastActivity time.Time
}

// New returns a coordinator in state idle that calls onTimeout after timeout
// of eligible inactivity. A timeout of zero or less disables the timer.
func New(timeout time.Duration, onTimeout func(), opts ...Option) *Coordinator {
	c := &Coordinator{
		timeout:   timeout,
		onTimeout: onTimeout,
		afterFunc: stdAfterFunc,
		now:       time.Now,
		state:     StateIdle,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// HandleEvent applies ev.
func (c *Coordinator) HandleEvent(ev Event) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ev.Kind == AgentStateChanged {
		c.state = ev.State
		// A busy agent cancels any pending deadline; the next eligible
		// activity re-arms.
		if c.state.Busy() {
			c.stopLocked()
		}
		return Applied
	}

	c.lastActivity = c.now()
	if c.state.Busy() || c.timeout <= 0 {
		return Recorded
	}
	c.armLocked()
	return Armed
}

func (c *Coordinator) armLocked() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	gen := c.gen
	c.armed = true
	c.arms++
	c.timer = c.afterFunc(c.timeout, func() { c.fire(gen) })
}

func (c *Coordinator) fire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || !c.armed || c.state.Busy() {
		c.mu.Unlock()
		return
	}
	c.armed = false
	c.timer = nil
	cb := c.onTimeout
	c.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// State returns the last reported agent state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Armed reports whether a timeout is pending.
func (c *Coordinator) Armed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

// Arms returns how many times the timer has been (re)armed since the last
// Reset.
func (c *Coordinator) Arms() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.arms
}

// LastActivity returns the time of the last activity event, or the zero time.
func (c *Coordinator) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// Stop cancels a pending timeout. The agent state is kept.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Coordinator) stopLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
	c.armed = false
}

// Reset cancels a pending timeout and returns to state idle.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
	c.state = StateIdle
	c.arms = 0
	c.lastActivity = time.Time{}
}
