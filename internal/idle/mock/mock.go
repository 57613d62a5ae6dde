// Package mock provides a manually driven timer source for [idle.AfterFunc].
//
// Typical usage:
//
//	timers := &mock.Timers{}
//	c := idle.New(time.Minute, onTimeout, idle.WithAfterFunc(timers.AfterFunc))
//	c.HandleEvent(idle.Event{Kind: idle.UserActivity})
//	timers.FireLast() // runs the pending callback
package mock

import (
	"sync"
	"time"

	"github.com/MrWong99/voicelink/internal/idle"
)

// Timer is one scheduled callback.
type Timer struct {
	Duration time.Duration

	mu      sync.Mutex
	f       func()
	stopped bool
	fired   bool
}

// Stop implements [idle.Timer].
func (t *Timer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Stopped reports whether Stop was called.
func (t *Timer) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Fire runs the callback even if the timer was stopped, mimicking a
// time.AfterFunc callback that raced with Stop. It runs at most once.
func (t *Timer) Fire() {
	t.mu.Lock()
	if t.fired {
		t.mu.Unlock()
		return
	}
	t.fired = true
	f := t.f
	t.mu.Unlock()
	f()
}

// Timers records every timer created through AfterFunc.
type Timers struct {
	mu     sync.Mutex
	timers []*Timer
}

// AfterFunc satisfies [idle.AfterFunc]. The callback only runs when the test
// calls Fire.
func (ts *Timers) AfterFunc(d time.Duration, f func()) idle.Timer {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	t := &Timer{Duration: d, f: f}
	ts.timers = append(ts.timers, t)
	return t
}

// Count returns the number of timers created.
func (ts *Timers) Count() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.timers)
}

// Last returns the most recently created timer, or nil.
func (ts *Timers) Last() *Timer {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if len(ts.timers) == 0 {
		return nil
	}
	return ts.timers[len(ts.timers)-1]
}

// FireLast fires the most recently created timer. It reports false when no
// timer exists.
func (ts *Timers) FireLast() bool {
	t := ts.Last()
	if t == nil {
		return false
	}
	t.Fire()
	return true
}

// All returns every timer created, oldest first.
func (ts *Timers) All() []*Timer {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := make([]*Timer, len(ts.timers))
	copy(out, ts.timers)
	return out
}
