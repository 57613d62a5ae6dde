// Package mock provides a scriptable test double for transport.Conn.
//
// A Conn records every send and lets the test drive the inbound event stream:
//
//	conn := mock.NewConn("agent")
//	_ = conn.Connect(ctx)         // emits connecting + connected
//	conn.Message("AgentThinking", nil)
//	conn.Binary([]byte{1, 2})
//	sent := conn.SentTypes()      // e.g. ["Settings"]
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/MrWong99/voicelink/pkg/transport"
)

var _ transport.Conn = (*Conn)(nil)

// Conn is a mock implementation of transport.Conn.
type Conn struct {
	mu sync.Mutex

	id     string
	state  transport.State
	events chan transport.Event
	seq    uint64
	closed bool

	// ConnectErr, if non-nil, is returned from Connect (wrapped in a
	// *transport.ConnectionError) and the connection ends in StateError.
	ConnectErr error

	// Gate, if non-nil, makes Connect block until Gate is closed, the
	// context is cancelled, or Close is called.
	Gate chan struct{}

	// SendErr, if non-nil, is returned from every send on an open connection.
	SendErr error

	// SendGate, if non-nil, makes SendJSON block until SendGate is closed or
	// Close is called. The mock's lock is not held while waiting.
	SendGate chan struct{}

	waiting int

	// ConnectCalls counts Connect invocations.
	ConnectCalls int

	// CloseCalls counts Close invocations.
	CloseCalls int

	// JSON holds every structured payload sent, in order, as raw JSON.
	JSON []json.RawMessage

	// BinaryFrames holds every binary payload sent, in order.
	BinaryFrames [][]byte

	closing chan struct{}
}

// NewConn returns an idle Conn with the given identity.
func NewConn(id string) *Conn {
	return &Conn{
		id:      id,
		state:   transport.StateIdle,
		events:  make(chan transport.Event, 1024),
		closing: make(chan struct{}),
	}
}

// ID implements transport.Conn.
func (c *Conn) ID() string { return c.id }

// Events implements transport.Conn.
func (c *Conn) Events() <-chan transport.Event { return c.events }

// State implements transport.Conn.
func (c *Conn) State() transport.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect implements transport.Conn. On success it emits connecting and
// connected state events.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.ConnectCalls++
	if c.closed {
		c.mu.Unlock()
		return &transport.ConnectionError{Op: "connect", URL: c.id, Err: transport.ErrClosed}
	}
	if c.state == transport.StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.state = transport.StateConnecting
	c.emitLocked(transport.Event{Kind: transport.EventState, State: transport.StateConnecting})
	gate := c.Gate
	c.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return &transport.ConnectionError{Op: "connect", URL: c.id, Err: ctx.Err()}
		case <-c.closing:
			return &transport.ConnectionError{Op: "connect", URL: c.id, Err: transport.ErrClosed}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &transport.ConnectionError{Op: "connect", URL: c.id, Err: transport.ErrClosed}
	}
	if c.ConnectErr != nil {
		err := &transport.ConnectionError{Op: "connect", URL: c.id, Err: c.ConnectErr}
		c.state = transport.StateError
		c.emitLocked(transport.Event{Kind: transport.EventError, Err: err})
		c.emitLocked(transport.Event{Kind: transport.EventState, State: transport.StateError})
		c.closeLocked()
		return err
	}
	c.state = transport.StateConnected
	c.emitLocked(transport.Event{Kind: transport.EventState, State: transport.StateConnected})
	return nil
}

// Close implements transport.Conn.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CloseCalls++
	if c.closed {
		return nil
	}
	c.state = transport.StateClosed
	c.emitLocked(transport.Event{Kind: transport.EventState, State: transport.StateClosed})
	c.closeLocked()
	return nil
}

// SendJSON implements transport.Conn.
func (c *Conn) SendJSON(v any) error {
	c.mu.Lock()
	if gate := c.SendGate; gate != nil {
		c.waiting++
		c.mu.Unlock()
		select {
		case <-gate:
		case <-c.closing:
		}
		c.mu.Lock()
		c.waiting--
	}
	defer c.mu.Unlock()
	if c.state != transport.StateConnected {
		return &transport.SendError{State: c.state}
	}
	if c.SendErr != nil {
		return &transport.SendError{State: c.state, Err: c.SendErr}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("mock: marshal: %w", err)
	}
	c.JSON = append(c.JSON, data)
	return nil
}

// SendBinary implements transport.Conn.
func (c *Conn) SendBinary(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != transport.StateConnected {
		return &transport.SendError{State: c.state}
	}
	if c.SendErr != nil {
		return &transport.SendError{State: c.state, Err: c.SendErr}
	}
	c.BinaryFrames = append(c.BinaryFrames, append([]byte(nil), data...))
	return nil
}

// WaitingSends returns how many SendJSON calls are blocked on SendGate.
func (c *Conn) WaitingSends() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiting
}

// Message emits an inbound structured message. payload is merged with the
// "type" field; it may be nil.
func (c *Conn) Message(typ string, payload map[string]any) {
	body := map[string]any{"type": typ}
	for k, v := range payload {
		body[k] = v
	}
	data, _ := json.Marshal(body)
	c.Emit(transport.Event{Kind: transport.EventMessage, Type: typ, Data: data})
}

// Binary emits an inbound binary frame.
func (c *Conn) Binary(data []byte) {
	c.Emit(transport.Event{Kind: transport.EventBinary, Data: data})
}

// Drop simulates the remote side ending the connection with err (nil for a
// clean close).
func (c *Conn) Drop(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if err != nil {
		c.emitLocked(transport.Event{Kind: transport.EventError, Err: err})
	}
	c.state = transport.StateClosed
	c.emitLocked(transport.Event{Kind: transport.EventState, State: transport.StateClosed})
	c.closeLocked()
}

// Emit appends ev to the event stream. It is a no-op after close.
func (c *Conn) Emit(ev transport.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitLocked(ev)
}

// SentTypes returns the "type" field of every structured payload sent.
func (c *Conn) SentTypes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	types := make([]string, 0, len(c.JSON))
	for _, raw := range c.JSON {
		var head struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(raw, &head)
		types = append(types, head.Type)
	}
	return types
}

// Sent returns the structured payloads of the given type, in send order.
func (c *Conn) Sent(typ string) []json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []json.RawMessage
	for _, raw := range c.JSON {
		var head struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(raw, &head) == nil && head.Type == typ {
			out = append(out, raw)
		}
	}
	return out
}

// CountSent returns how many structured payloads of the given type were sent.
func (c *Conn) CountSent(typ string) int {
	n := 0
	for _, t := range c.SentTypes() {
		if t == typ {
			n++
		}
	}
	return n
}

// Binaries returns a copy of the binary payloads sent.
func (c *Conn) Binaries() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.BinaryFrames))
	copy(out, c.BinaryFrames)
	return out
}

// Closed reports whether Close was called or the connection ended.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) emitLocked(ev transport.Event) {
	if c.closed {
		return
	}
	c.seq++
	ev.Seq = c.seq
	c.events <- ev
}

func (c *Conn) closeLocked() {
	c.closed = true
	close(c.closing)
	close(c.events)
}
