// Package transport defines the connection lifecycle abstraction used by a
// voice session to talk to a remote service.
//
// A [Conn] owns exactly one message-oriented connection. It exposes
// Connect/Close, send primitives for structured (JSON) and binary payloads, and
// a single ordered stream of [Event] values describing state changes, inbound
// messages, and errors. Reconnection is never automatic: a Conn is single-use
// and the owner decides if and when to open a new one.
//
// The websocket-backed implementation is [WebSocket]. Test doubles live in the
// transport/mock package.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// State is the lifecycle state of a [Conn].
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateClosed     State = "closed"
	StateError      State = "error"
)

// EventKind discriminates the variants of [Event].
type EventKind int

const (
	// EventState reports a lifecycle transition; see Event.State.
	EventState EventKind = iota

	// EventMessage carries a structured (JSON text) message; Event.Type holds
	// its "type" field and Event.Data the raw payload.
	EventMessage

	// EventBinary carries an opaque binary payload in Event.Data.
	EventBinary

	// EventError reports a transport-level failure in Event.Err.
	EventError
)

// String returns the human-readable name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventState:
		return "state"
	case EventMessage:
		return "message"
	case EventBinary:
		return "binary"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a single item of the ordered event stream returned by
// [Conn.Events]. Only the fields relevant to Kind are populated.
type Event struct {
	Kind  EventKind
	State State
	Type  string
	Data  []byte
	Err   error

	// Seq is a per-connection, strictly increasing delivery number.
	Seq uint64
}

// Conn is one connection to a remote service.
//
// All methods are safe for concurrent use.
type Conn interface {
	// ID returns the unique identity of this connection instance.
	ID() string

	// Connect opens the connection and blocks until it is open or has failed.
	// Calling Connect while a connect is in flight or the connection is open
	// joins the existing attempt and returns its result. Failures are reported
	// as *ConnectionError. Connect returns promptly when Close is called.
	Connect(ctx context.Context) error

	// Close releases all resources regardless of state. It is idempotent.
	Close() error

	// SendJSON marshals v and sends it as a structured message. Returns
	// *SendError when the connection is not open.
	SendJSON(v any) error

	// SendBinary sends data as a binary message. Returns *SendError when the
	// connection is not open.
	SendBinary(data []byte) error

	// Events returns the ordered event stream. The channel is closed after the
	// connection reaches its final state.
	Events() <-chan Event

	// State returns the current lifecycle state.
	State() State
}

// ErrClosed is wrapped by errors returned from a Conn that was closed.
var ErrClosed = errors.New("connection closed")

// ConnectionError reports a failure to open or keep a connection.
type ConnectionError struct {
	Op  string
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("transport: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SendError reports a send attempted while the connection was not open, or a
// write the transport rejected.
type SendError struct {
	State State
	Err   error
}

func (e *SendError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transport: send while %s", e.State)
	}
	return fmt.Sprintf("transport: send while %s: %v", e.State, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
