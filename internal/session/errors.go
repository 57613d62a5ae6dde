package session

import (
	"errors"
	"fmt"
)

// ErrStopped is returned by [Coordinator.Start] for connections that were
// torn down by [Coordinator.Stop] before they finished opening.
var ErrStopped = errors.New("session: stopped")

// Error codes reported through [Callbacks.OnError].
const (
	CodeConnectionFailed = "connection_failed"
	CodeSendFailed       = "send_failed"
	CodeStorageFailed    = "storage_failed"
	CodeServerError      = "server_error"
	CodeInjectionRefused = "injection_refused"
	CodeMalformedMessage = "malformed_message"
	CodeTransportError   = "transport_error"
)

// Error is the single shape in which failures from any component reach the
// caller.
type Error struct {
	Service Service
	Code    string
	Message string

	// Err is the underlying error, if any.
	Err error
}

func (e Error) Error() string {
	if e.Service == "" {
		return fmt.Sprintf("session: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("session: %s: %s: %s", e.Service, e.Code, e.Message)
}

func (e Error) Unwrap() error { return e.Err }

// ConfigurationError reports an operation on a service that has no
// configuration.
type ConfigurationError struct {
	Service Service
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("session: %s service is not configured", e.Service)
}
