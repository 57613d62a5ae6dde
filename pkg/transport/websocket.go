package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Compile-time assertion that WebSocket satisfies Conn.
var _ Conn = (*WebSocket)(nil)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultWriteTimeout   = 5 * time.Second
	defaultEventBuffer    = 256
	defaultReadLimit      = 1 << 20
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a WebSocket.
type Option func(*WebSocket)

// WithHeader sets the HTTP headers sent with the opening handshake.
func WithHeader(h http.Header) Option {
	return func(w *WebSocket) { w.header = h.Clone() }
}

// WithConnectTimeout bounds how long Connect may wait for the handshake.
func WithConnectTimeout(d time.Duration) Option {
	return func(w *WebSocket) {
		if d > 0 {
			w.connectTimeout = d
		}
	}
}

// WithEventBuffer sets the capacity of the Events channel.
func WithEventBuffer(n int) Option {
	return func(w *WebSocket) {
		if n > 0 {
			w.eventBuffer = n
		}
	}
}

// WithReadLimit sets the maximum size in bytes of a single inbound message.
func WithReadLimit(n int64) Option {
	return func(w *WebSocket) {
		if n > 0 {
			w.readLimit = n
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *WebSocket) {
		if l != nil {
			w.logger = l
		}
	}
}

// ── WebSocket ──────────────────────────────────────────────────────────────────

// WebSocket is a [Conn] backed by github.com/coder/websocket.
type WebSocket struct {
	id             string
	url            string
	header         http.Header
	connectTimeout time.Duration
	eventBuffer    int
	readLimit      int64
	logger         *slog.Logger

	mu      sync.Mutex
	state   State
	started bool
	closed  bool
	conn    *websocket.Conn
	ctx     context.Context
	cancel  context.CancelFunc
	dialing chan struct{} // closed once the dial attempt has finished
	dialErr error

	emitMu       sync.Mutex
	events       chan Event
	eventsClosed bool
	seq          uint64

	done       chan struct{}
	doneOnce   sync.Once
	finishOnce sync.Once
	readDone   chan struct{}
}

// NewWebSocket creates an unopened connection to url.
func NewWebSocket(url string, opts ...Option) *WebSocket {
	w := &WebSocket{
		id:             uuid.NewString(),
		url:            url,
		connectTimeout: defaultConnectTimeout,
		eventBuffer:    defaultEventBuffer,
		readLimit:      defaultReadLimit,
		logger:         slog.Default(),
		state:          StateIdle,
		done:           make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	w.events = make(chan Event, w.eventBuffer)
	w.ctx, w.cancel = context.WithCancel(context.Background())
	return w
}

// ID implements [Conn].
func (w *WebSocket) ID() string { return w.id }

// Events implements [Conn].
func (w *WebSocket) Events() <-chan Event { return w.events }

// State implements [Conn].
func (w *WebSocket) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Connect implements [Conn].
func (w *WebSocket) Connect(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return &ConnectionError{Op: "connect", URL: w.url, Err: ErrClosed}
	}
	if w.started {
		dialing := w.dialing
		w.mu.Unlock()
		select {
		case <-dialing:
			w.mu.Lock()
			defer w.mu.Unlock()
			return w.dialErr
		case <-ctx.Done():
			return &ConnectionError{Op: "connect", URL: w.url, Err: ctx.Err()}
		}
	}
	w.started = true
	w.dialing = make(chan struct{})
	w.state = StateConnecting
	w.mu.Unlock()

	w.emit(Event{Kind: EventState, State: StateConnecting})

	dialCtx, dialCancel := context.WithTimeout(w.ctx, w.connectTimeout)
	stop := context.AfterFunc(ctx, dialCancel)
	conn, _, err := websocket.Dial(dialCtx, w.url, &websocket.DialOptions{
		HTTPHeader: w.header,
	})
	stop()
	dialCancel()

	w.mu.Lock()
	if err == nil && w.closed {
		conn.CloseNow()
		err = ErrClosed
	}
	if err != nil {
		if w.closed {
			err = ErrClosed
		}
		w.dialErr = &ConnectionError{Op: "connect", URL: w.url, Err: err}
		closedByOwner := w.closed
		if !closedByOwner {
			w.state = StateError
			w.closed = true
		}
		close(w.dialing)
		w.mu.Unlock()

		if !closedByOwner {
			w.logger.Warn("transport: connect failed", "conn_id", w.id, "url", w.url, "err", err)
			w.cancel()
			w.finish(StateError, w.dialErr)
		}
		return w.dialErr
	}

	conn.SetReadLimit(w.readLimit)
	w.conn = conn
	w.state = StateConnected
	w.readDone = make(chan struct{})
	w.mu.Unlock()

	// Connected must be observed before any message the read loop delivers.
	w.emit(Event{Kind: EventState, State: StateConnected})
	go w.readLoop(conn)

	w.mu.Lock()
	close(w.dialing)
	w.mu.Unlock()

	w.logger.Debug("transport: connected", "conn_id", w.id, "url", w.url)
	return nil
}

// Close implements [Conn].
func (w *WebSocket) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.state = StateClosed
	conn := w.conn
	readDone := w.readDone
	w.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client closed")
	}
	w.cancel()
	w.stopEmitting()
	if readDone != nil {
		<-readDone
	}
	w.finish(StateClosed, nil)
	return nil
}

// SendJSON implements [Conn].
func (w *WebSocket) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("transport: marshal: %w", err)
	}
	return w.write(websocket.MessageText, data)
}

// SendBinary implements [Conn].
func (w *WebSocket) SendBinary(data []byte) error {
	return w.write(websocket.MessageBinary, data)
}

func (w *WebSocket) write(typ websocket.MessageType, data []byte) error {
	w.mu.Lock()
	state, conn := w.state, w.conn
	w.mu.Unlock()

	if state != StateConnected || conn == nil {
		return &SendError{State: state}
	}

	ctx, cancel := context.WithTimeout(w.ctx, defaultWriteTimeout)
	defer cancel()
	if err := conn.Write(ctx, typ, data); err != nil {
		return &SendError{State: state, Err: err}
	}
	return nil
}

// readLoop receives messages until the connection ends and forwards them to
// the event stream in arrival order.
func (w *WebSocket) readLoop(conn *websocket.Conn) {
	defer close(w.readDone)

	for {
		typ, data, err := conn.Read(w.ctx)
		if err != nil {
			w.mu.Lock()
			closedByOwner := w.closed
			w.closed = true
			w.state = StateClosed
			w.mu.Unlock()

			if closedByOwner {
				return
			}
			w.cancel()

			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				w.logger.Info("transport: remote closed connection", "conn_id", w.id)
				w.finish(StateClosed, nil)
			default:
				w.logger.Warn("transport: read failed", "conn_id", w.id, "err", err)
				w.finish(StateClosed, &ConnectionError{Op: "read", URL: w.url, Err: err})
			}
			return
		}

		switch typ {
		case websocket.MessageBinary:
			w.emit(Event{Kind: EventBinary, Data: data})
		case websocket.MessageText:
			w.emit(Event{Kind: EventMessage, Type: messageType(data), Data: data})
		}
	}
}

// emit delivers ev in order, blocking while the consumer is behind. It gives
// up once the connection is finished.
func (w *WebSocket) emit(ev Event) {
	w.emitMu.Lock()
	defer w.emitMu.Unlock()
	if w.eventsClosed {
		return
	}
	w.seq++
	ev.Seq = w.seq
	select {
	case w.events <- ev:
	case <-w.done:
	}
}

// finish delivers the terminal events (best effort) and closes the stream.
func (w *WebSocket) finish(final State, err error) {
	w.finishOnce.Do(func() {
		w.stopEmitting()

		w.emitMu.Lock()
		defer w.emitMu.Unlock()
		if err != nil {
			w.trySendLocked(Event{Kind: EventError, Err: err})
		}
		w.trySendLocked(Event{Kind: EventState, State: final})
		w.eventsClosed = true
		close(w.events)
	})
}

// stopEmitting releases any emitter blocked on a full event buffer.
func (w *WebSocket) stopEmitting() {
	w.doneOnce.Do(func() { close(w.done) })
}

func (w *WebSocket) trySendLocked(ev Event) {
	w.seq++
	ev.Seq = w.seq
	select {
	case w.events <- ev:
	default:
		w.logger.Debug("transport: event buffer full, dropping terminal event",
			"conn_id", w.id, "kind", ev.Kind.String())
	}
}

// messageType extracts the "type" discriminator from a JSON message. Returns
// the empty string for payloads that are not JSON objects.
func messageType(data []byte) string {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return ""
	}
	return head.Type
}
