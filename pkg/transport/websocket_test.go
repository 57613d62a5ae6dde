package transport_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voicelink/pkg/transport"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startServer launches a websocket test server running handler for every
// accepted connection. The server is closed when the test finishes.
func startServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// nextEvent waits for the next event or fails the test.
func nextEvent(t *testing.T, ch <-chan transport.Event) transport.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("event stream closed unexpectedly")
		}
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	return transport.Event{}
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestWebSocket_ConnectEmitsStatesInOrder(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		ctx := context.Background()
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Welcome","request_id":"r1"}`))
		_ = conn.Write(ctx, websocket.MessageBinary, []byte{1, 2, 3})
		<-conn.CloseRead(ctx).Done()
	})

	c := transport.NewWebSocket(wsURL(srv))
	t.Cleanup(func() { _ = c.Close() })

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := c.State(); got != transport.StateConnected {
		t.Fatalf("State = %q; want connected", got)
	}

	ev := nextEvent(t, c.Events())
	if ev.Kind != transport.EventState || ev.State != transport.StateConnecting {
		t.Fatalf("event 1 = %+v; want connecting", ev)
	}
	ev = nextEvent(t, c.Events())
	if ev.Kind != transport.EventState || ev.State != transport.StateConnected {
		t.Fatalf("event 2 = %+v; want connected", ev)
	}
	ev = nextEvent(t, c.Events())
	if ev.Kind != transport.EventMessage || ev.Type != "Welcome" {
		t.Fatalf("event 3 = %+v; want Welcome message", ev)
	}
	ev = nextEvent(t, c.Events())
	if ev.Kind != transport.EventBinary || len(ev.Data) != 3 {
		t.Fatalf("event 4 = %+v; want 3-byte binary", ev)
	}
	if ev.Seq != 4 {
		t.Errorf("Seq = %d; want 4", ev.Seq)
	}
}

func TestWebSocket_SendJSONAndBinary(t *testing.T) {
	t.Parallel()

	type received struct {
		typ  websocket.MessageType
		data []byte
	}
	got := make(chan received, 4)

	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		for range 2 {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			got <- received{typ, data}
		}
	})

	c := transport.NewWebSocket(wsURL(srv))
	t.Cleanup(func() { _ = c.Close() })
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := c.SendJSON(map[string]string{"type": "KeepAlive"}); err != nil {
		t.Fatalf("SendJSON: %v", err)
	}
	if err := c.SendBinary([]byte{9, 9}); err != nil {
		t.Fatalf("SendBinary: %v", err)
	}

	first := <-got
	if first.typ != websocket.MessageText || string(first.data) != `{"type":"KeepAlive"}` {
		t.Errorf("first message = %v %q", first.typ, first.data)
	}
	second := <-got
	if second.typ != websocket.MessageBinary || len(second.data) != 2 {
		t.Errorf("second message = %v %v", second.typ, second.data)
	}
}

func TestWebSocket_SendBeforeConnect(t *testing.T) {
	t.Parallel()

	c := transport.NewWebSocket("ws://127.0.0.1:1")
	err := c.SendBinary([]byte{1})
	var sendErr *transport.SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("err = %v; want *SendError", err)
	}
	if sendErr.State != transport.StateIdle {
		t.Errorf("SendError.State = %q; want idle", sendErr.State)
	}
}

func TestWebSocket_ConnectFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	c := transport.NewWebSocket(wsURL(srv))
	err := c.Connect(context.Background())
	var connErr *transport.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("err = %v; want *ConnectionError", err)
	}
	if c.State() != transport.StateError {
		t.Errorf("State = %q; want error", c.State())
	}

	var sawError bool
	for ev := range c.Events() {
		if ev.Kind == transport.EventError {
			sawError = true
		}
	}
	if !sawError {
		t.Error("expected an error event before the stream closed")
	}
}

func TestWebSocket_ConcurrentConnectJoinsAttempt(t *testing.T) {
	t.Parallel()

	var accepted sync.WaitGroup
	accepted.Add(1)
	var once sync.Once
	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		once.Do(accepted.Done)
		<-conn.CloseRead(context.Background()).Done()
	})

	c := transport.NewWebSocket(wsURL(srv))
	t.Cleanup(func() { _ = c.Close() })

	errs := make(chan error, 3)
	for range 3 {
		go func() { errs <- c.Connect(context.Background()) }()
	}
	for range 3 {
		if err := <-errs; err != nil {
			t.Fatalf("Connect: %v", err)
		}
	}
	accepted.Wait()

	connected := 0
	timeout := time.After(500 * time.Millisecond)
loop:
	for {
		select {
		case ev := <-c.Events():
			if ev.Kind == transport.EventState && ev.State == transport.StateConnected {
				connected++
			}
		case <-timeout:
			break loop
		}
	}
	if connected != 1 {
		t.Errorf("connected events = %d; want 1", connected)
	}
}

func TestWebSocket_CloseDuringConnectSettles(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(block)
		srv.Close()
	})

	c := transport.NewWebSocket(wsURL(srv), transport.WithConnectTimeout(10*time.Second))
	errCh := make(chan error, 1)
	go func() { errCh <- c.Connect(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, transport.ErrClosed) {
			t.Errorf("Connect err = %v; want ErrClosed", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Connect did not return after Close")
	}
}

func TestWebSocket_CloseIsIdempotentAndEndsStream(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		<-conn.CloseRead(context.Background()).Done()
	})

	c := transport.NewWebSocket(wsURL(srv))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	var last transport.Event
	for ev := range c.Events() {
		last = ev
	}
	if last.Kind != transport.EventState || last.State != transport.StateClosed {
		t.Errorf("last event = %+v; want closed state", last)
	}
	if err := c.Connect(context.Background()); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("Connect after Close = %v; want ErrClosed", err)
	}
}

func TestWebSocket_RemoteCloseEndsStream(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	})

	c := transport.NewWebSocket(wsURL(srv))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-c.Events():
			if !ok {
				if c.State() != transport.StateClosed {
					t.Errorf("State = %q; want closed", c.State())
				}
				return
			}
		case <-deadline:
			t.Fatal("stream not closed after remote close")
		}
	}
}
