package handshake_test

import (
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/voicelink/internal/handshake"
)

type recorder struct {
	sent []any
	err  error
}

func (r *recorder) send(v any) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, v)
	return nil
}

func TestController_SendsOnce(t *testing.T) {
	t.Parallel()

	c := handshake.New()
	rec := &recorder{}

	sent, err := c.OnOpen(rec.send, "v1")
	if err != nil || !sent {
		t.Fatalf("first OnOpen = %v, %v; want true, nil", sent, err)
	}

	// Any number of later snapshots must not trigger a resend.
	for i := range 10 {
		sent, err := c.OnOpen(rec.send, i)
		if err != nil || sent {
			t.Fatalf("OnOpen #%d = %v, %v; want false, nil", i+2, sent, err)
		}
	}

	if len(rec.sent) != 1 || rec.sent[0] != "v1" {
		t.Errorf("sent = %v; want [v1]", rec.sent)
	}
	if c.Snapshot() != "v1" {
		t.Errorf("Snapshot = %v; want v1", c.Snapshot())
	}
	if c.Ignored() != 10 {
		t.Errorf("Ignored = %d; want 10", c.Ignored())
	}
}

func TestController_AckTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		requireAck  bool
		ack         bool
		wantState   handshake.State
		wantApplied bool
	}{
		{name: "no ack required, none received", wantState: handshake.Sent, wantApplied: true},
		{name: "no ack required, ack received", ack: true, wantState: handshake.Applied, wantApplied: true},
		{name: "ack required, none received", requireAck: true, wantState: handshake.Sent, wantApplied: false},
		{name: "ack required, ack received", requireAck: true, ack: true, wantState: handshake.Applied, wantApplied: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := handshake.New(handshake.WithRequireAck(tt.requireAck))
			if _, err := c.OnOpen((&recorder{}).send, struct{}{}); err != nil {
				t.Fatalf("OnOpen: %v", err)
			}
			if tt.ack && !c.OnAck() {
				t.Fatal("OnAck reported no change")
			}
			if c.State() != tt.wantState {
				t.Errorf("State = %v; want %v", c.State(), tt.wantState)
			}
			if c.Applied() != tt.wantApplied {
				t.Errorf("Applied = %v; want %v", c.Applied(), tt.wantApplied)
			}
		})
	}
}

func TestController_AckBeforeSendIgnored(t *testing.T) {
	t.Parallel()

	c := handshake.New()
	if c.OnAck() {
		t.Error("OnAck in NotSent changed state")
	}
	if c.State() != handshake.NotSent {
		t.Errorf("State = %v; want not_sent", c.State())
	}
}

func TestController_FailedSendStaysNotSent(t *testing.T) {
	t.Parallel()

	c := handshake.New()
	wantErr := errors.New("socket closed")
	if _, err := c.OnOpen((&recorder{err: wantErr}).send, 1); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v; want %v", err, wantErr)
	}
	if c.State() != handshake.NotSent {
		t.Fatalf("State = %v; want not_sent", c.State())
	}

	rec := &recorder{}
	if sent, _ := c.OnOpen(rec.send, 2); !sent {
		t.Error("retry after failed send was not sent")
	}
}

func TestController_NilSend(t *testing.T) {
	t.Parallel()

	if _, err := handshake.New().OnOpen(nil, 1); !errors.Is(err, handshake.ErrNoSender) {
		t.Errorf("err = %v; want ErrNoSender", err)
	}
}

func TestController_ResetAllowsNewHandshake(t *testing.T) {
	t.Parallel()

	c := handshake.New()
	rec := &recorder{}
	_, _ = c.OnOpen(rec.send, "first")
	c.OnAck()

	c.Reset()
	if c.State() != handshake.NotSent || c.Snapshot() != nil || c.Applied() {
		t.Fatalf("after Reset: state=%v snapshot=%v applied=%v", c.State(), c.Snapshot(), c.Applied())
	}

	_, _ = c.OnOpen(rec.send, "second")
	if len(rec.sent) != 2 || rec.sent[1] != "second" {
		t.Errorf("sent = %v; want [first second]", rec.sent)
	}
}

func TestController_SlowSendHoldsNoLock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		reset     bool
		wantSent  bool
		wantState handshake.State
	}{
		{name: "completes", wantSent: true, wantState: handshake.Sent},
		{name: "reset while sending", reset: true, wantSent: false, wantState: handshake.NotSent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := handshake.New()
			entered := make(chan struct{})
			release := make(chan struct{})
			slow := func(any) error {
				close(entered)
				<-release
				return nil
			}

			type result struct {
				sent bool
				err  error
			}
			done := make(chan result, 1)
			go func() {
				sent, err := c.OnOpen(slow, "cfg")
				done <- result{sent, err}
			}()
			<-entered

			state := make(chan handshake.State, 1)
			go func() { state <- c.State() }()
			select {
			case got := <-state:
				if got != handshake.NotSent {
					t.Errorf("State during send = %v; want not_sent", got)
				}
			case <-time.After(time.Second):
				t.Fatal("State blocked on an in-flight send")
			}

			var second recorder
			if sent, err := c.OnOpen(second.send, "cfg"); sent || err != nil {
				t.Errorf("concurrent OnOpen = %v, %v; want false, nil", sent, err)
			}
			if len(second.sent) != 0 {
				t.Error("concurrent OnOpen sent a second snapshot")
			}

			if tt.reset {
				c.Reset()
			}
			close(release)
			res := <-done
			if res.err != nil || res.sent != tt.wantSent {
				t.Errorf("OnOpen = %v, %v; want %v, nil", res.sent, res.err, tt.wantSent)
			}
			if got := c.State(); got != tt.wantState {
				t.Errorf("State = %v; want %v", got, tt.wantState)
			}
		})
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	tests := map[handshake.State]string{
		handshake.NotSent:  "not_sent",
		handshake.Sent:     "sent",
		handshake.Applied:  "applied",
		handshake.State(7): "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q; want %q", int(s), got, want)
		}
	}
}
