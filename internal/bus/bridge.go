package bus

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MrWong99/voicelink/internal/conversation"
	"github.com/MrWong99/voicelink/internal/idle"
	"github.com/MrWong99/voicelink/internal/session"
	"github.com/MrWong99/voicelink/pkg/transport"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "voicelink"

// Event kinds, also used as the last subject token.
const (
	KindUtterance   = "utterance"
	KindAgentState  = "agent_state"
	KindConnection  = "connection"
	KindIdleTimeout = "idle_timeout"
	KindError       = "error"
)

// Event is the JSON payload of every published message.
type Event struct {
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"`
	Time      time.Time `json:"time"`
	Service   string    `json:"service,omitempty"`
	State     string    `json:"state,omitempty"`
	Role      string    `json:"role,omitempty"`
	Content   string    `json:"content,omitempty"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// Bridge turns session callbacks into bus messages on
// "<prefix>.<session id>.<kind>".
type Bridge struct {
	pub       Publisher
	prefix    string
	sessionID string
	log       *slog.Logger
	now       func() time.Time

	published atomic.Uint64
	failed    atomic.Uint64
}

// NewBridge returns a bridge publishing through pub. An empty prefix selects
// [DefaultPrefix].
func NewBridge(pub Publisher, prefix, sessionID string, log *slog.Logger) *Bridge {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{pub: pub, prefix: prefix, sessionID: sessionID, log: log, now: time.Now}
}

// Subject returns the subject events of kind are published on.
func (b *Bridge) Subject(kind string) string {
	return b.prefix + "." + b.sessionID + "." + kind
}

// Counts returns the number of published and failed messages.
func (b *Bridge) Counts() (published, failed uint64) {
	return b.published.Load(), b.failed.Load()
}

// Wrap returns callbacks that call next and then publish the event.
func (b *Bridge) Wrap(next session.Callbacks) session.Callbacks {
	out := next

	out.OnUtterance = func(m conversation.Message) {
		if next.OnUtterance != nil {
			next.OnUtterance(m)
		}
		b.publish(Event{Kind: KindUtterance, Role: string(m.Role), Content: m.Content, Time: m.Timestamp})
	}
	out.OnAgentState = func(s idle.State) {
		if next.OnAgentState != nil {
			next.OnAgentState(s)
		}
		b.publish(Event{Kind: KindAgentState, State: string(s)})
	}
	out.OnConnectionState = func(svc session.Service, s transport.State) {
		if next.OnConnectionState != nil {
			next.OnConnectionState(svc, s)
		}
		b.publish(Event{Kind: KindConnection, Service: string(svc), State: string(s)})
	}
	out.OnIdleTimeout = func() {
		if next.OnIdleTimeout != nil {
			next.OnIdleTimeout()
		}
		b.publish(Event{Kind: KindIdleTimeout})
	}
	out.OnError = func(e session.Error) {
		if next.OnError != nil {
			next.OnError(e)
		}
		b.publish(Event{Kind: KindError, Service: string(e.Service), Code: e.Code, Message: e.Message})
	}
	return out
}

func (b *Bridge) publish(ev Event) {
	ev.SessionID = b.sessionID
	if ev.Time.IsZero() {
		ev.Time = b.now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		b.failed.Add(1)
		b.log.Warn("bus: encode event", "kind", ev.Kind, "err", err)
		return
	}
	if err := b.pub.Publish(b.Subject(ev.Kind), data); err != nil {
		b.failed.Add(1)
		b.log.Warn("bus: publish event", "kind", ev.Kind, "err", err)
		return
	}
	b.published.Add(1)
}
