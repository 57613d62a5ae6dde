package session

import (
	"log/slog"
	"time"

	"github.com/MrWong99/voicelink/internal/idle"
	"github.com/MrWong99/voicelink/pkg/audio"
	"github.com/MrWong99/voicelink/pkg/protocol"
	"github.com/MrWong99/voicelink/pkg/storage"
)

// Service names a remote service the coordinator can connect to.
type Service string

const (
	ServiceAgent         Service = "agent"
	ServiceTranscription Service = "transcription"
)

// allServices is the order in which services are opened.
var allServices = []Service{ServiceAgent, ServiceTranscription}

// AgentService configures the conversational agent connection.
type AgentService struct {
	// URL of the agent websocket endpoint. Defaults to [DefaultAgentURL].
	URL    string
	APIKey string

	// Settings is sent once per connection as the Settings message.
	Settings protocol.AgentSettings
}

// TranscriptionService configures the streaming transcription connection.
type TranscriptionService struct {
	// URL of the listen endpoint. Defaults to [DefaultListenURL].
	URL    string
	APIKey string

	// Options are encoded into the listen URL query when dialling.
	Options protocol.TranscriptionOptions
}

// Options is the caller-supplied service configuration. A nil service is not
// configured.
type Options struct {
	Agent         *AgentService
	Transcription *TranscriptionService
}

// configured reports whether svc has a configuration.
func (o Options) configured(svc Service) bool {
	switch svc {
	case ServiceAgent:
		return o.Agent != nil
	case ServiceTranscription:
		return o.Transcription != nil
	default:
		return false
	}
}

// OptionsFunc returns the current [Options]. The coordinator calls it when it
// dials a connection and again when the agent connection opens; the value
// returned then is the snapshot used for the lifetime of that connection.
// It must not call back into the coordinator.
type OptionsFunc func() Options

// StaticOptions returns an OptionsFunc that always returns o.
func StaticOptions(o Options) OptionsFunc {
	return func() Options { return o }
}

// Option configures a [Coordinator].
type Option func(*Coordinator)

// WithCallbacks sets the caller notifications.
func WithCallbacks(cb Callbacks) Option {
	return func(c *Coordinator) { c.cb = cb }
}

// WithPlayer sets the playback collaborator. Without one inbound audio is
// discarded after passing the block gate.
func WithPlayer(p audio.Player) Option {
	return func(c *Coordinator) { c.player = p }
}

// WithStorage enables conversation persistence through s.
func WithStorage(s storage.Storage) Option {
	return func(c *Coordinator) { c.storage = s }
}

// WithHistoryKey overrides the storage key of the conversation history.
func WithHistoryKey(key string) Option {
	return func(c *Coordinator) { c.historyKey = key }
}

// WithIdleTimeout sets the inactivity timeout. Zero disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.idleTimeout = d }
}

// WithKeepAliveInterval sets how often KeepAlive is sent while asleep. Zero
// disables keepalives.
func WithKeepAliveInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.keepAliveInterval = d }
}

// WithSuspendPlaybackOnSleep makes Sleep suspend playback as well as capture.
func WithSuspendPlaybackOnSleep(on bool) Option {
	return func(c *Coordinator) { c.suspendPlayback = on }
}

// WithRequireSettingsAck makes the handshake wait for SettingsApplied before
// it is reported as applied.
func WithRequireSettingsAck(on bool) Option {
	return func(c *Coordinator) { c.requireAck = on }
}

// WithAfterFunc replaces the idle timer implementation.
func WithAfterFunc(fn idle.AfterFunc) Option {
	return func(c *Coordinator) { c.afterFunc = fn }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}
