// Package session coordinates a real-time voice session with a remote agent
// service and an optional streaming transcription service.
//
// A [Coordinator] owns one connection per service, the audio pipeline with its
// interrupt gate, the configuration handshake of the agent connection, the
// idle-timeout state machine and the conversation history. Each connection is
// drained by its own goroutine; every event is classified by [RouteOf] and
// handled under the coordinator lock, and the resulting caller callbacks run
// after the lock is released.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voicelink/internal/conversation"
	"github.com/MrWong99/voicelink/internal/handshake"
	"github.com/MrWong99/voicelink/internal/idle"
	"github.com/MrWong99/voicelink/pkg/audio"
	"github.com/MrWong99/voicelink/pkg/protocol"
	"github.com/MrWong99/voicelink/pkg/storage"
	"github.com/MrWong99/voicelink/pkg/transport"
)

// CodePlaybackFailed is reported when the player rejects an inbound frame.
const CodePlaybackFailed = "playback_failed"

// channel is the per-connection state. A new channel is created for every
// connection, so its handshake starts at NotSent.
type channel struct {
	svc       Service
	conn      transport.Conn
	handshake *handshake.Controller

	// opts is the snapshot taken when the connection was dialled.
	opts Options

	opened  bool
	ended   bool
	lastErr error

	// pending holds final transcript segments of the current utterance.
	pending []string
}

// Stats is a point-in-time summary of a [Coordinator].
type Stats struct {
	Audio    audio.Stats
	Messages int
	IdleArms int
}

// Coordinator is the session orchestrator.
//
// All methods are safe for concurrent use.
type Coordinator struct {
	options OptionsFunc
	dialer  Dialer

	cb                Callbacks
	player            audio.Player
	storage           storage.Storage
	historyKey        string
	idleTimeout       time.Duration
	keepAliveInterval time.Duration
	suspendPlayback   bool
	requireAck        bool
	afterFunc         idle.AfterFunc
	logger            *slog.Logger

	pipeline    *audio.Pipeline
	idle        *idle.Coordinator
	history     *conversation.Store
	restoreOnce sync.Once

	mu        sync.Mutex
	channels  map[Service]*channel
	running   bool
	sleeping  bool
	keepAlive chan struct{}
}

// New returns a stopped coordinator. options is read on every Start and when
// the agent connection opens; dialer creates the connections. A nil dialer
// uses [WebSocketDialer].
func New(options OptionsFunc, dialer Dialer, opts ...Option) *Coordinator {
	c := &Coordinator{
		options:  options,
		dialer:   dialer,
		logger:   slog.Default(),
		channels: make(map[Service]*channel),
	}
	for _, o := range opts {
		o(c)
	}
	if c.options == nil {
		c.options = StaticOptions(Options{})
	}
	if c.dialer == nil {
		c.dialer = WebSocketDialer()
	}

	c.pipeline = audio.NewPipeline(c.player)

	var idleOpts []idle.Option
	if c.afterFunc != nil {
		idleOpts = append(idleOpts, idle.WithAfterFunc(c.afterFunc))
	}
	c.idle = idle.New(c.idleTimeout, c.onIdleTimeout, idleOpts...)

	histOpts := []conversation.Option{
		conversation.WithLogger(c.logger),
		conversation.WithErrorHandler(c.onStorageError),
	}
	if c.historyKey != "" {
		histOpts = append(histOpts, conversation.WithKey(c.historyKey))
	}
	c.history = conversation.New(c.storage, histOpts...)
	return c
}

// ── Lifecycle ──────────────────────────────────────────────────────────────────

// Start opens the selected services, or every configured service when none
// are named, and blocks until each connection is open or has failed.
// Services without configuration are skipped; if nothing is left Start
// returns nil without reporting an error. Services that are already
// connecting or open are joined rather than dialled again.
//
// Connection failures are reported through OnError and returned joined.
// Connections torn down by Stop before they opened return [ErrStopped].
func (c *Coordinator) Start(ctx context.Context, services ...Service) error {
	opts := c.options()
	if len(services) == 0 {
		services = allServices
	}

	var wanted []Service
	for _, svc := range services {
		if !opts.configured(svc) {
			c.logger.Debug("session: service not configured, skipping", "service", svc)
			continue
		}
		wanted = append(wanted, svc)
	}
	if len(wanted) == 0 {
		c.logger.Info("session: no service configured, nothing to start")
		return nil
	}

	c.restoreOnce.Do(func() { c.history.Restore(ctx) })

	var (
		fx      effects
		errs    []error
		targets []*channel
	)
	c.mu.Lock()
	c.running = true
	for _, svc := range wanted {
		if ch := c.channels[svc]; ch != nil && !finished(ch.conn.State()) {
			targets = append(targets, ch)
			continue
		}
		url, header, err := opts.endpoint(svc)
		if err != nil {
			errs = append(errs, err)
			fx.add(c.cb.failure(Error{Service: svc, Code: CodeConnectionFailed, Message: err.Error(), Err: err}))
			continue
		}
		ch := &channel{
			svc:       svc,
			conn:      c.dialer.Dial(svc, url, header),
			handshake: handshake.New(handshake.WithRequireAck(c.requireAck)),
			opts:      opts,
		}
		c.channels[svc] = ch
		c.logger.Info("session: dialling", "service", svc, "conn_id", ch.conn.ID())
		go c.pump(ch)
		targets = append(targets, ch)
	}
	c.mu.Unlock()
	fx.run()

	results := make([]error, len(targets))
	var g errgroup.Group
	for i, ch := range targets {
		g.Go(func() error {
			results[i] = c.connect(ctx, ch)
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(append(errs, results...)...)
}

func (c *Coordinator) connect(ctx context.Context, ch *channel) error {
	err := ch.conn.Connect(ctx)
	if err == nil {
		return nil
	}
	_ = ch.conn.Close()

	if !c.current(ch) {
		return fmt.Errorf("session: %s: %w", ch.svc, ErrStopped)
	}
	c.logger.Warn("session: connect failed", "service", ch.svc, "conn_id", ch.conn.ID(), "err", err)
	c.cb.failure(Error{Service: ch.svc, Code: CodeConnectionFailed, Message: err.Error(), Err: err})()
	return err
}

// Stop closes every connection, cancels the idle timer and keepalives, and
// returns the handshake, block gate and sleep state to their initial values.
// The conversation history is kept. A Start still waiting for a connection
// returns promptly.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	chans := c.channels
	c.channels = make(map[Service]*channel)
	c.running = false
	wasAsleep := c.sleeping
	c.sleeping = false
	c.stopKeepAliveLocked()
	c.idle.Reset()
	c.pipeline.Reset()
	c.mu.Unlock()

	var fx effects
	for _, svc := range allServices {
		ch := chans[svc]
		if ch == nil {
			continue
		}
		prev := ch.conn.State()
		if svc == ServiceTranscription && prev == transport.StateConnected {
			if err := ch.conn.SendJSON(protocol.CloseStream()); err != nil {
				c.logger.Debug("session: close stream failed", "err", err)
			}
		}
		_ = ch.conn.Close()
		ch.handshake.Reset()
		if !finished(prev) {
			fx.add(c.cb.connectionState(svc, transport.StateClosed))
		}
	}
	if wasAsleep {
		fx.add(c.cb.sleepChange(false))
	}
	fx.run()

	if len(chans) > 0 {
		c.logger.Info("session: stopped")
	}
}

// ── Event routing ──────────────────────────────────────────────────────────────

func (c *Coordinator) pump(ch *channel) {
	for ev := range ch.conn.Events() {
		c.dispatch(ch, ev)
	}
}

func (c *Coordinator) current(ch *channel) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels[ch.svc] == ch
}

func (c *Coordinator) dispatch(ch *channel, ev transport.Event) {
	// The options callback runs outside the lock.
	var snapshot Options
	if ch.svc == ServiceAgent && ev.Kind == transport.EventState && ev.State == transport.StateConnected {
		snapshot = c.options()
	}

	var fx effects
	c.mu.Lock()
	if c.channels[ch.svc] != ch {
		c.mu.Unlock()
		c.logger.Debug("session: dropping event of superseded connection",
			"service", ch.svc, "conn_id", ch.conn.ID(), "kind", ev.Kind.String())
		return
	}
	switch ev.Kind {
	case transport.EventState:
		c.handleStateLocked(ch, ev.State, snapshot, &fx)
	case transport.EventMessage:
		c.handleMessageLocked(ch, protocol.Type(ev.Type), ev.Data, &fx)
	case transport.EventBinary:
		c.handleBinaryLocked(ch, ev.Data, &fx)
	case transport.EventError:
		c.handleErrorLocked(ch, ev.Err, &fx)
	}
	c.mu.Unlock()
	fx.run()
}

func (c *Coordinator) handleStateLocked(ch *channel, state transport.State, snapshot Options, fx *effects) {
	fx.add(c.cb.connectionState(ch.svc, state))

	switch state {
	case transport.StateConnected:
		ch.opened = true
		if ch.svc != ServiceAgent {
			return
		}
		agent := snapshot.Agent
		if agent == nil {
			agent = ch.opts.Agent
		}
		settings := protocol.NewSettings(agent.Settings)
		fx.add(func() { c.sendSettings(ch, settings) })
		c.idle.HandleEvent(idle.Event{Kind: idle.SessionOpened})

	case transport.StateClosed, transport.StateError:
		if ch.svc == ServiceAgent {
			c.idle.Stop()
		}
		if ch.opened && !ch.ended {
			ch.ended = true
			c.logger.Warn("session: connection ended", "service", ch.svc, "conn_id", ch.conn.ID(), "err", ch.lastErr)
			fx.add(c.cb.disconnect(ch.svc, ch.lastErr))
		}
	}
}

// sendSettings runs on the pump goroutine without c.mu held. The handshake
// controller guarantees a single send per connection.
func (c *Coordinator) sendSettings(ch *channel, settings protocol.SettingsMessage) {
	sent, err := ch.handshake.OnOpen(ch.conn.SendJSON, settings)
	switch {
	case err != nil:
		if !c.current(ch) {
			return
		}
		c.logger.Warn("session: settings send failed", "conn_id", ch.conn.ID(), "err", err)
		c.cb.failure(Error{Service: ch.svc, Code: CodeSendFailed, Message: "settings: " + err.Error(), Err: err})()
	case sent:
		c.logger.Info("session: settings sent", "conn_id", ch.conn.ID())
	default:
		c.logger.Debug("session: connection reported open again, settings not resent", "conn_id", ch.conn.ID())
	}
}

func (c *Coordinator) handleMessageLocked(ch *channel, typ protocol.Type, data []byte, fx *effects) {
	switch route := RouteOf(ch.svc, typ); route {
	case RouteHandshake:
		if ch.handshake.OnAck() {
			c.logger.Info("session: settings applied", "conn_id", ch.conn.ID())
		}
	case RouteIdle:
		c.routeIdleLocked(ch, typ, data, fx)
	case RouteConversation:
		c.routeConversationLocked(ch, typ, data, fx)
	case RouteCallback:
		c.routeCallbackLocked(ch, typ, data, fx)
	default:
		c.logger.Debug("session: message ignored", "service", ch.svc, "type", typ)
	}
}

func (c *Coordinator) routeIdleLocked(ch *channel, typ protocol.Type, data []byte, fx *effects) {
	switch typ {
	case protocol.TypeUserStartedSpeaking, protocol.TypeSpeechStarted:
		c.idle.HandleEvent(idle.Event{Kind: idle.UserActivity})
		fx.add(c.cb.signal(c.cb.OnUserStartedSpeaking))
	case protocol.TypeAgentThinking:
		c.setAgentStateLocked(idle.StateThinking, fx)
	case protocol.TypeAgentStartedSpeaking:
		c.setAgentStateLocked(idle.StateSpeaking, fx)
		fx.add(c.cb.signal(c.cb.OnAgentStartedSpeaking))
	case protocol.TypeAgentAudioDone:
		c.setAgentStateLocked(idle.StateIdle, fx)
		c.idle.HandleEvent(idle.Event{Kind: idle.AgentTurnEnded})
		fx.add(c.cb.signal(c.cb.OnAgentAudioDone))
	case protocol.TypeAgentStateChanged:
		msg, err := protocol.Decode[protocol.AgentStateChanged](data)
		if err != nil {
			c.malformedLocked(ch, typ, err, fx)
			return
		}
		c.setAgentStateLocked(idle.State(msg.State), fx)
	}
}

func (c *Coordinator) setAgentStateLocked(s idle.State, fx *effects) {
	c.idle.HandleEvent(idle.Event{Kind: idle.AgentStateChanged, State: s})
	fx.add(c.cb.agentState(s))
}

func (c *Coordinator) routeConversationLocked(ch *channel, typ protocol.Type, data []byte, fx *effects) {
	msg, err := protocol.Decode[protocol.ConversationText](data)
	if err != nil {
		c.malformedLocked(ch, typ, err, fx)
		return
	}
	m := conversation.Message{Role: msg.Role, Content: msg.Content, Timestamp: time.Now().UTC()}
	fx.add(func() { c.history.Append(context.Background(), m) })
	fx.add(c.cb.utterance(m))
	if m.Role == protocol.RoleUser {
		fx.add(c.cb.userMessage(m.Content))
	}
}

func (c *Coordinator) routeCallbackLocked(ch *channel, typ protocol.Type, data []byte, fx *effects) {
	switch typ {
	case protocol.TypeError:
		se, err := protocol.Decode[protocol.ServerError](data)
		if err != nil {
			c.malformedLocked(ch, typ, err, fx)
			return
		}
		c.logger.Warn("session: server error", "service", ch.svc, "code", se.Code, "message", se.Text())
		fx.add(c.cb.failure(Error{Service: ch.svc, Code: CodeServerError, Message: se.Text()}))

	case protocol.TypeWarning:
		se, err := protocol.Decode[protocol.ServerError](data)
		if err != nil {
			c.malformedLocked(ch, typ, err, fx)
			return
		}
		c.logger.Warn("session: server warning", "service", ch.svc, "code", se.Code, "message", se.Text())

	case protocol.TypeInjectionRefused:
		ir, err := protocol.Decode[protocol.InjectionRefused](data)
		if err != nil {
			c.malformedLocked(ch, typ, err, fx)
			return
		}
		fx.add(c.cb.failure(Error{Service: ch.svc, Code: CodeInjectionRefused, Message: ir.Message}))

	case protocol.TypeResults:
		res, err := protocol.Decode[protocol.Results](data)
		if err != nil {
			c.malformedLocked(ch, typ, err, fx)
			return
		}
		t, ok := res.Best()
		if !ok {
			if res.SpeechFinal {
				c.flushUtteranceLocked(ch, fx)
			}
			return
		}
		fx.add(c.cb.transcript(t))
		if t.IsFinal {
			ch.pending = append(ch.pending, t.Text)
		}
		if t.SpeechFinal {
			c.flushUtteranceLocked(ch, fx)
		}

	case protocol.TypeUtteranceEnd:
		c.flushUtteranceLocked(ch, fx)
		fx.add(c.cb.signal(c.cb.OnUserStoppedSpeaking))
	}
}

func (c *Coordinator) flushUtteranceLocked(ch *channel, fx *effects) {
	if len(ch.pending) == 0 {
		return
	}
	text := strings.Join(ch.pending, " ")
	ch.pending = nil
	fx.add(c.cb.userMessage(text))
}

func (c *Coordinator) handleBinaryLocked(ch *channel, data []byte, fx *effects) {
	if ch.svc != ServiceAgent {
		c.logger.Debug("session: binary frame ignored", "service", ch.svc, "bytes", len(data))
		return
	}
	if _, err := c.pipeline.HandleInbound(data); err != nil {
		c.logger.Warn("session: playback rejected frame", "err", err)
		fx.add(c.cb.failure(Error{Service: ch.svc, Code: CodePlaybackFailed, Message: err.Error(), Err: err}))
	}
}

func (c *Coordinator) handleErrorLocked(ch *channel, err error, fx *effects) {
	ch.lastErr = err
	if !ch.opened {
		// Connect reports failures before the connection opened.
		c.logger.Debug("session: transport error before open", "service", ch.svc, "err", err)
		return
	}
	msg := "transport error"
	if err != nil {
		msg = err.Error()
	}
	fx.add(c.cb.failure(Error{Service: ch.svc, Code: CodeTransportError, Message: msg, Err: err}))
}

func (c *Coordinator) malformedLocked(ch *channel, typ protocol.Type, err error, fx *effects) {
	c.logger.Warn("session: malformed message", "service", ch.svc, "type", typ, "err", err)
	fx.add(c.cb.failure(Error{Service: ch.svc, Code: CodeMalformedMessage, Message: fmt.Sprintf("%s: %v", typ, err), Err: err}))
}

func (c *Coordinator) onIdleTimeout() {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if !running {
		return
	}
	c.logger.Info("session: idle timeout")
	c.cb.signal(c.cb.OnIdleTimeout)()
}

func (c *Coordinator) onStorageError(err *conversation.StorageError) {
	c.cb.failure(Error{Code: CodeStorageFailed, Message: err.Error(), Err: err})()
}

// ── Controls ───────────────────────────────────────────────────────────────────

// InterruptAgent sets the block gate and stops playback. Inbound agent audio
// is discarded until AllowAgent or Stop.
func (c *Coordinator) InterruptAgent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pipeline.Interrupt()
	c.logger.Debug("session: agent interrupted")
}

// AllowAgent clears the block gate. Discarded audio is not replayed.
func (c *Coordinator) AllowAgent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pipeline.Allow()
}

// Sleep suspends capture, and playback when configured, without closing any
// connection.
func (c *Coordinator) Sleep() { c.setSleeping(true) }

// Wake resumes what Sleep suspended.
func (c *Coordinator) Wake() { c.setSleeping(false) }

// ToggleSleep flips the sleep state and returns the new one.
func (c *Coordinator) ToggleSleep() bool {
	c.mu.Lock()
	on := !c.sleeping
	fx := c.setSleepingLocked(on)
	c.mu.Unlock()
	fx.run()
	return on
}

func (c *Coordinator) setSleeping(on bool) {
	c.mu.Lock()
	fx := c.setSleepingLocked(on)
	c.mu.Unlock()
	fx.run()
}

func (c *Coordinator) setSleepingLocked(on bool) effects {
	if c.sleeping == on {
		return nil
	}
	c.sleeping = on
	c.pipeline.SuspendCapture(on)
	if c.suspendPlayback {
		c.pipeline.SuspendPlayback(on)
	}
	if on {
		c.startKeepAliveLocked()
	} else {
		c.stopKeepAliveLocked()
	}
	c.logger.Info("session: sleep changed", "asleep", on)
	return effects{c.cb.sleepChange(on)}
}

func (c *Coordinator) startKeepAliveLocked() {
	if c.keepAliveInterval <= 0 || c.keepAlive != nil {
		return
	}
	stop := make(chan struct{})
	c.keepAlive = stop
	go c.keepAliveLoop(stop)
}

func (c *Coordinator) stopKeepAliveLocked() {
	if c.keepAlive != nil {
		close(c.keepAlive)
		c.keepAlive = nil
	}
}

func (c *Coordinator) keepAliveLoop(stop chan struct{}) {
	ticker := time.NewTicker(c.keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.sendKeepAlive(stop)
		}
	}
}

func (c *Coordinator) sendKeepAlive(stop chan struct{}) {
	c.mu.Lock()
	if c.keepAlive != stop {
		c.mu.Unlock()
		return
	}
	var open []*channel
	for _, svc := range allServices {
		if ch := c.channels[svc]; ch != nil && ch.conn.State() == transport.StateConnected {
			open = append(open, ch)
		}
	}
	c.mu.Unlock()

	for _, ch := range open {
		if err := ch.conn.SendJSON(protocol.KeepAlive()); err != nil {
			c.logger.Debug("session: keepalive failed", "service", ch.svc, "err", err)
		}
	}
}

// SendAudio forwards a capture chunk to the agent, or to the transcription
// service when the agent is not open. While asleep the chunk is dropped.
func (c *Coordinator) SendAudio(chunk []byte) error {
	c.mu.Lock()
	ch := c.channels[ServiceAgent]
	if ch == nil || ch.conn.State() != transport.StateConnected {
		if tr := c.channels[ServiceTranscription]; tr != nil && tr.conn.State() == transport.StateConnected {
			ch = tr
		}
	}
	c.mu.Unlock()
	return c.sendAudio(ch, chunk)
}

// SendAudioTo forwards a capture chunk to svc only.
func (c *Coordinator) SendAudioTo(svc Service, chunk []byte) error {
	if !c.options().configured(svc) {
		return &ConfigurationError{Service: svc}
	}
	c.mu.Lock()
	ch := c.channels[svc]
	c.mu.Unlock()
	return c.sendAudio(ch, chunk)
}

func (c *Coordinator) sendAudio(ch *channel, chunk []byte) error {
	var s audio.Sender
	if ch != nil {
		s = ch.conn
	}
	err := c.pipeline.SendOutbound(s, chunk)
	if errors.Is(err, audio.ErrNoSender) {
		return &transport.SendError{State: transport.StateIdle, Err: err}
	}
	return err
}

// InjectUserMessage records text as a user utterance and forwards it to the
// agent when the agent connection is open.
func (c *Coordinator) InjectUserMessage(ctx context.Context, text string) error {
	return c.inject(ctx, protocol.RoleUser, text, protocol.NewInjectUserMessage(text))
}

// InjectAgentMessage records text as an assistant utterance and asks the agent
// to speak it when the agent connection is open.
func (c *Coordinator) InjectAgentMessage(ctx context.Context, text string) error {
	return c.inject(ctx, protocol.RoleAssistant, text, protocol.NewInjectAgentMessage(text))
}

func (c *Coordinator) inject(ctx context.Context, role protocol.Role, text string, msg any) error {
	m := conversation.Message{Role: role, Content: text, Timestamp: time.Now().UTC()}

	c.mu.Lock()
	if role == protocol.RoleUser {
		c.idle.HandleEvent(idle.Event{Kind: idle.UserActivity})
	}
	ch := c.channels[ServiceAgent]
	c.mu.Unlock()

	c.restoreOnce.Do(func() { c.history.Restore(ctx) })
	c.history.Append(ctx, m)

	var err error
	if ch != nil && ch.conn.State() == transport.StateConnected {
		if sendErr := ch.conn.SendJSON(msg); sendErr != nil {
			c.logger.Warn("session: inject failed", "role", role, "err", sendErr)
			err = fmt.Errorf("session: inject %s message: %w", role, sendErr)
		}
	}
	c.cb.utterance(m)()
	return err
}

// UpdateAgentInstructions sends new instructions to the open agent
// connection. It may be called any number of times and does not affect the
// configuration handshake.
func (c *Coordinator) UpdateAgentInstructions(instructions string) error {
	if c.options().Agent == nil {
		return &ConfigurationError{Service: ServiceAgent}
	}
	c.mu.Lock()
	ch := c.channels[ServiceAgent]
	c.mu.Unlock()
	if ch == nil {
		return &transport.SendError{State: transport.StateIdle}
	}
	if err := ch.conn.SendJSON(protocol.NewUpdatePrompt(instructions)); err != nil {
		return fmt.Errorf("session: update instructions: %w", err)
	}
	c.logger.Info("session: agent instructions updated", "bytes", len(instructions))
	return nil
}

// HandlePlaybackState forwards a player state change to OnPlaybackState. Wire
// it as the player's state handler.
func (c *Coordinator) HandlePlaybackState(playing bool) {
	if c.cb.OnPlaybackState != nil {
		c.cb.OnPlaybackState(playing)
	}
}

// ── Queries ────────────────────────────────────────────────────────────────────

// ConversationHistory returns a copy of the conversation so far.
func (c *Coordinator) ConversationHistory() []conversation.Message {
	return c.history.History()
}

// AgentState returns the last reported agent state.
func (c *Coordinator) AgentState() idle.State { return c.idle.State() }

// HandshakeState returns the handshake state of the current agent
// connection, or NotSent when there is none.
func (c *Coordinator) HandshakeState() handshake.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch := c.channels[ServiceAgent]; ch != nil {
		return ch.handshake.State()
	}
	return handshake.NotSent
}

// Blocked reports whether the block gate is set.
func (c *Coordinator) Blocked() bool { return c.pipeline.Blocked() }

// Sleeping reports whether the session is asleep.
func (c *Coordinator) Sleeping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sleeping
}

// Running reports whether Start has been called since the last Stop.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// ConnectionState returns the state of svc's connection, or idle when there
// is none.
func (c *Coordinator) ConnectionState(svc Service) transport.State {
	c.mu.Lock()
	ch := c.channels[svc]
	c.mu.Unlock()
	if ch == nil {
		return transport.StateIdle
	}
	return ch.conn.State()
}

// Stats returns the current counters.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Audio:    c.pipeline.Stats(),
		Messages: c.history.Len(),
		IdleArms: c.idle.Arms(),
	}
}

func finished(s transport.State) bool {
	return s == transport.StateClosed || s == transport.StateError
}
