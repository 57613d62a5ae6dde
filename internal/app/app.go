// Package app wires the voicelink subsystems into a running session.
//
// The App struct owns the full lifecycle: New builds storage, the event bus,
// playback and the session coordinator from the config, Run opens the
// services and serves health and metrics until the session ends, and
// Shutdown tears everything down in reverse order.
//
// For testing, inject doubles via functional options (WithStorage,
// WithDialer, WithPublisher, ...). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voicelink/internal/bus"
	"github.com/MrWong99/voicelink/internal/config"
	"github.com/MrWong99/voicelink/internal/health"
	"github.com/MrWong99/voicelink/internal/observe"
	"github.com/MrWong99/voicelink/internal/session"
	"github.com/MrWong99/voicelink/pkg/audio"
	"github.com/MrWong99/voicelink/pkg/audio/player"
	"github.com/MrWong99/voicelink/pkg/audio/wavio"
	"github.com/MrWong99/voicelink/pkg/storage"
	"github.com/MrWong99/voicelink/pkg/transport"
)

// shutdownGrace bounds how long the HTTP listener may take to drain.
const shutdownGrace = 5 * time.Second

// Info describes the running session.
type Info struct {
	SessionID string            `json:"session_id"`
	StartedAt time.Time         `json:"started_at"`
	Services  []session.Service `json:"services"`
}

// App owns all subsystem lifetimes.
type App struct {
	id  string
	log *slog.Logger

	cfg      atomic.Pointer[config.Config]
	levelVar *slog.LevelVar

	store      storage.Storage
	dialer     session.Dialer
	publisher  bus.Publisher
	busClient  *bus.Client
	bridge     *bus.Bridge
	metrics    *observe.Metrics
	metricsReg metric.Registration
	callbacks  session.Callbacks
	player     *player.FramePlayer
	coord      *session.Coordinator
	recon      *session.Reconnector

	mu        sync.Mutex
	startedAt time.Time
	endRun    context.CancelFunc

	// closers are called in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStorage injects a history backend instead of opening one from config.
func WithStorage(s storage.Storage) Option {
	return func(a *App) { a.store = s }
}

// WithDialer replaces the websocket dialer.
func WithDialer(d session.Dialer) Option {
	return func(a *App) { a.dialer = d }
}

// WithPublisher publishes session events through p instead of connecting to
// the configured NATS servers.
func WithPublisher(p bus.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// WithMetrics records into m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithCallbacks adds caller notifications. They run before metrics and bus
// publishing.
func WithCallbacks(cb session.Callbacks) Option {
	return func(a *App) { a.callbacks = cb }
}

// WithLevelVar lets configuration reloads change the log level.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = v }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// New creates an App by wiring all subsystems together. Use Option functions
// to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{log: slog.Default()}
	a.cfg.Store(cfg)
	for _, o := range opts {
		o(a)
	}

	a.id = cfg.Session.ID
	if a.id == "" {
		a.id = uuid.NewString()
	}
	a.log = a.log.With("session_id", a.id)

	if err := a.initStorage(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("app: init storage: %w", err), a.closeAll())
	}
	if err := a.initBus(); err != nil {
		return nil, errors.Join(fmt.Errorf("app: init bus: %w", err), a.closeAll())
	}
	if err := a.initPlayback(); err != nil {
		return nil, errors.Join(fmt.Errorf("app: init playback: %w", err), a.closeAll())
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.dialer == nil {
		a.dialer = session.WebSocketDialer()
	}

	a.initCoordinator()

	reg, err := a.metrics.ObserveSession(a.coord)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("app: observe session: %w", err), a.closeAll())
	}
	a.metricsReg = reg

	return a, nil
}

func (a *App) initStorage(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	s, closer, err := OpenStorage(ctx, a.config().Storage, a.log)
	if err != nil {
		return err
	}
	a.store = s
	a.closers = append(a.closers, closer)
	return nil
}

func (a *App) initBus() error {
	cfg := a.config().Bus
	if a.publisher == nil && len(cfg.Servers) > 0 {
		client, err := bus.Connect(bus.Config{
			Servers:        cfg.Servers,
			Name:           cfg.Name,
			Username:       cfg.Username,
			Password:       cfg.Password,
			Token:          cfg.Token,
			ConnectTimeout: cfg.ConnectTimeout,
		}, a.log)
		if err != nil {
			return err
		}
		a.busClient = client
		a.publisher = client
		a.closers = append(a.closers, func() error { client.Close(); return nil })
	}
	if a.publisher != nil {
		a.bridge = bus.NewBridge(a.publisher, cfg.SubjectPrefix, a.id, a.log)
	}
	return nil
}

func (a *App) initPlayback() error {
	cfg := a.config()
	if cfg.Audio.OutputFile == "" {
		return nil
	}
	out := cfg.Services.Agent.Settings.Audio.Output
	format := audio.Format{SampleRate: out.SampleRate, Channels: 1}
	sink, err := wavio.Create(cfg.Audio.OutputFile, format)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, sink.Close)

	a.player = player.New(sink.Write,
		player.WithPacing(format),
		player.WithLogger(a.log),
		player.WithStateHandler(func(playing bool) {
			if c := a.coordinator(); c != nil {
				c.HandlePlaybackState(playing)
			}
		}),
	)
	// Registered after the sink so the player drains before the file closes.
	a.closers = append(a.closers, a.player.Close)
	return nil
}

func (a *App) initCoordinator() {
	cfg := a.config()

	cb := a.callbacks
	next := cb.OnDisconnect
	cb.OnDisconnect = func(svc session.Service, err error) {
		if next != nil {
			next(svc, err)
		}
		a.onDisconnect(svc, err)
	}
	nextIdle := cb.OnIdleTimeout
	cb.OnIdleTimeout = func() {
		if nextIdle != nil {
			nextIdle()
		}
		a.onIdleTimeout()
	}
	cb = a.metrics.Wrap(cb)
	if a.bridge != nil {
		cb = a.bridge.Wrap(cb)
	}

	opts := []session.Option{
		session.WithCallbacks(cb),
		session.WithHistoryKey(cfg.Session.HistoryKey),
		session.WithIdleTimeout(cfg.Session.IdleTimeout),
		session.WithKeepAliveInterval(cfg.Session.KeepAliveInterval),
		session.WithSuspendPlaybackOnSleep(cfg.Session.SuspendPlaybackOnSleep),
		session.WithRequireSettingsAck(cfg.Session.RequireSettingsAck),
		session.WithLogger(a.log),
	}
	if a.store != nil {
		opts = append(opts, session.WithStorage(a.store))
	}
	if a.player != nil {
		opts = append(opts, session.WithPlayer(a.player))
	}

	coord := session.New(func() session.Options { return SessionOptions(a.config()) }, a.dialer, opts...)
	a.mu.Lock()
	a.coord = coord
	a.mu.Unlock()

	if cfg.Reconnect.Enabled {
		a.recon = session.NewReconnector(session.ReconnectorConfig{
			Starter:    coord,
			MaxRetries: cfg.Reconnect.MaxRetries,
			Backoff:    cfg.Reconnect.Backoff,
			MaxBackoff: cfg.Reconnect.MaxBackoff,
			OnGiveUp: func(svc session.Service, err error) {
				a.log.Error("giving up on service", "service", svc, "err", err)
			},
		})
	}
}

func (a *App) config() *config.Config { return a.cfg.Load() }

func (a *App) coordinator() *session.Coordinator {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.coord
}

// Coordinator returns the session coordinator.
func (a *App) Coordinator() *session.Coordinator { return a.coordinator() }

// Store returns the history backend, or nil when persistence is disabled.
func (a *App) Store() storage.Storage { return a.store }

// Info returns the session identity.
func (a *App) Info() Info {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Info{SessionID: a.id, StartedAt: a.startedAt, Services: a.enabledServices()}
}

func (a *App) enabledServices() []session.Service {
	cfg := a.config()
	var out []session.Service
	if cfg.Services.Agent.Enabled {
		out = append(out, session.ServiceAgent)
	}
	if cfg.Services.Transcription.Enabled {
		out = append(out, session.ServiceTranscription)
	}
	return out
}

// Run opens the configured services, streams the capture file if one is
// configured, and serves health and metrics. It returns when ctx is
// cancelled or the idle timeout ends the session.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.mu.Lock()
	a.endRun = cancel
	a.startedAt = time.Now()
	a.mu.Unlock()

	g, gctx := errgroup.WithContext(runCtx)

	if addr := a.config().Server.ListenAddr; addr != "" {
		srv := &http.Server{Addr: addr, Handler: a.Handler(), ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error { return a.serve(srv) })
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}

	if a.recon != nil {
		a.recon.Monitor(gctx)
	}

	if err := a.start(gctx); err != nil {
		cancel()
		_ = g.Wait()
		return err
	}

	if path := a.config().Audio.InputFile; path != "" {
		g.Go(func() error { return a.streamCapture(gctx, path) })
	}

	g.Go(func() error {
		<-gctx.Done()
		a.coord.Stop()
		return nil
	})

	a.log.Info("session running", "services", a.enabledServices())
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// start opens every enabled service. With reconnection enabled, services
// that fail to open are handed to the reconnector instead of failing Run.
func (a *App) start(ctx context.Context) error {
	services := a.enabledServices()
	names := make([]string, len(services))
	for i, svc := range services {
		names[i] = string(svc)
	}
	ctx, span := observe.StartSessionSpan(ctx, a.id, "start", names...)
	defer span.End()

	begin := time.Now()
	err := a.coord.Start(ctx)
	a.metrics.RecordStart(ctx, time.Since(begin).Seconds(), err)
	if err == nil {
		return nil
	}
	if errors.Is(err, session.ErrStopped) || ctx.Err() != nil {
		return nil
	}
	observe.Fail(span, err)
	if a.recon == nil {
		return fmt.Errorf("app: start session: %w", err)
	}
	observe.LoggerFrom(ctx, a.log).Warn("initial connect failed, retrying", "err", err)
	for _, svc := range services {
		if a.coord.ConnectionState(svc) != transport.StateConnected {
			a.recon.NotifyDisconnect(svc)
		}
	}
	return nil
}

func (a *App) serve(srv *http.Server) error {
	var err error
	if tls := a.config().Server.TLS; tls != nil {
		err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
	} else {
		err = srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("app: serve %s: %w", srv.Addr, err)
}

// Handler returns the health and metrics routes.
func (a *App) Handler() http.Handler {
	var checkers []health.Checker
	for _, svc := range a.enabledServices() {
		checkers = append(checkers, health.SessionCheck(a.coord, svc))
	}
	if a.store != nil {
		checkers = append(checkers, health.StorageCheck(a.store))
	}
	if a.busClient != nil {
		checkers = append(checkers, health.FuncCheck("bus", a.busClient.Healthy))
	}

	mux := http.NewServeMux()
	health.New(checkers, health.WithDetails(func() any { return a.Info() })).Register(mux)
	if a.config().Telemetry.Metrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}
	return observe.Middleware(a.metrics, a.id)(mux)
}

// streamCapture sends the WAV file at path as capture audio in real time.
// Chunks that cannot be sent, for example while reconnecting, are dropped.
func (a *App) streamCapture(ctx context.Context, path string) error {
	cfg := a.config()
	in := cfg.Services.Agent.Settings.Audio.Input
	if !cfg.Services.Agent.Enabled {
		in.SampleRate = cfg.Services.Transcription.Options.SampleRate
	}
	clip, err := wavio.ReadFile(path, audio.Format{SampleRate: in.SampleRate, Channels: 1})
	if err != nil {
		return fmt.Errorf("app: read capture file: %w", err)
	}
	a.log.Info("streaming capture file", "path", path, "duration", clip.Duration())

	var dropped int
	err = clip.Stream(ctx, cfg.Audio.Chunk, func(chunk []byte) error {
		if err := a.coord.SendAudio(chunk); err != nil {
			var se *transport.SendError
			if !errors.As(err, &se) {
				return err
			}
			dropped++
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("app: stream capture: %w", err)
	}
	a.log.Info("capture file finished", "dropped_chunks", dropped)
	return nil
}

func (a *App) onDisconnect(svc session.Service, err error) {
	a.log.Warn("service disconnected", "service", svc, "err", err)
	if a.recon != nil {
		a.recon.NotifyDisconnect(svc)
	}
}

func (a *App) onIdleTimeout() {
	a.log.Info("idle timeout reached, ending session")
	a.mu.Lock()
	end := a.endRun
	a.mu.Unlock()
	if end != nil {
		end()
	}
}

// ApplyConfig makes cfg current. Service changes take effect on the next
// connection; the log level changes immediately when a level var was given.
// Sections that need a restart are logged and otherwise ignored.
func (a *App) ApplyConfig(cfg *config.Config) config.ConfigDiff {
	old := a.cfg.Swap(cfg)
	d := config.Diff(old, cfg)

	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(ParseLevel(d.NewLogLevel))
		a.log.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.AgentChanged || d.TranscriptionChanged {
		a.log.Info("service configuration changed, applies to the next connection",
			"agent", d.AgentChanged, "transcription", d.TranscriptionChanged)
	}
	restart := slices.Clone(d.RestartRequired)
	if d.SessionChanged {
		restart = append(restart, "session")
	}
	if len(restart) > 0 {
		a.log.Warn("configuration changes require a restart", "sections", restart)
	}
	return d
}

// ParseLevel maps a config log level to slog. Unknown levels map to info.
func ParseLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Shutdown stops the session and releases every subsystem. It is safe to
// call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		if a.recon != nil {
			a.recon.Stop()
		}
		if c := a.coordinator(); c != nil {
			c.Stop()
		}
		if a.metricsReg != nil {
			if err := a.metricsReg.Unregister(); err != nil {
				a.log.Warn("unregister session metrics", "err", err)
			}
		}

		done := make(chan error, 1)
		go func() { done <- a.closeAll() }()
		select {
		case err := <-done:
			shutdownErr = err
		case <-ctx.Done():
			a.log.Warn("shutdown deadline exceeded")
			shutdownErr = ctx.Err()
		}
		a.log.Info("shutdown complete")
	})
	return shutdownErr
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
