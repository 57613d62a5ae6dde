// Package observe provides application-wide observability primitives for
// voicelink: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/voicelink/internal/conversation"
	"github.com/MrWong99/voicelink/internal/idle"
	"github.com/MrWong99/voicelink/internal/session"
	"github.com/MrWong99/voicelink/pkg/transport"
)

// meterName is the instrumentation scope name used for all voicelink metrics.
const meterName = "github.com/MrWong99/voicelink"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	meter metric.Meter

	// StartDuration tracks how long opening the services took. Use with
	// attribute: attribute.String("outcome", "ok"|"error")
	StartDuration metric.Float64Histogram

	// Utterances counts conversation messages by role.
	Utterances metric.Int64Counter

	// AgentStates counts agent state transitions by state.
	AgentStates metric.Int64Counter

	// ConnectionEvents counts connection state changes. Use with attributes:
	//   attribute.String("service", ...), attribute.String("state", ...)
	ConnectionEvents metric.Int64Counter

	// Errors counts session errors by service and code.
	Errors metric.Int64Counter

	// IdleTimeouts counts fired idle timeouts.
	IdleTimeouts metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// connection setup.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{meter: m}

	if met.StartDuration, err = m.Float64Histogram("voicelink.session.start.duration",
		metric.WithDescription("Latency of opening the session services."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Utterances, err = m.Int64Counter("voicelink.utterances",
		metric.WithDescription("Total conversation messages by role."),
	); err != nil {
		return nil, err
	}
	if met.AgentStates, err = m.Int64Counter("voicelink.agent.state_changes",
		metric.WithDescription("Total agent state transitions by state."),
	); err != nil {
		return nil, err
	}
	if met.ConnectionEvents, err = m.Int64Counter("voicelink.connection.events",
		metric.WithDescription("Total connection state changes by service and state."),
	); err != nil {
		return nil, err
	}
	if met.Errors, err = m.Int64Counter("voicelink.errors",
		metric.WithDescription("Total session errors by service and code."),
	); err != nil {
		return nil, err
	}
	if met.IdleTimeouts, err = m.Int64Counter("voicelink.idle.timeouts",
		metric.WithDescription("Total idle timeouts fired."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("voicelink.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordStart records the duration of a Start call.
func (m *Metrics) RecordStart(ctx context.Context, seconds float64, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.StartDuration.Record(ctx, seconds, metric.WithAttributes(Attr("outcome", outcome)))
}

// Wrap returns callbacks that call next and then record the matching metric.
func (m *Metrics) Wrap(next session.Callbacks) session.Callbacks {
	ctx := context.Background()
	out := next

	out.OnUtterance = func(msg conversation.Message) {
		if next.OnUtterance != nil {
			next.OnUtterance(msg)
		}
		m.Utterances.Add(ctx, 1, metric.WithAttributes(Attr("role", string(msg.Role))))
	}
	out.OnAgentState = func(s idle.State) {
		if next.OnAgentState != nil {
			next.OnAgentState(s)
		}
		m.AgentStates.Add(ctx, 1, metric.WithAttributes(Attr("state", string(s))))
	}
	out.OnConnectionState = func(svc session.Service, s transport.State) {
		if next.OnConnectionState != nil {
			next.OnConnectionState(svc, s)
		}
		m.ConnectionEvents.Add(ctx, 1, metric.WithAttributes(
			Attr("service", string(svc)),
			Attr("state", string(s)),
		))
	}
	out.OnError = func(e session.Error) {
		if next.OnError != nil {
			next.OnError(e)
		}
		m.Errors.Add(ctx, 1, metric.WithAttributes(
			Attr("service", string(e.Service)),
			Attr("code", e.Code),
		))
	}
	out.OnIdleTimeout = func() {
		if next.OnIdleTimeout != nil {
			next.OnIdleTimeout()
		}
		m.IdleTimeouts.Add(ctx, 1)
	}
	return out
}

// SessionSource is the read side of a coordinator.
type SessionSource interface {
	Stats() session.Stats
	Sleeping() bool
	Blocked() bool
}

var _ SessionSource = (*session.Coordinator)(nil)

// ObserveSession registers asynchronous instruments reading src on every
// collection. Unregister the returned registration when src goes away.
func (m *Metrics) ObserveSession(src SessionSource) (metric.Registration, error) {
	audioFrames, err := m.meter.Int64ObservableCounter("voicelink.audio.frames",
		metric.WithDescription("Audio frames by outcome: sent, queued, discarded, suppressed."),
	)
	if err != nil {
		return nil, err
	}
	messages, err := m.meter.Int64ObservableCounter("voicelink.messages",
		metric.WithDescription("Structured messages received from all services."),
	)
	if err != nil {
		return nil, err
	}
	idleArms, err := m.meter.Int64ObservableCounter("voicelink.idle.arms",
		metric.WithDescription("Times the idle timer was armed."),
	)
	if err != nil {
		return nil, err
	}
	sleeping, err := m.meter.Int64ObservableGauge("voicelink.sleeping",
		metric.WithDescription("1 while the session is asleep."),
	)
	if err != nil {
		return nil, err
	}
	blocked, err := m.meter.Int64ObservableGauge("voicelink.agent.blocked",
		metric.WithDescription("1 while inbound agent audio is blocked."),
	)
	if err != nil {
		return nil, err
	}

	return m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		st := src.Stats()
		o.ObserveInt64(audioFrames, int64(st.Audio.Sent), metric.WithAttributes(Attr("outcome", "sent")))
		o.ObserveInt64(audioFrames, int64(st.Audio.Queued), metric.WithAttributes(Attr("outcome", "queued")))
		o.ObserveInt64(audioFrames, int64(st.Audio.Discarded), metric.WithAttributes(Attr("outcome", "discarded")))
		o.ObserveInt64(audioFrames, int64(st.Audio.Suppressed), metric.WithAttributes(Attr("outcome", "suppressed")))
		o.ObserveInt64(messages, int64(st.Messages))
		o.ObserveInt64(idleArms, int64(st.IdleArms))
		o.ObserveInt64(sleeping, boolInt(src.Sleeping()))
		o.ObserveInt64(blocked, boolInt(src.Blocked()))
		return nil
	}, audioFrames, messages, idleArms, sleeping, blocked)
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
