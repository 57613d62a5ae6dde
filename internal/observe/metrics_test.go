package observe

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/voicelink/internal/conversation"
	"github.com/MrWong99/voicelink/internal/session"
	"github.com/MrWong99/voicelink/pkg/audio"
	"github.com/MrWong99/voicelink/pkg/protocol"
	"github.com/MrWong99/voicelink/pkg/transport"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumByAttr returns the int64 sum data point whose attribute key equals value,
// or the first point when key is empty.
func sumByAttr(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	var points []metricdata.DataPoint[int64]
	switch d := met.Data.(type) {
	case metricdata.Sum[int64]:
		points = d.DataPoints
	case metricdata.Gauge[int64]:
		points = d.DataPoints
	default:
		t.Fatalf("metric %q has unexpected type %T", name, met.Data)
	}
	for _, dp := range points {
		if key == "" {
			return dp.Value
		}
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no point with %s=%s", name, key, value)
	return 0
}

func TestWrap_RecordsAndChains(t *testing.T) {
	m, reader := newTestMetrics(t)

	var chained int
	cb := m.Wrap(session.Callbacks{
		OnUtterance: func(conversation.Message) { chained++ },
		OnError:     func(session.Error) { chained++ },
	})

	cb.OnUtterance(conversation.Message{Role: protocol.RoleUser, Content: "hi"})
	cb.OnUtterance(conversation.Message{Role: protocol.RoleAssistant, Content: "hello"})
	cb.OnUtterance(conversation.Message{Role: protocol.RoleUser, Content: "bye"})
	cb.OnAgentState("speaking")
	cb.OnConnectionState(session.ServiceAgent, transport.StateConnected)
	cb.OnError(session.Error{Service: session.ServiceTranscription, Code: session.CodeServerError})
	cb.OnIdleTimeout()

	if chained != 4 {
		t.Errorf("chained callbacks = %d, want 4", chained)
	}

	rm := collect(t, reader)
	if got := sumByAttr(t, rm, "voicelink.utterances", "role", "user"); got != 2 {
		t.Errorf("user utterances = %d, want 2", got)
	}
	if got := sumByAttr(t, rm, "voicelink.agent.state_changes", "state", "speaking"); got != 1 {
		t.Errorf("speaking transitions = %d", got)
	}
	if got := sumByAttr(t, rm, "voicelink.connection.events", "state", "connected"); got != 1 {
		t.Errorf("connected events = %d", got)
	}
	if got := sumByAttr(t, rm, "voicelink.errors", "code", "server_error"); got != 1 {
		t.Errorf("errors = %d", got)
	}
	if got := sumByAttr(t, rm, "voicelink.idle.timeouts", "", ""); got != 1 {
		t.Errorf("idle timeouts = %d", got)
	}
}

func TestRecordStart(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordStart(context.Background(), 0.2, nil)
	m.RecordStart(context.Background(), 0.3, errors.New("dial failed"))

	met := findMetric(collect(t, reader), "voicelink.session.start.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) != 2 {
		t.Errorf("data points = %d, want one per outcome", len(hist.DataPoints))
	}
}

type fakeSource struct {
	stats    session.Stats
	sleeping bool
}

func (f *fakeSource) Stats() session.Stats { return f.stats }
func (f *fakeSource) Sleeping() bool       { return f.sleeping }
func (f *fakeSource) Blocked() bool        { return false }

func TestObserveSession(t *testing.T) {
	m, reader := newTestMetrics(t)
	src := &fakeSource{
		stats: session.Stats{
			Audio:    audio.Stats{Sent: 12, Queued: 7, Discarded: 3},
			Messages: 9,
			IdleArms: 2,
		},
		sleeping: true,
	}

	reg, err := m.ObserveSession(src)
	if err != nil {
		t.Fatalf("ObserveSession: %v", err)
	}
	defer reg.Unregister()

	rm := collect(t, reader)
	if got := sumByAttr(t, rm, "voicelink.audio.frames", "outcome", "sent"); got != 12 {
		t.Errorf("sent = %d", got)
	}
	if got := sumByAttr(t, rm, "voicelink.audio.frames", "outcome", "discarded"); got != 3 {
		t.Errorf("discarded = %d", got)
	}
	if got := sumByAttr(t, rm, "voicelink.messages", "", ""); got != 9 {
		t.Errorf("messages = %d", got)
	}
	if got := sumByAttr(t, rm, "voicelink.sleeping", "", ""); got != 1 {
		t.Errorf("sleeping = %d", got)
	}
	if got := sumByAttr(t, rm, "voicelink.agent.blocked", "", ""); got != 0 {
		t.Errorf("blocked = %d", got)
	}

	src.stats.Messages = 11
	if got := sumByAttr(t, collect(t, reader), "voicelink.messages", "", ""); got != 11 {
		t.Errorf("messages after update = %d", got)
	}
}
