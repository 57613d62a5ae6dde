package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/voicelink"

// Span attribute keys shared by every voicelink span.
const (
	// SessionIDKey tags spans served on behalf of a session.
	SessionIDKey = attribute.Key("voicelink.session.id")

	// ServicesKey lists the services a session operation touched.
	ServicesKey = attribute.Key("voicelink.services")
)

// StartSpan starts a span on the voicelink tracer of the global provider.
// The caller must call span.End().
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// StartSessionSpan starts the span "session.<op>" tagged with the session
// id and, when given, the services involved.
func StartSessionSpan(ctx context.Context, sessionID, op string, services ...string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{SessionIDKey.String(sessionID)}
	if len(services) > 0 {
		attrs = append(attrs, ServicesKey.StringSlice(services))
	}
	return StartSpan(ctx, "session."+op, trace.WithAttributes(attrs...))
}

// Fail records err on span and marks it failed. A nil err does nothing.
func Fail(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// CorrelationID returns the trace ID of the span in ctx, or "" without one.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// LoggerFrom returns l with trace_id and span_id of the span in ctx. A nil l
// means slog.Default().
func LoggerFrom(ctx context.Context, l *slog.Logger) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return l
	}
	return l.With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
