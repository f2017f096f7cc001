package observe

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/hearken"

// StartSpan starts a span on the global tracer provider. End it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// TraceID returns the hex trace ID carried by ctx, or "".
func TraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Episode is the span and logger covering one listening episode.
type Episode struct {
	span trace.Span

	// Log carries episode_id, mode and, when tracing is active, trace_id.
	Log *slog.Logger
}

// StartEpisode opens the "listen.<mode>" span for episode id.
func StartEpisode(ctx context.Context, mode, id string) (context.Context, *Episode) {
	ctx, span := StartSpan(ctx, "listen."+mode, trace.WithAttributes(
		attribute.String("episode_id", id),
		attribute.String("mode", mode),
	))
	log := slog.Default().With("episode_id", id, "mode", mode)
	if tid := TraceID(ctx); tid != "" {
		log = log.With("trace_id", tid)
	}
	return ctx, &Episode{span: span, Log: log}
}

// End closes the span with the episode outcome. Cancellation is not an error.
func (e *Episode) End(outcome string, err error) {
	e.span.SetAttributes(attribute.String("outcome", outcome))
	if err != nil && !errors.Is(err, context.Canceled) {
		e.span.RecordError(err)
		e.span.SetStatus(codes.Error, err.Error())
	}
	e.span.End()
}
