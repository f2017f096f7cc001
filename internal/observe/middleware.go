package observe

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

type codeWriter struct {
	http.ResponseWriter
	code int
}

func (w *codeWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// HTTP instruments the status server. Every request runs in a server span
// that continues an incoming traceparent, answers with X-Trace-ID and is
// timed. Probe and scrape requests log at debug level; anything else at info.
func HTTP(m *Metrics, next http.Handler) http.Handler {
	var tc propagation.TraceContext
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := tc.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := StartSpan(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(semconv.HTTPRequestMethodKey.String(r.Method), semconv.URLPath(r.URL.Path)),
		)
		defer span.End()

		tid := TraceID(ctx)
		if tid != "" {
			w.Header().Set("X-Trace-ID", tid)
		}
		cw := &codeWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(cw, r.WithContext(ctx))

		took := time.Since(start)
		span.SetAttributes(semconv.HTTPResponseStatusCode(cw.code))
		m.HTTPRequestDuration.Record(ctx, took.Seconds(), metric.WithAttributes(
			Attr("method", r.Method),
			Attr("path", r.URL.Path),
		))

		level := slog.LevelInfo
		switch r.URL.Path {
		case "/metrics", "/healthz", "/readyz":
			level = slog.LevelDebug
		}
		slog.Log(ctx, level, "http request", "method", r.Method, "path", r.URL.Path, "status", cw.code, "took", took, "trace_id", tid)
	})
}
