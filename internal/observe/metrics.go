// Package observe provides observability primitives for hearken:
// OpenTelemetry metrics, tracing, trace-aware logging and HTTP middleware.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported for
// scraping on /metrics through the Prometheus bridge set up by
// [InitProvider]. A package-level [DefaultMetrics] instance backs production
// code; tests should use [NewMetrics] with their own [metric.MeterProvider]
// to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all hearken metrics.
const meterName = "github.com/MrWong99/hearken"

// Metrics holds all OpenTelemetry instruments for the application. All fields
// are safe for concurrent use.
type Metrics struct {
	// Episodes counts finished listening episodes. Attributes: mode, outcome.
	Episodes metric.Int64Counter

	// EpisodeDuration tracks the session clock at episode end. Attribute: mode.
	EpisodeDuration metric.Float64Histogram

	// ActiveEpisodes is 1 while an episode runs and 0 otherwise.
	ActiveEpisodes metric.Int64UpDownCounter

	// ChunksProcessed counts chunks fed to a recognizer. Attribute: mode.
	ChunksProcessed metric.Int64Counter

	// ChunksDropped counts chunks discarded because the episode queue was
	// full. Attribute: mode.
	ChunksDropped metric.Int64Counter

	// RecognizerMalformed counts unparseable recognizer payloads. Attribute:
	// kind.
	RecognizerMalformed metric.Int64Counter

	// RecognizerLatency tracks the time spent in one Feed call.
	RecognizerLatency metric.Float64Histogram

	// WakeDetections counts wake phrase matches. Attribute: rule.
	WakeDetections metric.Int64Counter

	// LLMDuration tracks chat completion latency. Attributes: provider,
	// status.
	LLMDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds, sized for per-chunk
// recognition and chat round trips.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// episodeBuckets cover wake-spotting episodes that may run for minutes.
var episodeBuckets = []float64{
	0.5, 1, 2, 5, 10, 30, 60, 300, 900,
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Episodes, err = m.Int64Counter("hearken.episodes",
		metric.WithDescription("Listening episodes by mode and outcome."),
	); err != nil {
		return nil, err
	}
	if met.EpisodeDuration, err = m.Float64Histogram("hearken.episode.duration",
		metric.WithDescription("Session clock at the end of a listening episode."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(episodeBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveEpisodes, err = m.Int64UpDownCounter("hearken.active_episodes",
		metric.WithDescription("Number of running listening episodes."),
	); err != nil {
		return nil, err
	}
	if met.ChunksProcessed, err = m.Int64Counter("hearken.chunks.processed",
		metric.WithDescription("Audio chunks fed to a recognizer."),
	); err != nil {
		return nil, err
	}
	if met.ChunksDropped, err = m.Int64Counter("hearken.chunks.dropped",
		metric.WithDescription("Audio chunks dropped because the episode queue was full."),
	); err != nil {
		return nil, err
	}
	if met.RecognizerMalformed, err = m.Int64Counter("hearken.recognizer.malformed",
		metric.WithDescription("Recognizer payloads that could not be parsed."),
	); err != nil {
		return nil, err
	}
	if met.RecognizerLatency, err = m.Float64Histogram("hearken.recognizer.latency",
		metric.WithDescription("Time spent feeding one chunk to the recognizer."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.WakeDetections, err = m.Int64Counter("hearken.wake.detections",
		metric.WithDescription("Wake phrase detections by matching rule."),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("hearken.llm.latency",
		metric.WithDescription("Latency of chat completions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("hearken.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call from [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
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

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// EpisodeStarted bumps the active episode gauge.
func (m *Metrics) EpisodeStarted(ctx context.Context, mode string) {
	m.ActiveEpisodes.Add(ctx, 1, metric.WithAttributes(Attr("mode", mode)))
}

// RecordEpisode records the end of an episode and releases the active gauge.
func (m *Metrics) RecordEpisode(ctx context.Context, mode, outcome string, elapsed time.Duration) {
	m.ActiveEpisodes.Add(ctx, -1, metric.WithAttributes(Attr("mode", mode)))
	m.Episodes.Add(ctx, 1, metric.WithAttributes(
		Attr("mode", mode),
		Attr("outcome", outcome),
	))
	m.EpisodeDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(Attr("mode", mode)))
}

// RecordChunk records one chunk fed to the recognizer and how long it took.
func (m *Metrics) RecordChunk(ctx context.Context, mode string, latency time.Duration) {
	m.ChunksProcessed.Add(ctx, 1, metric.WithAttributes(Attr("mode", mode)))
	m.RecognizerLatency.Record(ctx, latency.Seconds())
}

// RecordDrop records a chunk discarded by a full queue.
func (m *Metrics) RecordDrop(ctx context.Context, mode string) {
	m.ChunksDropped.Add(ctx, 1, metric.WithAttributes(Attr("mode", mode)))
}

// RecordMalformed records an unparseable recognizer payload of the given kind.
func (m *Metrics) RecordMalformed(ctx context.Context, kind string) {
	m.RecognizerMalformed.Add(ctx, 1, metric.WithAttributes(Attr("kind", kind)))
}

// RecordWake records a wake phrase detection.
func (m *Metrics) RecordWake(ctx context.Context, rule string) {
	m.WakeDetections.Add(ctx, 1, metric.WithAttributes(Attr("rule", rule)))
}

// RecordLLM records one chat completion.
func (m *Metrics) RecordLLM(ctx context.Context, provider, status string, d time.Duration) {
	m.LLMDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		Attr("provider", provider),
		Attr("status", status),
	))
}
