// Package observe provides application-wide observability primitives for
// chaffee-ingest: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
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
)

// meterName is the instrumentation scope name used for all chaffee-ingest metrics.
const meterName = "github.com/chaffee-dev/chaffee-ingest"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// AcquireDuration tracks audio acquisition latency.
	AcquireDuration metric.Float64Histogram

	// ASRDuration tracks transcription latency.
	ASRDuration metric.Float64Histogram

	// AttributionDuration tracks speaker-attribution latency.
	AttributionDuration metric.Float64Histogram

	// EmbedDuration tracks the embed stage's latency per batch.
	EmbedDuration metric.Float64Histogram

	// CommitDuration tracks the store writer's commit latency.
	CommitDuration metric.Float64Histogram

	// --- Counters ---

	// TasksStarted counts tasks admitted past the prefilter.
	TasksStarted metric.Int64Counter

	// TasksCompleted counts tasks reaching a terminal state. Use with
	// attribute.String("outcome", ...) ("persisted", "skipped", "failed",
	// "cancelled").
	TasksCompleted metric.Int64Counter

	// SegmentsPersisted counts OptimizedSegment rows committed to the store.
	SegmentsPersisted metric.Int64Counter

	// ASRDegradations counts Model Pool degradation-ladder steps triggered
	// by an OOM condition. Use with attribute.String("video_id", ...).
	ASRDegradations metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// QueueDepth tracks the current depth of a pipeline queue. Use with
	// attribute.String("queue", ...) ("prefilter", "audio", "asr", "embed",
	// "write").
	QueueDepth metric.Int64Gauge

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for per-video pipeline stage latencies, which run from sub-second (a
// short embed batch) to several minutes (transcribing a long episode).
var latencyBuckets = []float64{
	0.1, 0.5, 1, 5, 15, 30, 60, 300, 900, 3600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.AcquireDuration, err = m.Float64Histogram("chaffee_ingest.acquire.duration",
		metric.WithDescription("Latency of audio acquisition per video."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ASRDuration, err = m.Float64Histogram("chaffee_ingest.asr.duration",
		metric.WithDescription("Latency of transcription per video."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AttributionDuration, err = m.Float64Histogram("chaffee_ingest.attribution.duration",
		metric.WithDescription("Latency of speaker attribution per video."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmbedDuration, err = m.Float64Histogram("chaffee_ingest.embed.duration",
		metric.WithDescription("Latency of embedding computation per batch."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CommitDuration, err = m.Float64Histogram("chaffee_ingest.commit.duration",
		metric.WithDescription("Latency of the store writer's commit per video."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.TasksStarted, err = m.Int64Counter("chaffee_ingest.tasks.started",
		metric.WithDescription("Total tasks admitted past the prefilter."),
	); err != nil {
		return nil, err
	}
	if met.TasksCompleted, err = m.Int64Counter("chaffee_ingest.tasks.completed",
		metric.WithDescription("Total tasks reaching a terminal state, by outcome."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsPersisted, err = m.Int64Counter("chaffee_ingest.segments.persisted",
		metric.WithDescription("Total OptimizedSegment rows committed to the store."),
	); err != nil {
		return nil, err
	}
	if met.ASRDegradations, err = m.Int64Counter("chaffee_ingest.asr.degradations",
		metric.WithDescription("Total Model Pool degradation-ladder steps triggered by OOM."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("chaffee_ingest.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.QueueDepth, err = m.Int64Gauge("chaffee_ingest.queue.depth",
		metric.WithDescription("Current depth of a pipeline queue."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("chaffee_ingest.http.request.duration",
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

// RecordTaskCompleted is a convenience method that records a task's terminal
// outcome.
func (m *Metrics) RecordTaskCompleted(ctx context.Context, outcome string) {
	m.TasksCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordASRDegradation is a convenience method that records a degradation-ladder step.
func (m *Metrics) RecordASRDegradation(ctx context.Context, videoID string) {
	m.ASRDegradations.Add(ctx, 1, metric.WithAttributes(attribute.String("video_id", videoID)))
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// SetQueueDepth reports the current depth of a named pipeline queue.
func (m *Metrics) SetQueueDepth(ctx context.Context, queue string, depth int) {
	m.QueueDepth.Record(ctx, int64(depth), metric.WithAttributes(attribute.String("queue", queue)))
}
