// Package observe provides application-wide observability primitives for
// Lektor: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Lektor metrics.
const meterName = "github.com/mzajc/lektor"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Recognition engine ---

	// EngineRestarts counts transparent engine restarts after benign
	// end-of-run signals.
	EngineRestarts metric.Int64Counter

	// EngineFailures counts fatal engine errors. Use with attribute:
	//   attribute.String("kind", ...)
	EngineFailures metric.Int64Counter

	// --- Annotations ---

	// NotesInserted counts successfully inserted annotations.
	NotesInserted metric.Int64Counter

	// NotesDropped counts annotations dropped at render time because their
	// clamped offset fell behind already-emitted transcript text.
	NotesDropped metric.Int64Counter

	// --- Persistence ---

	// SaveDuration tracks lecture persistence latency.
	SaveDuration metric.Float64Histogram

	// Saves counts persistence attempts. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	Saves metric.Int64Counter

	// --- Synthesis ---

	// SpeakDuration tracks speech synthesis latency.
	SpeakDuration metric.Float64Histogram

	// --- Gauges ---

	// ActiveSessions tracks the number of live lecture sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// persistence and synthesis round trips.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.EngineRestarts, err = m.Int64Counter("lektor.engine.restarts",
		metric.WithDescription("Total transparent recognition engine restarts."),
	); err != nil {
		return nil, err
	}
	if met.EngineFailures, err = m.Int64Counter("lektor.engine.failures",
		metric.WithDescription("Total fatal recognition engine errors by kind."),
	); err != nil {
		return nil, err
	}
	if met.NotesInserted, err = m.Int64Counter("lektor.notes.inserted",
		metric.WithDescription("Total annotations inserted."),
	); err != nil {
		return nil, err
	}
	if met.NotesDropped, err = m.Int64Counter("lektor.notes.dropped",
		metric.WithDescription("Total annotations dropped during merge rendering."),
	); err != nil {
		return nil, err
	}
	if met.Saves, err = m.Int64Counter("lektor.saves",
		metric.WithDescription("Total lecture persistence attempts by status."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.SaveDuration, err = m.Float64Histogram("lektor.save.duration",
		metric.WithDescription("Latency of lecture persistence."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeakDuration, err = m.Float64Histogram("lektor.speak.duration",
		metric.WithDescription("Latency of speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("lektor.active_sessions",
		metric.WithDescription("Number of live lecture sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("lektor.http.request.duration",
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

// RecordEngineRestart records one transparent engine restart.
func (m *Metrics) RecordEngineRestart(ctx context.Context) {
	m.EngineRestarts.Add(ctx, 1)
}

// RecordEngineFailure records one fatal engine error with its kind.
func (m *Metrics) RecordEngineFailure(ctx context.Context, kind string) {
	m.EngineFailures.Add(ctx, 1,
		metric.WithAttributes(Attr("kind", kind)),
	)
}

// RecordNoteInserted records one inserted annotation.
func (m *Metrics) RecordNoteInserted(ctx context.Context) {
	m.NotesInserted.Add(ctx, 1)
}

// RecordNotesDropped records n annotations dropped during rendering.
func (m *Metrics) RecordNotesDropped(ctx context.Context, n int) {
	m.NotesDropped.Add(ctx, int64(n))
}

// RecordSave records one persistence attempt with its latency and outcome.
func (m *Metrics) RecordSave(ctx context.Context, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Saves.Add(ctx, 1, metric.WithAttributes(Attr("status", status)))
	m.SaveDuration.Record(ctx, d.Seconds())
}

// RecordSpeak records one synthesis round trip.
func (m *Metrics) RecordSpeak(ctx context.Context, d time.Duration) {
	m.SpeakDuration.Record(ctx, d.Seconds())
}
