// Package observe provides application-wide observability primitives for
// overhear: OpenTelemetry metrics with a Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API; [InitProvider]
// wires a Prometheus exporter so they are scraped via the standard /metrics
// endpoint. A package-level default [Metrics] instance ([DefaultMetrics]) is
// provided for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all overhear metrics.
const meterName = "github.com/cadewatson/overhear"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TurnDuration tracks end-to-end turn latency: dispatch to final answer
	// snapshot.
	TurnDuration metric.Float64Histogram

	// UtteranceDuration tracks the audio length of finalized utterances.
	UtteranceDuration metric.Float64Histogram

	// --- Counters ---

	// Utterances counts finalized utterances. Use with attribute:
	//   attribute.String("mode", "automatic"|"manual")
	Utterances metric.Int64Counter

	// DispatchDecisions counts classifier outcomes. Use with attribute:
	//   attribute.String("decision", "accepted"|"discarded"|"duplicate")
	DispatchDecisions metric.Int64Counter

	// ProviderRequests counts backend turns. Use with attributes:
	//   attribute.String("backend", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts classified backend failures. Use with attributes:
	//   attribute.String("backend", ...), attribute.String("class", ...)
	ProviderErrors metric.Int64Counter

	// RateLimitWaits counts recovery countdowns started.
	RateLimitWaits metric.Int64Counter

	// FramesDropped counts capture bytes discarded by backlog trimming.
	FramesDropped metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live sessions (0 or 1).
	ActiveSessions metric.Int64UpDownCounter

	// CaptureRunning tracks whether the audio subprocess is alive (0 or 1).
	CaptureRunning metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for live-answer latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TurnDuration, err = m.Float64Histogram("overhear.turn.duration",
		metric.WithDescription("End-to-end turn latency from dispatch to final answer."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.UtteranceDuration, err = m.Float64Histogram("overhear.utterance.duration",
		metric.WithDescription("Audio length of finalized utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Utterances, err = m.Int64Counter("overhear.utterances",
		metric.WithDescription("Total finalized utterances by mode."),
	); err != nil {
		return nil, err
	}
	if met.DispatchDecisions, err = m.Int64Counter("overhear.dispatch.decisions",
		metric.WithDescription("Total dispatcher classifier outcomes by decision."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("overhear.provider.requests",
		metric.WithDescription("Total backend turns by backend and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("overhear.provider.errors",
		metric.WithDescription("Total classified backend failures by backend and class."),
	); err != nil {
		return nil, err
	}
	if met.RateLimitWaits, err = m.Int64Counter("overhear.ratelimit.waits",
		metric.WithDescription("Total recovery countdowns started."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("overhear.frames.dropped_bytes",
		metric.WithDescription("Total capture bytes discarded by backlog trimming."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("overhear.active_sessions",
		metric.WithDescription("Number of live sessions."),
	); err != nil {
		return nil, err
	}
	if met.CaptureRunning, err = m.Int64UpDownCounter("overhear.capture.running",
		metric.WithDescription("Whether the audio capture subprocess is alive."),
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
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

// RecordProviderRequest records one backend turn with its outcome status.
func (m *Metrics) RecordProviderRequest(ctx context.Context, backend, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records one classified backend failure.
func (m *Metrics) RecordProviderError(ctx context.Context, backend, class string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("class", class),
		),
	)
}

// RecordUtterance records one finalized utterance and its audio length.
func (m *Metrics) RecordUtterance(ctx context.Context, mode string, seconds float64) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("mode", mode)),
	)
	m.UtteranceDuration.Record(ctx, seconds)
}

// RecordDispatchDecision records one classifier outcome.
func (m *Metrics) RecordDispatchDecision(ctx context.Context, decision string) {
	m.DispatchDecisions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("decision", decision)),
	)
}
