// Package observe provides application-wide observability primitives for
// voxloop: OpenTelemetry metrics, distributed tracing, and HTTP middleware
// that ties them together.
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

// meterName is the instrumentation scope name used for all voxloop metrics.
const meterName = "github.com/voxloop/voxloop"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// LLMFirstToken tracks time from LLM request to first streamed token.
	LLMFirstToken metric.Float64Histogram

	// LLMDuration tracks full LLM stream duration per utterance.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks per-chunk speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// EndpointConfirm tracks silence duration from last partial to the
	// confirmed end decision.
	EndpointConfirm metric.Float64Histogram

	// --- Counters ---

	// Utterances counts accepted final transcripts. Use with attribute:
	//   attribute.String("agent", ...)
	Utterances metric.Int64Counter

	// BargeIns counts user interruptions that aborted assistant output.
	BargeIns metric.Int64Counter

	// EchoDrops counts final transcripts discarded by the anti-echo gate.
	EchoDrops metric.Int64Counter

	// ProtocolViolations counts internal ordering violations (audio outside
	// a tts window, stale epoch sends).
	ProtocolViolations metric.Int64Counter

	// AudioFrames counts processed inbound PCM frames.
	AudioFrames metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveConnections tracks currently open WebSocket connections.
	ActiveConnections metric.Int64UpDownCounter

	// ActiveSessions tracks sessions known to the registry.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.LLMFirstToken, err = m.Float64Histogram("voxloop.llm.first_token",
		metric.WithDescription("Time from LLM request to first streamed token."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("voxloop.llm.duration",
		metric.WithDescription("Full LLM stream duration per utterance."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("voxloop.tts.duration",
		metric.WithDescription("Per-chunk speech synthesis latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EndpointConfirm, err = m.Float64Histogram("voxloop.endpoint.confirm",
		metric.WithDescription("Silence observed before an utterance end was confirmed."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Utterances, err = m.Int64Counter("voxloop.utterances",
		metric.WithDescription("Accepted final transcripts by agent."),
	); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("voxloop.barge_ins",
		metric.WithDescription("User interruptions that aborted assistant output."),
	); err != nil {
		return nil, err
	}
	if met.EchoDrops, err = m.Int64Counter("voxloop.echo_drops",
		metric.WithDescription("Final transcripts discarded by the anti-echo gate."),
	); err != nil {
		return nil, err
	}
	if met.ProtocolViolations, err = m.Int64Counter("voxloop.protocol_violations",
		metric.WithDescription("Internal ordering violations detected by send guards."),
	); err != nil {
		return nil, err
	}
	if met.AudioFrames, err = m.Int64Counter("voxloop.audio.frames",
		metric.WithDescription("Processed inbound PCM frames."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("voxloop.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("voxloop.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveConnections, err = m.Int64UpDownCounter("voxloop.active_connections",
		metric.WithDescription("Currently open WebSocket connections."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxloop.active_sessions",
		metric.WithDescription("Sessions known to the registry."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxloop.http.request.duration",
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

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordUtterance records one accepted final transcript for an agent.
func (m *Metrics) RecordUtterance(ctx context.Context, agentID string) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("agent", agentID)),
	)
}
