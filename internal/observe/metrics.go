// Package observe provides application-wide observability primitives for
// voxbars: OpenTelemetry metrics, tracing, structured logging, and HTTP
// middleware that ties them together.
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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxbars metrics.
const meterName = "github.com/MrWong99/voxbars"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Sink ---

	// BuffersReceived counts PCM deliveries taken from a sample sink.
	BuffersReceived metric.Int64Counter

	// BuffersDropped counts deliveries replaced before the consumer read
	// them.
	BuffersDropped metric.Int64Counter

	// --- Analysis ---

	// ProcessingDuration tracks per-buffer analysis time. Use with attribute:
	//   attribute.String("mode", ...)
	ProcessingDuration metric.Float64Histogram

	// SpectrumFrames counts spectrum frames folded into bars.
	SpectrumFrames metric.Int64Counter

	// Reconfigurations counts analyzer reconfigurations after a format change.
	Reconfigurations metric.Int64Counter

	// ConfigErrors counts fatal analyzer configuration failures.
	ConfigErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveTracks tracks the number of attached audio tracks.
	ActiveTracks metric.Int64UpDownCounter

	// ActiveParticipants tracks the number of participants in the voice
	// channel.
	ActiveParticipants metric.Int64UpDownCounter

	// --- Transcript ---

	// TranscriptSegments counts transcript segment updates. Use with attribute:
	//   attribute.Bool("final", ...)
	TranscriptSegments metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// processingBuckets defines histogram bucket boundaries (in seconds) for
// per-buffer analysis, which runs well below a render frame.
var processingBuckets = []float64{
	0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.BuffersReceived, err = m.Int64Counter("voxbars.sink.buffers",
		metric.WithDescription("Total PCM buffers taken from sample sinks for analysis."),
	); err != nil {
		return nil, err
	}
	if met.BuffersDropped, err = m.Int64Counter("voxbars.sink.dropped",
		metric.WithDescription("Total PCM buffers replaced before they were analysed."),
	); err != nil {
		return nil, err
	}
	if met.SpectrumFrames, err = m.Int64Counter("voxbars.spectrum.frames",
		metric.WithDescription("Total spectrum frames folded into bars."),
	); err != nil {
		return nil, err
	}
	if met.Reconfigurations, err = m.Int64Counter("voxbars.analyzer.reconfigurations",
		metric.WithDescription("Total analyzer reconfigurations caused by format changes."),
	); err != nil {
		return nil, err
	}
	if met.ConfigErrors, err = m.Int64Counter("voxbars.analyzer.config_errors",
		metric.WithDescription("Total fatal analyzer configuration errors."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptSegments, err = m.Int64Counter("voxbars.transcript.segments",
		metric.WithDescription("Total transcript segment updates by finality."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.ProcessingDuration, err = m.Float64Histogram("voxbars.processing.duration",
		metric.WithDescription("Latency of analysing one PCM buffer or spectrum frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(processingBuckets...),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveTracks, err = m.Int64UpDownCounter("voxbars.active_tracks",
		metric.WithDescription("Number of attached audio tracks."),
	); err != nil {
		return nil, err
	}
	if met.ActiveParticipants, err = m.Int64UpDownCounter("voxbars.active_participants",
		metric.WithDescription("Number of participants in the voice channel."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxbars.http.request.duration",
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
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// RecordProcessing records the time spent analysing one unit of input in
// the given mode.
func (m *Metrics) RecordProcessing(ctx context.Context, mode string, d time.Duration) {
	m.ProcessingDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("mode", mode)),
	)
}

// RecordTranscriptSegment records a transcript segment update.
func (m *Metrics) RecordTranscriptSegment(ctx context.Context, final bool) {
	m.TranscriptSegments.Add(ctx, 1,
		metric.WithAttributes(attribute.Bool("final", final)),
	)
}
