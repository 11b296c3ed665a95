// Package observe holds voxlink's OpenTelemetry instruments, span helpers
// and the HTTP middleware of the control API.
//
// [Setup] exports metrics to Prometheus for scraping at /metrics. Components
// that are not handed a [Metrics] fall back to [DefaultMetrics] on the global
// meter provider; tests build their own with [NewMetrics] and a manual reader.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxlink metrics.
const meterName = "github.com/MrWong99/voxlink"

// Frame outcomes for [Metrics.RecordFrame].
const (
	FrameCaptured  = "captured"
	FrameCancelled = "cancelled"
	FrameEmpty     = "empty"
)

// Encode failure stages for [Metrics.RecordEncodeError].
const (
	StageCodec      = "codec"
	StageEncryption = "encryption"
)

// Packet kinds for [Metrics.RecordPacket].
const (
	PacketVoice    = "voice"
	PacketVoiceEnd = "voice_end"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// CaptureFrames counts frames read from the input device. Use with
	// attribute.String("outcome", ...).
	CaptureFrames metric.Int64Counter

	// Encodes counts encoder invocations. Use with
	// attribute.String("format", "mono"|"stereo").
	Encodes metric.Int64Counter

	// EncodeErrors counts dropped frames. Use with
	// attribute.String("stage", "codec"|"encryption").
	EncodeErrors metric.Int64Counter

	// EncodeDuration tracks encode plus encrypt time per format.
	EncodeDuration metric.Float64Histogram

	// Packets counts outbound packets. Use with attributes
	// attribute.String("kind", ...), attribute.String("status", ...).
	Packets metric.Int64Counter

	// ActiveWorkers tracks running capture workers. Never exceeds one per
	// pipeline.
	ActiveWorkers metric.Int64UpDownCounter

	// HTTPRequestDuration tracks control API latency by mux route and
	// response status.
	HTTPRequestDuration metric.Float64Histogram

	// DeviceBreakerTransitions counts circuit breaker state changes of the
	// input device sources. Use with attribute.String("source", ...) and
	// attribute.String("to", ...).
	DeviceBreakerTransitions metric.Int64Counter
}

// encodeBuckets defines histogram bucket boundaries (in seconds) for
// per-frame encode work, which must stay well under one frame (20 ms).
var encodeBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.02, 0.05,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CaptureFrames, err = m.Int64Counter("voxlink.capture.frames",
		metric.WithDescription("Frames read from the input device by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Encodes, err = m.Int64Counter("voxlink.capture.encodes",
		metric.WithDescription("Encoder invocations by output format."),
	); err != nil {
		return nil, err
	}
	if met.EncodeErrors, err = m.Int64Counter("voxlink.capture.encode.errors",
		metric.WithDescription("Frames dropped by codec or encryption failures."),
	); err != nil {
		return nil, err
	}
	if met.EncodeDuration, err = m.Float64Histogram("voxlink.capture.encode.duration",
		metric.WithDescription("Time spent encoding and encrypting one frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(encodeBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Packets, err = m.Int64Counter("voxlink.transport.packets",
		metric.WithDescription("Outbound packets by kind and send status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveWorkers, err = m.Int64UpDownCounter("voxlink.capture.active_workers",
		metric.WithDescription("Number of running capture workers."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxlink.http.request.duration",
		metric.WithDescription("Control API request latency by route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.DeviceBreakerTransitions, err = m.Int64Counter("voxlink.device.breaker.transitions",
		metric.WithDescription("Input device circuit breaker transitions by source and new state."),
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

// RecordFrame counts one device read with the given outcome.
func (m *Metrics) RecordFrame(ctx context.Context, outcome string) {
	m.CaptureFrames.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordEncode counts one encode of the given format and records its
// duration.
func (m *Metrics) RecordEncode(ctx context.Context, format string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("format", format))
	m.Encodes.Add(ctx, 1, attrs)
	m.EncodeDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordEncodeError counts one frame dropped at stage.
func (m *Metrics) RecordEncodeError(ctx context.Context, stage string) {
	m.EncodeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordPacket counts one outbound packet attempt. err == nil is recorded as
// status "ok".
func (m *Metrics) RecordPacket(ctx context.Context, kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Packets.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordBreakerTransition counts one device breaker entering state to.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, source, to string) {
	m.DeviceBreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("to", to),
		),
	)
}
