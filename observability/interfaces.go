// Package observability provides the tracing and metrics interfaces shared
// by the bus façade and every transport. It does not serve HTTP: exposing
// a /metrics endpoint or a readiness probe is the host's responsibility,
// built on top of the plain boolean CheckHealth result the bus façade
// returns.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Tracer starts the producer span on publish and the consumer span on
// dispatch. The reserved ActivityId header carries the producer span's
// trace id to the consumer side, where it is recorded as a span attribute;
// the consumer span is not linked to the producer's trace.
type Tracer interface {
	StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span)
	Shutdown(ctx context.Context) error
}

// Span represents a distributed tracing span.
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
	Context() trace.SpanContext
}

// Metrics is the built-in pipeline metric set. Every transport reports
// through these instead of calling hand-rolled metric names, so dashboards
// see one metric per concern across every broker: publish, consume,
// dead-letter, dispatch latency, and client-cache creation.
type Metrics interface {
	PublishTotal(transport, event, outcome string) Counter
	ConsumeTotal(transport, event, consumer, decision string) Counter
	DeadletterTotal(transport, event, consumer string) Counter
	DispatchDuration(transport, event, consumer string) Histogram
	CacheCreatedTotal(transport string) Counter
}

// Counter represents a monotonically increasing metric.
type Counter interface {
	Inc()
	Add(value float64)
}

// Histogram represents a metric that samples observations.
type Histogram interface {
	Observe(value float64)
	Timer() Timer
}

// Timer represents a timing utility returned from Histogram.Timer;
// ObserveDuration records elapsed time since creation.
type Timer interface {
	ObserveDuration()
}

// Configuration types

// TracingConfig represents tracing configuration.
type TracingConfig struct {
	Enabled        bool   `yaml:"enabled"`
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`

	SampleRate   float64 `yaml:"sample_rate"`
	AlwaysSample bool    `yaml:"always_sample"`
	NeverSample  bool    `yaml:"never_sample"`

	Exporters []ExporterConfig `yaml:"exporters"`

	ResourceAttributes map[string]string `yaml:"resource_attributes"`

	BatchTimeout       time.Duration `yaml:"batch_timeout"`
	ExportTimeout      time.Duration `yaml:"export_timeout"`
	MaxExportBatchSize int           `yaml:"max_export_batch_size"`
	MaxQueueSize       int           `yaml:"max_queue_size"`
}

// ExporterConfig represents trace exporter configuration.
type ExporterConfig struct {
	Type     string            `yaml:"type"` // jaeger, otlp
	Endpoint string            `yaml:"endpoint"`
	Headers  map[string]string `yaml:"headers"`
	Insecure bool              `yaml:"insecure"`

	AgentHost string `yaml:"agent_host"`
	AgentPort int    `yaml:"agent_port"`

	Compression string `yaml:"compression"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// Supporting types

// SpanOption represents options for creating spans.
type SpanOption interface {
	Apply(*SpanConfig)
}

// SpanConfig represents span configuration.
type SpanConfig struct {
	Kind SpanKind
}

// SpanKind represents the kind of span. This module only ever opens
// producer and consumer spans.
type SpanKind int

const (
	SpanKindInternal SpanKind = iota
	SpanKindProducer
	SpanKindConsumer
)
