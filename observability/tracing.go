package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// tracer implements the Tracer interface using OpenTelemetry. It backs the
// producer span started on publish and the consumer span started on
// dispatch. The reserved ActivityId header carries the producer span's trace
// id between them; the consumer span records it as an attribute and is not
// linked to the producer's trace.
type tracer struct {
	config        TracingConfig
	provider      *trace.TracerProvider
	tracer        oteltrace.Tracer
	propagator    propagation.TextMapPropagator
	shutdownFuncs []func(context.Context) error
}

// span implements the Span interface using OpenTelemetry
type span struct {
	span oteltrace.Span
}

// NewTracer creates a new tracer instance
func NewTracer(config TracingConfig) (Tracer, error) {
	if !config.Enabled {
		return &noopTracer{}, nil
	}

	t := &tracer{
		config:        config,
		shutdownFuncs: make([]func(context.Context) error, 0),
	}

	if err := t.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	return t, nil
}

// initialize sets up the OpenTelemetry tracer provider
func (t *tracer) initialize() error {
	res, err := t.createResource()
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	exporters, err := t.createExporters()
	if err != nil {
		return fmt.Errorf("failed to create exporters: %w", err)
	}

	sampler := t.createSampler()

	opts := []trace.TracerProviderOption{
		trace.WithResource(res),
		trace.WithSampler(sampler),
	}

	for _, exporter := range exporters {
		processor := trace.NewBatchSpanProcessor(exporter, t.createBatchProcessorOptions()...)
		opts = append(opts, trace.WithSpanProcessor(processor))
	}

	t.provider = trace.NewTracerProvider(opts...)
	t.tracer = t.provider.Tracer(
		t.config.ServiceName,
		oteltrace.WithInstrumentationVersion(t.config.ServiceVersion),
	)

	t.propagator = propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)

	return nil
}

// createResource creates an OpenTelemetry resource
func (t *tracer) createResource() (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(t.config.ServiceName),
		semconv.ServiceVersion(t.config.ServiceVersion),
		semconv.DeploymentEnvironment(t.config.Environment),
	}

	for key, value := range t.config.ResourceAttributes {
		attrs = append(attrs, attribute.String(key, value))
	}

	return resource.NewWithAttributes(
		semconv.SchemaURL,
		attrs...,
	), nil
}

// createExporters creates trace exporters based on configuration. A host
// that configures no exporters gets no exporter at all: spans are still
// created (and still carry context across the wire), they just aren't
// shipped anywhere.
func (t *tracer) createExporters() ([]trace.SpanExporter, error) {
	exporters := make([]trace.SpanExporter, 0, len(t.config.Exporters))

	for _, exporterConfig := range t.config.Exporters {
		exporter, err := t.createExporter(exporterConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s exporter: %w", exporterConfig.Type, err)
		}
		exporters = append(exporters, exporter)
	}

	return exporters, nil
}

// createExporter creates a specific trace exporter
func (t *tracer) createExporter(config ExporterConfig) (trace.SpanExporter, error) {
	switch config.Type {
	case "jaeger":
		return t.createJaegerExporter(config)
	case "otlp":
		return t.createOTLPExporter(config)
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", config.Type)
	}
}

// createJaegerExporter creates a Jaeger exporter
func (t *tracer) createJaegerExporter(config ExporterConfig) (trace.SpanExporter, error) {
	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("http://%s:%d/api/traces", config.AgentHost, config.AgentPort)
	}

	exporter, err := jaeger.New(
		jaeger.WithCollectorEndpoint(
			jaeger.WithEndpoint(endpoint),
		),
	)
	if err != nil {
		return nil, err
	}

	t.shutdownFuncs = append(t.shutdownFuncs, exporter.Shutdown)
	return exporter, nil
}

// createOTLPExporter creates an OTLP HTTP exporter. Collectors that only
// speak gRPC are out of scope: every OTLP backend in the domain stack
// (Jaeger, the vendor-neutral collector) accepts the HTTP variant too.
func (t *tracer) createOTLPExporter(config ExporterConfig) (trace.SpanExporter, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("OTLP endpoint is required")
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.Endpoint),
	}

	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	if len(config.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(config.Headers))
	}

	if config.Compression == "gzip" {
		opts = append(opts, otlptracehttp.WithCompression(otlptracehttp.GzipCompression))
	}

	exporter, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		return nil, err
	}

	t.shutdownFuncs = append(t.shutdownFuncs, exporter.Shutdown)
	return exporter, nil
}

// createSampler creates a trace sampler
func (t *tracer) createSampler() trace.Sampler {
	if t.config.NeverSample {
		return trace.NeverSample()
	}

	if t.config.AlwaysSample {
		return trace.AlwaysSample()
	}

	if t.config.SampleRate > 0 {
		return trace.TraceIDRatioBased(t.config.SampleRate)
	}

	return trace.TraceIDRatioBased(0.1)
}

// createBatchProcessorOptions creates batch processor options
func (t *tracer) createBatchProcessorOptions() []trace.BatchSpanProcessorOption {
	opts := []trace.BatchSpanProcessorOption{}

	if t.config.BatchTimeout > 0 {
		opts = append(opts, trace.WithBatchTimeout(t.config.BatchTimeout))
	}

	if t.config.ExportTimeout > 0 {
		opts = append(opts, trace.WithExportTimeout(t.config.ExportTimeout))
	}

	if t.config.MaxExportBatchSize > 0 {
		opts = append(opts, trace.WithMaxExportBatchSize(t.config.MaxExportBatchSize))
	}

	if t.config.MaxQueueSize > 0 {
		opts = append(opts, trace.WithMaxQueueSize(t.config.MaxQueueSize))
	}

	return opts
}

// StartSpan starts a new span
func (t *tracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span) {
	config := &SpanConfig{}
	for _, opt := range opts {
		opt.Apply(config)
	}

	spanOpts := []oteltrace.SpanStartOption{
		oteltrace.WithSpanKind(t.convertSpanKind(config.Kind)),
	}

	newCtx, otelSpan := t.tracer.Start(ctx, name, spanOpts...)

	return newCtx, &span{span: otelSpan}
}

// Shutdown shuts down the tracer
func (t *tracer) Shutdown(ctx context.Context) error {
	var errs []error

	for _, shutdownFunc := range t.shutdownFuncs {
		if err := shutdownFunc(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if t.provider != nil {
		if err := t.provider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	return nil
}

// convertSpanKind converts our SpanKind to OpenTelemetry SpanKind. This
// bus only ever opens producer and consumer spans; anything else falls
// back to internal.
func (t *tracer) convertSpanKind(kind SpanKind) oteltrace.SpanKind {
	switch kind {
	case SpanKindProducer:
		return oteltrace.SpanKindProducer
	case SpanKindConsumer:
		return oteltrace.SpanKindConsumer
	default:
		return oteltrace.SpanKindInternal
	}
}

// span implementation

func (s *span) End() {
	s.span.End()
}

func (s *span) RecordError(err error) {
	s.span.RecordError(err)
}

func (s *span) SetAttribute(key string, value interface{}) {
	s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", value)))
}

func (s *span) Context() oteltrace.SpanContext {
	return s.span.SpanContext()
}

// noopTracer is a no-op implementation for when tracing is disabled
type noopTracer struct{}

func (n *noopTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span) {
	return ctx, &noopSpan{}
}

func (n *noopTracer) Shutdown(ctx context.Context) error {
	return nil
}

// noopSpan is a no-op implementation for when tracing is disabled
type noopSpan struct{}

func (n *noopSpan) End()                                       {}
func (n *noopSpan) RecordError(err error)                      {}
func (n *noopSpan) SetAttribute(key string, value interface{}) {}
func (n *noopSpan) Context() oteltrace.SpanContext             { return oteltrace.SpanContext{} }

// Span option implementations

type spanKindOption struct {
	kind SpanKind
}

func (o *spanKindOption) Apply(config *SpanConfig) {
	config.Kind = o.kind
}

func WithSpanKind(kind SpanKind) SpanOption {
	return &spanKindOption{kind: kind}
}
