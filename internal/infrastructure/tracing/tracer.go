// Package tracing provides OpenTelemetry tracing for sync, analysis, capture,
// chat and translation work. Exporters: none, stdout, OTLP over HTTP.
package tracing

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// TracerName is the instrumentation name for cropcare spans.
	TracerName = "github.com/jbctechsolutions/cropcare"

	// Version is reported as service.version.
	Version = "0.3.0"
)

// ExporterType defines the type of trace exporter.
type ExporterType string

const (
	ExporterNone   ExporterType = "none"
	ExporterStdout ExporterType = "stdout"
	ExporterOTLP   ExporterType = "otlp"
)

// Config holds tracing configuration.
type Config struct {
	Enabled      bool         // Whether tracing is enabled
	ExporterType ExporterType // Type of exporter to use
	OTLPEndpoint string       // OTLP collector endpoint (for OTLP exporter)
	ServiceName  string       // Service name for traces
	Environment  string       // Deployment environment (development, production)
	SampleRate   float64      // Sampling rate (0.0 to 1.0)
	Output       io.Writer    // Output for stdout exporter (defaults to os.Stdout)
}

// DefaultConfig returns sensible default tracing configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		ExporterType: ExporterNone,
		ServiceName:  "cropcare",
		Environment:  "development",
		SampleRate:   1.0,
	}
}

// Tracer wraps an OpenTelemetry tracer with domain-specific functionality.
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	config   Config
}

// global is the package-level default tracer.
var (
	global     *Tracer
	globalOnce sync.Once
)

// Init initializes the global tracer with the provided configuration.
func Init(ctx context.Context, cfg Config) (*Tracer, error) {
	var err error
	globalOnce.Do(func() {
		global, err = New(ctx, cfg)
	})
	return global, err
}

// Default returns the global tracer, or a no-op tracer if not initialized.
func Default() *Tracer {
	if global == nil {
		return &Tracer{
			tracer: otel.Tracer(TracerName),
			config: DefaultConfig(),
		}
	}
	return global
}

// New creates a new Tracer with the provided configuration.
func New(ctx context.Context, cfg Config) (*Tracer, error) {
	if !cfg.Enabled || cfg.ExporterType == ExporterNone {
		return &Tracer{
			tracer: noop.NewTracerProvider().Tracer(TracerName),
			config: cfg,
		}, nil
	}

	// Create exporter
	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	// Create resource without merging with Default() to avoid schema URL conflicts.
	// The default resource's schema URL may conflict with our semconv version.
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(Version),
			attribute.String("deployment.environment", cfg.Environment),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Create sampler
	var sampler sdktrace.Sampler
	if cfg.SampleRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else if cfg.SampleRate <= 0.0 {
		sampler = sdktrace.NeverSample()
	} else {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	// Create tracer provider
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	// Set global propagator
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// Set global tracer provider
	otel.SetTracerProvider(provider)

	return &Tracer{
		tracer:   provider.Tracer(TracerName, trace.WithInstrumentationVersion(Version)),
		provider: provider,
		config:   cfg,
	}, nil
}

// createExporter creates the appropriate exporter based on configuration.
func createExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		opts := []stdouttrace.Option{
			stdouttrace.WithPrettyPrint(),
		}
		if cfg.Output != nil {
			opts = append(opts, stdouttrace.WithWriter(cfg.Output))
		}
		return stdouttrace.New(opts...)

	case ExporterOTLP:
		opts := []otlptracehttp.Option{
			otlptracehttp.WithInsecure(),
		}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		return otlptracehttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.ExporterType)
	}
}

// Shutdown gracefully shuts down the tracer provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider != nil {
		return t.provider.Shutdown(ctx)
	}
	return nil
}

// --- Domain-specific span helpers ---

// Span names.
const (
	SpanDrain       = "sync.drain"
	SpanOperation   = "sync.operation"
	SpanAnalysis    = "analysis.run"
	SpanUpload      = "capture.upload"
	SpanChatStream  = "chat.stream"
	SpanTranslation = "translation.translate"
)

// Span wraps a trace.Span with status helpers shared by every domain span.
type Span struct {
	span trace.Span
}

func (t *Tracer) startSpan(ctx context.Context, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, *Span) {
	ctx, span := t.tracer.Start(ctx, name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	)
	return ctx, &Span{span: span}
}

// StartDrainSpan starts a span for one pass over the pending-operation queue.
func (t *Tracer) StartDrainSpan(ctx context.Context, queued int) (context.Context, *Span) {
	return t.startSpan(ctx, SpanDrain, trace.SpanKindInternal, attribute.Int("sync.queued", queued))
}

// StartOperationSpan starts a span for replaying a single queued operation.
func (t *Tracer) StartOperationSpan(ctx context.Context, opID, entity, action string, retryCount int) (context.Context, *Span) {
	return t.startSpan(ctx, SpanOperation, trace.SpanKindClient,
		attribute.String("operation.id", opID),
		attribute.String("operation.entity_type", entity),
		attribute.String("operation.action", action),
		attribute.Int("operation.retry_count", retryCount),
	)
}

// StartAnalysisSpan starts a span covering upload, inference and persistence of an analysis.
func (t *Tracer) StartAnalysisSpan(ctx context.Context, cropType string, queued bool) (context.Context, *Span) {
	return t.startSpan(ctx, SpanAnalysis, trace.SpanKindInternal,
		attribute.String("analysis.crop_type", cropType),
		attribute.Bool("analysis.queued", queued),
	)
}

// StartUploadSpan starts a span for an object storage upload.
func (t *Tracer) StartUploadSpan(ctx context.Context, bucket string, size int) (context.Context, *Span) {
	return t.startSpan(ctx, SpanUpload, trace.SpanKindClient,
		attribute.String("upload.bucket", bucket),
		attribute.Int("upload.bytes", size),
	)
}

// StartChatStreamSpan starts a span for a streamed assistant reply.
func (t *Tracer) StartChatStreamSpan(ctx context.Context, historyLen int) (context.Context, *Span) {
	return t.startSpan(ctx, SpanChatStream, trace.SpanKindClient, attribute.Int("chat.history_len", historyLen))
}

// StartTranslationSpan starts a span for a translation lookup.
func (t *Tracer) StartTranslationSpan(ctx context.Context, target string, batch int) (context.Context, *Span) {
	return t.startSpan(ctx, SpanTranslation, trace.SpanKindInternal,
		attribute.String("translation.target", target),
		attribute.Int("translation.batch", batch),
	)
}

// SetStatusLabel records the domain outcome, e.g. the final analysis status.
func (s *Span) SetStatusLabel(label string) {
	s.span.SetAttributes(attribute.String("outcome", label))
}

// End ends the span with success status.
func (s *Span) End() {
	s.span.SetStatus(codes.Ok, "")
	s.span.End()
}

// EndWithError ends the span with error status.
func (s *Span) EndWithError(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
	s.span.End()
}

// Finish ends the span with error status when err is non-nil.
func (s *Span) Finish(err error) {
	if err != nil {
		s.EndWithError(err)
		return
	}
	s.End()
}
