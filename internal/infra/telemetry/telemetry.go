// Package telemetry wires OpenTelemetry tracing for the agent.
package telemetry

import (
	"context"
	"errors"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TracerName is the instrumentation name used by agent spans.
const TracerName = "github.com/runoshun/crew-agent"

// Config controls telemetry initialization behavior.
type Config struct {
	ServiceName    string
	ServiceVersion string
	RunID          string
	OTLPEndpoint   string // Empty disables span export
}

// Init sets the global propagator and, when an endpoint is configured, a
// TracerProvider exporting over OTLP/HTTP. The returned function flushes
// and stops the provider.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		return nil, errors.New("service name required")
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	if cfg.OTLPEndpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	u, err := url.Parse(cfg.OTLPEndpoint)
	if err != nil {
		return nil, err
	}

	endpoint := u.Host
	if endpoint == "" {
		// host:port without scheme
		endpoint = u.Path
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if u.Scheme == "http" || u.Scheme == "" {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	tp, err := NewTracerProvider(sdktrace.NewBatchSpanProcessor(exporter), cfg)
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return nil, err
	}
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// NewTracerProvider creates a TracerProvider that sends spans to processor.
// Tests pass a tracetest.SpanRecorder here.
func NewTracerProvider(processor sdktrace.SpanProcessor, cfg Config) (*sdktrace.TracerProvider, error) {
	attrs := []attribute.KeyValue{
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	}
	if cfg.RunID != "" {
		attrs = append(attrs, attribute.String("service.instance.id", cfg.RunID))
	}
	res, err := sdkresource.New(context.Background(), sdkresource.WithAttributes(attrs...))
	if err != nil {
		return nil, err
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(processor),
	), nil
}
