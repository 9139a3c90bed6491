package otel

import (
	"context"
	"fmt"

	otelglobal "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TracingConfig configures the OTLP trace exporter.
type TracingConfig struct {
	// Endpoint is the host:port of an OTLP/HTTP collector (default: localhost:4318).
	Endpoint string

	// Insecure disables TLS for the exporter connection.
	Insecure bool

	// ServiceName is reported as the service.name resource attribute (default: pollen).
	ServiceName string
}

// InitTracing creates an OTLP/HTTP span exporter, installs a batching tracer
// provider as the global provider, and returns a shutdown function that
// flushes pending spans. Callers should defer the shutdown function.
func InitTracing(ctx context.Context, cfg TracingConfig) (func(context.Context) error, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "localhost:4318"
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating otlp exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "pollen"
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
		)),
	)
	otelglobal.SetTracerProvider(provider)

	return provider.Shutdown, nil
}
