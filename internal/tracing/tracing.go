// Package tracing constructs the orchestration core's OpenTelemetry
// TracerProvider (SPEC_FULL.md §11), exporting over OTLP/HTTP. The
// SetTracerProvider/sdktrace.NewTracerProvider idiom is grounded on the
// teacher's own test usage at
// internal/domain/agent/react/tracing_test.go, which drives a
// sdktrace.TracerProvider directly rather than through a third-party
// tracing framework. The pipeline runner's spans (internal/pipeline)
// are read off whatever provider Init installs as the global one.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const serviceName = "mediaflow-server"

// Provider wraps the installed TracerProvider so the Service Container
// can shut it down on exit (it implements container.Shutdownable).
type Provider struct {
	tp *sdktrace.TracerProvider
}

// Init builds a TracerProvider exporting spans to endpoint over OTLP/HTTP
// and installs it as the process-wide default. An empty endpoint
// installs a provider with no exporter — spans are still recorded
// (useful for tests that attach their own span processor) but nothing
// leaves the process.
func Init(ctx context.Context, endpoint string) (*Provider, error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing: building resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if endpoint != "" {
		exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
		if err != nil {
			return nil, fmt.Errorf("tracing: building OTLP exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return &Provider{tp: tp}, nil
}

// Shutdown flushes any pending spans and stops the TracerProvider,
// satisfying container.Shutdownable.
func (p *Provider) Shutdown() error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(context.Background())
}
