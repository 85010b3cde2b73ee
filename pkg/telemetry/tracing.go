// Package telemetry installs the OpenTelemetry tracer provider the dispatch
// and workflow spans are exported through.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/angelmondragon/mangopay-gateway/pkg/config"
)

// Shutdown flushes buffered spans and stops the provider.
type Shutdown func(context.Context) error

func noShutdown(context.Context) error { return nil }

// SetupTracing installs a global provider that batches spans to out as JSON
// when tracing is enabled. With tracing off the global no-op provider stays.
func SetupTracing(cfg config.TelemetryConfig, out io.Writer) (Shutdown, error) {
	if !cfg.Tracing {
		return noShutdown, nil
	}
	if out == nil {
		out = os.Stdout
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(out))
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	provider := NewTracerProvider(cfg, sdktrace.NewBatchSpanProcessor(exporter))
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return provider.Shutdown, nil
}

// NewTracerProvider builds a provider tagged with the service name. A sample
// ratio outside (0, 1] samples everything.
func NewTracerProvider(cfg config.TelemetryConfig, processor sdktrace.SpanProcessor) *sdktrace.TracerProvider {
	ratio := cfg.TraceSampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(processor),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))),
	)
}
