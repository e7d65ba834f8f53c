// Package telemetry installs the OpenTelemetry tracer provider.
//
// Nothing is exported off the device unless tracing is explicitly enabled,
// and even then spans only go to a local writer. With tracing disabled the
// global provider stays the OpenTelemetry no-op.
package telemetry

import (
	"context"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// ServiceName is the resource name attached to every span.
const ServiceName = "fieldsync"

// Options configures Setup.
type Options struct {
	Enabled bool
	// Writer receives spans as JSON. Defaults to stdout.
	Writer  io.Writer
	Version string
}

var (
	mu       sync.Mutex
	enabled  bool
	provider *sdktrace.TracerProvider
)

// Setup installs a tracer provider when opts.Enabled is set. The returned
// function flushes and removes it; it is safe to call when disabled.
func Setup(opts Options) (func(context.Context) error, error) {
	if !opts.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", ServiceName),
		attribute.String("service.version", opts.Version),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(res),
	)

	mu.Lock()
	prev := otel.GetTracerProvider()
	provider = tp
	enabled = true
	mu.Unlock()
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		mu.Lock()
		enabled = false
		provider = nil
		mu.Unlock()
		otel.SetTracerProvider(prev)
		return tp.Shutdown(ctx)
	}, nil
}

// IsEnabled reports whether Setup installed a provider.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// Tracer returns a tracer from the current global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// Flush exports any buffered spans.
func Flush(ctx context.Context) error {
	mu.Lock()
	tp := provider
	mu.Unlock()
	if tp == nil {
		return nil
	}
	return tp.ForceFlush(ctx)
}
