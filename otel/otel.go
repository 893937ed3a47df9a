// Package otel provides higher level APIs around Open Telemetry instrumentation.
package otel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const serviceName = "browserbench"

// ErrUnsupportedProto indicates that the defined exporter protocol is not supported.
var ErrUnsupportedProto = errors.New("unsupported protocol")

// TraceProvider provides methods for tracers initialization and shutdown of the
// processing pipeline.
type TraceProvider interface {
	trace.TracerProvider
	Shutdown(ctx context.Context) error
}

type traceProvider struct {
	trace.TracerProvider

	noop bool

	shutdown func(ctx context.Context) error
}

// NewTraceProvider creates a new trace provider exporting spans over OTLP.
func NewTraceProvider(
	ctx context.Context, proto, endpoint string, insecure bool,
) (TraceProvider, error) {
	client, err := newClient(proto, endpoint, insecure)
	if err != nil {
		return nil, fmt.Errorf("creating exporter client: %w", err)
	}

	exporter, err := otlptrace.New(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("creating exporter: %w", err)
	}

	prov := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(newResource()),
	)

	otel.SetTracerProvider(prov)

	return &traceProvider{
		TracerProvider: prov,
		shutdown:       prov.Shutdown,
	}, nil
}

func newResource() *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	)
}

func newClient(proto, endpoint string, insecure bool) (otlptrace.Client, error) {
	// TODO: Support gRPC
	switch strings.ToLower(proto) {
	case "http":
		return newHTTPClient(endpoint, insecure), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProto, proto)
	}
}

func newHTTPClient(endpoint string, insecure bool) otlptrace.Client {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(endpoint),
	}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return otlptracehttp.NewClient(opts...)
}

// NewNoopTraceProvider creates a new noop trace provider.
func NewNoopTraceProvider() TraceProvider {
	return &traceProvider{
		TracerProvider: noop.NewTracerProvider(),
		noop:           true,
	}
}

// Shutdown shuts down TracerProvider releasing any held computational resources.
// After Shutdown is called, all methods are no-ops.
func (tp *traceProvider) Shutdown(ctx context.Context) error {
	if tp.noop {
		return nil
	}

	return tp.shutdown(ctx)
}
