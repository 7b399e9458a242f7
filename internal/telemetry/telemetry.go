// Package telemetry sets up the OpenTelemetry tracer provider for node executions.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerName is the instrumentation scope of runtime spans.
const TracerName = "github.com/langfuse-nodes/server/internal/runtime"

// Exporter selects where spans go.
type Exporter string

const (
	ExporterNone   Exporter = "none"
	ExporterStdout Exporter = "stdout"
	ExporterOTLP   Exporter = "otlp"
)

// Config is read with envconfig under the TELEMETRY prefix.
type Config struct {
	Exporter     Exporter `default:"none"`
	Endpoint     string   `split_words:"true"`
	Insecure     bool
	ServiceName  string  `split_words:"true" default:"lfnodes"`
	SampleRatio  float64 `split_words:"true" default:"1"`
	stdoutWriter io.Writer
}

// Provider owns the tracer provider and shuts it down.
type Provider struct {
	trace.TracerProvider
	shutdown func(context.Context) error
}

// Tracer returns the runtime tracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.TracerProvider.Tracer(TracerName)
}

// Shutdown flushes and stops exporting.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.shutdown == nil {
		return nil
	}
	return p.shutdown(ctx)
}

// New builds a provider for cfg and installs it as the global provider.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	exp, err := exporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if exp == nil {
		return &Provider{TracerProvider: noop.NewTracerProvider()}, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to build telemetry resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	return &Provider{TracerProvider: tp, shutdown: tp.Shutdown}, nil
}

func exporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch Exporter(strings.ToLower(string(cfg.Exporter))) {
	case ExporterNone, "":
		return nil, nil
	case ExporterStdout:
		opts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
		if cfg.stdoutWriter != nil {
			opts = append(opts, stdouttrace.WithWriter(cfg.stdoutWriter))
		}
		return stdouttrace.New(opts...)
	case ExporterOTLP:
		var opts []otlptracehttp.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exp, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
		}
		return exp, nil
	}
	return nil, fmt.Errorf("unknown telemetry exporter %q", cfg.Exporter)
}
