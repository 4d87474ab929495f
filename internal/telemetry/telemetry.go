// Package telemetry installs the OpenTelemetry tracer provider.
//
// Tracing is off unless an OTLP endpoint is configured. When it is on, the
// provider and a W3C trace-context propagator become the otel globals, so
// the inbound otelhttp handler and the outbound xapi transport share spans.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config selects the exporter.
type Config struct {
	ServiceName string
	Environment string
	Endpoint    string  // OTLP gRPC host:port; empty disables tracing
	SampleRate  float64 // 0..1, share of new root traces recorded
}

// Provider owns the tracer provider. The zero value is a disabled provider.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// Setup builds the tracer provider for cfg and installs it globally.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (*Provider, error) {
	if cfg.Endpoint == "" {
		logger.Debug("tracing disabled, TRACE_ENDPOINT not set")
		return &Provider{}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating OTLP exporter: %w", err)
	}

	tp := newTracerProvider(cfg, sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(Propagator())

	logger.Info("tracing enabled",
		slog.String("endpoint", cfg.Endpoint),
		slog.Float64("sampleRate", cfg.SampleRate),
	)
	return &Provider{tp: tp}, nil
}

// newTracerProvider applies the sampler and resource shared by every
// exporter setup.
func newTracerProvider(cfg Config, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	opts = append(opts,
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("deployment.environment", cfg.Environment),
		)),
	)
	return sdktrace.NewTracerProvider(opts...)
}

// Propagator is the W3C trace-context plus baggage propagator.
func Propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
}

// Enabled reports whether spans are exported.
func (p *Provider) Enabled() bool {
	return p != nil && p.tp != nil
}

// Shutdown flushes pending spans and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	return p.tp.Shutdown(ctx)
}
