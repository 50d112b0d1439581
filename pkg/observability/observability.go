// Package observability wires OpenTelemetry tracing and RED metrics
// (rate, errors, duration) around the request, decision and audit write
// paths. Spans export through the stdout trace exporter; a scraping
// backend is an external collaborator and out of scope, so the metric
// provider uses an in-process reader that tests and diagnostics can drain.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Enabled        bool
	// PrettyPrint expands the stdout span JSON for local reading.
	PrettyPrint bool
}

// Provider owns the trace and metric providers plus the RED instruments.
type Provider struct {
	tp     *sdktrace.TracerProvider
	mp     *sdkmetric.MeterProvider
	reader *sdkmetric.ManualReader

	tracer trace.Tracer
	meter  metric.Meter

	requests metric.Int64Counter
	errors   metric.Int64Counter
	duration metric.Float64Histogram
}

// New builds the providers and registers them as the process-wide otel
// defaults. A disabled config skips the stdout span exporter: spans are
// still created but not exported, and metrics are still recorded to the
// in-process reader, so call sites never branch on whether telemetry is on.
func New(cfg Config) (*Provider, error) {
	p := &Provider{}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)

	if cfg.Enabled {
		var opts []stdouttrace.Option
		if cfg.PrettyPrint {
			opts = append(opts, stdouttrace.WithPrettyPrint())
		}
		exporter, err := stdouttrace.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("observability: trace exporter: %w", err)
		}
		p.tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
	} else {
		p.tp = sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	}
	otel.SetTracerProvider(p.tp)

	p.reader = sdkmetric.NewManualReader()
	p.mp = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(p.reader),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(p.mp)

	p.tracer = p.tp.Tracer(cfg.ServiceName)
	p.meter = p.mp.Meter(cfg.ServiceName)

	var err error
	if p.requests, err = p.meter.Int64Counter("checkops.requests",
		metric.WithDescription("Requests handled")); err != nil {
		return nil, err
	}
	if p.errors, err = p.meter.Int64Counter("checkops.errors",
		metric.WithDescription("Requests that ended in error")); err != nil {
		return nil, err
	}
	if p.duration, err = p.meter.Float64Histogram("checkops.duration_seconds",
		metric.WithDescription("Operation duration in seconds")); err != nil {
		return nil, err
	}
	return p, nil
}

// Shutdown flushes spans and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	var first error
	if err := p.tp.Shutdown(ctx); err != nil {
		first = err
	}
	if err := p.mp.Shutdown(ctx); err != nil && first == nil {
		first = err
	}
	return first
}

// Tracer returns the service tracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Collect drains the current metric state into rm, for tests and local
// diagnostics.
func (p *Provider) Collect(ctx context.Context, rm *metricdata.ResourceMetrics) error {
	return p.reader.Collect(ctx, rm)
}

// TrackOperation starts a span for name and returns a completion func the
// caller invokes with the operation's final error. Duration and error
// counts land in the RED instruments tagged by operation.
func (p *Provider) TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, name, trace.WithAttributes(attrs...))

	opAttr := append([]attribute.KeyValue{attribute.String("operation", name)}, attrs...)
	p.requests.Add(ctx, 1, metric.WithAttributes(opAttr...))

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			p.errors.Add(ctx, 1, metric.WithAttributes(opAttr...))
		}
		p.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(opAttr...))
		span.End()
	}
}
