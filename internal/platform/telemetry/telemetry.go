// Package telemetry bootstraps OpenTelemetry tracing and metrics. When
// telemetry is disabled every instrument is a no-op.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/phrazzld/formrelay/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// ScopeName is the instrumentation scope for all spans and instruments.
const ScopeName = "github.com/phrazzld/formrelay"

// Provider holds the tracer and meter handed to components.
type Provider struct {
	Tracer   trace.Tracer
	Meter    metric.Meter
	shutdown func(context.Context) error
}

// Noop returns a Provider whose instruments record nothing.
func Noop() *Provider {
	return &Provider{
		Tracer:   tracenoop.NewTracerProvider().Tracer(ScopeName),
		Meter:    metricnoop.NewMeterProvider().Meter(ScopeName),
		shutdown: func(context.Context) error { return nil },
	}
}

// Init sets up tracing to w (stdout in production) and a metrics provider,
// and installs both as the global providers. Shutdown must be called on exit.
func Init(ctx context.Context, cfg config.TelemetryConfig, w io.Writer) (*Provider, error) {
	if !cfg.Enabled {
		return Noop(), nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return &Provider{
		Tracer: tp.Tracer(ScopeName),
		Meter:  mp.Meter(ScopeName),
		shutdown: func(ctx context.Context) error {
			return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
		},
	}, nil
}

// Shutdown flushes pending spans and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.shutdown == nil {
		return nil
	}
	return p.shutdown(ctx)
}
