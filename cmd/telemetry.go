package cmd

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/jilio/statemap/otel"
)

const serviceName = "statemap"

// telemetry owns the providers behind an Observability.
type telemetry struct {
	obs      *otel.Observability
	shutdown func(context.Context) error
}

// setupTelemetry exports to the OTLP endpoint when one is configured, or as
// JSON to stderr with --telemetry. It returns nil when neither is set.
func (s *session) setupTelemetry(ctx context.Context) (*telemetry, error) {
	var (
		spanExporter   sdktrace.SpanExporter
		metricExporter sdkmetric.Exporter
		err            error
	)

	switch {
	case s.cfg.OTLPEndpoint != "":
		endpoint := strings.TrimPrefix(s.cfg.OTLPEndpoint, "http://")
		spanExporter, err = otlptracehttp.New(ctx,
			otlptracehttp.WithInsecure(),
			otlptracehttp.WithEndpoint(endpoint),
		)
		if err != nil {
			return nil, err
		}
		metricExporter, err = otlpmetrichttp.New(ctx,
			otlpmetrichttp.WithInsecure(),
			otlpmetrichttp.WithEndpoint(endpoint),
		)
		if err != nil {
			return nil, err
		}
	case s.opts.Telemetry:
		spanExporter, err = stdouttrace.New(stdouttrace.WithWriter(s.stderr))
		if err != nil {
			return nil, err
		}
		metricExporter, err = stdoutmetric.New(stdoutmetric.WithWriter(s.stderr))
		if err != nil {
			return nil, err
		}
	default:
		return nil, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"", // empty schema URL avoids a conflict with resource.Default
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithResource(res),
	)
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)
	shutdown := func(ctx context.Context) error {
		return errors.Join(tracerProvider.Shutdown(ctx), meterProvider.Shutdown(ctx))
	}

	obs, err := otel.New(
		otel.WithTracerProvider(tracerProvider),
		otel.WithMeterProvider(meterProvider),
	)
	if err != nil {
		return nil, errors.Join(err, shutdown(ctx))
	}
	return &telemetry{obs: obs, shutdown: shutdown}, nil
}
