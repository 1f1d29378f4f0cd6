package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/CodeMonkeyCybersecurity/owaspray/internal/config"
)

// Recorder receives spray metrics.
type Recorder interface {
	RecordAttempt(outcome string, cloud bool, duration time.Duration)
	RecordRecon(tenancy string, endpointFound bool)
	Close() error
}

type telemetry struct {
	tracer         trace.Tracer
	meter          metric.Meter
	tracerProvider *sdktrace.TracerProvider

	attemptCounter  metric.Int64Counter
	attemptDuration metric.Float64Histogram
	reconCounter    metric.Int64Counter
}

func New(ctx context.Context, cfg config.TelemetryConfig) (Recorder, error) {
	if !cfg.Enabled {
		return NewNoop(), nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter sdktrace.SpanExporter

	switch cfg.ExporterType {
	case "otlp":
		client := otlptracehttp.NewClient(
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithInsecure(),
		)
		exp, err := otlptrace.New(ctx, client)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		exporter = exp
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.ExporterType)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRate)),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	meter := otel.Meter(cfg.ServiceName)

	attemptCounter, err := meter.Int64Counter("owaspray.attempts.total",
		metric.WithDescription("Authentication attempts by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	attemptDuration, err := meter.Float64Histogram("owaspray.attempt.duration",
		metric.WithDescription("Authentication attempt duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	reconCounter, err := meter.Int64Counter("owaspray.recon.total",
		metric.WithDescription("Recon runs by tenancy"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &telemetry{
		tracer:          tp.Tracer(cfg.ServiceName),
		meter:           meter,
		tracerProvider:  tp,
		attemptCounter:  attemptCounter,
		attemptDuration: attemptDuration,
		reconCounter:    reconCounter,
	}, nil
}

func (t *telemetry) RecordAttempt(outcome string, cloud bool, duration time.Duration) {
	ctx := context.Background()

	attrs := []attribute.KeyValue{
		attribute.String("attempt.outcome", outcome),
		attribute.Bool("attempt.cloud", cloud),
	}

	t.attemptCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	t.attemptDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

func (t *telemetry) RecordRecon(tenancy string, endpointFound bool) {
	t.reconCounter.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("recon.tenancy", tenancy),
		attribute.Bool("recon.endpoint_found", endpointFound),
	))
}

func (t *telemetry) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return t.tracerProvider.Shutdown(ctx)
}

// NewNoop returns a Recorder that drops everything.
func NewNoop() Recorder {
	return &noopTelemetry{}
}

type noopTelemetry struct{}

func (n *noopTelemetry) RecordAttempt(outcome string, cloud bool, duration time.Duration) {}
func (n *noopTelemetry) RecordRecon(tenancy string, endpointFound bool)                   {}
func (n *noopTelemetry) Close() error                                                     { return nil }
