// Package observability wires structured logging and OpenTelemetry metrics.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/karbonuyum/platform"

// Metrics holds the counters and histograms the services record.
type Metrics struct {
	CalcRequests    metric.Int64Counter
	CalcFallbacks   metric.Int64Counter
	EventsProcessed metric.Int64Counter
	EventsSkipped   metric.Int64Counter
	EventsDead      metric.Int64Counter
	OCRConfidence   metric.Float64Histogram
	QueueDepth      metric.Int64Gauge
}

// NewMetrics registers the instrument set on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error
	if m.CalcRequests, err = meter.Int64Counter("calc_requests_total",
		metric.WithDescription("Emission calculations attempted, by provider and outcome")); err != nil {
		return nil, fmt.Errorf("observability: register counter: %w", err)
	}
	if m.CalcFallbacks, err = meter.Int64Counter("calc_fallbacks_total",
		metric.WithDescription("Calculations served by the internal factor table")); err != nil {
		return nil, fmt.Errorf("observability: register counter: %w", err)
	}
	if m.EventsProcessed, err = meter.Int64Counter("events_processed_total",
		metric.WithDescription("Events fully processed, by queue")); err != nil {
		return nil, fmt.Errorf("observability: register counter: %w", err)
	}
	if m.EventsSkipped, err = meter.Int64Counter("events_skipped_total",
		metric.WithDescription("Events acknowledged as duplicates")); err != nil {
		return nil, fmt.Errorf("observability: register counter: %w", err)
	}
	if m.EventsDead, err = meter.Int64Counter("events_dead_lettered_total",
		metric.WithDescription("Events moved to the dead letter queue")); err != nil {
		return nil, fmt.Errorf("observability: register counter: %w", err)
	}
	if m.OCRConfidence, err = meter.Float64Histogram("ocr_confidence",
		metric.WithDescription("Confidence score of completed OCR extractions")); err != nil {
		return nil, fmt.Errorf("observability: register histogram: %w", err)
	}
	if m.QueueDepth, err = meter.Int64Gauge("queue_depth",
		metric.WithDescription("Waiting messages per queue")); err != nil {
		return nil, fmt.Errorf("observability: register gauge: %w", err)
	}
	return m, nil
}

// SetupMeterProvider installs an OTLP gRPC exporter when an endpoint is
// configured. Without one the no-op global provider stays in place and
// recording is free.
func SetupMeterProvider(ctx context.Context, endpoint string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("observability: create OTLP exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp,
			sdkmetric.WithInterval(30*time.Second))))
	otel.SetMeterProvider(provider)
	return provider.Shutdown, nil
}

// NewLogger builds the process-wide slog logger writing JSON to stderr.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN", "WARNING":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
