package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/guillermoBallester/strata"

// Instruments holds pre-created OTel metric instruments.
type Instruments struct {
	DetectionCount    metric.Int64Counter
	DetectionDuration metric.Float64Histogram
	DetectionErrors   metric.Int64Counter
	BytesFetched      metric.Int64Histogram
	ToolDuration      metric.Float64Histogram
}

// NewInstruments creates metric instruments from the global MeterProvider.
// Returns nil-safe instruments: if creation fails, noop instruments are used.
func NewInstruments() *Instruments {
	meter := otel.Meter(meterName)
	return newInstrumentsFromMeter(meter)
}

// NoopInstruments returns instruments that record nothing.
func NoopInstruments() *Instruments {
	meter := noop.NewMeterProvider().Meter(meterName)
	return newInstrumentsFromMeter(meter)
}

func newInstrumentsFromMeter(meter metric.Meter) *Instruments {
	// OTel SDK returns noop instruments on error; safe to discard.
	detectionCount, _ := meter.Int64Counter("strata.detection.count",
		metric.WithDescription("Total number of successful schema detections"),
	)
	detectionDuration, _ := meter.Float64Histogram("strata.detection.duration",
		metric.WithDescription("Schema detection duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	detectionErrors, _ := meter.Int64Counter("strata.detection.errors",
		metric.WithDescription("Total number of failed schema detections"),
	)
	bytesFetched, _ := meter.Int64Histogram("strata.fetch.bytes",
		metric.WithDescription("Bytes transferred per schema detection"),
		metric.WithUnit("By"),
	)
	toolDuration, _ := meter.Float64Histogram("strata.tool.duration",
		metric.WithDescription("MCP tool call duration in milliseconds"),
		metric.WithUnit("ms"),
	)

	return &Instruments{
		DetectionCount:    detectionCount,
		DetectionDuration: detectionDuration,
		DetectionErrors:   detectionErrors,
		BytesFetched:      bytesFetched,
		ToolDuration:      toolDuration,
	}
}

func (i *Instruments) RecordDetectionDuration(ctx context.Context, ms float64) {
	i.DetectionDuration.Record(ctx, ms)
}

func (i *Instruments) IncrementDetectionCount(ctx context.Context) {
	i.DetectionCount.Add(ctx, 1)
}

func (i *Instruments) IncrementDetectionErrors(ctx context.Context) {
	i.DetectionErrors.Add(ctx, 1)
}

func (i *Instruments) RecordBytesFetched(ctx context.Context, n int64) {
	i.BytesFetched.Record(ctx, n)
}

func (i *Instruments) RecordToolDuration(ctx context.Context, ms float64) {
	i.ToolDuration.Record(ctx, ms)
}
