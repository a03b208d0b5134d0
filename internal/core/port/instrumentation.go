package port

import "context"

// Instrumentation records application-level metrics.
type Instrumentation interface {
	RecordDetectionDuration(ctx context.Context, ms float64)
	IncrementDetectionCount(ctx context.Context)
	IncrementDetectionErrors(ctx context.Context)
	RecordBytesFetched(ctx context.Context, n int64)
	RecordToolDuration(ctx context.Context, ms float64)
}

// NoopInstrumentation discards all metrics.
type NoopInstrumentation struct{}

func (NoopInstrumentation) RecordDetectionDuration(context.Context, float64) {}
func (NoopInstrumentation) IncrementDetectionCount(context.Context)          {}
func (NoopInstrumentation) IncrementDetectionErrors(context.Context)         {}
func (NoopInstrumentation) RecordBytesFetched(context.Context, int64)        {}
func (NoopInstrumentation) RecordToolDuration(context.Context, float64)      {}
