package operations

import (
	"context"
	"fmt"
	"time"

	"loadcell/internal/infrastructure"
	"loadcell/pkg/contracts/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	TracerName = "loadcell.operation"
)

// OperationTracer provides OpenTelemetry instrumentation for processing runs.
// A nil tracer is valid and records nothing.
type OperationTracer struct {
	tracer  trace.Tracer
	metrics *infrastructure.PipelineMetrics
}

// NewOperationTracer creates a new operation tracer. Without providers spans go
// to the global tracer and no metrics are recorded.
func NewOperationTracer(providers *infrastructure.OTelProviders) (*OperationTracer, error) {
	if providers == nil {
		return &OperationTracer{tracer: otel.Tracer(TracerName)}, nil
	}

	metrics, err := infrastructure.CreatePipelineMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
	}

	tracer := providers.Tracer
	if tracer == nil {
		tracer = otel.Tracer(TracerName)
	}
	return &OperationTracer{tracer: tracer, metrics: metrics}, nil
}

// Metrics returns the instruments shared with the HTTP surface
func (pt *OperationTracer) Metrics() *infrastructure.PipelineMetrics {
	if pt == nil {
		return nil
	}
	return pt.metrics
}

// TraceOperationExecution creates a span for the entire run
func (pt *OperationTracer) TraceOperationExecution(ctx context.Context, operationID string, req OperationRequest) (context.Context, trace.Span) {
	if pt == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return pt.tracer.Start(ctx, "operation.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("operation.id", operationID),
			attribute.String("operation.input", req.Input),
			attribute.String("operation.output_dir", req.OutputDir),
		),
	)
}

// TraceStageExecution creates a span for one stage
func (pt *OperationTracer) TraceStageExecution(ctx context.Context, operationID, stageID string) (context.Context, trace.Span) {
	if pt == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return pt.tracer.Start(ctx, fmt.Sprintf("operation.stage.%s", stageID),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("operation.id", operationID),
			attribute.String("stage.id", stageID),
		),
	)
}

// RecordStageCompletion closes out a stage span and records its duration
func (pt *OperationTracer) RecordStageCompletion(ctx context.Context, span trace.Span, stageID string, duration time.Duration, samples int, err error) {
	if pt == nil {
		return
	}
	span.SetAttributes(
		attribute.Float64("stage.duration_seconds", duration.Seconds()),
		attribute.Int("stage.samples", samples),
	)
	pt.metrics.RecordStage(ctx, stageID, duration, err)

	if err != nil {
		infrastructure.RecordError(ctx, err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "stage completed")
}

// RecordOperationCompletion closes out the run span and records run metrics
func (pt *OperationTracer) RecordOperationCompletion(ctx context.Context, span trace.Span, summary *domain.RunSummary, err error) {
	if pt == nil || summary == nil {
		return
	}
	span.SetAttributes(
		attribute.Int("operation.samples", summary.Samples),
		attribute.Int("operation.missing", summary.Missing),
		attribute.Int("operation.unresolved", summary.Unresolved),
		attribute.Int("operation.events", summary.Events),
		attribute.Int("operation.periods", summary.Periods),
		attribute.String("operation.step", summary.Step.String()),
	)
	pt.metrics.RecordRun(ctx, summary.Duration, summary.Samples, summary.Missing, summary.Events, summary.Periods, err)

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "operation completed")
}
