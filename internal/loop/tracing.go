// Tracing instrumentation for the loop.
package loop

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func tracer() trace.Tracer {
	return otel.Tracer("gyre/loop")
}

// startRunSpan starts the span covering a whole run.
func startRunSpan(ctx context.Context, runID, task string) (context.Context, trace.Span) {
	ctx, span := tracer().Start(ctx, "loop.run")
	span.SetAttributes(
		attribute.String("run.id", runID),
		attribute.String("run.task", task),
	)
	return ctx, span
}

// endRunSpan ends the run span with its terminal state.
func endRunSpan(span trace.Span, state string, err error) {
	span.SetAttributes(attribute.String("run.state", state))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// startIterationSpan starts a span for one iteration.
func startIterationSpan(ctx context.Context, iteration int) (context.Context, trace.Span) {
	ctx, span := tracer().Start(ctx, "loop.iteration")
	span.SetAttributes(attribute.Int("iteration", iteration))
	return ctx, span
}
