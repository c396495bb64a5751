package executor

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gnan1985/You-Only-Do-Once/internal/tools"
	"github.com/gnan1985/You-Only-Do-Once/internal/workflow"
)

// startRunSpan starts a span for the whole run.
func (e *Executor) startRunSpan(
	ctx context.Context, workflowID, runID string, steps int, confirm bool,
) (context.Context, trace.Span) {
	ctx, span := e.tracer.Start(ctx, "workflow.run")
	span.SetAttributes(
		attribute.String("workflow.id", workflowID),
		attribute.String("run.id", runID),
		attribute.Int("workflow.steps", steps),
		attribute.Bool("run.confirm", confirm),
	)
	return ctx, span
}

// endRunSpan ends the run span with the outcome.
func (e *Executor) endRunSpan(span trace.Span, res *workflow.Result) {
	span.SetAttributes(
		attribute.String("run.outcome", string(res.Outcome)),
		attribute.Int("run.attempted", len(res.ExecutionLog)),
	)
	if !res.Success() {
		span.SetStatus(codes.Error, res.Error)
	}
	span.End()
}

// startStepSpan starts a span for one step.
func (e *Executor) startStepSpan(
	ctx context.Context, step workflow.Step,
) (context.Context, trace.Span) {
	ctx, span := e.tracer.Start(ctx, "step."+step.ToolAction)
	span.SetAttributes(
		attribute.Int("step.number", step.StepNumber),
		attribute.String("step.tool", step.Tool),
		attribute.String("step.action", step.ToolAction),
		attribute.String("step.policy", string(step.ErrorHandling)),
	)
	return ctx, span
}

func endStepSpan(span trace.Span, out tools.Outcome) {
	if out.Err != nil {
		span.SetAttributes(attribute.String("step.error_kind", string(tools.KindOf(out.Err))))
		span.SetStatus(codes.Error, out.Err.Error())
	}
}
