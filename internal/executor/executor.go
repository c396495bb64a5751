package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/gnan1985/You-Only-Do-Once/internal/governance"
	"github.com/gnan1985/You-Only-Do-Once/internal/observability"
	"github.com/gnan1985/You-Only-Do-Once/internal/tools"
	"github.com/gnan1985/You-Only-Do-Once/internal/workflow"
)

type (
	// Caller invokes one tool operation. *tools.Registry is the production
	// implementation.
	Caller interface {
		Call(
			ctx context.Context, tool, action string, params map[string]any,
		) tools.Outcome
	}

	// Executor runs the steps of a workflow one at a time, in step order,
	// and folds every per-step failure into the run's result
	Executor struct {
		registry Caller
		guard    governance.PolicyEngine
		events   *observability.Logger
		tracer   trace.Tracer
	}

	// Option configures an Executor
	Option func(*Executor)

	runIDKey struct{}
)

const tracerName = "github.com/gnan1985/You-Only-Do-Once/internal/executor"

// ErrDenied marks a step refused by the governance policy
var ErrDenied = errors.New("step denied by policy")

// ContextWithRunID makes the next run started with ctx use runID instead
// of a generated one
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

func runIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// WithGuard evaluates every step against a policy before it is invoked
func WithGuard(g governance.PolicyEngine) Option {
	return func(e *Executor) {
		e.guard = g
	}
}

// WithLogger sets the event logger
func WithLogger(l *observability.Logger) Option {
	return func(e *Executor) {
		e.events = l
	}
}

// WithTracer overrides the globally registered tracer
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) {
		e.tracer = t
	}
}

// New creates an Executor that invokes steps through registry
func New(registry Caller, opts ...Option) *Executor {
	e := &Executor{
		registry: registry,
		events:   observability.Discard(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes steps sorted by step number. The input slice is not
// modified. Step failures never escape as errors: they are recorded in the
// log and resolved by the failing step's policy.
func (e *Executor) Run(
	ctx context.Context, workflowID string, steps []workflow.Step,
) *workflow.Result {
	return e.run(ctx, workflowID, steps, false)
}

// RunWithConfirmation executes steps like Run. Each step passes an
// approval point first; no approval channel exists, so every step is
// approved immediately.
func (e *Executor) RunWithConfirmation(
	ctx context.Context, workflowID string, steps []workflow.Step,
) *workflow.Result {
	return e.run(ctx, workflowID, steps, true)
}

// DryRun describes what Run would invoke without invoking anything
func (e *Executor) DryRun(
	workflowID string, steps []workflow.Step,
) *workflow.DryRunResult {
	ordered := workflow.Ordered(steps)
	e.events.LogRunStarted(
		context.Background(), workflowID, "", len(ordered), true,
	)

	log := make([]workflow.SimulationEntry, 0, len(ordered))
	for _, s := range ordered {
		log = append(log, workflow.SimulationEntry{
			Step:           s.StepNumber,
			Description:    s.Description,
			Tool:           s.Tool,
			Action:         s.ToolAction,
			Parameters:     clone(s.Parameters),
			ExpectedOutput: s.ExpectedOutput,
			WouldExecute:   true,
		})
	}
	return workflow.Simulated(log)
}

func (e *Executor) run(
	ctx context.Context, workflowID string, steps []workflow.Step,
	confirm bool,
) *workflow.Result {
	ordered := workflow.Ordered(steps)
	total := len(ordered)
	runID := runIDFrom(ctx)
	started := time.Now()

	ctx, span := e.startRunSpan(ctx, workflowID, runID, total, confirm)
	e.events.LogRunStarted(ctx, workflowID, runID, total, false)

	log := make([]workflow.LogEntry, 0, total)
	results := make([]any, 0, total)

	finish := func(res *workflow.Result) *workflow.Result {
		e.endRunSpan(span, res)
		e.events.LogRunFinished(ctx, workflowID, runID, res, time.Since(started))
		return res
	}

	for i, step := range ordered {
		if confirm {
			e.approve(ctx, workflowID, step)
		}

		out := e.invoke(ctx, workflowID, step)
		entry := workflow.LogEntry{
			Step:        step.StepNumber,
			Description: step.Description,
			Timestamp:   time.Now().UTC(),
		}
		if out.OK() {
			entry.Status = workflow.StatusSuccess
			entry.Result = out.Output
			log = append(log, entry)
			results = append(results, out.Output)
			e.events.LogStep(ctx, workflowID, step, entry)
			continue
		}

		msg := out.Err.Error()
		entry.Status = workflow.StatusError
		entry.Error = msg
		log = append(log, entry)
		e.events.LogStep(ctx, workflowID, step, entry)

		switch step.ErrorHandling {
		case workflow.PolicyStop:
			e.events.LogPolicy(ctx, workflowID, step.StepNumber, step.ErrorHandling, "abort")
			return finish(workflow.Aborted(workflowID, msg, log, i, total))
		case workflow.PolicyContinue:
			e.events.LogPolicy(ctx, workflowID, step.StepNumber, step.ErrorHandling, "continue")
		default:
			e.events.LogPolicy(ctx, workflowID, step.StepNumber, step.ErrorHandling, "ask")
			return finish(workflow.InputRequired(workflowID, msg, log))
		}
	}

	return finish(workflow.Completed(workflowID, log, results))
}

// invoke runs one step through the guard and the registry
func (e *Executor) invoke(
	ctx context.Context, workflowID string, step workflow.Step,
) tools.Outcome {
	ctx, span := e.startStepSpan(ctx, step)
	defer span.End()

	if err := e.check(ctx, workflowID, step); err != nil {
		span.RecordError(err)
		return tools.Outcome{Err: err}
	}

	out := e.registry.Call(ctx, step.Tool, step.ToolAction, clone(step.Parameters))
	if out.Err != nil {
		span.RecordError(out.Err)
	}
	endStepSpan(span, out)
	return out
}

func (e *Executor) check(
	ctx context.Context, workflowID string, step workflow.Step,
) error {
	if e.guard == nil {
		return nil
	}
	args, _ := json.Marshal(step.Parameters)
	res, err := e.guard.Evaluate(ctx, governance.Request{
		WorkflowID: workflowID,
		Step:       step.StepNumber,
		Tool:       string(tools.Canonical(step.Tool)),
		Action:     step.ToolAction,
		Arguments:  string(args),
	})
	if err != nil {
		return denied(step, fmt.Errorf("%w: %w", ErrDenied, err))
	}
	if res.Effect == governance.EffectDeny {
		return denied(step, fmt.Errorf("%w: %s", ErrDenied, res.Reason))
	}
	return nil
}

// approve is the per-step approval point of a confirmed run
func (e *Executor) approve(
	ctx context.Context, workflowID string, step workflow.Step,
) {
	e.events.Slog().DebugContext(ctx, "step approved",
		observability.WorkflowID(workflowID),
		observability.Step(step.StepNumber),
	)
}

func denied(step workflow.Step, err error) error {
	return &tools.Error{
		Kind:   tools.KindExecution,
		Tool:   step.Tool,
		Action: step.ToolAction,
		Err:    err,
	}
}

// clone copies the top level of a parameter map so operations cannot
// mutate the caller's step
func clone(params map[string]any) map[string]any {
	res := make(map[string]any, len(params))
	for k, v := range params {
		res[k] = v
	}
	return res
}
