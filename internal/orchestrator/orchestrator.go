package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gnan1985/You-Only-Do-Once/internal/analysis"
	"github.com/gnan1985/You-Only-Do-Once/internal/archive"
	"github.com/gnan1985/You-Only-Do-Once/internal/executor"
	"github.com/gnan1985/You-Only-Do-Once/internal/lock"
	"github.com/gnan1985/You-Only-Do-Once/internal/observability"
	"github.com/gnan1985/You-Only-Do-Once/internal/store"
	"github.com/gnan1985/You-Only-Do-Once/internal/workflow"
)

type (
	// Mode selects how a stored workflow is executed
	Mode string

	// Run is the outcome of one orchestrated execution
	Run struct {
		ID         string           `json:"runId"`
		WorkflowID string           `json:"workflowId"`
		Name       string           `json:"name"`
		Mode       Mode             `json:"mode"`
		Result     *workflow.Result `json:"result"`
		ArchiveKey string           `json:"archiveKey,omitempty"`
		StartedAt  time.Time        `json:"startedAt"`
		FinishedAt time.Time        `json:"finishedAt"`
	}

	// Notifier is told about every finished run
	Notifier interface {
		Notify(ctx context.Context, run *Run) error
	}

	// Orchestrator owns the lifecycle of stored workflows: it loads them,
	// serializes their runs, and records what happened
	Orchestrator struct {
		store     *store.Store
		executor  *executor.Executor
		analyzer  *analysis.Analyzer
		locker    lock.Locker
		archive   *archive.Archive
		notifiers []Notifier
		status    *observability.Status
		log       *slog.Logger
	}

	// Option configures an Orchestrator
	Option func(*Orchestrator)
)

const (
	ModeNormal  Mode = "normal"
	ModeConfirm Mode = "confirm"
)

var (
	ErrNoAnalyzer  = errors.New("no language model configured")
	ErrUnknownMode = errors.New("unknown execution mode")
)

func WithAnalyzer(a *analysis.Analyzer) Option {
	return func(o *Orchestrator) {
		o.analyzer = a
	}
}

func WithLocker(l lock.Locker) Option {
	return func(o *Orchestrator) {
		o.locker = l
	}
}

func WithArchive(a *archive.Archive) Option {
	return func(o *Orchestrator) {
		o.archive = a
	}
}

func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) {
		if n != nil {
			o.notifiers = append(o.notifiers, n)
		}
	}
}

func WithStatus(s *observability.Status) Option {
	return func(o *Orchestrator) {
		o.status = s
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.log = l
	}
}

func New(st *store.Store, ex *executor.Executor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    st,
		executor: ex,
		locker:   lock.NewMemory(),
		status:   observability.NewStatus(),
		log:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ParseMode accepts "normal" (or empty) and "confirm"
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeNormal:
		return ModeNormal, nil
	case ModeConfirm:
		return ModeConfirm, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

func (o *Orchestrator) Status() *observability.Status {
	return o.status
}

func (o *Orchestrator) Store() *store.Store {
	return o.store
}

func (o *Orchestrator) Workflows(ctx context.Context) ([]store.WorkflowSummary, error) {
	return o.store.ListWorkflows(ctx)
}

// Execute runs a stored workflow. Only one run per workflow may be in
// flight; a second caller gets lock.ErrLocked. Step failures are part of
// the returned Run, not the error.
func (o *Orchestrator) Execute(
	ctx context.Context, workflowID string, mode Mode,
) (*Run, error) {
	wf, err := o.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	release, err := o.locker.Acquire(ctx, "workflow:"+wf.ID)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", wf.ID, err)
	}
	defer release()

	run := &Run{
		ID:         uuid.NewString(),
		WorkflowID: wf.ID,
		Name:       wf.Name,
		Mode:       mode,
		StartedAt:  time.Now().UTC(),
	}
	o.status.Begin(observability.ActiveRun{
		RunID:      run.ID,
		WorkflowID: wf.ID,
		Mode:       string(mode),
		StartedAt:  run.StartedAt,
	})

	runCtx := executor.ContextWithRunID(ctx, run.ID)
	switch mode {
	case ModeConfirm:
		run.Result = o.executor.RunWithConfirmation(runCtx, wf.ID, wf.Steps)
	default:
		run.Result = o.executor.Run(runCtx, wf.ID, wf.Steps)
	}
	run.FinishedAt = time.Now().UTC()
	o.status.End(run.ID, run.Result.Success())
	o.log.InfoContext(ctx, "workflow run finished",
		observability.WorkflowID(wf.ID),
		observability.RunID(run.ID),
		observability.StatusAttr(run.Result.Outcome))

	// Recording and notifying must not be skipped because the caller
	// went away mid-run.
	ctx = context.WithoutCancel(ctx)
	o.record(ctx, run)
	if o.archive != nil {
		key, err := o.archive.Put(ctx, wf.ID, run.ID, run.Result)
		if err != nil {
			o.log.WarnContext(ctx, "failed to archive result",
				observability.RunID(run.ID), observability.Error(err))
		}
		run.ArchiveKey = key
	}
	o.notify(ctx, run)
	return run, nil
}

// DryRun describes what Execute would do without invoking anything
func (o *Orchestrator) DryRun(
	ctx context.Context, workflowID string,
) (*workflow.DryRunResult, error) {
	wf, err := o.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return o.executor.DryRun(wf.ID, wf.Steps), nil
}

// Learn turns a recording into a stored workflow
func (o *Orchestrator) Learn(
	ctx context.Context, name string, rec *workflow.Recording,
) (*workflow.Workflow, error) {
	if o.analyzer == nil {
		return nil, ErrNoAnalyzer
	}
	p, err := o.analyzer.Analyze(ctx, name, rec)
	if err != nil {
		return nil, err
	}
	wf := workflow.NewWorkflow(p.Name, p.Steps)
	wf.Description = p.Description
	wf.Recording = rec
	if err := o.Save(ctx, wf); err != nil {
		return nil, err
	}
	return wf, nil
}

// Save validates and stores a workflow, assigning an ID when it has none
func (o *Orchestrator) Save(ctx context.Context, wf *workflow.Workflow) error {
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	wf.UpdatedAt = now
	wf.Steps = workflow.Normalize(wf.Steps)
	if err := wf.Validate(); err != nil {
		return err
	}
	return o.store.SaveWorkflow(ctx, wf)
}

func (o *Orchestrator) record(ctx context.Context, run *Run) {
	data, err := json.Marshal(run.Result)
	if err != nil {
		o.log.WarnContext(ctx, "failed to encode result",
			observability.RunID(run.ID), observability.Error(err))
		return
	}
	err = o.store.AddExecution(ctx, store.Execution{
		ID:         run.ID,
		WorkflowID: run.WorkflowID,
		Mode:       string(run.Mode),
		Outcome:    run.Result.Outcome,
		Attempted:  len(run.Result.ExecutionLog),
		Failures:   run.Result.Failures(),
		Error:      run.Result.Error,
		Result:     data,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	})
	if err != nil {
		o.log.WarnContext(ctx, "failed to record execution",
			observability.RunID(run.ID), observability.Error(err))
	}
}

func (o *Orchestrator) notify(ctx context.Context, run *Run) {
	for _, n := range o.notifiers {
		if err := n.Notify(ctx, run); err != nil {
			o.log.WarnContext(ctx, "failed to send notification",
				observability.RunID(run.ID), observability.Error(err))
		}
	}
}
