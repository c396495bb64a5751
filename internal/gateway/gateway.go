package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/gnan1985/You-Only-Do-Once/internal/orchestrator"
	"github.com/gnan1985/You-Only-Do-Once/internal/store"
	"github.com/gnan1985/You-Only-Do-Once/internal/workflow"
)

type (
	// Messenger is a chat gateway that can be started, written to and
	// stopped
	Messenger interface {
		Start(ctx context.Context) error
		Send(chatID string, text string) error
		Stop() error
	}

	// Controller is what chat commands act on. *orchestrator.Orchestrator
	// implements it.
	Controller interface {
		Workflows(ctx context.Context) ([]store.WorkflowSummary, error)
		Execute(
			ctx context.Context, workflowID string, mode orchestrator.Mode,
		) (*orchestrator.Run, error)
		DryRun(ctx context.Context, workflowID string) (*workflow.DryRunResult, error)
	}

	// Commands turns chat messages into controller calls
	Commands struct {
		Controller Controller
	}
)

const maxStepLines = 20

const helpText = `Commands:
/list - stored workflows
/run <id> - execute a workflow
/confirm <id> - execute with per-step confirmation
/dryrun <id> - show what a run would do`

// Handle answers one chat message. Anything that is not a known command
// gets the help text.
func (c *Commands) Handle(ctx context.Context, text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return helpText
	}
	// "/run@MyBot id" in group chats
	cmd, _, _ := strings.Cut(strings.ToLower(fields[0]), "@")
	args := fields[1:]

	switch cmd {
	case "/list":
		return c.list(ctx)
	case "/run", "/confirm":
		if len(args) != 1 {
			return "usage: " + cmd + " <workflow id>"
		}
		mode := orchestrator.ModeNormal
		if cmd == "/confirm" {
			mode = orchestrator.ModeConfirm
		}
		run, err := c.Controller.Execute(ctx, args[0], mode)
		if err != nil {
			return fmt.Sprintf("could not run %s: %v", args[0], err)
		}
		return Summary(run)
	case "/dryrun":
		if len(args) != 1 {
			return "usage: /dryrun <workflow id>"
		}
		res, err := c.Controller.DryRun(ctx, args[0])
		if err != nil {
			return fmt.Sprintf("could not simulate %s: %v", args[0], err)
		}
		return DryRunSummary(args[0], res)
	default:
		return helpText
	}
}

func (c *Commands) list(ctx context.Context) string {
	wfs, err := c.Controller.Workflows(ctx)
	if err != nil {
		return fmt.Sprintf("could not list workflows: %v", err)
	}
	if len(wfs) == 0 {
		return "No workflows stored yet."
	}
	var b strings.Builder
	b.WriteString("Workflows:\n")
	for _, wf := range wfs {
		fmt.Fprintf(&b, "%s  %s (%d steps)\n", wf.ID, wf.Name, wf.Steps)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Summary renders a finished run as plain chat text
func Summary(run *orchestrator.Run) string {
	res := run.Result
	var b strings.Builder

	switch res.Outcome {
	case workflow.OutcomeCompleted:
		if n := res.Failures(); n > 0 {
			fmt.Fprintf(&b, "⚠ %s completed with %d failed steps\n", run.Name, n)
		} else {
			fmt.Fprintf(&b, "✔ %s completed\n", run.Name)
		}
	case workflow.OutcomeAborted:
		fmt.Fprintf(&b, "✘ %s stopped after %d of %d steps\n",
			run.Name, res.CompletedSteps, res.TotalSteps)
	case workflow.OutcomeInputRequired:
		fmt.Fprintf(&b, "? %s is waiting for a decision\n", run.Name)
	}

	for i, e := range res.ExecutionLog {
		if i == maxStepLines {
			fmt.Fprintf(&b, "… %d more\n", len(res.ExecutionLog)-i)
			break
		}
		mark := "✔"
		if e.Status == workflow.StatusError {
			mark = "✘"
		}
		fmt.Fprintf(&b, "%s %d. %s\n", mark, e.Step, e.Description)
	}
	if res.Error != "" {
		fmt.Fprintf(&b, "error: %s\n", res.Error)
	}
	fmt.Fprintf(&b, "run %s", run.ID)
	return b.String()
}

// DryRunSummary renders a simulated run as plain chat text
func DryRunSummary(workflowID string, res *workflow.DryRunResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dry run of %s:\n", workflowID)
	for i, e := range res.SimulationLog {
		if i == maxStepLines {
			fmt.Fprintf(&b, "… %d more\n", len(res.SimulationLog)-i)
			break
		}
		fmt.Fprintf(&b, "%d. %s.%s  %s\n", e.Step, e.Tool, e.Action, e.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}
