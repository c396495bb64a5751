package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gnan1985/You-Only-Do-Once/internal/observability"
	"github.com/gnan1985/You-Only-Do-Once/internal/orchestrator"
	"github.com/gnan1985/You-Only-Do-Once/internal/server"
	"github.com/gnan1985/You-Only-Do-Once/internal/workflow"
)

var stdout io.Writer = os.Stdout

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// withRuntime builds the runtime for the duration of fn
func withRuntime(g *Globals, fn func(context.Context, *runtime) error) error {
	ctx, stop := signalContext()
	defer stop()
	rt, err := newRuntime(ctx, g)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

// documentPath reports whether ref names a workflow file rather than a
// stored workflow ID
func documentPath(ref string) bool {
	if _, err := workflow.FormatFor(ref); err != nil {
		return false
	}
	info, err := os.Stat(ref)
	return err == nil && !info.IsDir()
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *RunCmd) Run(g *Globals) error {
	return withRuntime(g, func(ctx context.Context, rt *runtime) error {
		var res *workflow.Result
		name := c.Workflow

		if documentPath(c.Workflow) {
			wf, err := workflow.LoadFile(c.Workflow)
			if err != nil {
				return err
			}
			if wf.Name != "" {
				name = wf.Name
			}
			if c.Confirm {
				res = rt.executor.RunWithConfirmation(ctx, wf.ID, wf.Steps)
			} else {
				res = rt.executor.Run(ctx, wf.ID, wf.Steps)
			}
		} else {
			mode := orchestrator.ModeNormal
			if c.Confirm {
				mode = orchestrator.ModeConfirm
			}
			run, err := rt.orch.Execute(ctx, c.Workflow, mode)
			if err != nil {
				return err
			}
			name = run.Name
			res = run.Result
		}

		if c.JSON {
			if err := printJSON(res); err != nil {
				return err
			}
		} else {
			observability.PrintResult(stdout, name, res)
		}
		if !res.Success() {
			return fmt.Errorf("workflow %s did not complete: %s", name, res.Error)
		}
		return nil
	})
}

func (c *DryRunCmd) Run(g *Globals) error {
	return withRuntime(g, func(ctx context.Context, rt *runtime) error {
		var res *workflow.DryRunResult
		name := c.Workflow

		if documentPath(c.Workflow) {
			wf, err := workflow.LoadFile(c.Workflow)
			if err != nil {
				return err
			}
			if wf.Name != "" {
				name = wf.Name
			}
			res = rt.executor.DryRun(wf.ID, wf.Steps)
		} else {
			var err error
			if res, err = rt.orch.DryRun(ctx, c.Workflow); err != nil {
				return err
			}
		}

		if c.JSON {
			return printJSON(res)
		}
		observability.PrintDryRun(stdout, name, res)
		return nil
	})
}

func (c *LearnCmd) Run(g *Globals) error {
	rec, err := loadRecording(c.Recording)
	if err != nil {
		return err
	}
	return withRuntime(g, func(ctx context.Context, rt *runtime) error {
		wf, err := rt.orch.Learn(ctx, c.Name, rec)
		if err != nil {
			return err
		}
		if c.Output != "" {
			if err := workflow.SaveFile(c.Output, wf); err != nil {
				return err
			}
		}
		fmt.Fprintf(stdout, "learned %s (%s) with %d steps\n", wf.Name, wf.ID, len(wf.Steps))
		return nil
	})
}

// loadRecording reads a JSON or YAML recording file
func loadRecording(path string) (*workflow.Recording, error) {
	f, err := workflow.FormatFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec workflow.Recording
	if f == workflow.FormatJSON {
		err = json.Unmarshal(data, &rec)
	} else {
		err = yaml.Unmarshal(data, &rec)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode recording: %w", err)
	}
	return &rec, nil
}

func (c *ImportCmd) Run(g *Globals) error {
	wf, err := workflow.LoadFile(c.File)
	if err != nil {
		return err
	}
	return withRuntime(g, func(ctx context.Context, rt *runtime) error {
		if err := rt.orch.Save(ctx, wf); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "imported %s (%s)\n", wf.Name, wf.ID)
		return nil
	})
}

func (c *ExportCmd) Run(g *Globals) error {
	return withRuntime(g, func(ctx context.Context, rt *runtime) error {
		wf, err := rt.store.GetWorkflow(ctx, c.ID)
		if err != nil {
			return err
		}
		if c.Output != "" {
			return workflow.SaveFile(c.Output, wf)
		}
		return workflow.Encode(stdout, wf, workflow.Format(c.Format))
	})
}

func (c *ListCmd) Run(g *Globals) error {
	return withRuntime(g, func(ctx context.Context, rt *runtime) error {
		wfs, err := rt.orch.Workflows(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tSTEPS\tUPDATED")
		for _, wf := range wfs {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n",
				wf.ID, wf.Name, wf.Steps, wf.UpdatedAt.Local().Format(time.DateTime))
		}
		return tw.Flush()
	})
}

func (c *HistoryCmd) Run(g *Globals) error {
	return withRuntime(g, func(ctx context.Context, rt *runtime) error {
		execs, err := rt.store.ListExecutions(ctx, c.ID, c.Limit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tSTARTED\tMODE\tOUTCOME\tSTEPS\tFAILED\tERROR")
		for _, e := range execs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
				e.ID, e.StartedAt.Local().Format(time.DateTime), e.Mode,
				e.Outcome, e.Attempted, e.Failures, e.Error)
		}
		return tw.Flush()
	})
}

func (c *CatalogCmd) Run(g *Globals) error {
	return withRuntime(g, func(_ context.Context, rt *runtime) error {
		cat := rt.registry.Catalog()
		if c.JSON {
			return printJSON(cat)
		}
		_, err := fmt.Fprint(stdout, cat.String())
		return err
	})
}

func (c *ScheduleAddCmd) Run(g *Globals) error {
	every, err := time.ParseDuration(c.Every)
	if err != nil {
		return fmt.Errorf("invalid interval %q: %w", c.Every, err)
	}
	return withRuntime(g, func(ctx context.Context, rt *runtime) error {
		if _, err := rt.store.GetWorkflow(ctx, c.ID); err != nil {
			return err
		}
		id, err := rt.store.AddSchedule(ctx, c.ID, every)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "schedule %d runs %s every %s\n", id, c.ID, every)
		return nil
	})
}

func (c *ScheduleListCmd) Run(g *Globals) error {
	return withRuntime(g, func(ctx context.Context, rt *runtime) error {
		list, err := rt.store.ListSchedules(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tWORKFLOW\tEVERY\tNEXT\tACTIVE")
		for _, s := range list {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\n", s.ID, s.WorkflowID,
				s.Interval, s.Next().Local().Format(time.DateTime), s.Active)
		}
		return tw.Flush()
	})
}

func (c *ScheduleClearCmd) Run(g *Globals) error {
	return withRuntime(g, func(ctx context.Context, rt *runtime) error {
		return rt.store.ClearSchedules(ctx, c.ID)
	})
}

func (c *ServeCmd) Run(g *Globals) error {
	return withRuntime(g, func(ctx context.Context, rt *runtime) error {
		observability.PrintBanner(os.Stderr)

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		var wg sync.WaitGroup
		errCh := make(chan error, 2)

		if rt.cfg.Scheduler.Enabled || c.Scheduler {
			s := orchestrator.NewScheduler(rt.orch, rt.events, rt.cfg.Scheduler.PollInterval.Std())
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.Start(ctx)
			}()
		}

		if rt.telegram != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := rt.telegram.Start(ctx); err != nil {
					errCh <- fmt.Errorf("telegram gateway: %w", err)
				}
			}()
			defer func() { _ = rt.telegram.Stop() }()
		}

		if !c.NoAPI {
			addr := c.Addr
			if addr == "" {
				addr = rt.cfg.Addr()
			}
			srv := server.NewServer(rt.orch, rt.registry.Catalog(), rt.log)
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := srv.Serve(ctx, addr); err != nil {
					errCh <- fmt.Errorf("api server: %w", err)
				}
			}()
		}

		var err error
		select {
		case <-ctx.Done():
		case err = <-errCh:
		}
		cancel()
		wg.Wait()
		rt.log.Info("shutdown complete")
		return err
	})
}

func (c *VersionCmd) Run(*Globals) error {
	fmt.Fprintf(stdout, "yodo version %s (commit: %s)\n", version, commit)
	return nil
}
