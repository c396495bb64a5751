package store_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnan1985/You-Only-Do-Once/internal/store"
	"github.com/gnan1985/You-Only-Do-Once/internal/workflow"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "data", "yodo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleWorkflow() *workflow.Workflow {
	return workflow.NewWorkflow("tidy downloads", []workflow.Step{
		{StepNumber: 1, Tool: "filesystem", ToolAction: "list_files",
			Parameters: map[string]any{"path": "~/Downloads"}, ErrorHandling: workflow.PolicyStop},
		{StepNumber: 2, Tool: "shell", ToolAction: "execute_command",
			Parameters: map[string]any{"command": "ls"}, ErrorHandling: workflow.PolicyContinue},
	})
}

func TestWorkflowCRUD(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	wf := sampleWorkflow()

	require.NoError(t, s.SaveWorkflow(ctx, wf))
	assert.False(t, wf.CreatedAt.IsZero())

	got, err := s.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.Name, got.Name)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, "~/Downloads", got.Steps[0].Parameters["path"])
	assert.Equal(t, workflow.PolicyContinue, got.Steps[1].ErrorHandling)

	wf.Name = "tidy"
	require.NoError(t, s.SaveWorkflow(ctx, wf))
	list, err := s.ListWorkflows(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "tidy", list[0].Name)
	assert.Equal(t, 2, list[0].Steps)

	require.NoError(t, s.DeleteWorkflow(ctx, wf.ID))
	_, err = s.GetWorkflow(ctx, wf.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.DeleteWorkflow(ctx, wf.ID), store.ErrNotFound)

	assert.ErrorIs(t, s.SaveWorkflow(ctx, &workflow.Workflow{}), store.ErrMissingWorkflow)
}

func TestExecutions(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for i, outcome := range []workflow.Outcome{
		workflow.OutcomeCompleted, workflow.OutcomeAborted, workflow.OutcomeCompleted,
	} {
		require.NoError(t, s.AddExecution(ctx, store.Execution{
			ID:         string(rune('a' + i)),
			WorkflowID: "wf",
			Mode:       "run",
			Outcome:    outcome,
			Attempted:  i + 1,
			Result:     json.RawMessage(`{"success":true}`),
			StartedAt:  base.Add(time.Duration(i) * time.Second),
			FinishedAt: base.Add(time.Duration(i)*time.Second + 500*time.Millisecond),
		}))
	}
	require.NoError(t, s.AddExecution(ctx, store.Execution{
		ID: "other", WorkflowID: "x", Mode: "run", Result: json.RawMessage(`{}`),
	}))

	list, err := s.ListExecutions(ctx, "wf", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
	assert.False(t, list[1].Success())
	assert.Equal(t, base.Add(2*time.Second), list[0].StartedAt)
	assert.JSONEq(t, `{"success":true}`, string(list[0].Result))
}

func TestSchedules(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	_, err := s.AddSchedule(ctx, "wf", time.Second)
	assert.ErrorIs(t, err, store.ErrIntervalTooLow)

	id, err := s.AddSchedule(ctx, "wf", time.Hour)
	require.NoError(t, err)

	now := time.Now().UTC()
	due, err := s.DueSchedules(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, id, due[0].ID)
	assert.Equal(t, time.Hour, due[0].Interval)

	require.NoError(t, s.MarkScheduleRun(ctx, id, now))
	due, err = s.DueSchedules(ctx, now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = s.DueSchedules(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, due, 1)

	assert.ErrorIs(t, s.MarkScheduleRun(ctx, 999, now), store.ErrNotFound)

	require.NoError(t, s.ClearSchedules(ctx, "wf"))
	all, err := s.ListSchedules(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
