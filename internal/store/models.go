package store

import (
	"encoding/json"
	"time"

	"github.com/gnan1985/You-Only-Do-Once/internal/workflow"
)

// WorkflowSummary is one row of the workflow listing.
type WorkflowSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Steps       int       `json:"steps"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Execution is one recorded run of a workflow.
type Execution struct {
	ID         string           `json:"id"`
	WorkflowID string           `json:"workflowId"`
	Mode       string           `json:"mode"`
	Outcome    workflow.Outcome `json:"outcome"`
	Attempted  int              `json:"attempted"`
	Failures   int              `json:"failures"`
	Error      string           `json:"error,omitempty"`
	Result     json.RawMessage  `json:"result"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
}

// Schedule runs a workflow every Interval.
type Schedule struct {
	ID         int64         `json:"id"`
	WorkflowID string        `json:"workflowId"`
	Interval   time.Duration `json:"interval"`
	LastRun    time.Time     `json:"lastRun"`
	Active     bool          `json:"active"`
}

// Success reports whether the run completed
func (e Execution) Success() bool {
	return e.Outcome == workflow.OutcomeCompleted
}

// Due reports whether the schedule should fire at now
func (s Schedule) Due(now time.Time) bool {
	return s.Active && !now.Before(s.LastRun.Add(s.Interval))
}

// Next returns the next time the schedule fires
func (s Schedule) Next() time.Time {
	return s.LastRun.Add(s.Interval)
}
