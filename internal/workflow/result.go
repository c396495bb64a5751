package workflow

import (
	"encoding/json"
	"time"
)

// EntryStatus is the outcome of one attempted step
type EntryStatus string

const (
	StatusSuccess EntryStatus = "success"
	StatusError   EntryStatus = "error"
)

// Outcome discriminates the three terminal shapes of a run
type Outcome string

const (
	OutcomeCompleted     Outcome = "completed"
	OutcomeAborted       Outcome = "aborted"
	OutcomeInputRequired Outcome = "input_required"
)

// LogEntry records one attempted step. Entries are append-only and steps
// skipped because of an abort never get one.
type LogEntry struct {
	Step        int         `json:"step"`
	Description string      `json:"description"`
	Status      EntryStatus `json:"status"`
	Result      any         `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// Result is the terminal output of one executor run. Only the fields
// belonging to its Outcome are serialized.
type Result struct {
	Outcome        Outcome
	WorkflowID     string
	Error          string
	ExecutionLog   []LogEntry
	Results        []any
	CompletedSteps int
	TotalSteps     int
	Timestamp      time.Time
}

// SimulationEntry describes what a step would have done
type SimulationEntry struct {
	Step           int            `json:"step"`
	Description    string         `json:"description"`
	Tool           string         `json:"tool"`
	Action         string         `json:"toolAction"`
	Parameters     map[string]any `json:"parameters"`
	ExpectedOutput string         `json:"expectedOutput"`
	WouldExecute   bool           `json:"wouldExecute"`
}

// DryRunResult is the output of a simulated run
type DryRunResult struct {
	Success       bool              `json:"success"`
	IsDryRun      bool              `json:"isDryRun"`
	SimulationLog []SimulationEntry `json:"simulationLog"`
	Timestamp     time.Time         `json:"timestamp"`
}

type (
	completedShape struct {
		Success      bool       `json:"success"`
		WorkflowID   string     `json:"workflowId"`
		ExecutionLog []LogEntry `json:"executionLog"`
		Results      []any      `json:"results"`
		Timestamp    time.Time  `json:"timestamp"`
	}

	abortedShape struct {
		Success        bool       `json:"success"`
		Error          string     `json:"error"`
		ExecutionLog   []LogEntry `json:"executionLog"`
		CompletedSteps int        `json:"completedSteps"`
		TotalSteps     int        `json:"totalSteps"`
		Timestamp      time.Time  `json:"timestamp"`
	}

	inputRequiredShape struct {
		Success           bool       `json:"success"`
		RequiresUserInput bool       `json:"requiresUserInput"`
		Error             string     `json:"error"`
		ExecutionLog      []LogEntry `json:"executionLog"`
		Timestamp         time.Time  `json:"timestamp"`
	}

	anyShape struct {
		Success           bool       `json:"success"`
		RequiresUserInput bool       `json:"requiresUserInput"`
		WorkflowID        string     `json:"workflowId"`
		Error             string     `json:"error"`
		ExecutionLog      []LogEntry `json:"executionLog"`
		Results           []any      `json:"results"`
		CompletedSteps    int        `json:"completedSteps"`
		TotalSteps        int        `json:"totalSteps"`
		Timestamp         time.Time  `json:"timestamp"`
	}
)

// Completed builds the result of a run that reached the end of its steps.
// Steps that failed under the continue policy are visible only in the log.
func Completed(workflowID string, log []LogEntry, results []any) *Result {
	return &Result{
		Outcome:      OutcomeCompleted,
		WorkflowID:   workflowID,
		ExecutionLog: nonNil(log),
		Results:      nonNil(results),
		TotalSteps:   len(log),
		Timestamp:    now(),
	}
}

// Aborted builds the result of a run terminated by a stop policy.
// completed is the number of steps attempted before the failing one.
func Aborted(
	workflowID, errMsg string, log []LogEntry, completed, total int,
) *Result {
	return &Result{
		Outcome:        OutcomeAborted,
		WorkflowID:     workflowID,
		Error:          errMsg,
		ExecutionLog:   nonNil(log),
		CompletedSteps: completed,
		TotalSteps:     total,
		Timestamp:      now(),
	}
}

// InputRequired builds the result of a run terminated because a failed
// step asked for a decision nobody is available to make
func InputRequired(workflowID, errMsg string, log []LogEntry) *Result {
	return &Result{
		Outcome:      OutcomeInputRequired,
		WorkflowID:   workflowID,
		Error:        errMsg,
		ExecutionLog: nonNil(log),
		Timestamp:    now(),
	}
}

// Simulated builds a dry-run result
func Simulated(log []SimulationEntry) *DryRunResult {
	return &DryRunResult{
		Success:       true,
		IsDryRun:      true,
		SimulationLog: nonNil(log),
		Timestamp:     now(),
	}
}

// Success reports the top-level success flag
func (r *Result) Success() bool {
	return r.Outcome == OutcomeCompleted
}

// RequiresUserInput reports whether the run stopped waiting for a decision
func (r *Result) RequiresUserInput() bool {
	return r.Outcome == OutcomeInputRequired
}

// Failures counts the error entries in the log, including those that a
// continue policy suppressed
func (r *Result) Failures() int {
	n := 0
	for _, e := range r.ExecutionLog {
		if e.Status == StatusError {
			n++
		}
	}
	return n
}

// MarshalJSON emits exactly the fields of the result's shape
func (r *Result) MarshalJSON() ([]byte, error) {
	switch r.Outcome {
	case OutcomeCompleted:
		return json.Marshal(completedShape{
			Success:      true,
			WorkflowID:   r.WorkflowID,
			ExecutionLog: nonNil(r.ExecutionLog),
			Results:      nonNil(r.Results),
			Timestamp:    r.Timestamp,
		})
	case OutcomeInputRequired:
		return json.Marshal(inputRequiredShape{
			RequiresUserInput: true,
			Error:             r.Error,
			ExecutionLog:      nonNil(r.ExecutionLog),
			Timestamp:         r.Timestamp,
		})
	default:
		return json.Marshal(abortedShape{
			Error:          r.Error,
			ExecutionLog:   nonNil(r.ExecutionLog),
			CompletedSteps: r.CompletedSteps,
			TotalSteps:     r.TotalSteps,
			Timestamp:      r.Timestamp,
		})
	}
}

// UnmarshalJSON infers the outcome from the shape's flags. The workflow ID
// is only carried by the completed shape.
func (r *Result) UnmarshalJSON(data []byte) error {
	var s anyShape
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*r = Result{
		WorkflowID:     s.WorkflowID,
		Error:          s.Error,
		ExecutionLog:   s.ExecutionLog,
		Results:        s.Results,
		CompletedSteps: s.CompletedSteps,
		TotalSteps:     s.TotalSteps,
		Timestamp:      s.Timestamp,
	}
	switch {
	case s.Success:
		r.Outcome = OutcomeCompleted
		r.TotalSteps = len(s.ExecutionLog)
	case s.RequiresUserInput:
		r.Outcome = OutcomeInputRequired
	default:
		r.Outcome = OutcomeAborted
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func now() time.Time {
	return time.Now().UTC()
}
