package workflow

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrorPolicy tells the executor what to do after a step fails.
type ErrorPolicy string

const (
	PolicyStop     ErrorPolicy = "stop"
	PolicyContinue ErrorPolicy = "continue"
	PolicyAsk      ErrorPolicy = "ask"
)

// Step is one unit of declarative work.
type Step struct {
	StepNumber     int            `json:"stepNumber" yaml:"stepNumber"`
	Description    string         `json:"description" yaml:"description"`
	Tool           string         `json:"tool" yaml:"tool"`
	ToolAction     string         `json:"toolAction" yaml:"toolAction"`
	Parameters     map[string]any `json:"parameters" yaml:"parameters"`
	ExpectedOutput string         `json:"expectedOutput,omitempty" yaml:"expectedOutput,omitempty"`
	ErrorHandling  ErrorPolicy    `json:"errorHandling" yaml:"errorHandling"`
}

// Workflow is an ordered procedure learned from a recording.
type Workflow struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Steps       []Step     `json:"steps" yaml:"steps"`
	Recording   *Recording `json:"recording,omitempty" yaml:"recording,omitempty"`
	CreatedAt   time.Time  `json:"createdAt" yaml:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt" yaml:"updatedAt"`
}

var (
	ErrNoSteps            = errors.New("workflow has no steps")
	ErrInvalidStepNumber  = errors.New("step number must be positive")
	ErrMissingTool        = errors.New("step is missing a tool")
	ErrMissingToolAction  = errors.New("step is missing a tool action")
	ErrDuplicateStepIndex = errors.New("duplicate step number")
)

// NewWorkflow creates a workflow with a fresh identifier
func NewWorkflow(name string, steps []Step) *Workflow {
	now := time.Now().UTC()
	return &Workflow{
		ID:        uuid.NewString(),
		Name:      name,
		Steps:     steps,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks the structural invariants of the step list. Step numbers
// do not need to be contiguous or pre-sorted, but they must be positive and
// unique so that execution order is well defined.
func (w *Workflow) Validate() error {
	if len(w.Steps) == 0 {
		return ErrNoSteps
	}
	seen := make(map[int]bool, len(w.Steps))
	for _, s := range w.Steps {
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.StepNumber] {
			return fmt.Errorf("%w: %d", ErrDuplicateStepIndex, s.StepNumber)
		}
		seen[s.StepNumber] = true
	}
	return nil
}

// Ordered returns a copy of the steps sorted by step number
func (w *Workflow) Ordered() []Step {
	return Ordered(w.Steps)
}

// Ordered returns a copy of steps in ascending step number order. The sort
// is stable so equal numbers keep their relative position.
func Ordered(steps []Step) []Step {
	res := slices.Clone(steps)
	slices.SortStableFunc(res, func(a, b Step) int {
		return a.StepNumber - b.StepNumber
	})
	return res
}

// Validate checks a single step in isolation
func (s Step) Validate() error {
	if s.StepNumber <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidStepNumber, s.StepNumber)
	}
	if strings.TrimSpace(s.Tool) == "" {
		return fmt.Errorf("%w (step %d)", ErrMissingTool, s.StepNumber)
	}
	if strings.TrimSpace(s.ToolAction) == "" {
		return fmt.Errorf("%w (step %d)", ErrMissingToolAction, s.StepNumber)
	}
	return nil
}

// Normalize fills in the defaults a generated or hand-edited step list may
// omit: a missing step number becomes the next unused number after the
// preceding step, and an empty error policy becomes stop. Explicit numbers
// and policies are kept as written; Ordered decides execution order and
// Validate rejects duplicates.
func Normalize(steps []Step) []Step {
	used := make(map[int]bool, len(steps))
	for _, s := range steps {
		if s.StepNumber > 0 {
			used[s.StepNumber] = true
		}
	}

	res := make([]Step, len(steps))
	prev := 0
	for i, s := range steps {
		if s.StepNumber <= 0 {
			n := prev + 1
			for used[n] {
				n++
			}
			used[n] = true
			s.StepNumber = n
		}
		if s.ErrorHandling == "" {
			s.ErrorHandling = PolicyStop
		}
		if s.Parameters == nil {
			s.Parameters = map[string]any{}
		}
		prev = s.StepNumber
		res[i] = s
	}
	return res
}
