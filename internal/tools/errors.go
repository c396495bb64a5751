package tools

import (
	"errors"
	"fmt"
)

// Kind classifies a step failure
type Kind string

const (
	// KindConfiguration means the step names a tool or action that does
	// not exist
	KindConfiguration Kind = "ConfigurationError"

	// KindValidation means a parameter was missing or malformed
	KindValidation Kind = "ValidationError"

	// KindExecution means the underlying operation failed
	KindExecution Kind = "ExecutionError"
)

var (
	ErrUnknownCategory  = errors.New("unknown tool category")
	ErrUnknownOperation = errors.New("unknown tool operation")
	ErrMissingParameter = errors.New("missing required parameter")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrDuplicateTool    = errors.New("duplicate tool category")
	ErrDuplicateAction  = errors.New("duplicate tool operation")
)

// Error is a classified step failure
type Error struct {
	Kind   Kind
	Tool   string
	Action string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a step failure. Unclassified errors count as
// execution failures.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindExecution
}

func configurationError(tool, action string, err error) error {
	return &Error{Kind: KindConfiguration, Tool: tool, Action: action, Err: err}
}

func validationError(format string, args ...any) error {
	return &Error{Kind: KindValidation, Err: fmt.Errorf(format, args...)}
}

func executionError(format string, args ...any) error {
	return &Error{Kind: KindExecution, Err: fmt.Errorf(format, args...)}
}

func classify(err error, tool Category, action string) error {
	var te *Error
	if !errors.As(err, &te) {
		te = &Error{Kind: KindExecution, Err: err}
	}
	if te.Tool == "" {
		te.Tool = string(tool)
	}
	if te.Action == "" {
		te.Action = action
	}
	return te
}
