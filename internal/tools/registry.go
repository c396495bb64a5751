package tools

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Registry resolves a category and operation name to a callable
// operation. It is immutable once built and safe to share between
// concurrent runs.
type Registry struct {
	tools map[Category]Tool
	ops   map[Category]map[string]Operation
	order []Category
}

// Outcome is the result of calling an operation: either an Output, or an
// error carrying whatever partial Output the operation produced
type Outcome struct {
	Output Output
	Err    error
}

// aliases maps loose category names onto the canonical ones. It is a
// fixed table; callers cannot extend it.
var aliases = map[string]Category{
	"file":     Filesystem,
	"files":    Filesystem,
	"fs":       Filesystem,
	"excel":    Spreadsheet,
	"csv":      Spreadsheet,
	"sheet":    Spreadsheet,
	"sheets":   Spreadsheet,
	"xlsx":     Spreadsheet,
	"http":     Web,
	"browser":  Web,
	"url":      Web,
	"internet": Web,
	"bash":     Shell,
	"terminal": Shell,
	"command":  Shell,
	"cmd":      Shell,
}

// NewRegistry builds a registry from a set of tools. Duplicate categories
// or operation names within a category are rejected.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{
		tools: make(map[Category]Tool, len(tools)),
		ops:   make(map[Category]map[string]Operation, len(tools)),
	}
	for _, t := range tools {
		name := t.Name()
		if _, ok := r.tools[name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, name)
		}
		ops := make(map[string]Operation)
		for _, op := range t.Operations() {
			if _, ok := ops[op.Name]; ok {
				return nil, fmt.Errorf(
					"%w: %s.%s", ErrDuplicateAction, name, op.Name,
				)
			}
			if op.Run == nil {
				return nil, fmt.Errorf(
					"operation %s.%s has no implementation", name, op.Name,
				)
			}
			ops[op.Name] = op
		}
		r.tools[name] = t
		r.ops[name] = ops
		r.order = append(r.order, name)
	}
	return r, nil
}

// Canonical applies the alias table to a category name
func Canonical(name string) Category {
	n := strings.ToLower(strings.TrimSpace(name))
	if c, ok := aliases[n]; ok {
		return c
	}
	return Category(n)
}

// Resolve looks up an operation. The error distinguishes an unknown
// category from an unknown operation within a known category.
func (r *Registry) Resolve(tool, action string) (Operation, error) {
	cat := Canonical(tool)
	ops, ok := r.ops[cat]
	if !ok {
		return Operation{}, configurationError(tool, action,
			fmt.Errorf("%w: %q", ErrUnknownCategory, tool),
		)
	}
	name := strings.ToLower(strings.TrimSpace(action))
	op, ok := ops[name]
	if !ok {
		return Operation{}, configurationError(tool, action,
			fmt.Errorf("%w: %q for tool %q", ErrUnknownOperation, action, cat),
		)
	}
	return op, nil
}

// Call resolves and invokes an operation. An output whose success flag is
// false is reported as a failure, and a panicking operation is converted
// into an execution error rather than taking the caller down with it.
func (r *Registry) Call(
	ctx context.Context, tool, action string, params map[string]any,
) (out Outcome) {
	op, err := r.Resolve(tool, action)
	if err != nil {
		return Outcome{Err: err}
	}

	cat := Canonical(tool)
	defer func() {
		if rec := recover(); rec != nil {
			out = Outcome{Err: classify(
				fmt.Errorf("operation panicked: %v", rec), cat, op.Name,
			)}
		}
	}()

	args := Args(params)
	if args == nil {
		args = Args{}
	}
	res, err := op.Run(ctx, args)
	if err != nil {
		return Outcome{Output: res, Err: classify(err, cat, op.Name)}
	}
	if !res.Succeeded() {
		return Outcome{Output: res, Err: classify(failureOf(res), cat, op.Name)}
	}
	return Outcome{Output: res}
}

// Has reports whether the category (after aliasing) is registered
func (r *Registry) Has(tool string) bool {
	_, ok := r.tools[Canonical(tool)]
	return ok
}

// Categories returns the registered categories in registration order
func (r *Registry) Categories() []Category {
	return slices.Clone(r.order)
}

// OK reports whether the call succeeded
func (o Outcome) OK() bool {
	return o.Err == nil
}

func failureOf(res Output) error {
	if msg, ok := res["error"].(string); ok && msg != "" {
		return errors.New(msg)
	}
	return errors.New("operation reported failure")
}
