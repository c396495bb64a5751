package governance

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request contains the context of a step to be evaluated.
type Request struct {
	WorkflowID string
	Step       int
	Tool       string
	Action     string
	Arguments  string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine evaluates steps against a set of rules before they run.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultPolicyEngine denies whole tools, single operations ("tool.action")
// and argument patterns.
type DefaultPolicyEngine struct {
	DeniedTools map[string]bool
	DeniedRegex []*regexp.Regexp
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedTools: make(map[string]bool),
		DeniedRegex: make([]*regexp.Regexp, 0),
	}
}

// DenyTool blocks a tool category, or one operation when name has the form
// "tool.action"
func (e *DefaultPolicyEngine) DenyTool(name string) {
	e.DeniedTools[strings.ToLower(strings.TrimSpace(name))] = true
}

func (e *DefaultPolicyEngine) DenyArguments(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(_ context.Context, req Request) (Result, error) {
	tool := strings.ToLower(req.Tool)
	if e.DeniedTools[tool] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("tool '%s' is restricted by policy", req.Tool),
		}, nil
	}
	op := tool + "." + strings.ToLower(req.Action)
	if e.DeniedTools[op] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("operation '%s' is restricted by policy", op),
		}, nil
	}

	for _, re := range e.DeniedRegex {
		if re.MatchString(req.Arguments) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("arguments match restricted pattern: %s", re.String()),
			}, nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "approved by default policy",
	}, nil
}

// FromConfig builds an engine from deny lists
func FromConfig(tools, patterns []string) (*DefaultPolicyEngine, error) {
	e := NewDefaultPolicyEngine()
	for _, t := range tools {
		e.DenyTool(t)
	}
	for _, p := range patterns {
		if err := e.DenyArguments(p); err != nil {
			return nil, fmt.Errorf("invalid deny pattern %q: %w", p, err)
		}
	}
	return e, nil
}
