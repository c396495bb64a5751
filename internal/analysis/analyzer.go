package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/gnan1985/You-Only-Do-Once/internal/observability"
	"github.com/gnan1985/You-Only-Do-Once/internal/tools"
	"github.com/gnan1985/You-Only-Do-Once/internal/workflow"
)

type (
	// Registry is the part of the tool registry the analyzer consults
	Registry interface {
		Resolve(tool, action string) (tools.Operation, error)
		Catalog() tools.Catalog
	}

	// Analyzer asks a language model to turn a recording into workflow
	// steps and checks the answer against the tool registry
	Analyzer struct {
		Model       llms.Model
		Registry    Registry
		Prompts     *PromptManager
		Events      *observability.Logger
		MaxAttempts int
	}

	// Proposal is a workflow draft produced from a recording
	Proposal struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Steps       []workflow.Step `json:"steps"`
	}
)

const (
	proposeTool     = "propose_workflow"
	defaultAttempts = 3
)

var (
	ErrEmptyRecording = errors.New("recording is empty")
	ErrNoProposal     = errors.New("model did not propose a workflow")
	ErrInvalidSteps   = errors.New("proposed steps are invalid")
)

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

func NewAnalyzer(
	model llms.Model, registry Registry, prompts *PromptManager,
	events *observability.Logger,
) *Analyzer {
	if events == nil {
		events = observability.Discard()
	}
	return &Analyzer{
		Model:       model,
		Registry:    registry,
		Prompts:     prompts,
		Events:      events,
		MaxAttempts: defaultAttempts,
	}
}

// Analyze proposes a workflow for a recording. When the model's steps
// name unknown operations or omit required parameters, the problems are
// fed back and the model gets another attempt.
func (a *Analyzer) Analyze(
	ctx context.Context, name string, rec *workflow.Recording,
) (*Proposal, error) {
	if rec.Empty() {
		return nil, ErrEmptyRecording
	}

	systemPrompt, err := a.Prompts.SystemPrompt(a.Registry.Catalog().String())
	if err != nil {
		return nil, err
	}
	input, err := describe(name, rec)
	if err != nil {
		return nil, err
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, input),
	}

	attempts := a.MaxAttempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		resp, err := a.Model.GenerateContent(ctx, messages,
			llms.WithTools([]llms.Tool{proposalTool()}),
		)
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, ErrNoProposal
		}
		choice := resp.Choices[0]
		a.Events.LogAnalysis(ctx, name, messages, choice.Content, choice.ToolCalls)

		p, raw, err := parseChoice(choice)
		if err != nil {
			lastErr = err
			messages = append(messages,
				llms.TextParts(llms.ChatMessageTypeAI, choice.Content),
				llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf(
					"I could not read a workflow from that answer (%v). Call %s with the steps.",
					err, proposeTool,
				)),
			)
			continue
		}

		p.Steps = workflow.Normalize(p.Steps)
		if p.Name == "" {
			p.Name = name
		}
		problems := a.check(p.Steps)
		if len(problems) == 0 {
			return p, nil
		}

		lastErr = fmt.Errorf("%w: %s", ErrInvalidSteps, strings.Join(problems, "; "))
		messages = append(messages,
			llms.TextParts(llms.ChatMessageTypeAI, raw),
			llms.TextParts(llms.ChatMessageTypeHuman,
				"Fix these problems and submit the whole workflow again:\n- "+
					strings.Join(problems, "\n- "),
			),
		)
	}
	return nil, lastErr
}

// check lists every step the registry cannot run as written
func (a *Analyzer) check(steps []workflow.Step) []string {
	var problems []string
	if len(steps) == 0 {
		return []string{"the workflow has no steps"}
	}
	seen := make(map[int]bool, len(steps))
	for _, s := range steps {
		if err := s.Validate(); err != nil {
			problems = append(problems, err.Error())
			continue
		}
		if seen[s.StepNumber] {
			problems = append(problems, fmt.Sprintf(
				"%v: %d", workflow.ErrDuplicateStepIndex, s.StepNumber,
			))
		}
		seen[s.StepNumber] = true
		op, err := a.Registry.Resolve(s.Tool, s.ToolAction)
		if err != nil {
			problems = append(problems, fmt.Sprintf("step %d: %v", s.StepNumber, err))
			continue
		}
		for _, p := range op.Parameters {
			if _, ok := s.Parameters[p.Name]; p.Required && !ok {
				problems = append(problems, fmt.Sprintf(
					"step %d: %s.%s requires parameter %q",
					s.StepNumber, s.Tool, s.ToolAction, p.Name,
				))
			}
		}
	}
	return problems
}

// parseChoice reads a proposal from a propose_workflow call, or from a
// JSON document in the text when the model answered without calling it
func parseChoice(choice *llms.ContentChoice) (*Proposal, string, error) {
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil || tc.FunctionCall.Name != proposeTool {
			continue
		}
		p, err := parseProposal(tc.FunctionCall.Arguments)
		if err != nil {
			return nil, "", fmt.Errorf("failed to parse %s arguments: %w", proposeTool, err)
		}
		return p, tc.FunctionCall.Arguments, nil
	}

	text := strings.TrimSpace(choice.Content)
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	if text == "" || (text[0] != '{' && text[0] != '[') {
		return nil, "", ErrNoProposal
	}
	p, err := parseProposal(text)
	if err != nil {
		return nil, "", err
	}
	return p, text, nil
}

// parseProposal accepts a proposal object or a bare step list
func parseProposal(data string) (*Proposal, error) {
	data = strings.TrimSpace(data)
	if strings.HasPrefix(data, "[") {
		var steps []workflow.Step
		if err := json.Unmarshal([]byte(data), &steps); err != nil {
			return nil, err
		}
		return &Proposal{Steps: steps}, nil
	}
	var p Proposal
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// describe renders the recording as the user message
func describe(name string, rec *workflow.Recording) (string, error) {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if name != "" {
		fmt.Fprintf(&b, "Workflow name: %s\n\n", name)
	}
	if len(rec.Intents) > 0 {
		b.WriteString("What I was trying to do:\n")
		for _, in := range rec.Intents {
			fmt.Fprintf(&b, "- %s\n", in.Text)
		}
		b.WriteString("\n")
	}
	b.WriteString("Recording:\n")
	b.Write(data)
	return b.String(), nil
}

func proposalTool() llms.Tool {
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        proposeTool,
			Description: "Submit the workflow learned from the recording.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":        map[string]any{"type": "string"},
					"description": map[string]any{"type": "string"},
					"steps": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"stepNumber":     map[string]any{"type": "integer"},
								"description":    map[string]any{"type": "string"},
								"tool":           map[string]any{"type": "string"},
								"toolAction":     map[string]any{"type": "string"},
								"parameters":     map[string]any{"type": "object"},
								"expectedOutput": map[string]any{"type": "string"},
								"errorHandling": map[string]any{
									"type": "string",
									"enum": []string{"stop", "continue", "ask"},
								},
							},
							"required": []string{
								"stepNumber", "description", "tool",
								"toolAction", "parameters",
							},
						},
					},
				},
				"required": []string{"steps"},
			},
		},
	}
}
