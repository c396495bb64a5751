package analysis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/gnan1985/You-Only-Do-Once/internal/analysis"
	"github.com/gnan1985/You-Only-Do-Once/internal/tools"
	"github.com/gnan1985/You-Only-Do-Once/internal/workflow"
)

// scriptedModel answers each GenerateContent call with the next choice
type scriptedModel struct {
	choices  []*llms.ContentChoice
	err      error
	messages [][]llms.MessageContent
}

func (m *scriptedModel) GenerateContent(
	_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption,
) (*llms.ContentResponse, error) {
	m.messages = append(m.messages, messages)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.choices) == 0 {
		return &llms.ContentResponse{}, nil
	}
	c := m.choices[0]
	m.choices = m.choices[1:]
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{c}}, nil
}

func (m *scriptedModel) Call(
	context.Context, string, ...llms.CallOption,
) (string, error) {
	return "", errors.New("not supported")
}

func proposal(args string) *llms.ContentChoice {
	return &llms.ContentChoice{
		ToolCalls: []llms.ToolCall{{
			ID:   "call-1",
			Type: "function",
			FunctionCall: &llms.FunctionCall{
				Name:      "propose_workflow",
				Arguments: args,
			},
		}},
	}
}

func recording() *workflow.Recording {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &workflow.Recording{
		Actions: []workflow.Action{
			{Type: "keyboard", Target: "notes.txt", Value: "hello", Timestamp: ts},
		},
		Intents: []workflow.Intent{
			{Text: "save a greeting", Timestamp: ts},
		},
	}
}

func newAnalyzer(t *testing.T, model llms.Model) *analysis.Analyzer {
	t.Helper()
	reg, err := tools.NewDefaultRegistry(tools.Options{Root: t.TempDir()})
	require.NoError(t, err)
	return analysis.NewAnalyzer(model, reg, analysis.NewPromptManager(""), nil)
}

const validArgs = `{
	"name": "greeting",
	"description": "Writes a greeting",
	"steps": [{
		"stepNumber": 1,
		"description": "write the note",
		"tool": "filesystem",
		"toolAction": "write_file",
		"parameters": {"path": "notes.txt", "content": "hello"}
	}]
}`

func TestAnalyzeToolCall(t *testing.T) {
	model := &scriptedModel{choices: []*llms.ContentChoice{proposal(validArgs)}}
	a := newAnalyzer(t, model)

	p, err := a.Analyze(context.Background(), "daily", recording())
	require.NoError(t, err)

	assert.Equal(t, "greeting", p.Name)
	assert.Equal(t, "Writes a greeting", p.Description)
	require.Len(t, p.Steps, 1)
	assert.Equal(t, workflow.PolicyStop, p.Steps[0].ErrorHandling)

	require.Len(t, model.messages, 1)
	msgs := model.messages[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
	system := msgs[0].Parts[0].(llms.TextContent).Text
	assert.Contains(t, system, "## Tool catalog")
	assert.Contains(t, system, "write_file")
	human := msgs[1].Parts[0].(llms.TextContent).Text
	assert.Contains(t, human, "save a greeting")
	assert.Contains(t, human, "notes.txt")
}

func TestAnalyzeFencedFallback(t *testing.T) {
	model := &scriptedModel{choices: []*llms.ContentChoice{{
		Content: "Here you go:\n```json\n" + validArgs + "\n```",
	}}}
	p, err := newAnalyzer(t, model).Analyze(context.Background(), "daily", recording())
	require.NoError(t, err)
	assert.Equal(t, "greeting", p.Name)
}

func TestAnalyzeBareStepList(t *testing.T) {
	model := &scriptedModel{choices: []*llms.ContentChoice{{
		Content: `[{"tool":"files","toolAction":"read_file","parameters":{"path":"a"}}]`,
	}}}
	p, err := newAnalyzer(t, model).Analyze(context.Background(), "daily", recording())
	require.NoError(t, err)
	assert.Equal(t, "daily", p.Name)
	require.Len(t, p.Steps, 1)
	assert.Equal(t, 1, p.Steps[0].StepNumber)
}

func TestAnalyzeRetriesInvalidSteps(t *testing.T) {
	bad := `{"steps":[{"stepNumber":1,"tool":"database","toolAction":"query","parameters":{}}]}`
	model := &scriptedModel{choices: []*llms.ContentChoice{
		proposal(bad), proposal(validArgs),
	}}
	p, err := newAnalyzer(t, model).Analyze(context.Background(), "daily", recording())
	require.NoError(t, err)
	assert.Equal(t, "greeting", p.Name)

	require.Len(t, model.messages, 2)
	retry := model.messages[1]
	require.Len(t, retry, 4)
	feedback := retry[3].Parts[0].(llms.TextContent).Text
	assert.Contains(t, feedback, `unknown tool category: "database"`)
}

func TestAnalyzeMissingRequiredParameter(t *testing.T) {
	missing := `{"steps":[{"stepNumber":1,"tool":"filesystem","toolAction":"write_file","parameters":{"path":"x"}}]}`
	model := &scriptedModel{choices: []*llms.ContentChoice{
		proposal(missing), proposal(missing), proposal(missing),
	}}
	_, err := newAnalyzer(t, model).Analyze(context.Background(), "daily", recording())
	require.ErrorIs(t, err, analysis.ErrInvalidSteps)
	assert.Contains(t, err.Error(), `requires parameter "content"`)
	assert.Len(t, model.messages, 3)
}

func TestAnalyzeNoProposal(t *testing.T) {
	model := &scriptedModel{choices: []*llms.ContentChoice{
		{Content: "I am not sure."},
	}}
	a := newAnalyzer(t, model)
	a.MaxAttempts = 1
	_, err := a.Analyze(context.Background(), "daily", recording())
	assert.ErrorIs(t, err, analysis.ErrNoProposal)
}

func TestAnalyzeEmptyRecording(t *testing.T) {
	model := &scriptedModel{}
	_, err := newAnalyzer(t, model).Analyze(
		context.Background(), "daily", &workflow.Recording{},
	)
	assert.ErrorIs(t, err, analysis.ErrEmptyRecording)
	assert.Empty(t, model.messages)
}

func TestAnalyzeModelError(t *testing.T) {
	boom := errors.New("rate limited")
	model := &scriptedModel{err: boom}
	_, err := newAnalyzer(t, model).Analyze(context.Background(), "daily", recording())
	assert.ErrorIs(t, err, boom)
}

func TestAnalyzeDuplicateStepNumbers(t *testing.T) {
	dup := `{"steps":[
		{"stepNumber":1,"tool":"filesystem","toolAction":"read_file","parameters":{"path":"a"}},
		{"stepNumber":1,"tool":"filesystem","toolAction":"read_file","parameters":{"path":"b"}}]}`
	model := &scriptedModel{choices: []*llms.ContentChoice{
		proposal(dup), proposal(validArgs),
	}}
	p, err := newAnalyzer(t, model).Analyze(context.Background(), "daily", recording())
	require.NoError(t, err)
	assert.Equal(t, "greeting", p.Name)

	require.Len(t, model.messages, 2)
	feedback := model.messages[1][3].Parts[0].(llms.TextContent).Text
	assert.Contains(t, feedback, "duplicate step number: 1")
}
