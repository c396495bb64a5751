package workflow

import "time"

// Recording is the raw material a workflow is learned from: the user's
// captured actions interleaved with free-text notes about what they meant
type Recording struct {
	Actions []Action `json:"actions" yaml:"actions"`
	Intents []Intent `json:"intents" yaml:"intents"`
}

// Action is a single captured input event
type Action struct {
	Type      string         `json:"type" yaml:"type"`
	Target    string         `json:"target,omitempty" yaml:"target,omitempty"`
	Value     string         `json:"value,omitempty" yaml:"value,omitempty"`
	Details   map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp" yaml:"timestamp"`
}

// Intent is a user annotation explaining a group of actions
type Intent struct {
	Text      string    `json:"text" yaml:"text"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Empty reports whether nothing was captured
func (r *Recording) Empty() bool {
	return r == nil || (len(r.Actions) == 0 && len(r.Intents) == 0)
}
