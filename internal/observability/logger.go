package observability

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gnan1985/You-Only-Do-Once/internal/workflow"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventRunStarted  EventType = "run_started"
	EventStepResult  EventType = "step_result"
	EventPolicy      EventType = "policy"
	EventRunFinished EventType = "run_finished"
	EventAnalysis    EventType = "analysis"
	EventSchedule    EventType = "schedule"
	EventHeartbeat   EventType = "heartbeat"
)

const defaultAuditSize = 10 * 1024 * 1024

// Event represents a structured log entry.
type Event struct {
	Type       EventType      `json:"type"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	RunID      string         `json:"run_id,omitempty"`
	Data       map[string]any `json:"data"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Logger emits typed events through slog. Analysis events are also
// appended to a size-rotated JSONL audit file.
type Logger struct {
	log       *slog.Logger
	auditPath string
	maxSize   int64
	mu        sync.Mutex
}

// NewLogger constructs a JSON slog.Logger writing to stdout
func NewLogger(service, env, version string, lvl slog.Level) *slog.Logger {
	return NewLoggerTo(os.Stdout, service, env, version, lvl)
}

// NewLoggerTo constructs a JSON slog.Logger writing to w
func NewLoggerTo(
	w io.Writer, service, env, version string, lvl slog.Level,
) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: lvl,
	})

	return slog.New(handler).With(
		slog.String("service", service),
		slog.String("env", env),
		slog.String("version", version))
}

// ParseLevel maps a level name onto a slog level, defaulting to info
func ParseLevel(name string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// NewEventLogger wraps base. An empty auditDir disables the audit file.
func NewEventLogger(base *slog.Logger, auditDir string) *Logger {
	if base == nil {
		base = slog.New(slog.DiscardHandler)
	}
	l := &Logger{log: base, maxSize: defaultAuditSize}
	if auditDir != "" {
		l.auditPath = filepath.Join(auditDir, "analysis.jsonl")
	}
	return l
}

// Discard returns a Logger that drops everything
func Discard() *Logger {
	return NewEventLogger(nil, "")
}

// Slog returns the underlying slog.Logger
func (l *Logger) Slog() *slog.Logger {
	return l.log
}

// Log emits a structured event
func (l *Logger) Log(ctx context.Context, lvl slog.Level, evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	attrs := []slog.Attr{slog.String("event", string(evt.Type))}
	if evt.WorkflowID != "" {
		attrs = append(attrs, WorkflowID(evt.WorkflowID))
	}
	if evt.RunID != "" {
		attrs = append(attrs, RunID(evt.RunID))
	}
	for k, v := range evt.Data {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.log.LogAttrs(ctx, lvl, string(evt.Type), attrs...)

	if evt.Type == EventAnalysis && l.auditPath != "" {
		data, err := json.Marshal(evt)
		if err != nil {
			l.log.Warn("failed to marshal audit event", Error(err))
			return
		}
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.auditPath), 0755); err != nil {
		l.log.Warn("failed to create log directory", Error(err))
		return
	}

	info, err := os.Stat(l.auditPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotate()
	}

	f, err := os.OpenFile(l.auditPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		l.log.Warn("failed to open audit log", Error(err))
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		l.log.Warn("failed to write audit log", Error(err))
	}
}

// rotate keeps one .old generation
func (l *Logger) rotate() {
	oldPath := l.auditPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.auditPath, oldPath)
}

func (l *Logger) LogRunStarted(
	ctx context.Context, workflowID, runID string, steps int, dryRun bool,
) {
	l.Log(ctx, slog.LevelInfo, Event{
		Type:       EventRunStarted,
		WorkflowID: workflowID,
		RunID:      runID,
		Data:       map[string]any{"steps": steps, "dry_run": dryRun},
	})
}

func (l *Logger) LogStep(
	ctx context.Context, workflowID string, step workflow.Step,
	entry workflow.LogEntry,
) {
	lvl := slog.LevelInfo
	data := map[string]any{
		"step":   entry.Step,
		"tool":   step.Tool,
		"action": step.ToolAction,
		"status": string(entry.Status),
	}
	if entry.Status == workflow.StatusError {
		lvl = slog.LevelWarn
		data["error"] = entry.Error
	}
	l.Log(ctx, lvl, Event{
		Type:       EventStepResult,
		WorkflowID: workflowID,
		Data:       data,
	})
}

func (l *Logger) LogPolicy(
	ctx context.Context, workflowID string, step int,
	policy workflow.ErrorPolicy, decision string,
) {
	l.Log(ctx, slog.LevelInfo, Event{
		Type:       EventPolicy,
		WorkflowID: workflowID,
		Data: map[string]any{
			"step":     step,
			"policy":   string(policy),
			"decision": decision,
		},
	})
}

func (l *Logger) LogRunFinished(
	ctx context.Context, workflowID, runID string, res *workflow.Result,
	elapsed time.Duration,
) {
	lvl := slog.LevelInfo
	if !res.Success() {
		lvl = slog.LevelWarn
	}
	l.Log(ctx, lvl, Event{
		Type:       EventRunFinished,
		WorkflowID: workflowID,
		RunID:      runID,
		Data: map[string]any{
			"outcome":     string(res.Outcome),
			"attempted":   len(res.ExecutionLog),
			"failures":    res.Failures(),
			"duration_ms": elapsed.Milliseconds(),
		},
	})
}

func (l *Logger) LogAnalysis(
	ctx context.Context, name string, prompt any, response string,
	toolCalls any,
) {
	l.Log(ctx, slog.LevelDebug, Event{
		Type: EventAnalysis,
		Data: map[string]any{
			"workflow_name": name,
			"prompt":        prompt,
			"response":      response,
			"tool_calls":    toolCalls,
		},
	})
}

func (l *Logger) LogSchedule(
	ctx context.Context, workflowID string, scheduleID int64, next time.Time,
) {
	l.Log(ctx, slog.LevelInfo, Event{
		Type:       EventSchedule,
		WorkflowID: workflowID,
		Data: map[string]any{
			"schedule_id": scheduleID,
			"next_run":    next.UTC().Format(time.RFC3339),
		},
	})
}

func (l *Logger) LogHeartbeat(ctx context.Context) {
	l.Log(ctx, slog.LevelDebug, Event{
		Type: EventHeartbeat,
		Data: map[string]any{"status": "alive"},
	})
}
