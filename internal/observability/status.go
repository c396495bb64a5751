package observability

import (
	"slices"
	"sync"
	"time"
)

// ActiveRun describes a workflow run in progress
type ActiveRun struct {
	RunID      string    `json:"runId"`
	WorkflowID string    `json:"workflowId"`
	Mode       string    `json:"mode"`
	StartedAt  time.Time `json:"startedAt"`
}

// Snapshot is a point-in-time copy of a Status
type Snapshot struct {
	Active        []ActiveRun `json:"active"`
	Completed     int64       `json:"completed"`
	Failed        int64       `json:"failed"`
	LastHeartbeat time.Time   `json:"lastHeartbeat"`
	Uptime        string      `json:"uptime"`
}

// Status tracks the runs currently executing in this process
type Status struct {
	mu            sync.RWMutex
	active        map[string]ActiveRun
	completed     int64
	failed        int64
	started       time.Time
	lastHeartbeat time.Time
}

func NewStatus() *Status {
	now := time.Now()
	return &Status{
		active:        map[string]ActiveRun{},
		started:       now,
		lastHeartbeat: now,
	}
}

// Begin records a run as active
func (s *Status) Begin(run ActiveRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	s.active[run.RunID] = run
}

// End removes a run and counts its outcome
func (s *Status) End(runID string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[runID]; !ok {
		return
	}
	delete(s.active, runID)
	if success {
		s.completed++
	} else {
		s.failed++
	}
}

// Heartbeat updates the last heartbeat time.
func (s *Status) Heartbeat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHeartbeat = time.Now()
}

// Snapshot returns a copy of the current state, active runs oldest first
func (s *Status) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]ActiveRun, 0, len(s.active))
	for _, r := range s.active {
		active = append(active, r)
	}
	slices.SortFunc(active, func(a, b ActiveRun) int {
		return a.StartedAt.Compare(b.StartedAt)
	})
	return Snapshot{
		Active:        active,
		Completed:     s.completed,
		Failed:        s.failed,
		LastHeartbeat: s.lastHeartbeat,
		Uptime:        time.Since(s.started).Round(time.Second).String(),
	}
}
