package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/gnan1985/You-Only-Do-Once/internal/workflow"
)

const (
	// MinInterval is the shortest schedule interval accepted
	MinInterval = time.Minute

	// timeLayout has a fixed width so stored timestamps sort as text
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrIntervalTooLow  = errors.New("schedule interval below minimum")
	ErrMissingWorkflow = errors.New("workflow has no id")
)

// Store persists workflows, their execution history and schedules in
// SQLite.
type Store struct {
	DB *sql.DB
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS workflows (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		definition TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS executions (
		id TEXT PRIMARY KEY,
		workflow_id TEXT NOT NULL,
		mode TEXT NOT NULL,
		outcome TEXT NOT NULL,
		attempted INTEGER NOT NULL,
		failures INTEGER NOT NULL,
		error TEXT,
		result TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS executions_workflow
		ON executions (workflow_id, started_at);`,
	`CREATE TABLE IF NOT EXISTS schedules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		workflow_id TEXT NOT NULL,
		interval_seconds INTEGER NOT NULL,
		last_run TEXT NOT NULL,
		status TEXT DEFAULT 'active'
	);`,
}

// Open opens (creating if needed) the database at path
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	for _, q := range schema {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// SaveWorkflow inserts or replaces a workflow, stamping its timestamps
func (s *Store) SaveWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	if wf.ID == "" {
		return ErrMissingWorkflow
	}
	now := time.Now().UTC()
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	wf.UpdatedAt = now

	def, err := json.Marshal(wf)
	if err != nil {
		return err
	}
	query := `INSERT INTO workflows (id, name, description, definition, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			definition = excluded.definition,
			updated_at = excluded.updated_at`
	_, err = s.DB.ExecContext(ctx, query,
		wf.ID, wf.Name, wf.Description, string(def),
		formatTime(wf.CreatedAt), formatTime(wf.UpdatedAt),
	)
	return err
}

func (s *Store) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	var def string
	err := s.DB.QueryRowContext(ctx,
		`SELECT definition FROM workflows WHERE id = ?`, id,
	).Scan(&def)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var wf workflow.Workflow
	if err := json.Unmarshal([]byte(def), &wf); err != nil {
		return nil, fmt.Errorf("workflow %s: corrupt definition: %w", id, err)
	}
	return &wf, nil
}

func (s *Store) ListWorkflows(ctx context.Context) ([]WorkflowSummary, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT definition FROM workflows ORDER BY updated_at DESC, name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []WorkflowSummary{}
	for rows.Next() {
		var def string
		if err := rows.Scan(&def); err != nil {
			return nil, err
		}
		var wf workflow.Workflow
		if err := json.Unmarshal([]byte(def), &wf); err != nil {
			return nil, err
		}
		res = append(res, WorkflowSummary{
			ID:          wf.ID,
			Name:        wf.Name,
			Description: wf.Description,
			Steps:       len(wf.Steps),
			UpdatedAt:   wf.UpdatedAt,
		})
	}
	return res, rows.Err()
}

// DeleteWorkflow removes a workflow with its history and schedules
func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	for _, q := range []string{
		`DELETE FROM executions WHERE workflow_id = ?`,
		`DELETE FROM schedules WHERE workflow_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) AddExecution(ctx context.Context, e Execution) error {
	query := `INSERT INTO executions
		(id, workflow_id, mode, outcome, attempted, failures, error, result, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.DB.ExecContext(ctx, query,
		e.ID, e.WorkflowID, e.Mode, string(e.Outcome), e.Attempted,
		e.Failures, e.Error, string(e.Result),
		formatTime(e.StartedAt), formatTime(e.FinishedAt),
	)
	return err
}

// ListExecutions returns the most recent runs of a workflow, newest first
func (s *Store) ListExecutions(
	ctx context.Context, workflowID string, limit int,
) ([]Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, workflow_id, mode, outcome, attempted, failures, error,
			result, started_at, finished_at
		FROM executions WHERE workflow_id = ?
		ORDER BY started_at DESC LIMIT ?`
	rows, err := s.DB.QueryContext(ctx, query, workflowID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []Execution{}
	for rows.Next() {
		var e Execution
		var outcome, result, started, finished string
		var errMsg sql.NullString
		if err := rows.Scan(
			&e.ID, &e.WorkflowID, &e.Mode, &outcome, &e.Attempted,
			&e.Failures, &errMsg, &result, &started, &finished,
		); err != nil {
			return nil, err
		}
		e.Outcome = workflow.Outcome(outcome)
		e.Error = errMsg.String
		e.Result = json.RawMessage(result)
		e.StartedAt = parseTime(started)
		e.FinishedAt = parseTime(finished)
		res = append(res, e)
	}
	return res, rows.Err()
}

// AddSchedule registers a recurring run. The first run is due immediately.
func (s *Store) AddSchedule(
	ctx context.Context, workflowID string, interval time.Duration,
) (int64, error) {
	if interval < MinInterval {
		return 0, fmt.Errorf("%w: %s < %s", ErrIntervalTooLow, interval, MinInterval)
	}
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO schedules (workflow_id, interval_seconds, last_run) VALUES (?, ?, ?)`,
		workflowID, int64(interval/time.Second), formatTime(time.Unix(0, 0)),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) ListSchedules(ctx context.Context) ([]Schedule, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, workflow_id, interval_seconds, last_run, status
		FROM schedules ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []Schedule{}
	for rows.Next() {
		var sc Schedule
		var secs int64
		var lastRun, status string
		if err := rows.Scan(&sc.ID, &sc.WorkflowID, &secs, &lastRun, &status); err != nil {
			return nil, err
		}
		sc.Interval = time.Duration(secs) * time.Second
		sc.LastRun = parseTime(lastRun)
		sc.Active = status == "active"
		res = append(res, sc)
	}
	return res, rows.Err()
}

// DueSchedules returns the active schedules that should fire at now
func (s *Store) DueSchedules(ctx context.Context, now time.Time) ([]Schedule, error) {
	all, err := s.ListSchedules(ctx)
	if err != nil {
		return nil, err
	}
	var due []Schedule
	for _, sc := range all {
		if sc.Due(now) {
			due = append(due, sc)
		}
	}
	return due, nil
}

func (s *Store) MarkScheduleRun(ctx context.Context, id int64, at time.Time) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE schedules SET last_run = ? WHERE id = ?`, formatTime(at), id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("schedule %d: %w", id, ErrNotFound)
	}
	return nil
}

// ClearSchedules removes every schedule of a workflow
func (s *Store) ClearSchedules(ctx context.Context, workflowID string) error {
	_, err := s.DB.ExecContext(ctx,
		`DELETE FROM schedules WHERE workflow_id = ?`, workflowID,
	)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
