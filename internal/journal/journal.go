// Package journal records run and task outcomes in a SQLite database.
//
// The journal is strictly diagnostic: the filesystem (artifact presence
// and timestamps) remains the only authoritative orchestration state.
// Deleting the journal never changes what a run executes; it only empties
// the `status` report.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Journal persists run history.
type Journal struct {
	db   *sql.DB
	path string
}

// Run is one recorded orchestrator invocation.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Targets    string
}

// TaskRecord is one task execution within a run.
type TaskRecord struct {
	RunID    string
	TaskID   string
	Rule     string
	Status   string
	Duration time.Duration
	LogPath  string
	Detail   string
}

// Task statuses stored in the journal.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	status TEXT NOT NULL DEFAULT 'running',
	targets TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS tasks (
	run_id TEXT NOT NULL REFERENCES runs(id),
	task_id TEXT NOT NULL,
	rule TEXT NOT NULL,
	status TEXT NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	log_path TEXT NOT NULL DEFAULT '',
	detail TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, task_id)
);
CREATE INDEX IF NOT EXISTS idx_tasks_run ON tasks(run_id);
`

// Open opens (creating if needed) the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// The journal is written from a single process; one connection keeps
	// SQLite's locking out of the picture.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize journal schema: %w", err)
	}
	return &Journal{db: db, path: path}, nil
}

// Close releases the underlying database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Path returns the journal's database file path.
func (j *Journal) Path() string { return j.path }

// BeginRun records the start of a run.
func (j *Journal) BeginRun(ctx context.Context, runID string, targets string, startedAt time.Time) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, status, targets) VALUES (?, ?, 'running', ?)`,
		runID, startedAt.UTC(), targets)
	if err != nil {
		return fmt.Errorf("journal begin run: %w", err)
	}
	return nil
}

// FinishRun records the end of a run with its final status.
func (j *Journal) FinishRun(ctx context.Context, runID string, status string, finishedAt time.Time) error {
	_, err := j.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ? WHERE id = ?`,
		finishedAt.UTC(), status, runID)
	if err != nil {
		return fmt.Errorf("journal finish run: %w", err)
	}
	return nil
}

// RecordTask records one task outcome within a run.
func (j *Journal) RecordTask(ctx context.Context, rec TaskRecord) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO tasks (run_id, task_id, rule, status, duration_ms, log_path, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.TaskID, rec.Rule, rec.Status, rec.Duration.Milliseconds(), rec.LogPath, rec.Detail)
	if err != nil {
		return fmt.Errorf("journal record task %s: %w", rec.TaskID, err)
	}
	return nil
}

// RecentRuns returns the most recent runs, newest first.
func (j *Journal) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, started_at, COALESCE(finished_at, started_at), status, targets
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal recent runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Targets); err != nil {
			return nil, fmt.Errorf("journal scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunTasks returns the task records of one run, sorted by task ID.
func (j *Journal) RunTasks(ctx context.Context, runID string) ([]TaskRecord, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT run_id, task_id, rule, status, duration_ms, log_path, detail
		 FROM tasks WHERE run_id = ? ORDER BY task_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("journal run tasks: %w", err)
	}
	defer rows.Close()

	var recs []TaskRecord
	for rows.Next() {
		var rec TaskRecord
		var durationMS int64
		if err := rows.Scan(&rec.RunID, &rec.TaskID, &rec.Rule, &rec.Status, &durationMS, &rec.LogPath, &rec.Detail); err != nil {
			return nil, fmt.Errorf("journal scan task: %w", err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
