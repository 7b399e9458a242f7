// Package store keeps the history of workflow executions in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Status is the outcome of an execution.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ErrNotFound is returned by Get for an unknown execution id.
var ErrNotFound = errors.New("execution not found")

// Execution is one recorded workflow run.
type Execution struct {
	ID           string    `json:"id"`
	WorkflowID   string    `json:"workflowId"`
	WorkflowName string    `json:"workflowName"`
	Status       Status    `json:"status"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
	Error        string    `json:"error,omitempty"`
	// Output is the JSON of the last executed node's items.
	Output json.RawMessage `json:"output,omitempty"`
}

// Store is a SQLite backed execution history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and runs migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS executions (
		id TEXT PRIMARY KEY,
		workflow_id TEXT NOT NULL,
		workflow_name TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		error TEXT,
		output TEXT
	)`)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_executions_started ON executions(started_at)`)
	return err
}

// Record inserts or replaces an execution.
func (s *Store) Record(ctx context.Context, e Execution) error {
	var output sql.NullString
	if len(e.Output) > 0 {
		output = sql.NullString{String: string(e.Output), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO executions
		(id, workflow_id, workflow_name, status, started_at, finished_at, error, output)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.WorkflowID, e.WorkflowName, string(e.Status),
		e.StartedAt.UTC().Format(time.RFC3339Nano), e.FinishedAt.UTC().Format(time.RFC3339Nano),
		e.Error, output,
	)
	if err != nil {
		return fmt.Errorf("failed to record execution %s: %w", e.ID, err)
	}
	return nil
}

// List returns the most recent executions first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Execution, error) {
	query := `SELECT id, workflow_id, workflow_name, status, started_at, finished_at, error, output
		FROM executions ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Get returns one execution.
func (s *Store) Get(ctx context.Context, id string) (Execution, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, workflow_id, workflow_name, status, started_at, finished_at, error, output
		FROM executions WHERE id = ?`, id)
	e, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Execution{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return e, err
}

func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(r scanner) (Execution, error) {
	var (
		e                 Execution
		status            string
		started, finished string
		errText, output   sql.NullString
	)
	if err := r.Scan(&e.ID, &e.WorkflowID, &e.WorkflowName, &status, &started, &finished, &errText, &output); err != nil {
		return Execution{}, err
	}
	e.Status = Status(status)
	e.Error = errText.String
	if output.Valid {
		e.Output = json.RawMessage(output.String)
	}
	var err error
	if e.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return Execution{}, fmt.Errorf("execution %s has a bad start time: %w", e.ID, err)
	}
	if e.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
		return Execution{}, fmt.Errorf("execution %s has a bad finish time: %w", e.ID, err)
	}
	return e, nil
}
