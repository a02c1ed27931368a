// Package sqlite keeps the local task ledger: one row per scheduled task run.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"climacan/internal/models"
	"climacan/pkg/logging"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Open opens (creating if needed) the SQLite file at path. ":memory:" opens a
// private in-memory database.
func Open(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create task store directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open task store: %w", err)
	}
	// A single connection keeps an in-memory database alive and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure task store: %w", err)
	}
	return db, nil
}

// TaskRunStorage handles storage of task run records
type TaskRunStorage struct {
	db     *sql.DB
	logger *logging.StructuredLogger
}

// NewTaskRunStorage creates the ledger tables if missing
func NewTaskRunStorage(db *sql.DB, logger *logging.StructuredLogger) (*TaskRunStorage, error) {
	storage := &TaskRunStorage{
		db:     db,
		logger: logger,
	}
	if err := storage.initDB(); err != nil {
		return nil, err
	}
	return storage, nil
}

// initDB initializes the database tables
func (s *TaskRunStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS task_runs (
			id TEXT PRIMARY KEY,
			task TEXT NOT NULL,
			measurement TEXT NOT NULL,
			field TEXT NOT NULL,
			success BOOLEAN NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			error TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create task_runs table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_task_runs_task ON task_runs(task, started_at)`)
	if err != nil {
		return fmt.Errorf("failed to create task index: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_task_runs_started_at ON task_runs(started_at)`)
	if err != nil {
		return fmt.Errorf("failed to create started_at index: %w", err)
	}

	return nil
}

// Record stores a finished task run
func (s *TaskRunStorage) Record(ctx context.Context, run *models.TaskRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_runs
		(id, task, measurement, field, success, started_at, finished_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Task,
		run.Measurement,
		run.Field,
		run.Success,
		run.StartedAt.UTC().Format(timeLayout),
		run.FinishedAt.UTC().Format(timeLayout),
		nullString(run.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to insert task run: %w", err)
	}

	s.logger.Debug(ctx, "[TASK_LEDGER] Task run recorded", logging.Fields{
		"task":    run.Task,
		"success": run.Success,
	})
	return nil
}

// Recent returns the latest runs, newest first. An empty task selects every
// task.
func (s *TaskRunStorage) Recent(ctx context.Context, task string, limit int) ([]*models.TaskRun, error) {
	query := `SELECT id, task, measurement, field, success, started_at, finished_at, error FROM task_runs`
	args := []interface{}{}
	if task != "" {
		query += ` WHERE task = ?`
		args = append(args, task)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query task runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.TaskRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read task runs: %w", err)
	}
	return runs, nil
}

// Latest returns the most recent run of every task
func (s *TaskRunStorage) Latest(ctx context.Context) ([]*models.TaskRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.task, r.measurement, r.field, r.success, r.started_at, r.finished_at, r.error
		FROM task_runs r
		JOIN (SELECT task, MAX(started_at) AS started_at FROM task_runs GROUP BY task) last
		  ON last.task = r.task AND last.started_at = r.started_at
		ORDER BY r.task
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest task runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.TaskRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read latest task runs: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*models.TaskRun, error) {
	var run models.TaskRun
	var startedAt, finishedAt string
	var errText sql.NullString

	if err := row.Scan(
		&run.ID,
		&run.Task,
		&run.Measurement,
		&run.Field,
		&run.Success,
		&startedAt,
		&finishedAt,
		&errText,
	); err != nil {
		return nil, fmt.Errorf("failed to scan task run: %w", err)
	}

	var err error
	if run.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return nil, fmt.Errorf("failed to parse started_at: %w", err)
	}
	if run.FinishedAt, err = time.Parse(timeLayout, finishedAt); err != nil {
		return nil, fmt.Errorf("failed to parse finished_at: %w", err)
	}
	if errText.Valid {
		run.Error = errText.String
	}
	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
