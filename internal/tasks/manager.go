// Package tasks runs ingestion jobs in-process and records the outcome of
// every run.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"climacan/internal/models"
	"climacan/pkg/logging"
	"climacan/pkg/metrics"
)

// Task is a named unit of work. Its status is reported as Field in the
// Measurement series of Database: 1 for success, 0 for failure.
type Task struct {
	Name        string
	Database    string
	Measurement string
	Field       string
	Run         func(ctx context.Context) error
}

// Ledger keeps the history of task runs.
type Ledger interface {
	Record(ctx context.Context, run *models.TaskRun) error
}

// StatusWriter stores the 1/0 status point of a run next to the ingested
// series so dashboards can chart it.
type StatusWriter interface {
	WriteSeries(ctx context.Context, points []models.SeriesPoint) error
}

// Manager executes tasks and records their outcome.
type Manager struct {
	ledger  Ledger
	status  StatusWriter
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	now     func() time.Time
}

// NewManager creates a manager. ledger and status may be nil.
func NewManager(ledger Ledger, status StatusWriter, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Manager {
	return &Manager{
		ledger:  ledger,
		status:  status,
		logger:  logger,
		metrics: metricsCollector,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Execute runs task and records the run. A panicking task is reported as a
// failed run; Execute itself never panics.
func (m *Manager) Execute(ctx context.Context, task Task) *models.TaskRun {
	run := &models.TaskRun{
		ID:          uuid.NewString(),
		Task:        task.Name,
		Measurement: task.Measurement,
		Field:       task.Field,
		StartedAt:   m.now(),
	}
	ctx = logging.WithTask(logging.WithRunID(ctx, run.ID), task.Name)

	m.logger.Info(ctx, "[TASK_START] Starting task", logging.Fields{
		"measurement": task.Measurement,
		"field":       task.Field,
	})

	err := m.invoke(ctx, task)
	run.FinishedAt = m.now()
	run.Success = err == nil
	if err != nil {
		run.Error = err.Error()
		m.logger.Error(ctx, "[TASK_FAILED] Task failed", logging.Fields{
			"duration_ms": run.Duration().Milliseconds(),
		}, err)
	} else {
		m.logger.Info(ctx, "[TASK_COMPLETE] Task completed", logging.Fields{
			"duration_ms": run.Duration().Milliseconds(),
		})
	}
	m.metrics.RecordTaskRun(task.Name, run.Success, run.Duration())

	// The run is recorded even when the task context was canceled.
	recordCtx := context.WithoutCancel(ctx)
	if m.ledger != nil {
		if err := m.ledger.Record(recordCtx, run); err != nil {
			m.logger.Error(ctx, "[TASK_LEDGER_ERROR] Failed to record task run", logging.Fields{}, err)
		}
	}
	if m.status != nil && task.Database != "" {
		if err := m.status.WriteSeries(recordCtx, []models.SeriesPoint{statusPoint(task, run)}); err != nil {
			m.logger.Error(ctx, "[TASK_STATUS_ERROR] Failed to write task status", logging.Fields{}, err)
		}
	}
	return run
}

func (m *Manager) invoke(ctx context.Context, task Task) (err error) {
	if task.Run == nil {
		return errors.New("task has no run function")
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error(ctx, "[TASK_PANIC] Task panicked", logging.Fields{
				"stack": string(debug.Stack()),
			}, fmt.Errorf("%v", r))
			err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
	}()
	return task.Run(ctx)
}

func statusPoint(task Task, run *models.TaskRun) models.SeriesPoint {
	return models.SeriesPoint{
		Database: task.Database,
		Series:   task.Measurement,
		Time:     run.FinishedAt,
		Fields:   map[string]any{task.Field: run.Status()},
	}
}
