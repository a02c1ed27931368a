package models

import (
	"time"
)

// TaskRun is one execution of a scheduled task as kept in the task ledger.
// Measurement and Field name the status series the run is reported under.
type TaskRun struct {
	ID          string    `json:"id" db:"id"`
	Task        string    `json:"task" db:"task"`
	Measurement string    `json:"measurement" db:"measurement"`
	Field       string    `json:"field" db:"field"`
	Success     bool      `json:"success" db:"success"`
	StartedAt   time.Time `json:"started_at" db:"started_at"`
	FinishedAt  time.Time `json:"finished_at" db:"finished_at"`
	Error       string    `json:"error,omitempty" db:"error"`
}

// Status returns the 1/0 flag written for dashboards.
func (r *TaskRun) Status() int {
	if r.Success {
		return 1
	}
	return 0
}

// Duration returns how long the run took.
func (r *TaskRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
