package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"climacan/internal/models"
	"climacan/pkg/logging"
)

func newTestStorage(t *testing.T) *TaskRunStorage {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	storage, err := NewTaskRunStorage(db, logging.Discard())
	if err != nil {
		t.Fatalf("NewTaskRunStorage() error = %v", err)
	}
	return storage
}

func run(id, task string, success bool, started time.Time, errText string) *models.TaskRun {
	return &models.TaskRun{
		ID:          id,
		Task:        task,
		Measurement: "main_aemet",
		Field:       "task_success_" + task,
		Success:     success,
		StartedAt:   started,
		FinishedAt:  started.Add(1500 * time.Millisecond),
		Error:       errText,
	}
}

func TestTaskRunStorage_RecordAndRecent(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 10, 6, 0, 0, 0, time.UTC)

	runs := []*models.TaskRun{
		run("a", "predictions", true, base, ""),
		run("b", "predictions", false, base.Add(6*time.Hour), "upstream unavailable"),
		run("c", "municipalities", true, base.Add(time.Hour), ""),
	}
	for _, r := range runs {
		if err := storage.Record(ctx, r); err != nil {
			t.Fatalf("Record(%s) error = %v", r.ID, err)
		}
	}

	tests := []struct {
		name        string
		task        string
		limit       int
		checkValues func(t *testing.T, got []*models.TaskRun)
	}{
		{
			name:  "all tasks newest first",
			limit: 10,
			checkValues: func(t *testing.T, got []*models.TaskRun) {
				if len(got) != 3 {
					t.Fatalf("runs = %d, want 3", len(got))
				}
				if got[0].ID != "b" || got[1].ID != "c" || got[2].ID != "a" {
					t.Errorf("order = %s,%s,%s", got[0].ID, got[1].ID, got[2].ID)
				}
				if got[0].Success || got[0].Error != "upstream unavailable" {
					t.Errorf("failed run = %+v", got[0])
				}
				if got[0].Duration() != 1500*time.Millisecond {
					t.Errorf("Duration() = %v", got[0].Duration())
				}
			},
		},
		{
			name:  "filtered by task",
			task:  "municipalities",
			limit: 10,
			checkValues: func(t *testing.T, got []*models.TaskRun) {
				if len(got) != 1 || got[0].ID != "c" {
					t.Fatalf("runs = %v", got)
				}
				if !got[0].StartedAt.Equal(base.Add(time.Hour)) {
					t.Errorf("StartedAt = %v", got[0].StartedAt)
				}
				if got[0].Error != "" {
					t.Errorf("Error = %q, want empty", got[0].Error)
				}
			},
		},
		{
			name:  "limit",
			limit: 1,
			checkValues: func(t *testing.T, got []*models.TaskRun) {
				if len(got) != 1 || got[0].ID != "b" {
					t.Errorf("runs = %v", got)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := storage.Recent(ctx, tt.task, tt.limit)
			if err != nil {
				t.Fatalf("Recent() error = %v", err)
			}
			tt.checkValues(t, got)
		})
	}
}

func TestTaskRunStorage_Latest(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 10, 6, 0, 0, 0, time.UTC)

	for _, r := range []*models.TaskRun{
		run("a", "predictions", true, base, ""),
		run("b", "predictions", false, base.Add(500*time.Millisecond), "boom"),
		run("c", "municipalities", true, base.Add(time.Hour), ""),
	} {
		if err := storage.Record(ctx, r); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	latest, err := storage.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("latest = %d, want 2", len(latest))
	}
	if latest[0].Task != "municipalities" || latest[1].ID != "b" {
		t.Errorf("latest = %s/%s, %s/%s", latest[0].Task, latest[0].ID, latest[1].Task, latest[1].ID)
	}
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tasks.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	if _, err := NewTaskRunStorage(db, logging.Discard()); err != nil {
		t.Fatalf("NewTaskRunStorage() error = %v", err)
	}
}
