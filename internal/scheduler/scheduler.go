// Package scheduler triggers tasks on crontab schedules.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"climacan/internal/models"
	"climacan/internal/tasks"
	"climacan/pkg/logging"
)

// Runner executes one task run.
type Runner interface {
	Execute(ctx context.Context, task tasks.Task) *models.TaskRun
}

// Scheduler runs registered tasks on their cron specs. A task never overlaps
// with itself: a trigger that arrives while the same task is still running,
// from the cron loop or the initial pass, is skipped.
type Scheduler struct {
	cron       *gocron.Scheduler
	runner     Runner
	logger     *logging.StructuredLogger
	runAtStart bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	order   []tasks.Task
	running map[string]bool
}

// New creates a scheduler evaluating specs in loc.
func New(runner Runner, loc *time.Location, runAtStart bool, logger *logging.StructuredLogger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	s := gocron.NewScheduler(loc)
	s.SingletonModeAll()

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:       s,
		runner:     runner,
		logger:     logger,
		runAtStart: runAtStart,
		ctx:        ctx,
		cancel:     cancel,
		running:    make(map[string]bool),
	}
}

// Add schedules task on a five-field crontab spec.
func (s *Scheduler) Add(task tasks.Task, spec string) error {
	_, err := s.cron.Cron(spec).Tag(task.Name).Do(func() {
		s.run(task)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s with %q: %w", task.Name, spec, err)
	}

	s.mu.Lock()
	s.order = append(s.order, task)
	s.mu.Unlock()

	s.logger.Info(s.ctx, "[SCHEDULER_ADD] Task scheduled", logging.Fields{
		"task": task.Name,
		"spec": spec,
	})
	return nil
}

// Start runs every task once in registration order when run-at-start is
// enabled, then starts the cron loop.
func (s *Scheduler) Start() {
	if s.runAtStart {
		s.mu.Lock()
		initial := append([]tasks.Task(nil), s.order...)
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for _, task := range initial {
				if s.ctx.Err() != nil {
					return
				}
				s.run(task)
			}
		}()
	}

	s.cron.StartAsync()
	s.logger.Info(s.ctx, "[SCHEDULER_START] Scheduler started", logging.Fields{
		"jobs":         s.cron.Len(),
		"run_at_start": s.runAtStart,
	})
}

// Stop cancels running tasks and waits for the initial runs to return.
func (s *Scheduler) Stop() {
	s.cancel()
	s.cron.Stop()
	s.wg.Wait()
	s.logger.Info(context.Background(), "[SCHEDULER_STOP] Scheduler stopped", logging.Fields{})
}

// NextRuns returns the next scheduled run of every task.
func (s *Scheduler) NextRuns() map[string]time.Time {
	out := make(map[string]time.Time)
	for _, job := range s.cron.Jobs() {
		for _, tag := range job.Tags() {
			out[tag] = job.NextRun()
		}
	}
	return out
}

// run executes task unless the scheduler is stopped or the task is already
// running. It reports whether the task ran.
func (s *Scheduler) run(task tasks.Task) bool {
	if s.ctx.Err() != nil {
		return false
	}
	if !s.acquire(task.Name) {
		s.logger.Warn(s.ctx, "[SCHEDULER_SKIP] Task still running, trigger skipped", logging.Fields{
			"task": task.Name,
		})
		return false
	}
	defer s.release(task.Name)

	s.runner.Execute(s.ctx, task)
	return true
}

func (s *Scheduler) acquire(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[name] {
		return false
	}
	s.running[name] = true
	return true
}

func (s *Scheduler) release(name string) {
	s.mu.Lock()
	delete(s.running, name)
	s.mu.Unlock()
}
