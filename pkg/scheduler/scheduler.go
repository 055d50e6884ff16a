// Package scheduler runs the periodic platform jobs: metric collection,
// anomaly detection cycles, and retention sweeps. It wraps robfig/cron with
// per-task overlap guards and panic containment so one misbehaving job
// cannot wedge or crash the others.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rizrmd/travel-sub003/pkg/logger"
)

// TaskFunc is one schedulable unit of work
type TaskFunc func(ctx context.Context) error

// Config contains configuration for the scheduler
type Config struct {
	// TaskTimeout bounds a single task run
	TaskTimeout time.Duration `yaml:"task_timeout" json:"task_timeout"`
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() *Config {
	return &Config{
		TaskTimeout: 10 * time.Minute,
	}
}

// TaskStatus is a snapshot of one registered task's run history
type TaskStatus struct {
	Name        string     `json:"name"`
	Schedule    string     `json:"schedule"`
	Running     bool       `json:"running"`
	RunCount    int64      `json:"run_count"`
	FailCount   int64      `json:"fail_count"`
	SkipCount   int64      `json:"skip_count"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	LastRunTook string     `json:"last_run_took,omitempty"`
}

// task tracks a registered job and its run accounting
type task struct {
	name     string
	schedule string
	fn       TaskFunc

	running   atomic.Bool
	runCount  atomic.Int64
	failCount atomic.Int64
	skipCount atomic.Int64

	mu          sync.Mutex
	lastRunAt   *time.Time
	lastError   string
	lastRunTook time.Duration
}

// Scheduler runs registered tasks on cron schedules
type Scheduler struct {
	config *Config
	cron   *cron.Cron
	log    *logger.Logger
	tracer trace.Tracer

	mu      sync.RWMutex
	tasks   map[string]*task
	started bool
}

// New creates a new scheduler
func New(config *Config, log *logger.Logger) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = logger.GetDefault()
	}

	return &Scheduler{
		config: config,
		cron:   cron.New(),
		log:    log,
		tracer: otel.Tracer("scheduler"),
		tasks:  make(map[string]*task),
	}
}

// Register adds a task on a cron schedule. Task names must be unique.
func (s *Scheduler) Register(name, schedule string, fn TaskFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("task already registered: %s", name)
	}

	t := &task{name: name, schedule: schedule, fn: fn}
	if _, err := s.cron.AddFunc(schedule, func() { s.run(t) }); err != nil {
		return fmt.Errorf("invalid schedule %q for task %s: %w", schedule, name, err)
	}

	s.tasks[name] = t
	s.log.Info("registered scheduled task %s (%s)", name, schedule)
	return nil
}

// RegisterInterval adds a task that runs every interval
func (s *Scheduler) RegisterInterval(name string, interval time.Duration, fn TaskFunc) error {
	return s.Register(name, fmt.Sprintf("@every %s", interval), fn)
}

// Start begins executing schedules
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.cron.Start()
	s.started = true
	s.log.Info("scheduler started with %d tasks", len(s.tasks))
}

// Stop halts scheduling and waits for in-flight tasks to finish
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler shutdown interrupted: %w", ctx.Err())
	}
}

// RunNow executes a registered task immediately, outside its schedule.
// It still honors the overlap guard.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	t, ok := s.tasks[name]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("task not found: %s", name)
	}

	s.run(t)
	return nil
}

// Status returns run accounting for every registered task
func (s *Scheduler) Status() []TaskStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]TaskStatus, 0, len(s.tasks))
	for _, t := range s.tasks {
		t.mu.Lock()
		status := TaskStatus{
			Name:      t.name,
			Schedule:  t.schedule,
			Running:   t.running.Load(),
			RunCount:  t.runCount.Load(),
			FailCount: t.failCount.Load(),
			SkipCount: t.skipCount.Load(),
			LastRunAt: t.lastRunAt,
			LastError: t.lastError,
		}
		if t.lastRunTook > 0 {
			status.LastRunTook = t.lastRunTook.String()
		}
		t.mu.Unlock()
		statuses = append(statuses, status)
	}
	return statuses
}

// run executes one task with overlap protection. A tick arriving while the
// previous run is still in flight is skipped, not queued.
func (s *Scheduler) run(t *task) {
	if !t.running.CompareAndSwap(false, true) {
		t.skipCount.Add(1)
		s.log.Warn("task %s still running, skipping tick", t.name)
		return
	}
	defer t.running.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), s.config.TaskTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "scheduler.run_task")
	defer span.End()
	span.SetAttributes(attribute.String("task", t.name))

	started := time.Now()
	err := s.invoke(ctx, t)
	took := time.Since(started)

	t.runCount.Add(1)
	t.mu.Lock()
	now := started.UTC()
	t.lastRunAt = &now
	t.lastRunTook = took
	if err != nil {
		t.lastError = err.Error()
	} else {
		t.lastError = ""
	}
	t.mu.Unlock()

	if err != nil {
		t.failCount.Add(1)
		span.RecordError(err)
		s.log.WithField("task", t.name).Error("scheduled task failed after %s: %v", took, err)
		return
	}

	s.log.WithField("task", t.name).Debug("scheduled task completed in %s", took)
}

// invoke runs the task function with panic containment
func (s *Scheduler) invoke(ctx context.Context, t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", t.name, r)
		}
	}()
	return t.fn(ctx)
}
