// Package scheduler runs periodic background maintenance for the hub,
// chiefly the nightly refresh of precomputed daily statistics. It is a
// small cron-like loop, deliberately separate from the job runner: these
// tasks have no client polling them and need no task IDs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrNilJob                  = errors.New("job cannot be nil")
	ErrNilSchedule             = errors.New("schedule cannot be nil")
	ErrJobAlreadyExists        = errors.New("job already exists")
	ErrJobNotFound             = errors.New("job not found")
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")
	ErrSchedulerNotRunning     = errors.New("scheduler is not running")
)

// Job is a unit of periodic work.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job. The context is cancelled when the scheduler
	// is stopping.
	Run(ctx context.Context) error

	// Description returns a human-readable description of the job.
	Description() string
}

// Schedule decides when a job fires.
type Schedule interface {
	// Next returns the next firing time strictly after t.
	Next(t time.Time) time.Time

	// String returns a human-readable representation of the schedule.
	String() string
}

// JobResult records one job execution.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Error       error
}

// Config contains configuration for the Scheduler.
type Config struct {
	// Logger for structured logging.
	Logger *slog.Logger

	// Timezone for schedule calculations (default: UTC).
	Timezone *time.Location
}

// entry tracks one registered job and its execution history.
type entry struct {
	job      Job
	schedule Schedule

	lastRun  time.Time
	nextRun  time.Time
	runs     int64
	failures int64
	last     *JobResult
}

// Scheduler fires registered jobs on their schedules.
type Scheduler struct {
	logger   *slog.Logger
	timezone *time.Location

	mu      sync.Mutex
	entries map[string]*entry
	running bool
	cancel  context.CancelFunc
	done    sync.WaitGroup
}

// New creates a stopped Scheduler.
func New(cfg Config) *Scheduler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	tz := cfg.Timezone
	if tz == nil {
		tz = time.UTC
	}
	return &Scheduler{
		logger:   log,
		timezone: tz,
		entries:  make(map[string]*entry),
	}
}

// Register adds a job. The first firing time is computed from now.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	e := &entry{
		job:      job,
		schedule: schedule,
		nextRun:  schedule.Next(time.Now().In(s.timezone)),
	}
	s.entries[name] = e

	s.logger.Info("job registered",
		"job", name,
		"description", job.Description(),
		"next_run", e.nextRun.Format(time.RFC3339),
	)
	return nil
}

// Start launches the firing loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSchedulerAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.logger.Info("scheduler started", "jobs_count", len(s.entries))
	s.done.Add(1)
	go s.loop(loopCtx)
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.done.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

// IsRunning reports whether the firing loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.done.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, e := range s.takeDue(now.In(s.timezone)) {
				s.done.Add(1)
				go func(e *entry) {
					defer s.done.Done()
					s.execute(ctx, e)
				}(e)
			}
		}
	}
}

// takeDue collects entries whose firing time has passed and advances
// their schedules in the same critical section, so a slow run cannot
// stack executions of the same job.
func (s *Scheduler) takeDue(now time.Time) []*entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*entry
	for _, e := range s.entries {
		if e.nextRun.IsZero() || now.Before(e.nextRun) {
			continue
		}
		e.lastRun = now
		e.nextRun = e.schedule.Next(now)
		due = append(due, e)
	}
	return due
}

func (s *Scheduler) execute(ctx context.Context, e *entry) *JobResult {
	name := e.job.Name()
	s.logger.Info("job started", "job", name)

	started := time.Now()
	err := e.job.Run(ctx)
	finished := time.Now()

	result := &JobResult{
		JobName:     name,
		StartedAt:   started,
		CompletedAt: finished,
		Duration:    finished.Sub(started),
		Success:     err == nil,
		Error:       err,
	}

	s.mu.Lock()
	e.runs++
	if err != nil {
		e.failures++
	}
	e.last = result
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed", "job", name, "duration", result.Duration.String(), "error", err)
	} else {
		s.logger.Info("job completed", "job", name, "duration", result.Duration.String())
	}
	return result
}

// RunNow executes a job by name immediately, ignoring its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*JobResult, error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	result := s.execute(ctx, e)
	return result, result.Error
}

// JobInfo describes a registered job and its execution history.
type JobInfo struct {
	Name        string
	Description string
	Schedule    string
	LastRun     time.Time
	NextRun     time.Time
	RunCount    int64
	FailCount   int64
	LastResult  *JobResult
}

// ListJobs returns a snapshot of every registered job.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.entries))
	for name, e := range s.entries {
		infos = append(infos, JobInfo{
			Name:        name,
			Description: e.job.Description(),
			Schedule:    e.schedule.String(),
			LastRun:     e.lastRun,
			NextRun:     e.nextRun,
			RunCount:    e.runs,
			FailCount:   e.failures,
			LastResult:  e.last,
		})
	}
	return infos
}
