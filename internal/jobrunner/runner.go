package jobrunner

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campus-insight/campus-insight-hub/internal/domain/shared"
	"github.com/campus-insight/campus-insight-hub/pkg/logger"
)

// ProgressFunc reports progress from inside a unit of work. Current must
// not decrease within one run; a decrease is logged as a defect but the
// update is applied as given, never clamped.
type ProgressFunc func(current, total int, message string)

// UnitOfWork is one complete asynchronous execution. It must be a pure
// function of its captured inputs so it can run on any worker. The
// context is cancelled when the runner shuts down; batch-oriented work
// should check it between batches.
type UnitOfWork func(ctx context.Context, report ProgressFunc) (*Result, error)

// Config for the Runner.
type Config struct {
	// Workers is the number of concurrent unit-of-work executors.
	Workers int

	// QueueSize bounds the number of submitted-but-unstarted tasks.
	QueueSize int

	// JobTimeout caps a single unit of work. Zero means no cap.
	JobTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:    4,
		QueueSize:  64,
		JobTimeout: 30 * time.Minute,
	}
}

type task struct {
	taskID string
	fn     UnitOfWork
}

// Runner executes units of work on a bounded worker pool and maintains
// their Job records in the injected Store. There is no package-level
// state; every dependency arrives through the constructor.
type Runner struct {
	store  Store
	config Config
	log    *logger.Logger

	mu      sync.Mutex
	queue   chan task
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRunner creates a runner bound to the given job store.
func NewRunner(store Store, config Config, log *logger.Logger) *Runner {
	if config.Workers <= 0 {
		config.Workers = DefaultConfig().Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}
	if log == nil {
		log = logger.Default()
	}
	return &Runner{
		store:  store,
		config: config,
		log:    log.With(logger.Component("jobrunner")),
		queue:  make(chan task, config.QueueSize),
	}
}

// Start launches the worker pool. Workers run until Stop is called or the
// parent context is cancelled.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true

	workerCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	for i := 0; i < r.config.Workers; i++ {
		r.wg.Add(1)
		go r.worker(workerCtx, i)
	}
	r.log.Info("runner started", logger.Int("workers", r.config.Workers))
}

// Stop cancels in-flight work and waits for workers to drain. The queue
// is closed while holding r.mu so it can never race a Submit enqueue,
// which sends under the same lock.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started || r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.cancel()
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
	r.log.Info("runner stopped")
}

// Submit enqueues a unit of work and returns its task ID immediately.
// Two submissions with identical parameters are two independent tasks;
// the runner deliberately does not deduplicate.
func (r *Runner) Submit(ctx context.Context, kind string, fn UnitOfWork) (string, error) {
	r.mu.Lock()
	if !r.started || r.stopped {
		r.mu.Unlock()
		return "", shared.ErrRunnerStopped
	}
	r.mu.Unlock()

	now := time.Now().UTC()
	job := &Job{
		TaskID:    uuid.NewString(),
		Kind:      kind,
		Status:    StatusPending,
		Message:   "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.Create(ctx, job); err != nil {
		return "", shared.WrapError("job", "Submit", shared.ErrExternalService, "failed to persist task", err)
	}

	// Re-check stopped under the lock: Stop closes the queue while holding
	// r.mu, so a send here can never hit a closed channel.
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		_ = r.failTask(ctx, job.TaskID, "runner shut down before execution")
		return "", shared.ErrRunnerStopped
	}
	select {
	case r.queue <- task{taskID: job.TaskID, fn: fn}:
		r.mu.Unlock()
		return job.TaskID, nil
	default:
		r.mu.Unlock()
		_ = r.failTask(ctx, job.TaskID, "queue is full")
		return "", shared.WrapError("job", "Submit", shared.ErrInvalidState, "queue is full", nil)
	}
}

// Query returns a read-only snapshot of a job.
func (r *Runner) Query(ctx context.Context, taskID string) (*Job, error) {
	return r.store.Get(ctx, taskID)
}

// worker drains the queue until shutdown.
func (r *Runner) worker(ctx context.Context, id int) {
	defer r.wg.Done()
	log := r.log.With(logger.Int("worker", id))

	for t := range r.queue {
		if ctx.Err() != nil {
			// Shutdown raced the queue: mark remaining tasks failed so
			// nothing stays pending forever.
			_ = r.failTask(context.Background(), t.taskID, "runner shut down before execution")
			continue
		}
		r.execute(ctx, log, t)
	}
}

// execute runs one unit of work, converting every failure mode (error
// return, panic, timeout) into a terminal job state. The worker process
// itself never crashes because of a unit of work.
func (r *Runner) execute(ctx context.Context, log *logger.Logger, t task) {
	runCtx := ctx
	if r.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.config.JobTimeout)
		defer cancel()
	}

	log = log.With(logger.TaskID(t.taskID))
	started := time.Now()

	lastCurrent := -1
	report := func(current, total int, message string) {
		if current < lastCurrent {
			log.Warn("non-monotonic progress update",
				logger.Int("current", current),
				logger.Int("last_current", lastCurrent),
			)
		}
		lastCurrent = current
		r.applyProgress(runCtx, t.taskID, current, total, message)
	}

	var result *Result
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic: %v", p)
				log.Error("unit of work panicked",
					logger.F("panic", fmt.Sprint(p)),
					logger.F("stack", string(debug.Stack())),
				)
			}
		}()
		result, err = t.fn(runCtx, report)
		return err
	}()

	if err != nil {
		log.Error("task failed", logger.Err(err), logger.Latency(time.Since(started)))
		_ = r.failTask(context.Background(), t.taskID, err.Error())
		return
	}

	if err := r.completeTask(context.Background(), t.taskID, result); err != nil {
		log.Error("failed to persist task result", logger.Err(err))
		return
	}
	log.Info("task completed", logger.Latency(time.Since(started)))
}

// applyProgress is best-effort: a progress write failure is logged but
// never aborts the run, since progress is informational only.
func (r *Runner) applyProgress(ctx context.Context, taskID string, current, total int, message string) {
	job, err := r.store.Get(ctx, taskID)
	if err != nil {
		r.log.Warn("progress update for unknown task", logger.TaskID(taskID), logger.Err(err))
		return
	}
	if err := job.markProcessing(current, total, message, time.Now().UTC()); err != nil {
		return
	}
	if err := r.store.Save(ctx, job); err != nil {
		r.log.Warn("failed to persist progress", logger.TaskID(taskID), logger.Err(err))
	}
}

// completeTask transitions to success exactly once; duplicate completion
// signals from retried workers are no-ops.
func (r *Runner) completeTask(ctx context.Context, taskID string, result *Result) error {
	job, err := r.store.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if err := job.markSuccess(result, time.Now().UTC()); err != nil {
		return nil // already terminal
	}
	return r.store.Save(ctx, job)
}

// failTask transitions to error exactly once; duplicates are no-ops.
func (r *Runner) failTask(ctx context.Context, taskID string, message string) error {
	job, err := r.store.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if err := job.markError(message, time.Now().UTC()); err != nil {
		return nil // already terminal
	}
	return r.store.Save(ctx, job)
}
