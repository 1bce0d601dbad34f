package download

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"

	"browserfetch/internal/events"
	"browserfetch/internal/logging"
	"browserfetch/internal/retry"
	"browserfetch/internal/services"
)

// Orchestrator defaults.
const (
	DefaultAttemptTimeout = 10 * time.Minute
	DefaultRetryCeiling   = 3
)

type handle struct {
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
	// finishing is held from the completion check until the sink and the
	// coordinator have seen the success. Remove takes it before deleting.
	finishing sync.Mutex
}

// Orchestrator is the task registry and execution driver.
type Orchestrator struct {
	mu      sync.RWMutex
	tasks   map[string]*Task
	handles map[string]*handle
	gen     uint64
	closed  bool
	wg      sync.WaitGroup

	exec    Executor
	coord   *retry.Coordinator
	sink    CompletionSink
	pub     Publisher
	logger  *slog.Logger
	sampler *logging.ProgressSampler

	attemptTimeout time.Duration
	sleep          func(context.Context, time.Duration) error
	now            func() time.Time
	lang           language.Tag
	ceiling        int
	locate         Locator
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithAttemptTimeout bounds each executor call.
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.attemptTimeout = d
		}
	}
}

// WithSleep replaces the retry delay wait.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(o *Orchestrator) {
		if sleep != nil {
			o.sleep = sleep
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLanguage selects the language of user-facing failure messages.
func WithLanguage(tag language.Tag) Option {
	return func(o *Orchestrator) { o.lang = tag }
}

// WithRetryCeiling caps caller-initiated retries per task.
func WithRetryCeiling(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.ceiling = n
		}
	}
}

// WithLocator sets how executables are found when the executor does not report one.
func WithLocator(locate Locator) Option {
	return func(o *Orchestrator) {
		if locate != nil {
			o.locate = locate
		}
	}
}

// New builds an Orchestrator. sink and pub may be nil.
func New(exec Executor, coord *retry.Coordinator, sink CompletionSink, pub Publisher, logger *slog.Logger, opts ...Option) *Orchestrator {
	if pub == nil {
		pub = events.Discard{}
	}
	o := &Orchestrator{
		tasks:          make(map[string]*Task),
		handles:        make(map[string]*handle),
		exec:           exec,
		coord:          coord,
		sink:           sink,
		pub:            pub,
		logger:         logging.NewComponentLogger(logger, "orchestrator"),
		sampler:        logging.NewProgressSampler(10),
		attemptTimeout: DefaultAttemptTimeout,
		sleep:          sleepContext,
		now:            time.Now,
		lang:           language.English,
		ceiling:        DefaultRetryCeiling,
		locate:         func(installPath string, _ Browser) string { return installPath },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start registers a pending task and begins executing it.
func (o *Orchestrator) Start(ctx context.Context, taskID string, target Target) error {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return services.Wrap(services.ErrValidation, "download", "start", "task id is required", ErrInvalidTask)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return services.Wrap(services.ErrConflict, "download", "start", "task "+taskID, ErrShuttingDown)
	}
	if _, ok := o.handles[taskID]; ok {
		return services.Wrap(services.ErrConflict, "download", "start", "task "+taskID, ErrTaskActive)
	}
	if _, ok := o.tasks[taskID]; ok {
		return services.Wrap(services.ErrConflict, "download", "start", "task "+taskID, ErrTaskExists)
	}

	now := o.now()
	task := &Task{
		ID:        taskID,
		Target:    target,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.tasks[taskID] = task
	o.publishStatusLocked(task)
	o.spawnLocked(ctx, taskID)

	logging.WithContext(ctx, o.logger).Info("download queued",
		logging.String(logging.FieldTaskID, taskID),
		logging.String("browser", string(target.Browser)),
		logging.String("version", target.Version),
		logging.String("platform", target.Platform),
	)
	return nil
}

// Retry re-runs a failed task.
func (o *Orchestrator) Retry(ctx context.Context, taskID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return services.Wrap(services.ErrConflict, "download", "retry", "task "+taskID, ErrShuttingDown)
	}
	task, ok := o.tasks[taskID]
	if !ok {
		return services.Wrap(services.ErrNotFound, "download", "retry", "task "+taskID, ErrTaskNotFound)
	}
	if _, running := o.handles[taskID]; running && task.Status != StatusFailed {
		return services.Wrap(services.ErrConflict, "download", "retry", "task "+taskID, ErrTaskActive)
	}
	if task.Status != StatusFailed {
		return services.Wrap(services.ErrConflict, "download", "retry", fmt.Sprintf("task %s is %s", taskID, task.Status), ErrNotFailed)
	}
	if task.RetryCount >= o.ceiling {
		return services.Wrap(services.ErrConflict, "download", "retry", fmt.Sprintf("task %s retried %d times", taskID, task.RetryCount), ErrRetryLimit)
	}

	task.RetryCount++
	task.Status = StatusRetrying
	task.ErrorMessage = ""
	task.UpdatedAt = o.now()
	o.publishStatusLocked(task)
	o.spawnLocked(ctx, taskID)

	logging.WithContext(ctx, o.logger).Info("manual retry requested",
		logging.String(logging.FieldTaskID, taskID),
		logging.Int("retry_count", task.RetryCount),
	)
	return nil
}

// Remove aborts any running execution and deletes the task record.
func (o *Orchestrator) Remove(ctx context.Context, taskID string) error {
	for {
		o.mu.RLock()
		h, running := o.handles[taskID]
		o.mu.RUnlock()
		if running {
			h.finishing.Lock()
		}

		o.mu.Lock()
		cur, stillRunning := o.handles[taskID]
		if stillRunning && cur != h {
			// A retry registered a new unit meanwhile.
			o.mu.Unlock()
			if running {
				h.finishing.Unlock()
			}
			continue
		}
		_, exists := o.tasks[taskID]
		if !stillRunning && !exists {
			o.mu.Unlock()
			if running {
				h.finishing.Unlock()
			}
			return services.Wrap(services.ErrNotFound, "download", "remove", "task "+taskID, ErrTaskNotFound)
		}
		delete(o.handles, taskID)
		delete(o.tasks, taskID)
		o.mu.Unlock()

		if stillRunning {
			cur.cancel()
		}
		if running {
			h.finishing.Unlock()
		}
		if o.coord != nil {
			o.coord.Reset(taskID)
		}
		o.sampler.Forget(taskID)
		logging.WithContext(ctx, o.logger).Info("download removed",
			logging.String(logging.FieldTaskID, taskID),
			logging.Bool("aborted", stillRunning),
		)
		return nil
	}
}

// Progress returns a snapshot of one task.
func (o *Orchestrator) Progress(taskID string) (Task, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	task, ok := o.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	return task.snapshot(), true
}

// List returns snapshots of every task ordered by creation time.
func (o *Orchestrator) List() []Task {
	o.mu.RLock()
	out := make([]Task, 0, len(o.tasks))
	for _, task := range o.tasks {
		out = append(out, task.snapshot())
	}
	o.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Active reports how many tasks currently have a running goroutine.
func (o *Orchestrator) Active() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.handles)
}

// Wait blocks until the task's current execution finishes.
func (o *Orchestrator) Wait(ctx context.Context, taskID string) error {
	o.mu.RLock()
	h, ok := o.handles[taskID]
	o.mu.RUnlock()
	if !ok {
		return nil
	}
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown aborts every running task and waits for the goroutines to exit.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	for _, h := range o.handles {
		h.cancel()
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) spawnLocked(ctx context.Context, taskID string) {
	o.gen++
	unitCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := &handle{gen: o.gen, cancel: cancel, done: make(chan struct{})}
	o.handles[taskID] = h
	o.wg.Add(1)
	go o.run(unitCtx, taskID, h)
}

// liveLocked reports whether h still owns taskID.
func (o *Orchestrator) liveLocked(taskID string, h *handle) (*Task, bool) {
	cur, ok := o.handles[taskID]
	if !ok || cur.gen != h.gen {
		return nil, false
	}
	task, ok := o.tasks[taskID]
	return task, ok
}

// update applies mutate and publishes the resulting status in one critical
// section. It returns false when the unit no longer owns the task.
func (o *Orchestrator) update(taskID string, h *handle, mutate func(*Task)) (Task, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	task, ok := o.liveLocked(taskID, h)
	if !ok {
		return Task{}, false
	}
	mutate(task)
	task.UpdatedAt = o.now()
	o.publishStatusLocked(task)
	return task.snapshot(), true
}

func (o *Orchestrator) publishStatusLocked(task *Task) {
	progress := task.Progress
	evt := events.Status{
		TaskID:       task.ID,
		Status:       string(task.Status),
		Progress:     &progress,
		ErrorMessage: task.ErrorMessage,
		RetryCount:   task.RetryCount,
		Timestamp:    task.UpdatedAt,
	}
	if task.Status == StatusCompleted {
		evt.InstallPath = task.InstallPath
	}
	o.pub.PublishStatus(evt)
}

func (o *Orchestrator) publishProgressLocked(task *Task) {
	evt := events.Progress{
		TaskID:          task.ID,
		Progress:        task.Progress,
		DownloadedBytes: task.DownloadedBytes,
		TotalBytes:      task.TotalBytes,
		Status:          string(task.Status),
	}
	if task.ETA != nil {
		seconds := int64(task.ETA.Seconds())
		evt.EstimatedTimeRemaining = &seconds
	}
	o.pub.PublishProgress(evt)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
