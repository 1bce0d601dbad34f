package retry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"browserfetch/internal/faults"
	"browserfetch/internal/logging"
)

// Decision reasons.
const (
	ReasonRetry             = "retry"
	ReasonGlobalCircuitOpen = "global_circuit_open"
	ReasonTaskCircuitOpen   = "task_circuit_open"
	ReasonNotRetryable      = "not_retryable"
	ReasonAttemptsExhausted = "attempts_exhausted"
)

// Attempt records one classified failure for a task.
type Attempt struct {
	Number      int          `json:"number"`
	Error       faults.Error `json:"-"`
	Kind        string       `json:"kind"`
	Severity    string       `json:"severity"`
	Timestamp   time.Time    `json:"timestamp"`
	NextRetryAt *time.Time   `json:"next_retry_at,omitempty"`
}

// TaskState is the retry bookkeeping for one task id.
type TaskState struct {
	TaskID           string    `json:"task_id"`
	Attempts         []Attempt `json:"attempts"`
	Strategy         Strategy  `json:"strategy"`
	CircuitOpen      bool      `json:"circuit_open"`
	CircuitOpenUntil time.Time `json:"circuit_open_until,omitzero"`
}

func (s *TaskState) clone() TaskState {
	out := *s
	out.Attempts = append([]Attempt(nil), s.Attempts...)
	return out
}

// Decision is the outcome of one failure evaluation.
type Decision struct {
	Error   faults.Error
	Retry   bool
	Delay   time.Duration
	Attempt int
	Reason  string
}

// Options tunes the coordinator. Zero values take the defaults.
type Options struct {
	FailureThreshold    int
	SuccessThreshold    int
	BreakerTimeout      time.Duration
	TaskWindow          int
	TaskSevereThreshold int
	TaskCooldown        time.Duration
	StateTTL            time.Duration
	Now                 func() time.Time
}

// Coordinator defaults.
const (
	DefaultTaskWindow          = 5
	DefaultTaskSevereThreshold = 3
	DefaultTaskCooldown        = 5 * time.Minute
	DefaultStateTTL            = time.Hour
)

// Coordinator owns per-task retry state and the global breaker.
type Coordinator struct {
	mu     sync.RWMutex
	tasks  map[string]*TaskState
	global *Breaker
	opts   Options
	now    func() time.Time
	logger *slog.Logger
}

// NewCoordinator constructs a coordinator with its own global breaker.
func NewCoordinator(opts Options, logger *slog.Logger) *Coordinator {
	if opts.TaskWindow <= 0 {
		opts.TaskWindow = DefaultTaskWindow
	}
	if opts.TaskSevereThreshold <= 0 {
		opts.TaskSevereThreshold = DefaultTaskSevereThreshold
	}
	if opts.TaskCooldown <= 0 {
		opts.TaskCooldown = DefaultTaskCooldown
	}
	if opts.StateTTL <= 0 {
		opts.StateTTL = DefaultStateTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	global := NewBreaker(opts.FailureThreshold, opts.SuccessThreshold, opts.BreakerTimeout)
	global.SetClock(now)
	return &Coordinator{
		tasks:  make(map[string]*TaskState),
		global: global,
		opts:   opts,
		now:    now,
		logger: logging.NewComponentLogger(logger, "retry"),
	}
}

// ShouldRetry classifies message and returns the delay before the next
// attempt, or false when the task must not be retried.
func (c *Coordinator) ShouldRetry(ctx context.Context, taskID, message string) (time.Duration, bool) {
	d := c.Decide(ctx, taskID, message)
	return d.Delay, d.Retry
}

// Decide is ShouldRetry returning the classified error and the reason.
// The whole evaluation happens under the coordinator lock.
func (c *Coordinator) Decide(ctx context.Context, taskID, message string) Decision {
	classified := faults.Classify(message)
	strategy := classified.Strategy()
	logger := logging.TaskFault(logging.WithContext(ctx, c.logger), taskID,
		classified.Kind.String(), classified.Severity().String())

	c.mu.Lock()
	defer c.mu.Unlock()

	decision := Decision{Error: classified}

	if c.global.IsOpen() {
		decision.Reason = ReasonGlobalCircuitOpen
		logging.WarnWithContext(logger, "retry rejected: global circuit open", "retry_circuit_open",
			logging.String(logging.FieldErrorHint, "upstream failures exceeded the breaker threshold; wait for the breaker timeout"),
			logging.String(logging.FieldImpact, "task fails without retry"),
		)
		return decision
	}

	now := c.now()
	state, ok := c.tasks[taskID]
	if !ok {
		state = &TaskState{TaskID: taskID}
		c.tasks[taskID] = state
	}
	state.Strategy = strategy

	if state.CircuitOpen {
		if now.Before(state.CircuitOpenUntil) {
			decision.Reason = ReasonTaskCircuitOpen
			logging.WarnWithContext(logger, "retry rejected: task circuit open", "retry_task_circuit_open",
				logging.String("open_until", state.CircuitOpenUntil.UTC().Format(time.RFC3339)),
				logging.String(logging.FieldErrorHint, "repeated severe failures; retry after the cooldown"),
				logging.String(logging.FieldImpact, "task fails without retry"),
			)
			return decision
		}
		state.CircuitOpen = false
		state.CircuitOpenUntil = time.Time{}
		logger.Info("task circuit closed after cooldown")
	}

	number := len(state.Attempts) + 1
	delay, hasDelay := DelayFor(strategy, number)
	attempt := Attempt{
		Number:    number,
		Error:     classified,
		Kind:      classified.Kind.String(),
		Severity:  classified.Severity().String(),
		Timestamp: now,
	}
	if hasDelay {
		next := now.Add(delay)
		attempt.NextRetryAt = &next
	}
	state.Attempts = append(state.Attempts, attempt)
	decision.Attempt = number

	if severe := c.recentSevere(state); severe >= c.opts.TaskSevereThreshold {
		state.CircuitOpen = true
		state.CircuitOpenUntil = now.Add(c.opts.TaskCooldown)
		logging.WarnWithContext(logger, "task circuit opened", "retry_task_circuit_opened",
			logging.Int("severe_failures", severe),
			logging.Duration("cooldown", c.opts.TaskCooldown),
			logging.String(logging.FieldErrorHint, "inspect the task's recent failures"),
			logging.String(logging.FieldImpact, "further retries for this task are blocked until the cooldown ends"),
		)
	}

	before := c.global.State()
	after := c.global.RecordFailure()
	if after == StateOpen && before != StateOpen {
		logging.WarnWithContext(logger, "global circuit opened", "retry_global_circuit_opened",
			logging.String("previous_state", string(before)),
			logging.String(logging.FieldErrorHint, "upstream download source looks degraded"),
			logging.String(logging.FieldImpact, "all retries are rejected until the breaker timeout passes"),
		)
	}

	switch {
	case !classified.Retryable():
		decision.Reason = ReasonNotRetryable
		logger.Info("failure not retryable", logging.RetryDecision("give_up", ReasonNotRetryable, number)...)
	case !hasDelay:
		decision.Reason = ReasonAttemptsExhausted
		logger.Info("retry attempts exhausted", logging.RetryDecision("give_up", ReasonAttemptsExhausted, number)...)
	default:
		decision.Retry = true
		decision.Delay = delay
		decision.Reason = ReasonRetry
		logger.Info("retry scheduled",
			logging.RetryDecision("retry", strategy.Mode.String(), number, logging.Duration("delay", delay))...)
	}
	return decision
}

func (c *Coordinator) recentSevere(state *TaskState) int {
	count := 0
	start := max(len(state.Attempts)-c.opts.TaskWindow, 0)
	for _, attempt := range state.Attempts[start:] {
		if attempt.Error.Severity().AtLeastHigh() {
			count++
		}
	}
	return count
}

// RecordSuccess clears the task's history and feeds a success to the global breaker.
func (c *Coordinator) RecordSuccess(ctx context.Context, taskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	attempts := 0
	if state, ok := c.tasks[taskID]; ok {
		attempts = len(state.Attempts)
		delete(c.tasks, taskID)
	}
	before := c.global.State()
	after := c.global.RecordSuccess()
	logger := logging.WithContext(ctx, c.logger)
	logger.Info("task succeeded", logging.String(logging.FieldTaskID, taskID), logging.Int("failed_attempts", attempts))
	if before != StateClosed && after == StateClosed {
		logger.Info("global circuit closed", logging.String("previous_state", string(before)))
	}
}

// History returns a copy of the task's attempts in order.
func (c *Coordinator) History(taskID string) []Attempt {
	c.mu.RLock()
	defer c.mu.RUnlock()
	state, ok := c.tasks[taskID]
	if !ok {
		return nil
	}
	return append([]Attempt(nil), state.Attempts...)
}

// State returns a copy of the task's retry state.
func (c *Coordinator) State(taskID string) (TaskState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	state, ok := c.tasks[taskID]
	if !ok {
		return TaskState{}, false
	}
	return state.clone(), true
}

// NextRetryAt reports when the latest attempt scheduled its retry.
func (c *Coordinator) NextRetryAt(taskID string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	state, ok := c.tasks[taskID]
	if !ok || len(state.Attempts) == 0 {
		return time.Time{}, false
	}
	last := state.Attempts[len(state.Attempts)-1]
	if last.NextRetryAt == nil {
		return time.Time{}, false
	}
	return *last.NextRetryAt, true
}

// Reset discards the task's retry state.
func (c *Coordinator) Reset(taskID string) bool {
	c.mu.Lock()
	_, ok := c.tasks[taskID]
	delete(c.tasks, taskID)
	c.mu.Unlock()
	if ok {
		c.logger.Info("retry state reset", logging.String(logging.FieldTaskID, taskID))
	}
	return ok
}

// GlobalState snapshots the global breaker.
func (c *Coordinator) GlobalState() BreakerSnapshot {
	return c.global.Snapshot()
}

// GlobalOpen reports whether the global breaker currently vetoes retries.
func (c *Coordinator) GlobalOpen() bool {
	return c.global.IsOpen()
}

// TaskCount reports how many tasks have retry state.
func (c *Coordinator) TaskCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tasks)
}

// Cleanup drops task state whose latest attempt is older than the state TTL.
func (c *Coordinator) Cleanup(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-c.opts.StateTTL)
	removed := 0
	for id, state := range c.tasks {
		if len(state.Attempts) == 0 || state.Attempts[len(state.Attempts)-1].Timestamp.Before(cutoff) {
			delete(c.tasks, id)
			removed++
		}
	}
	if removed > 0 {
		logging.WithContext(ctx, c.logger).Info("expired retry state removed",
			logging.Int("removed", removed),
			logging.Int("remaining", len(c.tasks)),
		)
	}
	return removed
}

// Run calls Cleanup every interval until ctx ends.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Cleanup(ctx)
		}
	}
}
