package retry

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker position.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// Breaker defaults.
const (
	DefaultFailureThreshold = 10
	DefaultSuccessThreshold = 5
	DefaultBreakerTimeout   = 60 * time.Second
)

// BreakerSnapshot is a point-in-time copy of breaker state.
type BreakerSnapshot struct {
	State            BreakerState `json:"state"`
	FailureCount     int          `json:"failure_count"`
	SuccessCount     int          `json:"success_count"`
	FailureThreshold int          `json:"failure_threshold"`
	SuccessThreshold int          `json:"success_threshold"`
	Timeout          string       `json:"timeout"`
	NextAttempt      *time.Time   `json:"next_attempt,omitempty"`
}

// Breaker is a three-state circuit breaker driven by an injectable clock.
type Breaker struct {
	mu               sync.Mutex
	state            BreakerState
	failures         int
	successes        int
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	nextAttempt      time.Time
	now              func() time.Time
}

// NewBreaker builds a closed breaker. Non-positive arguments take the defaults.
func NewBreaker(failureThreshold, successThreshold int, timeout time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if successThreshold <= 0 {
		successThreshold = DefaultSuccessThreshold
	}
	if timeout <= 0 {
		timeout = DefaultBreakerTimeout
	}
	return &Breaker{
		state:            StateClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
		now:              time.Now,
	}
}

// SetClock replaces the time source.
func (b *Breaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if now != nil {
		b.now = now
	}
}

// RecordFailure registers a failed operation.
func (b *Breaker) RecordFailure() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.open(now)
		}
	case StateOpen:
		if now.Before(b.nextAttempt) {
			b.nextAttempt = now.Add(b.timeout)
		} else {
			b.state = StateHalfOpen
		}
	case StateHalfOpen:
		b.open(now)
	}
	return b.state
}

// RecordSuccess registers a successful operation.
func (b *Breaker) RecordSuccess() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed:
		b.failures = 0
		b.successes++
	case StateOpen:
		b.state = StateHalfOpen
		b.successes = 1
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.successThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
			b.nextAttempt = time.Time{}
		}
	}
	return b.state
}

// IsOpen reports whether the breaker currently rejects work.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateOpen && b.now().Before(b.nextAttempt)
}

// State reports the stored position without applying the deadline.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset returns the breaker to closed with zeroed counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
	b.nextAttempt = time.Time{}
}

func (b *Breaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap := BreakerSnapshot{
		State:            b.state,
		FailureCount:     b.failures,
		SuccessCount:     b.successes,
		FailureThreshold: b.failureThreshold,
		SuccessThreshold: b.successThreshold,
		Timeout:          b.timeout.String(),
	}
	if !b.nextAttempt.IsZero() {
		next := b.nextAttempt
		snap.NextAttempt = &next
	}
	return snap
}

func (b *Breaker) open(now time.Time) {
	b.state = StateOpen
	b.successes = 0
	b.nextAttempt = now.Add(b.timeout)
}
