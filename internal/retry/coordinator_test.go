package retry_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"browserfetch/internal/logging"
	"browserfetch/internal/retry"
)

func newCoordinator(clock *fakeClock, opts retry.Options) *retry.Coordinator {
	opts.Now = clock.Now
	return retry.NewCoordinator(opts, logging.NewNop())
}

func TestShouldRetryTimeoutSchedule(t *testing.T) {
	clock := newFakeClock()
	c := newCoordinator(clock, retry.Options{})
	ctx := context.Background()

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	for i, expected := range want {
		delay, ok := c.ShouldRetry(ctx, "t1", "connection timed out")
		if !ok || delay != expected {
			t.Fatalf("attempt %d: got %s ok=%v, want %s", i+1, delay, ok, expected)
		}
	}
	d := c.Decide(ctx, "t1", "connection timed out")
	if d.Retry || d.Reason != retry.ReasonAttemptsExhausted || d.Attempt != 6 {
		t.Fatalf("expected exhaustion on attempt 6, got %+v", d)
	}
	next, ok := c.NextRetryAt("t1")
	if ok {
		t.Fatalf("exhausted attempt should have no next retry, got %s", next)
	}
}

func TestShouldRetryNonRetryableStillRecorded(t *testing.T) {
	clock := newFakeClock()
	c := newCoordinator(clock, retry.Options{})
	d := c.Decide(context.Background(), "t1", "invalid version: 999")
	if d.Retry || d.Reason != retry.ReasonNotRetryable {
		t.Fatalf("unexpected decision %+v", d)
	}
	if got := len(c.History("t1")); got != 1 {
		t.Fatalf("expected attempt recorded, got %d", got)
	}
	if snap := c.GlobalState(); snap.FailureCount != 1 {
		t.Fatalf("expected global failure recorded, got %+v", snap)
	}
}

func TestRecordSuccessRestartsNumbering(t *testing.T) {
	clock := newFakeClock()
	c := newCoordinator(clock, retry.Options{})
	ctx := context.Background()
	c.ShouldRetry(ctx, "t1", "timeout")
	c.ShouldRetry(ctx, "t1", "timeout")
	c.RecordSuccess(ctx, "t1")
	if h := c.History("t1"); len(h) != 0 {
		t.Fatalf("expected empty history, got %d", len(h))
	}
	d := c.Decide(ctx, "t1", "timeout")
	if d.Attempt != 1 || d.Delay != time.Second {
		t.Fatalf("expected numbering to restart, got %+v", d)
	}
}

func TestTaskCircuitOpensOnSevereFailures(t *testing.T) {
	clock := newFakeClock()
	c := newCoordinator(clock, retry.Options{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		c.ShouldRetry(ctx, "t1", "out of memory")
		if st, _ := c.State("t1"); st.CircuitOpen {
			t.Fatalf("circuit opened after %d severe failures", i+1)
		}
	}
	// The failure that trips the breaker still gets its delay.
	delay, ok := c.ShouldRetry(ctx, "t1", "out of memory")
	if !ok || delay != 9*time.Second {
		t.Fatalf("expected third delay 9s, got %s ok=%v", delay, ok)
	}
	st, _ := c.State("t1")
	if !st.CircuitOpen || !st.CircuitOpenUntil.Equal(clock.Now().Add(5*time.Minute)) {
		t.Fatalf("expected task circuit open for 5m, got %+v", st)
	}

	d := c.Decide(ctx, "t1", "connection timed out")
	if d.Retry || d.Reason != retry.ReasonTaskCircuitOpen {
		t.Fatalf("expected task circuit veto, got %+v", d)
	}
	if len(c.History("t1")) != 3 {
		t.Fatal("vetoed decisions must not append attempts")
	}

	if _, ok := c.ShouldRetry(ctx, "other", "connection timed out"); !ok {
		t.Fatal("task circuit must not affect other tasks")
	}

	clock.Advance(5 * time.Minute)
	d = c.Decide(ctx, "t1", "connection timed out")
	if d.Reason == retry.ReasonTaskCircuitOpen || d.Attempt != 4 {
		t.Fatalf("expected expired task circuit to be cleared, got %+v", d)
	}
}

func TestTaskCircuitIgnoresLowSeverity(t *testing.T) {
	clock := newFakeClock()
	c := newCoordinator(clock, retry.Options{})
	ctx := context.Background()
	for _, msg := range []string{"out of memory", "out of memory", "bandwidth too low"} {
		c.ShouldRetry(ctx, "t1", msg)
	}
	c.ShouldRetry(ctx, "t1", "transfer slow")
	if st, _ := c.State("t1"); st.CircuitOpen {
		t.Fatal("low severity failures must not open the task circuit")
	}
}

func TestTaskCircuitOnlyCountsRecentWindow(t *testing.T) {
	clock := newFakeClock()
	c := newCoordinator(clock, retry.Options{})
	ctx := context.Background()
	for _, msg := range []string{"out of memory", "out of memory", "timeout", "timeout", "timeout", "timeout", "out of memory"} {
		c.ShouldRetry(ctx, "t1", msg)
	}
	if st, _ := c.State("t1"); st.CircuitOpen {
		t.Fatal("severe failures outside the last five attempts must not count")
	}
}

func TestGlobalCircuitVetoesAllTasks(t *testing.T) {
	clock := newFakeClock()
	c := newCoordinator(clock, retry.Options{FailureThreshold: 3, BreakerTimeout: time.Minute})
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		if _, ok := c.ShouldRetry(ctx, id, "connection refused"); !ok {
			t.Fatalf("failure %d should still retry", i+1)
		}
	}
	if !c.GlobalOpen() {
		t.Fatal("expected global breaker open")
	}
	d := c.Decide(ctx, "d", "connection refused")
	if d.Retry || d.Reason != retry.ReasonGlobalCircuitOpen {
		t.Fatalf("expected global veto, got %+v", d)
	}
	if c.TaskCount() != 3 {
		t.Fatalf("global veto must not create task state, count=%d", c.TaskCount())
	}
	clock.Advance(time.Minute)
	if _, ok := c.ShouldRetry(ctx, "d", "connection refused"); !ok {
		t.Fatal("expected retries once the breaker timeout elapsed")
	}
	if c.GlobalState().State != retry.StateHalfOpen {
		t.Fatalf("expected half-open, got %s", c.GlobalState().State)
	}
}

func TestCleanupRemovesStaleState(t *testing.T) {
	clock := newFakeClock()
	c := newCoordinator(clock, retry.Options{})
	ctx := context.Background()
	c.ShouldRetry(ctx, "old", "timeout")
	clock.Advance(59 * time.Minute)
	c.ShouldRetry(ctx, "fresh", "timeout")
	clock.Advance(2 * time.Minute)
	if removed := c.Cleanup(ctx); removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if c.History("old") != nil || c.History("fresh") == nil {
		t.Fatal("cleanup removed the wrong state")
	}
}

func TestResetDiscardsState(t *testing.T) {
	clock := newFakeClock()
	c := newCoordinator(clock, retry.Options{})
	c.ShouldRetry(context.Background(), "t1", "timeout")
	if !c.Reset("t1") {
		t.Fatal("expected reset to report existing state")
	}
	if c.Reset("t1") {
		t.Fatal("second reset should report nothing removed")
	}
}

func TestDecideConcurrentSameTask(t *testing.T) {
	clock := newFakeClock()
	c := newCoordinator(clock, retry.Options{FailureThreshold: 1000})
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Decide(ctx, "t1", "connection timed out")
		}()
	}
	wg.Wait()
	history := c.History("t1")
	if len(history) != 50 {
		t.Fatalf("expected 50 attempts, got %d", len(history))
	}
	for i, attempt := range history {
		if attempt.Number != i+1 {
			t.Fatalf("attempt %d numbered %d", i, attempt.Number)
		}
	}
}
