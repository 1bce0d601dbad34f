package download_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"golang.org/x/text/language"

	"browserfetch/internal/download"
	"browserfetch/internal/faults"
	"browserfetch/internal/retry"
	"browserfetch/internal/testsupport"
)

type recordingSink struct {
	mu        sync.Mutex
	completed []download.CompletedTask
	err       error
}

func (s *recordingSink) NotifyCompleted(_ context.Context, task download.CompletedTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, task)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completed)
}

type delayLog struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (d *delayLog) sleep(ctx context.Context, delay time.Duration) error {
	d.mu.Lock()
	d.delays = append(d.delays, delay)
	d.mu.Unlock()
	return ctx.Err()
}

func (d *delayLog) snapshot() []time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Duration(nil), d.delays...)
}

type harness struct {
	orch   *download.Orchestrator
	pub    *testsupport.RecordingPublisher
	coord  *retry.Coordinator
	sink   *recordingSink
	delays *delayLog
}

func newHarness(t *testing.T, exec download.Executor, opts ...download.Option) *harness {
	t.Helper()
	h := &harness{
		pub:    &testsupport.RecordingPublisher{},
		coord:  retry.NewCoordinator(retry.Options{}, nil),
		sink:   &recordingSink{},
		delays: &delayLog{},
	}
	opts = append([]download.Option{download.WithSleep(h.delays.sleep)}, opts...)
	h.orch = download.New(exec, h.coord, h.sink, h.pub, nil, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.orch.Shutdown(ctx)
	})
	return h
}

func (h *harness) wait(t *testing.T, taskID string) download.Task {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.orch.Wait(ctx, taskID); err != nil {
		t.Fatalf("wait for %s: %v", taskID, err)
	}
	task, ok := h.orch.Progress(taskID)
	if !ok {
		t.Fatalf("task %s missing after wait", taskID)
	}
	return task
}

var chrome120 = download.Target{Browser: download.Chrome, Version: "120.0.6099.109", Platform: "linux64"}

func TestInvalidVersionFailsWithoutRetry(t *testing.T) {
	exec := testsupport.NewFakeExecutor(testsupport.Step{Err: errors.New("version not found: 999.0")})
	h := newHarness(t, exec)

	if err := h.orch.Start(context.Background(), "t1", chrome120); err != nil {
		t.Fatalf("Start: %v", err)
	}
	task := h.wait(t, "t1")

	if task.Status != download.StatusFailed {
		t.Fatalf("expected failed, got %s", task.Status)
	}
	if task.RetryCount != 0 {
		t.Fatalf("expected no retries, got %d", task.RetryCount)
	}
	want := faults.New(faults.KindInvalidVersion).UserMessage(language.English)
	if task.ErrorMessage != want {
		t.Fatalf("error message = %q, want %q", task.ErrorMessage, want)
	}
	seq := h.pub.StatusSequence("t1")
	if !slices.Equal(seq, []string{"pending", "downloading", "failed"}) {
		t.Fatalf("unexpected status sequence %v", seq)
	}
	if exec.Calls() != 1 {
		t.Fatalf("expected 1 executor call, got %d", exec.Calls())
	}
	if h.sink.count() != 0 {
		t.Fatal("failed task must not reach the completion sink")
	}
}

func TestTransientFailuresThenSuccess(t *testing.T) {
	timeout := testsupport.Step{Err: errors.New("dial tcp: connection timed out")}
	exec := testsupport.NewFakeExecutor(timeout, timeout, testsupport.Step{
		Resolved: download.Resolved{InstallPath: "/opt/browsers/chrome/linux64-120", Version: "120.0.6099.109", TotalBytes: 2048},
	})
	h := newHarness(t, exec)

	if err := h.orch.Start(context.Background(), "t2", chrome120); err != nil {
		t.Fatalf("Start: %v", err)
	}
	task := h.wait(t, "t2")

	seq := h.pub.StatusSequence("t2")
	want := []string{"pending", "downloading", "retrying", "downloading", "retrying", "downloading", "completed"}
	if !slices.Equal(seq, want) {
		t.Fatalf("status sequence = %v, want %v", seq, want)
	}
	if task.RetryCount != 2 {
		t.Fatalf("expected retry_count 2, got %d", task.RetryCount)
	}
	if task.Progress != 1.0 || task.FileSize != 2048 || task.BrowserID == "" {
		t.Fatalf("unexpected completed task %+v", task)
	}
	if delays := h.delays.snapshot(); !slices.Equal(delays, []time.Duration{time.Second, 2 * time.Second}) {
		t.Fatalf("unexpected retry delays %v", delays)
	}
	if hist := h.coord.History("t2"); len(hist) != 0 {
		t.Fatalf("success should clear retry history, got %d attempts", len(hist))
	}
	statuses := h.pub.Statuses("t2")
	last := statuses[len(statuses)-1]
	if last.InstallPath != "/opt/browsers/chrome/linux64-120" {
		t.Fatalf("completed event install path = %q", last.InstallPath)
	}
	if last.Progress == nil || *last.Progress != 1.0 {
		t.Fatalf("completed event should carry progress 1.0")
	}
	for _, evt := range statuses[:len(statuses)-1] {
		if evt.InstallPath != "" {
			t.Fatalf("install path leaked into %s event", evt.Status)
		}
	}
	if h.sink.count() != 1 {
		t.Fatalf("expected one completion, got %d", h.sink.count())
	}
}

func TestAttemptTimeoutIsReportedAsNetworkTimeout(t *testing.T) {
	exec := testsupport.NewFakeExecutor(
		testsupport.Step{Block: true},
		testsupport.Step{Resolved: download.Resolved{InstallPath: "/tmp/chrome"}},
	)
	h := newHarness(t, exec, download.WithAttemptTimeout(20*time.Millisecond))

	if err := h.orch.Start(context.Background(), "t3", chrome120); err != nil {
		t.Fatalf("Start: %v", err)
	}
	task := h.wait(t, "t3")
	if task.Status != download.StatusCompleted {
		t.Fatalf("expected completed after retry, got %s", task.Status)
	}
	statuses := h.pub.Statuses("t3")
	if len(statuses) < 3 || statuses[2].Status != "retrying" {
		t.Fatalf("expected a retrying event, got %v", h.pub.StatusSequence("t3"))
	}
	want := faults.New(faults.KindNetworkTimeout).UserMessage(language.English)
	if statuses[2].ErrorMessage != want {
		t.Fatalf("retry message = %q, want %q", statuses[2].ErrorMessage, want)
	}
}

func TestExecutorPanicBecomesProcessError(t *testing.T) {
	exec := testsupport.NewFakeExecutor(
		testsupport.Step{Panic: "nil map"},
		testsupport.Step{Resolved: download.Resolved{InstallPath: "/tmp/chrome"}},
	)
	h := newHarness(t, exec)

	if err := h.orch.Start(context.Background(), "t4", chrome120); err != nil {
		t.Fatalf("Start: %v", err)
	}
	task := h.wait(t, "t4")
	if task.Status != download.StatusCompleted || task.RetryCount != 1 {
		t.Fatalf("unexpected task after panic recovery: %+v", task)
	}
	if delays := h.delays.snapshot(); !slices.Equal(delays, []time.Duration{3 * time.Second}) {
		t.Fatalf("process errors use linear backoff, got %v", delays)
	}
}

func TestRemoveAbortsRunningTask(t *testing.T) {
	exec := testsupport.NewFakeExecutor(testsupport.Step{Block: true})
	h := newHarness(t, exec)

	if err := h.orch.Start(context.Background(), "t5", chrome120); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-exec.Started():
	case <-time.After(5 * time.Second):
		t.Fatal("executor never started")
	}
	before := len(h.pub.Statuses("t5"))

	if err := h.orch.Remove(context.Background(), "t5"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := h.orch.Progress("t5"); ok {
		t.Fatal("removed task still visible")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.orch.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if after := len(h.pub.Statuses("t5")); after != before {
		t.Fatalf("aborted task published %d more events", after-before)
	}
	if h.sink.count() != 0 {
		t.Fatal("aborted task reached the completion sink")
	}
	if err := h.orch.Remove(context.Background(), "t5"); !errors.Is(err, download.ErrTaskNotFound) {
		t.Fatalf("second remove: expected ErrTaskNotFound, got %v", err)
	}
}

func TestStartRejectsDuplicates(t *testing.T) {
	release := make(chan struct{})
	exec := testsupport.NewFakeExecutor(testsupport.Step{Release: release})
	h := newHarness(t, exec)

	if err := h.orch.Start(context.Background(), "t6", chrome120); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.orch.Start(context.Background(), "t6", chrome120); !errors.Is(err, download.ErrTaskActive) {
		t.Fatalf("expected ErrTaskActive, got %v", err)
	}
	close(release)
	h.wait(t, "t6")
	if err := h.orch.Start(context.Background(), "t6", chrome120); !errors.Is(err, download.ErrTaskExists) {
		t.Fatalf("expected ErrTaskExists, got %v", err)
	}
	if err := h.orch.Start(context.Background(), "  ", chrome120); !errors.Is(err, download.ErrInvalidTask) {
		t.Fatalf("expected ErrInvalidTask, got %v", err)
	}
}

func TestManualRetryHonoursCeiling(t *testing.T) {
	exec := testsupport.NewFakeExecutor(testsupport.Step{Err: errors.New("invalid version string")})
	h := newHarness(t, exec, download.WithRetryCeiling(1))
	ctx := context.Background()

	if err := h.orch.Start(ctx, "t7", chrome120); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.wait(t, "t7")

	if err := h.orch.Retry(ctx, "t7"); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	task := h.wait(t, "t7")
	if task.Status != download.StatusFailed || task.RetryCount != 1 {
		t.Fatalf("unexpected task after retry: %+v", task)
	}
	seq := h.pub.StatusSequence("t7")
	want := []string{"pending", "downloading", "failed", "retrying", "downloading", "failed"}
	if !slices.Equal(seq, want) {
		t.Fatalf("status sequence = %v, want %v", seq, want)
	}
	if got := len(h.coord.History("t7")); got != 2 {
		t.Fatalf("manual retry keeps coordinator history, got %d attempts", got)
	}

	if err := h.orch.Retry(ctx, "t7"); !errors.Is(err, download.ErrRetryLimit) {
		t.Fatalf("expected ErrRetryLimit, got %v", err)
	}
	if err := h.orch.Retry(ctx, "missing"); !errors.Is(err, download.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestRetryRequiresFailedTask(t *testing.T) {
	exec := testsupport.NewFakeExecutor(testsupport.Step{Resolved: download.Resolved{InstallPath: "/tmp/ff"}})
	h := newHarness(t, exec)
	ctx := context.Background()

	if err := h.orch.Start(ctx, "t8", download.Target{Browser: download.Firefox, Version: "121.0", Platform: "linux64"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.wait(t, "t8")
	if err := h.orch.Retry(ctx, "t8"); !errors.Is(err, download.ErrNotFailed) {
		t.Fatalf("expected ErrNotFailed, got %v", err)
	}
}

func TestProgressIsPublished(t *testing.T) {
	eta := 4 * time.Second
	exec := testsupport.NewFakeExecutor(testsupport.Step{
		Progress: []download.ProgressUpdate{
			{Ratio: 0.25, DownloadedBytes: 256, TotalBytes: 1024, ETA: &eta},
			{Ratio: 1.7, DownloadedBytes: 1024, TotalBytes: 1024},
		},
		Resolved: download.Resolved{InstallPath: "/tmp/chromium"},
	})
	h := newHarness(t, exec, download.WithLocator(func(installPath string, b download.Browser) string {
		return installPath + "/" + string(b)
	}))

	if err := h.orch.Start(context.Background(), "t9", download.Target{Browser: download.Chromium, Version: "1200000", Platform: "linux64"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	task := h.wait(t, "t9")

	progress := h.pub.Progress("t9")
	if len(progress) != 2 {
		t.Fatalf("expected 2 progress events, got %d", len(progress))
	}
	first := progress[0]
	if first.Progress != 0.25 || first.DownloadedBytes != 256 || first.TotalBytes != 1024 || first.Status != "downloading" {
		t.Fatalf("unexpected first progress event %+v", first)
	}
	if first.EstimatedTimeRemaining == nil || *first.EstimatedTimeRemaining != 4 {
		t.Fatalf("expected ETA of 4 seconds, got %v", first.EstimatedTimeRemaining)
	}
	if progress[1].Progress != 1.0 {
		t.Fatalf("ratio should clamp to 1.0, got %v", progress[1].Progress)
	}
	if task.ExecutablePath != "/tmp/chromium/chromium" {
		t.Fatalf("locator not applied: %q", task.ExecutablePath)
	}
	if task.ResolvedVersion != "1200000" || task.FileSize != 1024 {
		t.Fatalf("unexpected completed task %+v", task)
	}
}

func TestShutdownRejectsNewWork(t *testing.T) {
	h := newHarness(t, testsupport.NewFakeExecutor())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.orch.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := h.orch.Start(context.Background(), "late", chrome120); !errors.Is(err, download.ErrShuttingDown) {
		t.Fatalf("expected ErrShuttingDown, got %v", err)
	}
}

func TestListOrdersByCreation(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	h := newHarness(t, testsupport.NewFakeExecutor(testsupport.Step{Err: errors.New("invalid browser type: opera")}), download.WithClock(clock))
	ctx := context.Background()

	for _, id := range []string{"b", "a", "c"} {
		if err := h.orch.Start(ctx, id, chrome120); err != nil {
			t.Fatalf("Start %s: %v", id, err)
		}
		h.wait(t, id)
	}
	var ids []string
	for _, task := range h.orch.List() {
		ids = append(ids, task.ID)
	}
	if !slices.Equal(ids, []string{"b", "a", "c"}) {
		t.Fatalf("unexpected order %v", ids)
	}
}

func TestAttemptTimeoutHoldsWhenExecutorIgnoresContext(t *testing.T) {
	release := make(chan struct{})
	exec := testsupport.NewFakeExecutor(
		testsupport.Step{
			Release:  release,
			Stubborn: true,
			Progress: []download.ProgressUpdate{{Ratio: 0.3, DownloadedBytes: 30, TotalBytes: 100}},
			Resolved: download.Resolved{InstallPath: "/tmp/stale"},
		},
		testsupport.Step{Resolved: download.Resolved{InstallPath: "/tmp/chrome", TotalBytes: 100}},
	)
	h := newHarness(t, exec, download.WithAttemptTimeout(20*time.Millisecond))
	defer close(release)

	if err := h.orch.Start(context.Background(), "t-stuck", chrome120); err != nil {
		t.Fatalf("Start: %v", err)
	}
	task := h.wait(t, "t-stuck")
	if task.Status != download.StatusCompleted || task.InstallPath != "/tmp/chrome" {
		t.Fatalf("expected completion from the second attempt, got %+v", task)
	}
	if task.RetryCount != 1 || exec.Calls() != 2 {
		t.Fatalf("retry_count=%d calls=%d", task.RetryCount, exec.Calls())
	}
}

func TestRetryResetsProgressForNextAttempt(t *testing.T) {
	exec := testsupport.NewFakeExecutor(
		testsupport.Step{
			Progress: []download.ProgressUpdate{{Ratio: 0.5, DownloadedBytes: 512, TotalBytes: 1024}},
			Err:      errors.New("connection timed out"),
		},
		testsupport.Step{Resolved: download.Resolved{InstallPath: "/tmp/chrome", TotalBytes: 1024}},
	)
	h := newHarness(t, exec)

	if err := h.orch.Start(context.Background(), "t-reset", chrome120); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.wait(t, "t-reset")

	var downloading []float64
	for _, evt := range h.pub.Statuses("t-reset") {
		if evt.Status == "downloading" && evt.Progress != nil {
			downloading = append(downloading, *evt.Progress)
		}
	}
	if !slices.Equal(downloading, []float64{0, 0}) {
		t.Fatalf("each attempt should start from zero progress, got %v", downloading)
	}
}

type gatedSink struct {
	recordingSink
	entered chan struct{}
	release chan struct{}
}

func (s *gatedSink) NotifyCompleted(ctx context.Context, task download.CompletedTask) error {
	close(s.entered)
	<-s.release
	return s.recordingSink.NotifyCompleted(ctx, task)
}

func TestRemoveWaitsForCompletionBookkeeping(t *testing.T) {
	sink := &gatedSink{entered: make(chan struct{}), release: make(chan struct{})}
	coord := retry.NewCoordinator(retry.Options{}, nil)
	exec := testsupport.NewFakeExecutor(testsupport.Step{Resolved: download.Resolved{InstallPath: "/tmp/chrome"}})
	orch := download.New(exec, coord, sink, &testsupport.RecordingPublisher{}, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = orch.Shutdown(ctx)
	})

	if err := orch.Start(context.Background(), "t-race", chrome120); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-sink.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("completion sink never called")
	}

	removed := make(chan error, 1)
	go func() { removed <- orch.Remove(context.Background(), "t-race") }()
	select {
	case err := <-removed:
		t.Fatalf("Remove returned while completion was recorded: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(sink.release)
	select {
	case err := <-removed:
		if err != nil {
			t.Fatalf("Remove: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Remove never returned")
	}
	if sink.count() != 1 {
		t.Fatalf("expected the completed install to be catalogued once, got %d", sink.count())
	}
	if _, ok := orch.Progress("t-race"); ok {
		t.Fatal("removed task still visible")
	}
	if hist := coord.History("t-race"); len(hist) != 0 {
		t.Fatalf("unexpected retry history %v", hist)
	}
}
