package testsupport

import (
	"context"
	"sync"

	"browserfetch/internal/download"
)

// Step scripts one executor call.
type Step struct {
	Progress []download.ProgressUpdate
	Resolved download.Resolved
	Err      error
	// Block waits for the attempt context to end and returns its error.
	Block bool
	// Release, when set, holds the call until it is closed.
	Release chan struct{}
	// Stubborn ignores the attempt context while waiting on Release.
	Stubborn bool
	Panic    any
}

// FakeExecutor replays scripted steps in order. Once the script runs out the
// last step repeats.
type FakeExecutor struct {
	mu      sync.Mutex
	steps   []Step
	calls   int
	targets []download.Target
	started chan struct{}
}

// NewFakeExecutor returns an executor that replays steps.
func NewFakeExecutor(steps ...Step) *FakeExecutor {
	if len(steps) == 0 {
		steps = []Step{{}}
	}
	return &FakeExecutor{steps: steps, started: make(chan struct{}, 64)}
}

func (f *FakeExecutor) Execute(ctx context.Context, target download.Target, onProgress func(download.ProgressUpdate)) (download.Resolved, error) {
	f.mu.Lock()
	idx := min(f.calls, len(f.steps)-1)
	step := f.steps[idx]
	f.calls++
	f.targets = append(f.targets, target)
	f.mu.Unlock()

	select {
	case f.started <- struct{}{}:
	default:
	}

	if step.Panic != nil {
		panic(step.Panic)
	}
	for _, update := range step.Progress {
		onProgress(update)
	}
	if step.Release != nil && step.Stubborn {
		<-step.Release
		for _, update := range step.Progress {
			onProgress(update)
		}
		return step.Resolved, step.Err
	}
	if step.Release != nil {
		select {
		case <-step.Release:
		case <-ctx.Done():
			return download.Resolved{}, ctx.Err()
		}
	}
	if step.Block {
		<-ctx.Done()
		return download.Resolved{}, ctx.Err()
	}
	return step.Resolved, step.Err
}

// Calls reports how many times Execute ran.
func (f *FakeExecutor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Started fires once per Execute call.
func (f *FakeExecutor) Started() <-chan struct{} {
	return f.started
}
