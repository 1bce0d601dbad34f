package catalog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"browserfetch/internal/events"
	"browserfetch/internal/logging"
)

const recorderWriteTimeout = 5 * time.Second

type recorderOp struct {
	status   *events.Status
	progress *events.Progress
	forget   string
	flush    chan struct{}
}

// TaskRecorder mirrors task events into download_tasks. Publishing only
// appends to an in-memory queue; a background goroutine performs the writes
// in order. Progress events are sampled so the database sees at most one
// write per 10% step of each task.
type TaskRecorder struct {
	store   *Store
	logger  *slog.Logger
	sampler *logging.ProgressSampler
	wake    chan struct{}
	done    chan struct{}

	mu      sync.Mutex
	pending []recorderOp
	closed  bool
}

// NewTaskRecorder starts the writer goroutine. Close stops it.
func NewTaskRecorder(store *Store, logger *slog.Logger) *TaskRecorder {
	r := &TaskRecorder{
		store:   store,
		logger:  logging.NewComponentLogger(logger, "catalog"),
		sampler: logging.NewProgressSampler(10),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *TaskRecorder) PublishStatus(evt events.Status) {
	if evt.Status != "downloading" {
		r.sampler.Forget(evt.TaskID)
	}
	r.enqueue(recorderOp{status: &evt})
}

func (r *TaskRecorder) PublishProgress(evt events.Progress) {
	if !r.sampler.ShouldLog(evt.TaskID, evt.Progress) {
		return
	}
	r.enqueue(recorderOp{progress: &evt})
}

// Forget deletes the task's record after every earlier event is written.
func (r *TaskRecorder) Forget(taskID string) {
	r.sampler.Forget(taskID)
	r.enqueue(recorderOp{forget: taskID})
}

// Flush blocks until every event enqueued before the call is written.
func (r *TaskRecorder) Flush(ctx context.Context) error {
	ch := make(chan struct{})
	if !r.enqueue(recorderOp{flush: ch}) {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close writes queued events and stops the writer.
func (r *TaskRecorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()
	r.signal()
	<-r.done
}

func (r *TaskRecorder) enqueue(op recorderOp) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	r.pending = append(r.pending, op)
	r.mu.Unlock()
	r.signal()
	return true
}

func (r *TaskRecorder) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *TaskRecorder) run() {
	defer close(r.done)
	for {
		r.mu.Lock()
		batch := r.pending
		r.pending = nil
		closed := r.closed
		r.mu.Unlock()

		for _, op := range batch {
			r.apply(op)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-r.wake
	}
}

func (r *TaskRecorder) apply(op recorderOp) {
	if op.flush != nil {
		close(op.flush)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recorderWriteTimeout)
	defer cancel()

	var err error
	taskID := op.forget
	switch {
	case op.status != nil:
		taskID = op.status.TaskID
		err = r.store.ApplyStatus(ctx, *op.status)
	case op.progress != nil:
		taskID = op.progress.TaskID
		err = r.store.ApplyProgress(ctx, *op.progress)
	default:
		err = r.store.DeleteTaskRecord(ctx, op.forget)
	}
	if err != nil {
		logging.WarnWithContext(r.logger, "task record write failed", "catalog_write_failed",
			logging.String(logging.FieldTaskID, taskID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the catalog database with 'browserfetch status'"),
			logging.String(logging.FieldImpact, "task history may lag behind the live registry"),
		)
	}
}
