package download

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"browserfetch/internal/logging"
	"browserfetch/internal/services"
)

// run drives one task until it completes, fails, or is aborted.
func (o *Orchestrator) run(ctx context.Context, taskID string, h *handle) {
	defer func() {
		o.mu.Lock()
		if cur, ok := o.handles[taskID]; ok && cur.gen == h.gen {
			delete(o.handles, taskID)
		}
		o.mu.Unlock()
		h.cancel()
		close(h.done)
		o.wg.Done()
	}()

	ctx = services.WithTaskID(ctx, taskID)
	logger := logging.WithContext(ctx, o.logger)

	for attempt := 1; ; attempt++ {
		task, ok := o.update(taskID, h, func(t *Task) {
			t.Status = StatusDownloading
			t.ErrorMessage = ""
			t.Progress = 0
			t.DownloadedBytes = 0
			t.ETA = nil
		})
		if !ok {
			return
		}

		attemptCtx := services.WithAttempt(ctx, attempt)
		resolved, err := o.attempt(attemptCtx, taskID, h, task.Target)
		if ctx.Err() != nil {
			logger.Info("download aborted", logging.Int(logging.FieldAttempt, attempt))
			return
		}
		if err == nil {
			o.complete(attemptCtx, taskID, h, task.Target, resolved)
			return
		}

		decision := o.coord.Decide(attemptCtx, taskID, err.Error())
		message := decision.Error.UserMessage(o.lang)
		if !decision.Retry {
			if _, ok := o.update(taskID, h, func(t *Task) {
				t.Status = StatusFailed
				t.ErrorMessage = message
				t.ETA = nil
			}); ok {
				logging.WarnWithContext(logger, "download failed", "download_failed",
					logging.Int(logging.FieldAttempt, attempt),
					logging.String(logging.FieldErrorKind, decision.Error.Kind.String()),
					logging.String("reason", decision.Reason),
					logging.String("details", decision.Error.TechnicalDetails()),
					logging.String(logging.FieldErrorHint, message),
					logging.String(logging.FieldImpact, "task marked failed; retry manually once the cause is fixed"),
				)
			}
			o.sampler.Forget(taskID)
			return
		}

		if _, ok := o.update(taskID, h, func(t *Task) {
			t.Status = StatusRetrying
			t.RetryCount++
			t.ErrorMessage = message
		}); !ok {
			return
		}
		logger.Info("download retry scheduled",
			logging.Int(logging.FieldAttempt, attempt),
			logging.Duration("delay", decision.Delay),
			logging.String(logging.FieldErrorKind, decision.Error.Kind.String()),
		)
		if err := o.sleep(ctx, decision.Delay); err != nil {
			return
		}
	}
}

type outcome struct {
	resolved Resolved
	err      error
}

// attempt runs the executor once under the attempt timeout. It returns when
// the deadline passes even if the executor ignores its context; progress
// from an abandoned executor is discarded.
func (o *Orchestrator) attempt(ctx context.Context, taskID string, h *handle, target Target) (Resolved, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, o.attemptTimeout)
	defer cancel()

	var finished atomic.Bool
	result := make(chan outcome, 1)
	go func() {
		var out outcome
		defer func() {
			if r := recover(); r != nil {
				out = outcome{err: fmt.Errorf("executor process panicked: %v", r)}
			}
			result <- out
		}()
		out.resolved, out.err = o.exec.Execute(attemptCtx, target, func(update ProgressUpdate) {
			if finished.Load() {
				return
			}
			o.applyProgress(taskID, h, update)
		})
	}()

	var out outcome
	select {
	case out = <-result:
	case <-attemptCtx.Done():
		select {
		case out = <-result:
		default:
			out.err = attemptCtx.Err()
		}
	}
	finished.Store(true)

	if out.err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		out.err = fmt.Errorf("download timed out after %s", o.attemptTimeout)
	}
	return out.resolved, out.err
}

func (o *Orchestrator) applyProgress(taskID string, h *handle, update ProgressUpdate) {
	o.mu.Lock()
	task, ok := o.liveLocked(taskID, h)
	if !ok {
		o.mu.Unlock()
		return
	}
	task.Progress = clampRatio(update.Ratio)
	task.DownloadedBytes = update.DownloadedBytes
	if update.TotalBytes > 0 {
		task.TotalBytes = update.TotalBytes
	}
	task.ETA = update.ETA
	task.UpdatedAt = o.now()
	o.publishProgressLocked(task)
	progress := task.Progress
	downloaded, total := task.DownloadedBytes, task.TotalBytes
	o.mu.Unlock()

	if o.sampler.ShouldLog(taskID, progress) {
		o.logger.Debug("download progress",
			logging.String(logging.FieldTaskID, taskID),
			logging.Float64("progress", progress),
			logging.Int64("downloaded_bytes", downloaded),
			logging.Int64("total_bytes", total),
		)
	}
}

func (o *Orchestrator) complete(ctx context.Context, taskID string, h *handle, target Target, resolved Resolved) {
	executable := resolved.ExecutablePath
	if executable == "" && resolved.InstallPath != "" {
		executable = o.locate(resolved.InstallPath, target.Browser)
	}
	version := resolved.Version
	if version == "" {
		version = target.Version
	}

	h.finishing.Lock()
	defer h.finishing.Unlock()

	o.mu.Lock()
	task, ok := o.liveLocked(taskID, h)
	if !ok {
		o.mu.Unlock()
		return
	}
	now := o.now()
	task.Status = StatusCompleted
	task.Progress = 1.0
	task.ETA = nil
	task.ErrorMessage = ""
	task.InstallPath = resolved.InstallPath
	task.ExecutablePath = executable
	task.ResolvedVersion = version
	if resolved.TotalBytes > 0 {
		task.TotalBytes = resolved.TotalBytes
	}
	task.FileSize = task.TotalBytes
	task.BrowserID = uuid.NewString()
	task.UpdatedAt = now
	completed := CompletedTask{
		TaskID:         taskID,
		BrowserID:      task.BrowserID,
		Target:         task.Target,
		Version:        version,
		InstallPath:    task.InstallPath,
		ExecutablePath: executable,
		FileSize:       task.FileSize,
		CompletedAt:    now,
	}
	retries := task.RetryCount
	elapsed := now.Sub(task.CreatedAt)
	o.mu.Unlock()

	logger := logging.WithContext(ctx, o.logger)
	if o.sink != nil {
		if err := o.sink.NotifyCompleted(ctx, completed); err != nil {
			logging.ErrorWithContext(logger, "failed to record completed browser", "completion_sink_failed",
				logging.Error(err),
				logging.String("install_path", completed.InstallPath),
				logging.String(logging.FieldErrorHint, "the browser is installed but missing from the catalog"),
			)
		}
	}

	o.mu.Lock()
	if live, ok := o.liveLocked(taskID, h); ok {
		o.publishStatusLocked(live)
	}
	o.mu.Unlock()

	o.coord.RecordSuccess(ctx, taskID)
	o.sampler.Forget(taskID)
	logger.Info("download completed",
		logging.String("install_path", completed.InstallPath),
		logging.String("version", version),
		logging.Int64("file_size", completed.FileSize),
		logging.Int("retry_count", retries),
		logging.Duration("elapsed", elapsed.Round(time.Second)),
	)
}

func clampRatio(r float64) float64 {
	switch {
	case r < 0 || r != r:
		return 0
	case r > 1:
		return 1
	default:
		return r
	}
}
