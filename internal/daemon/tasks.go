package daemon

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"browserfetch/internal/catalog"
	"browserfetch/internal/download"
	"browserfetch/internal/executor"
	"browserfetch/internal/logging"
	"browserfetch/internal/retry"
	"browserfetch/internal/services"
)

// InstallRequest names the browser to download. An empty platform means the
// host platform.
type InstallRequest struct {
	BrowserType string `json:"browser_type"`
	Version     string `json:"version"`
	Platform    string `json:"platform,omitempty"`
}

// RetryInfo is the coordinator's view of one task.
type RetryInfo struct {
	TaskID      string          `json:"task_id"`
	Attempts    []retry.Attempt `json:"attempts"`
	Strategy    string          `json:"strategy,omitempty"`
	CircuitOpen bool            `json:"circuit_open"`
	OpenUntil   *time.Time      `json:"circuit_open_until,omitempty"`
	NextRetryAt *time.Time      `json:"next_retry_at,omitempty"`
}

// Install validates req, records the task and starts downloading it.
func (d *Daemon) Install(ctx context.Context, req InstallRequest) (download.Task, error) {
	browser, err := download.ParseBrowser(req.BrowserType)
	if err != nil {
		return download.Task{}, services.Wrap(services.ErrValidation, "daemon", "install", "", err)
	}
	target := download.Target{
		Browser:  browser,
		Version:  strings.TrimSpace(req.Version),
		Platform: strings.TrimSpace(req.Platform),
	}
	if target.Platform == "" {
		target.Platform = executor.CurrentPlatform()
	}
	if err := executor.ValidateTarget(target); err != nil {
		return download.Task{}, services.Wrap(services.ErrValidation, "daemon", "install", "", err)
	}

	taskID := download.NewTaskID()
	now := time.Now()
	if err := d.store.RecordTask(ctx, catalog.TaskRecord{
		ID:          taskID,
		BrowserType: string(target.Browser),
		Version:     target.Version,
		Platform:    target.Platform,
		Status:      string(download.StatusPending),
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		logging.WarnWithContext(d.logger, "task history insert failed", "catalog_write_failed",
			logging.String(logging.FieldTaskID, taskID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "task will run but its target may be missing from history"),
		)
	}

	ctx = services.WithTaskID(ctx, taskID)
	if err := d.orch.Start(ctx, taskID, target); err != nil {
		_ = d.store.DeleteTaskRecord(context.WithoutCancel(ctx), taskID)
		return download.Task{}, err
	}
	task, _ := d.orch.Progress(taskID)
	return task, nil
}

// Retry re-runs a failed task.
func (d *Daemon) Retry(ctx context.Context, taskID string) (download.Task, error) {
	if err := d.orch.Retry(services.WithTaskID(ctx, taskID), taskID); err != nil {
		return download.Task{}, err
	}
	task, _ := d.orch.Progress(taskID)
	return task, nil
}

// Remove aborts the task if it is running and deletes it from the registry
// and from task history.
func (d *Daemon) Remove(ctx context.Context, taskID string) error {
	err := d.orch.Remove(services.WithTaskID(ctx, taskID), taskID)
	if err == nil {
		d.recorder.Forget(taskID)
		return nil
	}
	if !errors.Is(err, download.ErrTaskNotFound) {
		return err
	}
	// Tasks from an earlier daemon run only exist in history.
	if _, getErr := d.store.GetTaskRecord(ctx, taskID); getErr != nil {
		return err
	}
	d.coord.Reset(taskID)
	d.recorder.Forget(taskID)
	return nil
}

// Task returns the live task, falling back to task history.
func (d *Daemon) Task(ctx context.Context, taskID string) (download.Task, error) {
	if task, ok := d.orch.Progress(taskID); ok {
		return task, nil
	}
	rec, err := d.store.GetTaskRecord(ctx, taskID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return download.Task{}, services.Wrap(services.ErrNotFound, "daemon", "task", "task "+taskID, download.ErrTaskNotFound)
		}
		return download.Task{}, err
	}
	return taskFromRecord(rec), nil
}

// Tasks returns live tasks merged with history, oldest first. limit bounds
// how many history records are read; live tasks are always included.
func (d *Daemon) Tasks(ctx context.Context, limit int) ([]download.Task, error) {
	live := d.orch.List()
	seen := make(map[string]struct{}, len(live))
	for _, task := range live {
		seen[task.ID] = struct{}{}
	}
	records, err := d.store.ListTaskRecords(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := live
	for _, rec := range records {
		if _, ok := seen[rec.ID]; ok {
			continue
		}
		out = append(out, taskFromRecord(rec))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// RetryHistory returns the coordinator's attempts for a task.
func (d *Daemon) RetryHistory(taskID string) (RetryInfo, error) {
	state, ok := d.coord.State(taskID)
	if !ok {
		if _, live := d.orch.Progress(taskID); !live {
			return RetryInfo{}, services.Wrap(services.ErrNotFound, "daemon", "retry history", "no retry state for task "+taskID, nil)
		}
		return RetryInfo{TaskID: taskID, Attempts: []retry.Attempt{}}, nil
	}
	info := RetryInfo{
		TaskID:      taskID,
		Attempts:    state.Attempts,
		CircuitOpen: state.CircuitOpen,
	}
	if len(state.Attempts) > 0 {
		info.Strategy = state.Strategy.String()
	}
	if state.CircuitOpen && !state.CircuitOpenUntil.IsZero() {
		until := state.CircuitOpenUntil
		info.OpenUntil = &until
	}
	if next, ok := d.coord.NextRetryAt(taskID); ok {
		info.NextRetryAt = &next
	}
	return info, nil
}

// ResetRetry discards the task's retry state. It reports whether any existed.
func (d *Daemon) ResetRetry(taskID string) bool {
	return d.coord.Reset(taskID)
}

// Browsers lists installed browsers.
func (d *Daemon) Browsers(ctx context.Context) ([]catalog.Browser, error) {
	return d.store.ListBrowsers(ctx)
}

// DeleteBrowser removes an installed browser and, unless keepFiles is set,
// its install directory.
func (d *Daemon) DeleteBrowser(ctx context.Context, id string, keepFiles bool) (catalog.Browser, error) {
	b, err := d.store.DeleteBrowser(ctx, id, !keepFiles)
	if errors.Is(err, catalog.ErrNotFound) {
		return catalog.Browser{}, services.Wrap(services.ErrNotFound, "daemon", "delete browser", "", err)
	}
	if err != nil {
		return catalog.Browser{}, err
	}
	d.logger.Info("browser removed",
		logging.String("browser_id", b.ID),
		logging.String("browser", b.BrowserType),
		logging.String("version", b.Version),
		logging.Bool("files_removed", !keepFiles),
	)
	return b, nil
}

func taskFromRecord(rec catalog.TaskRecord) download.Task {
	task := download.Task{
		ID: rec.ID,
		Target: download.Target{
			Browser:  download.Browser(rec.BrowserType),
			Version:  rec.Version,
			Platform: rec.Platform,
		},
		Status:          download.Status(rec.Status),
		Progress:        rec.Progress,
		DownloadedBytes: rec.DownloadedBytes,
		TotalBytes:      rec.TotalBytes,
		ErrorMessage:    rec.ErrorMessage,
		RetryCount:      rec.RetryCount,
		InstallPath:     rec.InstallPath,
		BrowserID:       rec.BrowserID,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
	if rec.ETASeconds != nil {
		eta := time.Duration(*rec.ETASeconds) * time.Second
		task.ETA = &eta
	}
	// History rows from a previous run that never reached a terminal state
	// were interrupted by shutdown.
	if !task.Status.Terminal() {
		task.Status = download.StatusFailed
		if task.ErrorMessage == "" {
			task.ErrorMessage = "interrupted by daemon shutdown"
		}
	}
	return task
}
