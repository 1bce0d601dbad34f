package catalog

import (
	"context"
	"fmt"

	"browserfetch/internal/download"
)

// CompletionSink records finished downloads as installed browsers.
type CompletionSink struct {
	store *Store
}

// NewCompletionSink wraps store.
func NewCompletionSink(store *Store) *CompletionSink {
	return &CompletionSink{store: store}
}

// NotifyCompleted saves the browser and links the task record to it.
func (c *CompletionSink) NotifyCompleted(ctx context.Context, task download.CompletedTask) error {
	browser := Browser{
		ID:             task.BrowserID,
		BrowserType:    string(task.Target.Browser),
		Version:        task.Version,
		Platform:       task.Target.Platform,
		InstallPath:    task.InstallPath,
		ExecutablePath: task.ExecutablePath,
		DownloadDate:   task.CompletedAt,
		FileSize:       task.FileSize,
	}
	if err := c.store.SaveBrowser(ctx, browser); err != nil {
		return fmt.Errorf("record completed browser: %w", err)
	}
	return c.store.LinkBrowser(ctx, task.TaskID, task.BrowserID)
}
