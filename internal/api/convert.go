package api

import (
	"time"

	"browserfetch/internal/catalog"
	"browserfetch/internal/download"
	"browserfetch/internal/logging"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// FromTask converts a task snapshot.
func FromTask(t download.Task) Task {
	out := Task{
		ID:              t.ID,
		BrowserType:     string(t.Target.Browser),
		Version:         t.Target.Version,
		Platform:        t.Target.Platform,
		Status:          string(t.Status),
		Progress:        t.Progress,
		DownloadedBytes: t.DownloadedBytes,
		TotalBytes:      t.TotalBytes,
		ErrorMessage:    t.ErrorMessage,
		RetryCount:      t.RetryCount,
		InstallPath:     t.InstallPath,
		ExecutablePath:  t.ExecutablePath,
		ResolvedVersion: t.ResolvedVersion,
		BrowserID:       t.BrowserID,
		CreatedAt:       formatTime(t.CreatedAt),
		UpdatedAt:       formatTime(t.UpdatedAt),
	}
	if t.ETA != nil {
		secs := int64(t.ETA.Round(time.Second) / time.Second)
		out.EstimatedTimeRemaining = &secs
	}
	return out
}

// FromTasks converts a slice, never returning nil.
func FromTasks(tasks []download.Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, FromTask(t))
	}
	return out
}

// FromBrowser converts a catalog record.
func FromBrowser(b catalog.Browser) Browser {
	return Browser{
		ID:             b.ID,
		BrowserType:    b.BrowserType,
		Version:        b.Version,
		Platform:       b.Platform,
		InstallPath:    b.InstallPath,
		ExecutablePath: b.ExecutablePath,
		DownloadDate:   formatTime(b.DownloadDate),
		FileSize:       b.FileSize,
		IsRunning:      b.IsRunning,
	}
}

// FromBrowsers converts a slice, never returning nil.
func FromBrowsers(list []catalog.Browser) []Browser {
	out := make([]Browser, 0, len(list))
	for _, b := range list {
		out = append(out, FromBrowser(b))
	}
	return out
}

// FromLogEvents converts retained log events.
func FromLogEvents(events []logging.LogEvent) []LogEvent {
	out := make([]LogEvent, 0, len(events))
	for _, evt := range events {
		out = append(out, LogEvent{
			Sequence:  evt.Sequence,
			Timestamp: formatTime(evt.Timestamp),
			Level:     evt.Level,
			Message:   evt.Message,
			Component: evt.Component,
			TaskID:    evt.TaskID,
			Fields:    evt.Fields,
		})
	}
	return out
}
