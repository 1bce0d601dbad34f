package ipc

import "browserfetch/internal/api"

// StatusRequest requests daemon status.
type StatusRequest struct{}

// StatusResponse carries daemon status.
type StatusResponse struct {
	Status api.DaemonStatus `json:"status"`
}

// InstallRequest starts a download.
type InstallRequest struct {
	BrowserType string `json:"browser_type"`
	Version     string `json:"version"`
	Platform    string `json:"platform,omitempty"`
}

// TaskRequest names a single task.
type TaskRequest struct {
	TaskID string `json:"task_id"`
}

// TaskResponse carries one task snapshot.
type TaskResponse struct {
	Task api.Task `json:"task"`
}

// RemoveResponse acknowledges a removal.
type RemoveResponse struct {
	Removed bool `json:"removed"`
}

// ListRequest lists tasks; Limit bounds history records.
type ListRequest struct {
	Limit int `json:"limit"`
}

// ListResponse carries task snapshots.
type ListResponse struct {
	Tasks []api.Task `json:"tasks"`
}

// BrowsersRequest lists installed browsers.
type BrowsersRequest struct{}

// BrowsersResponse carries installed browsers.
type BrowsersResponse struct {
	Browsers []api.Browser `json:"browsers"`
}

// DeleteBrowserRequest uninstalls a browser.
type DeleteBrowserRequest struct {
	ID        string `json:"id"`
	KeepFiles bool   `json:"keep_files"`
}

// DeleteBrowserResponse carries the removed browser.
type DeleteBrowserResponse struct {
	Browser api.Browser `json:"browser"`
}

// RetryHistoryResponse carries coordinator history for a task.
type RetryHistoryResponse struct {
	History api.RetryHistory `json:"history"`
}

// ResetRetryResponse reports whether retry state existed.
type ResetRetryResponse struct {
	Reset bool `json:"reset"`
}

// LogTailRequest reads daemon logs. With the in-memory stream, Since is the
// last sequence seen; otherwise Offset is a byte offset into the log file
// (-1 reads the last Limit lines).
type LogTailRequest struct {
	Since      uint64 `json:"since"`
	Offset     int64  `json:"offset"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"wait_millis"`
	TaskID     string `json:"task_id,omitempty"`
}

// LogTailResponse carries either structured events or raw file lines.
type LogTailResponse struct {
	Events []api.LogEvent `json:"events,omitempty"`
	Next   uint64         `json:"next"`
	Lines  []string       `json:"lines,omitempty"`
	Offset int64          `json:"offset"`
}

// StopRequest asks the daemon to shut down.
type StopRequest struct{}

// StopResponse acknowledges shutdown.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}
