package api

import (
	"time"

	"browserfetch/internal/catalog"
	"browserfetch/internal/preflight"
	"browserfetch/internal/retry"
)

// Task is the transport form of a download task.
type Task struct {
	ID                     string  `json:"id"`
	BrowserType            string  `json:"browserType"`
	Version                string  `json:"version"`
	Platform               string  `json:"platform"`
	Status                 string  `json:"status"`
	Progress               float64 `json:"progress"`
	DownloadedBytes        int64   `json:"downloadedBytes"`
	TotalBytes             int64   `json:"totalBytes"`
	EstimatedTimeRemaining *int64  `json:"estimatedTimeRemaining,omitempty"`
	ErrorMessage           string  `json:"errorMessage,omitempty"`
	RetryCount             int     `json:"retryCount"`
	InstallPath            string  `json:"installPath,omitempty"`
	ExecutablePath         string  `json:"executablePath,omitempty"`
	ResolvedVersion        string  `json:"resolvedVersion,omitempty"`
	BrowserID              string  `json:"browserId,omitempty"`
	CreatedAt              string  `json:"createdAt"`
	UpdatedAt              string  `json:"updatedAt"`
}

// Browser is an installed browser.
type Browser struct {
	ID             string `json:"id"`
	BrowserType    string `json:"browserType"`
	Version        string `json:"version"`
	Platform       string `json:"platform"`
	InstallPath    string `json:"installPath"`
	ExecutablePath string `json:"executablePath"`
	DownloadDate   string `json:"downloadDate"`
	FileSize       int64  `json:"fileSize"`
	IsRunning      bool   `json:"isRunning"`
}

// InstallRequest is the POST /api/tasks body.
type InstallRequest struct {
	BrowserType string `json:"browserType" binding:"required"`
	Version     string `json:"version" binding:"required"`
	Platform    string `json:"platform"`
}

// RetryHistory is the coordinator's record for one task.
type RetryHistory struct {
	TaskID      string          `json:"taskId"`
	Attempts    []retry.Attempt `json:"attempts"`
	Strategy    string          `json:"strategy,omitempty"`
	CircuitOpen bool            `json:"circuitOpen"`
	OpenUntil   *time.Time      `json:"circuitOpenUntil,omitempty"`
	NextRetryAt *time.Time      `json:"nextRetryAt,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running          bool                   `json:"running"`
	PID              int                    `json:"pid"`
	StartedAt        string                 `json:"startedAt,omitempty"`
	Executor         string                 `json:"executor"`
	LockPath         string                 `json:"lockPath"`
	CatalogPath      string                 `json:"catalogPath"`
	SocketPath       string                 `json:"socketPath"`
	LogPath          string                 `json:"logPath"`
	APIAddress       string                 `json:"apiAddress,omitempty"`
	Breaker          retry.BreakerSnapshot  `json:"breaker"`
	RetryStates      int                    `json:"retryStates"`
	ActiveTasks      int                    `json:"activeTasks"`
	TaskCounts       map[string]int         `json:"taskCounts"`
	Catalog          catalog.Stats          `json:"catalog"`
	Database         catalog.DatabaseHealth `json:"database"`
	Preflight        []preflight.Result     `json:"preflight"`
	EventSubscribers int                    `json:"eventSubscribers"`
	EventsDropped    uint64                 `json:"eventsDropped"`
}

// LogEvent is a structured log line.
type LogEvent struct {
	Sequence  uint64            `json:"seq"`
	Timestamp string            `json:"ts"`
	Level     string            `json:"level"`
	Message   string            `json:"msg"`
	Component string            `json:"component,omitempty"`
	TaskID    string            `json:"taskId,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// LogStreamResponse is a page of log events and the cursor for the next call.
type LogStreamResponse struct {
	Events []LogEvent `json:"events"`
	Next   uint64     `json:"next"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
