package download

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Browser identifies a downloadable browser artifact.
type Browser string

const (
	Chrome       Browser = "chrome"
	Chromium     Browser = "chromium"
	Firefox      Browser = "firefox"
	ChromeDriver Browser = "chromedriver"
)

// Browsers lists every supported browser type.
var Browsers = []Browser{Chrome, Chromium, Firefox, ChromeDriver}

// ParseBrowser accepts a browser name in any case.
func ParseBrowser(value string) (Browser, error) {
	b := Browser(strings.ToLower(strings.TrimSpace(value)))
	if !b.Valid() {
		return "", fmt.Errorf("invalid browser type: %s", value)
	}
	return b, nil
}

func (b Browser) Valid() bool {
	switch b {
	case Chrome, Chromium, Firefox, ChromeDriver:
		return true
	default:
		return false
	}
}

// Target describes what to download.
type Target struct {
	Browser  Browser `json:"browser"`
	Version  string  `json:"version"`
	Platform string  `json:"platform"`
}

func (t Target) String() string {
	return fmt.Sprintf("%s %s (%s)", t.Browser, t.Version, t.Platform)
}

// Status is the task lifecycle state.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusRetrying    Status = "retrying"
)

// Terminal reports whether no execution follows without caller action.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task is a snapshot of one download.
type Task struct {
	ID              string         `json:"id"`
	Target          Target         `json:"target"`
	Status          Status         `json:"status"`
	Progress        float64        `json:"progress"`
	DownloadedBytes int64          `json:"downloaded_bytes"`
	TotalBytes      int64          `json:"total_bytes"`
	ETA             *time.Duration `json:"eta,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	RetryCount      int            `json:"retry_count"`
	InstallPath     string         `json:"install_path,omitempty"`
	ExecutablePath  string         `json:"executable_path,omitempty"`
	ResolvedVersion string         `json:"resolved_version,omitempty"`
	FileSize        int64          `json:"file_size,omitempty"`
	BrowserID       string         `json:"browser_id,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (t *Task) snapshot() Task {
	out := *t
	if t.ETA != nil {
		eta := *t.ETA
		out.ETA = &eta
	}
	return out
}

// ProgressUpdate is reported by executors while bytes arrive.
type ProgressUpdate struct {
	Ratio           float64
	DownloadedBytes int64
	TotalBytes      int64
	ETA             *time.Duration
}

// Resolved is what a successful executor run produced.
type Resolved struct {
	InstallPath    string
	ExecutablePath string
	Version        string
	TotalBytes     int64
}

// CompletedTask is handed to the CompletionSink once per successful task.
type CompletedTask struct {
	TaskID         string
	BrowserID      string
	Target         Target
	Version        string
	InstallPath    string
	ExecutablePath string
	FileSize       int64
	CompletedAt    time.Time
}

// NewTaskID returns a fresh task identifier.
func NewTaskID() string {
	return uuid.NewString()
}
