package events

import "time"

// Event names understood by UI clients.
const (
	NameStatus   = "download-status-update"
	NameProgress = "download-progress-update"
)

// Status reports a task state transition.
type Status struct {
	TaskID       string    `json:"taskId"`
	Status       string    `json:"status"`
	Progress     *float64  `json:"progress,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	InstallPath  string    `json:"installPath,omitempty"`
	RetryCount   int       `json:"retryCount"`
	Timestamp    time.Time `json:"timestamp"`
}

// Progress reports byte-level progress of a running task.
type Progress struct {
	TaskID          string  `json:"taskId"`
	Progress        float64 `json:"progress"`
	DownloadedBytes int64   `json:"downloadedBytes"`
	TotalBytes      int64   `json:"totalBytes"`
	Status          string  `json:"status"`
	// EstimatedTimeRemaining is in seconds.
	EstimatedTimeRemaining *int64 `json:"estimatedTimeRemaining,omitempty"`
}

// Envelope wraps one event for transport. Exactly one payload is set.
type Envelope struct {
	Seq      uint64    `json:"seq"`
	Name     string    `json:"event"`
	Status   *Status   `json:"status,omitempty"`
	Progress *Progress `json:"progress,omitempty"`
}

// TaskID returns the task the envelope concerns.
func (e Envelope) TaskID() string {
	switch {
	case e.Status != nil:
		return e.Status.TaskID
	case e.Progress != nil:
		return e.Progress.TaskID
	default:
		return ""
	}
}

// Publisher receives events. Implementations must not block.
type Publisher interface {
	PublishStatus(Status)
	PublishProgress(Progress)
}

// Multi forwards every event to each publisher in order.
type Multi []Publisher

func (m Multi) PublishStatus(evt Status) {
	for _, p := range m {
		if p != nil {
			p.PublishStatus(evt)
		}
	}
}

func (m Multi) PublishProgress(evt Progress) {
	for _, p := range m {
		if p != nil {
			p.PublishProgress(evt)
		}
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) PublishStatus(Status)     {}
func (Discard) PublishProgress(Progress) {}
