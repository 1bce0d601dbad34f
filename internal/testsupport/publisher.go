package testsupport

import (
	"sync"

	"browserfetch/internal/events"
)

// RecordingPublisher keeps every event it receives.
type RecordingPublisher struct {
	mu       sync.Mutex
	statuses []events.Status
	progress []events.Progress
}

func (r *RecordingPublisher) PublishStatus(evt events.Status) {
	r.mu.Lock()
	r.statuses = append(r.statuses, evt)
	r.mu.Unlock()
}

func (r *RecordingPublisher) PublishProgress(evt events.Progress) {
	r.mu.Lock()
	r.progress = append(r.progress, evt)
	r.mu.Unlock()
}

// Statuses returns the status events published for taskID.
func (r *RecordingPublisher) Statuses(taskID string) []events.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Status
	for _, evt := range r.statuses {
		if evt.TaskID == taskID {
			out = append(out, evt)
		}
	}
	return out
}

// StatusSequence returns just the status names published for taskID.
func (r *RecordingPublisher) StatusSequence(taskID string) []string {
	statuses := r.Statuses(taskID)
	out := make([]string, 0, len(statuses))
	for _, evt := range statuses {
		out = append(out, evt.Status)
	}
	return out
}

// Progress returns the progress events published for taskID.
func (r *RecordingPublisher) Progress(taskID string) []events.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Progress
	for _, evt := range r.progress {
		if evt.TaskID == taskID {
			out = append(out, evt)
		}
	}
	return out
}
