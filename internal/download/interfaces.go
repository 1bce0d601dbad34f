package download

import (
	"context"

	"browserfetch/internal/events"
)

// Executor performs the byte transfer for one attempt. Implementations must
// return when ctx is cancelled. The error text is classified by the retry
// coordinator, so it should carry the underlying cause verbatim.
type Executor interface {
	Execute(ctx context.Context, target Target, onProgress func(ProgressUpdate)) (Resolved, error)
}

// CompletionSink records finished downloads.
type CompletionSink interface {
	NotifyCompleted(ctx context.Context, task CompletedTask) error
}

// Publisher receives status and progress events. Calls happen while the
// registry lock is held, so implementations must not block.
type Publisher interface {
	PublishStatus(events.Status)
	PublishProgress(events.Progress)
}

// Locator finds the browser executable inside an install directory.
type Locator func(installPath string, browser Browser) string
