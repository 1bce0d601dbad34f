package notifications

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"browserfetch/internal/events"
	"browserfetch/internal/logging"
)

const (
	userAgent      = "browserfetch/0.1.0"
	defaultTimeout = 10 * time.Second
	queueSize      = 32
)

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

// Notifier delivers terminal task transitions to ntfy.
type Notifier struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
	queue    chan payload
	dropped  atomic.Uint64
	done     chan struct{}

	mu     sync.RWMutex
	closed bool
}

// New starts a notifier posting to endpoint, a full ntfy topic URL.
func New(endpoint string, timeout time.Duration, logger *slog.Logger) *Notifier {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	n := &Notifier{
		endpoint: strings.TrimSpace(endpoint),
		client:   &http.Client{Timeout: timeout},
		logger:   logging.NewComponentLogger(logger, "notifications"),
		queue:    make(chan payload, queueSize),
		done:     make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *Notifier) PublishStatus(evt events.Status) {
	data, ok := statusPayload(evt)
	if !ok {
		return
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		n.dropped.Add(1)
		return
	}
	select {
	case n.queue <- data:
	default:
		n.dropped.Add(1)
	}
}

func (n *Notifier) PublishProgress(events.Progress) {}

// Dropped reports how many notifications were discarded.
func (n *Notifier) Dropped() uint64 {
	return n.dropped.Load()
}

// Close drains queued notifications and stops the sender.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()
	<-n.done
}

// Test sends a low-priority probe message synchronously.
func (n *Notifier) Test(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "browserfetch - Test",
		message:  "Notification system test",
		tags:     []string{"browserfetch", "test"},
		priority: "low",
	})
}

func statusPayload(evt events.Status) (payload, bool) {
	id := shortID(evt.TaskID)
	switch evt.Status {
	case "completed":
		message := fmt.Sprintf("Download %s completed", id)
		if path := strings.TrimSpace(evt.InstallPath); path != "" {
			message = fmt.Sprintf("%s\nInstalled to: %s", message, path)
		}
		return payload{
			title:   "browserfetch - Download Complete",
			message: message,
			tags:    []string{"browserfetch", "download", "completed"},
		}, true
	case "failed":
		reason := strings.TrimSpace(evt.ErrorMessage)
		if reason == "" {
			reason = "unknown error"
		}
		message := fmt.Sprintf("Download %s failed: %s", id, reason)
		if evt.RetryCount > 0 {
			message = fmt.Sprintf("%s (after %d retries)", message, evt.RetryCount)
		}
		return payload{
			title:    "browserfetch - Download Failed",
			message:  message,
			tags:     []string{"browserfetch", "download", "error"},
			priority: "high",
		}, true
	default:
		return payload{}, false
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (n *Notifier) run() {
	defer close(n.done)
	for data := range n.queue {
		ctx, cancel := context.WithTimeout(context.Background(), n.client.Timeout)
		err := n.send(ctx, data)
		cancel()
		if err != nil {
			logging.WarnWithContext(n.logger, "ntfy notification failed", "notification_failed",
				logging.String("title", data.title),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check events.ntfy_topic and network access"),
				logging.String(logging.FieldImpact, "task outcome not pushed to subscribers"),
			)
		}
	}
}

func (n *Notifier) send(ctx context.Context, data payload) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
