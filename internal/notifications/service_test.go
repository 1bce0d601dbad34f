package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"browserfetch/internal/events"
	"browserfetch/internal/notifications"
)

type captured struct {
	title    string
	body     string
	tags     string
	priority string
}

func newServer(t *testing.T) (*httptest.Server, func() []captured) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []captured
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, captured{
			title:    r.Header.Get("Title"),
			body:     string(body),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), seen...)
	}
}

func TestNotifierSendsTerminalTransitions(t *testing.T) {
	srv, seen := newServer(t)
	n := notifications.New(srv.URL, time.Second, nil)

	n.PublishStatus(events.Status{TaskID: "0123456789abcdef", Status: "downloading"})
	n.PublishProgress(events.Progress{TaskID: "0123456789abcdef", Progress: 0.5})
	n.PublishStatus(events.Status{TaskID: "0123456789abcdef", Status: "completed", InstallPath: "/opt/browsers/chromium-120"})
	n.PublishStatus(events.Status{TaskID: "fedcba9876543210", Status: "failed", ErrorMessage: "HTTP 404", RetryCount: 2})
	n.Close()

	got := seen()
	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d: %+v", len(got), got)
	}
	if got[0].title != "browserfetch - Download Complete" {
		t.Fatalf("unexpected title %q", got[0].title)
	}
	if !strings.Contains(got[0].body, "01234567") || !strings.Contains(got[0].body, "/opt/browsers/chromium-120") {
		t.Fatalf("unexpected completion body %q", got[0].body)
	}
	if got[0].priority != "" {
		t.Fatalf("completion should use default priority, got %q", got[0].priority)
	}
	if got[1].title != "browserfetch - Download Failed" || got[1].priority != "high" {
		t.Fatalf("unexpected failure headers %+v", got[1])
	}
	if got[1].body != "Download fedcba98 failed: HTTP 404 (after 2 retries)" {
		t.Fatalf("unexpected failure body %q", got[1].body)
	}
	if got[1].tags != "browserfetch,download,error" {
		t.Fatalf("unexpected tags %q", got[1].tags)
	}
}

func TestNotifierDropsAfterClose(t *testing.T) {
	srv, seen := newServer(t)
	n := notifications.New(srv.URL, time.Second, nil)
	n.Close()
	n.Close()

	n.PublishStatus(events.Status{TaskID: "t1", Status: "completed"})
	if n.Dropped() != 1 {
		t.Fatalf("expected one dropped notification, got %d", n.Dropped())
	}
	if len(seen()) != 0 {
		t.Fatal("closed notifier must not send")
	}
}

func TestNotifierTestReportsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "topic forbidden", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	n := notifications.New(srv.URL, time.Second, nil)
	t.Cleanup(n.Close)
	err := n.Test(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "topic forbidden") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
