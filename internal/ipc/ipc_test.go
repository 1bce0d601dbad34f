package ipc_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"browserfetch/internal/daemon"
	"browserfetch/internal/download"
	"browserfetch/internal/ipc"
	"browserfetch/internal/logging"
	"browserfetch/internal/testsupport"
)

type fixture struct {
	daemon *daemon.Daemon
	server *ipc.Server
	client *ipc.Client
}

func newFixture(t *testing.T, exec download.Executor) fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	// Unix socket paths are length-limited; keep this one short.
	sockDir, err := os.MkdirTemp("", "bfipc")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(sockDir) })
	cfg.Paths.SocketPath = filepath.Join(sockDir, "d.sock")

	hub := logging.NewStreamHub(128)
	logger, err := logging.New(logging.Options{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{filepath.Join(t.TempDir(), logging.LogFileName)},
		Hub:         hub,
	})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}

	store := testsupport.MustOpenCatalog(t, cfg)
	d, err := daemon.New(cfg, store, exec, logger,
		daemon.WithLogStream(hub, ""),
		daemon.WithOrchestratorOptions(download.WithSleep(func(context.Context, time.Duration) error { return nil })),
	)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon start: %v", err)
	}

	srv, err := ipc.NewServer(context.Background(), cfg.Paths.SocketPath, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skip("unix sockets not permitted in this environment")
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(cfg.Paths.SocketPath)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return fixture{daemon: d, server: srv, client: client}
}

func waitForStatus(t *testing.T, client *ipc.Client, id string, want download.Status) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := client.Progress(id)
		if err != nil {
			t.Fatalf("Progress: %v", err)
		}
		if resp.Task.Status == string(want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s never reached %s", id, want)
}

func TestIPCInstallAndInspect(t *testing.T) {
	installDir := filepath.Join(t.TempDir(), "chrome")
	exec := testsupport.NewFakeExecutor(testsupport.Step{
		Resolved: download.Resolved{InstallPath: installDir, ExecutablePath: filepath.Join(installDir, "chrome"), TotalBytes: 2048},
	})
	f := newFixture(t, exec)

	status, err := f.client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Status.Running {
		t.Fatal("expected running daemon")
	}

	installed, err := f.client.Install(ipc.InstallRequest{BrowserType: "chrome", Version: "126", Platform: "linux64"})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	id := installed.Task.ID
	if id == "" || installed.Task.BrowserType != "chrome" {
		t.Fatalf("unexpected install response %+v", installed.Task)
	}
	waitForStatus(t, f.client, id, download.StatusCompleted)

	list, err := f.client.List(10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list.Tasks) != 1 || list.Tasks[0].ID != id {
		t.Fatalf("unexpected list %+v", list.Tasks)
	}

	browsers, err := f.client.Browsers()
	if err != nil {
		t.Fatalf("Browsers: %v", err)
	}
	if len(browsers.Browsers) != 1 {
		t.Fatalf("expected one browser, got %d", len(browsers.Browsers))
	}

	history, err := f.client.RetryHistory(id)
	if err != nil {
		t.Fatalf("RetryHistory: %v", err)
	}
	if history.History.TaskID != id {
		t.Fatalf("history task = %q", history.History.TaskID)
	}

	logs, err := f.client.LogTail(ipc.LogTailRequest{Limit: 50, TaskID: id})
	if err != nil {
		t.Fatalf("LogTail: %v", err)
	}
	if len(logs.Events) == 0 {
		t.Fatal("expected task log events")
	}
	for _, evt := range logs.Events {
		if evt.TaskID != id {
			t.Fatalf("log filter leaked event for %q", evt.TaskID)
		}
	}

	removed, err := f.client.Remove(id)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !removed.Removed {
		t.Fatal("expected Removed")
	}
}

func TestIPCErrorsCrossTheWire(t *testing.T) {
	f := newFixture(t, testsupport.NewFakeExecutor())

	if _, err := f.client.Install(ipc.InstallRequest{BrowserType: "lynx", Version: "2"}); err == nil ||
		!strings.Contains(err.Error(), "invalid browser type") {
		t.Fatalf("Install err = %v", err)
	}
	if _, err := f.client.Progress("missing"); err == nil {
		t.Fatal("expected not found for unknown task")
	}
	if _, err := f.client.Retry("missing"); err == nil {
		t.Fatal("expected retry of unknown task to fail")
	}
	reset, err := f.client.ResetRetry("missing")
	if err != nil {
		t.Fatalf("ResetRetry: %v", err)
	}
	if reset.Reset {
		t.Fatal("expected no retry state to reset")
	}
}

func TestIPCStopShutsDaemonDown(t *testing.T) {
	f := newFixture(t, testsupport.NewFakeExecutor())

	resp, err := f.client.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !resp.Stopped {
		t.Fatal("expected Stopped")
	}
	select {
	case <-f.daemon.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
	if f.daemon.Running() {
		t.Fatal("daemon still running")
	}
}
