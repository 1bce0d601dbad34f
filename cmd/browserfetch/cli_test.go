package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"browserfetch/internal/api"
	"browserfetch/internal/download"
	"browserfetch/internal/testsupport"
)

func completedStep(t *testing.T) testsupport.Step {
	dir := filepath.Join(t.TempDir(), "firefox")
	return testsupport.Step{
		Resolved: download.Resolved{
			InstallPath:    dir,
			ExecutablePath: filepath.Join(dir, "firefox"),
			Version:        "127.0.2",
			TotalBytes:     4 << 20,
		},
	}
}

func TestInstallWaitAndListTasks(t *testing.T) {
	env := setupCLITestEnv(t, completedStep(t))

	out, err := env.run(t, "install", "firefox", "127", "--platform", "linux64", "--wait")
	if err != nil {
		t.Fatalf("install: %v (%s)", err, out)
	}
	requireContains(t, out, "Installed firefox 127.0.2")

	out, err = env.run(t, "tasks", "list")
	if err != nil {
		t.Fatalf("tasks list: %v", err)
	}
	requireContains(t, out, "firefox")
	requireContains(t, out, "completed")

	out, err = env.run(t, "--json", "tasks", "list")
	if err != nil {
		t.Fatalf("tasks list --json: %v", err)
	}
	var tasks []api.Task
	if err := json.Unmarshal([]byte(out), &tasks); err != nil {
		t.Fatalf("decode tasks: %v (%s)", err, out)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected one task, got %d", len(tasks))
	}

	out, err = env.run(t, "tasks", "show", tasks[0].ID[:8])
	if err != nil {
		t.Fatalf("tasks show: %v", err)
	}
	requireContains(t, out, tasks[0].ID)
	requireContains(t, out, "Executable:")

	out, err = env.run(t, "browsers", "list")
	if err != nil {
		t.Fatalf("browsers list: %v", err)
	}
	requireContains(t, out, "4.0 MiB")
	requireContains(t, out, "1 browser(s)")

	out, err = env.run(t, "browsers", "remove", "--keep-files", tasks[0].BrowserID)
	if err != nil {
		t.Fatalf("browsers remove: %v", err)
	}
	requireContains(t, out, "Removed firefox")

	out, err = env.run(t, "tasks", "remove", tasks[0].ID)
	if err != nil {
		t.Fatalf("tasks remove: %v", err)
	}
	requireContains(t, out, "removed")
}

func TestFailedTaskRetryFlow(t *testing.T) {
	env := setupCLITestEnv(t,
		testsupport.Step{Err: errFailure("HTTP 404 download not available")},
		completedStep(t),
	)

	out, err := env.run(t, "install", "chrome", "126", "-p", "linux64", "--wait")
	if err == nil {
		t.Fatalf("expected install to fail, got %s", out)
	}
	requireContains(t, err.Error(), "failed")

	var tasks []api.Task
	out, err = env.run(t, "--json", "tasks", "list", "--status", "failed")
	if err != nil {
		t.Fatalf("tasks list: %v", err)
	}
	if err := json.Unmarshal([]byte(out), &tasks); err != nil || len(tasks) != 1 {
		t.Fatalf("decode failed tasks: %v (%s)", err, out)
	}
	id := tasks[0].ID

	out, err = env.run(t, "tasks", "retries", id)
	if err != nil {
		t.Fatalf("tasks retries: %v", err)
	}
	requireContains(t, out, "http_client_error")

	out, err = env.run(t, "tasks", "retry", id, "--wait")
	if err != nil {
		t.Fatalf("tasks retry: %v", err)
	}
	requireContains(t, out, "completed")

	out, err = env.run(t, "tasks", "reset", id)
	if err != nil {
		t.Fatalf("tasks reset: %v", err)
	}
	if !strings.Contains(out, "cleared") && !strings.Contains(out, "No retry state") {
		t.Fatalf("unexpected reset output %q", out)
	}
}

func TestStatusAndStop(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Running (pid")
	requireContains(t, out, "executor fake")
	requireContains(t, out, "Global breaker")

	out, err = env.run(t, "--json", "status")
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var status api.DaemonStatus
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running || status.Executor != "fake" {
		t.Fatalf("unexpected status %+v", status)
	}

	out, err = env.run(t, "stop")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Daemon stopped")
	waitFor(t, 5*time.Second, func() bool { return !env.daemon.Running() })
}

func TestStatusOfflineFallsBackToCatalog(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	testsupport.MustOpenCatalog(t, cfg)

	out, _, err := runCLI(t, []string{"status"}, filepath.Join(t.TempDir(), "none.sock"), configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Not running")
	requireContains(t, out, "schema v1")
}

func TestLogsFallBackToFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	logPath := filepath.Join(cfg.Paths.LogDir, "browserfetch.log")
	if err := os.WriteFile(logPath, []byte("first line\nsecond line\nthird line\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs", "-n", "2"}, filepath.Join(t.TempDir(), "none.sock"), configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if strings.Contains(out, "first line") {
		t.Fatalf("expected only the last two lines, got %q", out)
	}
	requireContains(t, out, "second line")
	requireContains(t, out, "third line")
}

func TestClassifyCommand(t *testing.T) {
	out, _, err := runCLI(t, []string{"classify", "connection", "timed", "out"}, "", "")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	requireContains(t, out, "network_timeout")
	requireContains(t, out, "Retryable:  yes")
	requireContains(t, out, "1s, 2s, 4s, 8s, 16s")

	out, _, err = runCLI(t, []string{"--json", "classify", "HTTP 429 too many requests"}, "", "")
	if err != nil {
		t.Fatalf("classify --json: %v", err)
	}
	var result classification
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Kind != "http_client_error" || result.StatusCode != 429 || !result.Retryable {
		t.Fatalf("unexpected classification %+v", result)
	}
	if len(result.Schedule) != 3 {
		t.Fatalf("schedule = %v", result.Schedule)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", ""); err == nil {
		t.Fatal("expected error when config exists")
	}

	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	out, _, err = runCLI(t, []string{"config", "validate"}, "", configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, configPath)
	requireContains(t, out, "Configuration valid")
}

func TestDaemonUnavailableMessage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	_, _, err := runCLI(t, []string{"tasks", "list"}, filepath.Join(t.TempDir(), "none.sock"), configPath)
	if err == nil || !strings.Contains(err.Error(), "browserfetch start") {
		t.Fatalf("err = %v", err)
	}
}

type errFailure string

func (e errFailure) Error() string { return string(e) }
