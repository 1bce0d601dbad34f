package executor_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"browserfetch/internal/download"
	"browserfetch/internal/executor"
	"browserfetch/internal/faults"
)

type fakeRunner struct {
	stdout []string
	stderr []string
	err    error
	binary string
	args   []string
	calls  int
}

func (f *fakeRunner) Run(ctx context.Context, binary string, args []string, onStdout, onStderr func(string)) error {
	f.calls++
	f.binary = binary
	f.args = append([]string(nil), args...)
	for _, line := range f.stderr {
		onStderr(line)
	}
	for _, line := range f.stdout {
		if ctx.Err() != nil {
			break
		}
		onStdout(line)
	}
	return f.err
}

var linuxChrome = download.Target{Browser: download.Chrome, Version: "120.0.6099.109", Platform: "linux64"}

func TestProcessParsesHelperProtocol(t *testing.T) {
	runner := &fakeRunner{
		stdout: []string{
			"resolving version",
			`PROGRESS:{"progress":0.5,"downloaded_bytes":512,"total_bytes":1024,"estimated_time_remaining":7}`,
			`PROGRESS:{"progress":100,"downloaded_bytes":1024,"total_bytes":1024}`,
			"PROGRESS:not json",
			"VERSION:120.0.6099.110",
			"COMPLETED:/opt/browsers/chrome/120",
		},
		stderr: []string{"npm warn deprecated"},
	}
	proc, err := executor.NewProcess("node", "/opt/helper/download.js", nil, executor.WithRunner(runner))
	if err != nil {
		t.Fatalf("NewProcess: %v", err)
	}

	var updates []download.ProgressUpdate
	resolved, err := proc.Execute(context.Background(), linuxChrome, func(u download.ProgressUpdate) {
		updates = append(updates, u)
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	wantArgs := []string{"/opt/helper/download.js", "--browser", "chrome", "--version", "120.0.6099.109", "--platform", "linux64"}
	if runner.binary != "node" || !slices.Equal(runner.args, wantArgs) {
		t.Fatalf("unexpected invocation %s %v", runner.binary, runner.args)
	}
	if resolved.InstallPath != "/opt/browsers/chrome/120" || resolved.Version != "120.0.6099.110" || resolved.TotalBytes != 1024 {
		t.Fatalf("unexpected resolved %+v", resolved)
	}
	if len(updates) != 2 {
		t.Fatalf("expected 2 progress updates, got %d", len(updates))
	}
	if updates[0].Ratio != 0.5 || updates[0].ETA == nil || *updates[0].ETA != 7*time.Second {
		t.Fatalf("unexpected first update %+v", updates[0])
	}
	if updates[1].Ratio != 1.0 || updates[1].ETA != nil {
		t.Fatalf("percent progress should normalise to 1.0: %+v", updates[1])
	}
}

func TestProcessErrorLineWins(t *testing.T) {
	runner := &fakeRunner{
		stdout: []string{"ERROR: HTTP 503 from storage.googleapis.com", "COMPLETED:/never"},
	}
	proc, _ := executor.NewProcess("node", "download.js", nil, executor.WithRunner(runner))

	_, err := proc.Execute(context.Background(), linuxChrome, nil)
	if err == nil || err.Error() != "HTTP 503 from storage.googleapis.com" {
		t.Fatalf("expected helper error text, got %v", err)
	}
	if got := faults.Classify(err.Error()); got.Kind != faults.KindHTTPServerError || got.StatusCode != 503 {
		t.Fatalf("helper error should classify as server error, got %s", got.TechnicalDetails())
	}
}

func TestProcessMissingCompletedLine(t *testing.T) {
	runner := &fakeRunner{stdout: []string{`PROGRESS:{"progress":1}`}}
	proc, _ := executor.NewProcess("node", "download.js", nil, executor.WithRunner(runner))

	_, err := proc.Execute(context.Background(), linuxChrome, nil)
	if err == nil || !strings.Contains(err.Error(), "install path not found") {
		t.Fatalf("expected missing install path error, got %v", err)
	}
}

func TestProcessRejectsInvalidTarget(t *testing.T) {
	runner := &fakeRunner{}
	proc, _ := executor.NewProcess("node", "download.js", nil, executor.WithRunner(runner))

	_, err := proc.Execute(context.Background(), download.Target{Browser: download.Chrome, Version: "1", Platform: "amiga"}, nil)
	if err == nil || faults.Classify(err.Error()).Kind != faults.KindInvalidPlatform {
		t.Fatalf("expected invalid platform, got %v", err)
	}
	_, err = proc.Execute(context.Background(), download.Target{Browser: "opera", Version: "1", Platform: "linux64"}, nil)
	if err == nil || faults.Classify(err.Error()).Kind != faults.KindInvalidBrowserType {
		t.Fatalf("expected invalid browser, got %v", err)
	}
	if runner.calls != 0 {
		t.Fatal("runner should not be invoked for invalid targets")
	}
}

func TestNewProcessRequiresCommand(t *testing.T) {
	if _, err := executor.NewProcess("  ", "x.js", nil); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "helper.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestProcessRunsRealHelper(t *testing.T) {
	script := writeScript(t, `echo 'PROGRESS:{"progress":0.25,"downloaded_bytes":1,"total_bytes":4}'
echo "warming up" >&2
echo "COMPLETED:/tmp/browsers/$2"`)
	proc, err := executor.NewProcess("/bin/sh", script, nil)
	if err != nil {
		t.Fatal(err)
	}
	var got []download.ProgressUpdate
	resolved, err := proc.Execute(context.Background(), linuxChrome, func(u download.ProgressUpdate) { got = append(got, u) })
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resolved.InstallPath != "/tmp/browsers/chrome" {
		t.Fatalf("unexpected install path %q", resolved.InstallPath)
	}
	if len(got) != 1 || got[0].Ratio != 0.25 {
		t.Fatalf("unexpected progress %+v", got)
	}
}

func TestProcessReportsExitCode(t *testing.T) {
	script := writeScript(t, "exit 3")
	proc, _ := executor.NewProcess("/bin/sh", script, nil)

	_, err := proc.Execute(context.Background(), linuxChrome, nil)
	if err == nil || err.Error() != "helper process failed with exit code 3" {
		t.Fatalf("unexpected error %v", err)
	}
	if faults.Classify(err.Error()).Kind != faults.KindProcessError {
		t.Fatalf("exit failures should classify as process errors")
	}
}

func TestProcessHonoursCancellation(t *testing.T) {
	script := writeScript(t, "exec sleep 30")
	proc, _ := executor.NewProcess("/bin/sh", script, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := proc.Execute(ctx, linuxChrome, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestProcessCancellationKillsHelperChildren(t *testing.T) {
	// The shell forks sleep instead of exec'ing it, so the child keeps the
	// output pipes open unless the whole process group is killed.
	script := writeScript(t, "sleep 30\necho COMPLETED:/tmp/never")
	proc, _ := executor.NewProcess("/bin/sh", script, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := proc.Execute(ctx, linuxChrome, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("Execute returned %s after cancellation", elapsed)
	}
}

func TestProcessCancellationWithBackgroundChild(t *testing.T) {
	script := writeScript(t, "sleep 30 &\nwait")
	proc, _ := executor.NewProcess("/bin/sh", script, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	start := time.Now()
	_, err := proc.Execute(ctx, linuxChrome, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("Execute returned %s after cancellation", elapsed)
	}
}
