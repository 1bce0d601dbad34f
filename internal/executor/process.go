package executor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"browserfetch/internal/download"
	"browserfetch/internal/logging"
)

// Runner abstracts command execution for testability. onStdout and onStderr
// receive one line at a time.
type Runner interface {
	Run(ctx context.Context, binary string, args []string, onStdout, onStderr func(string)) error
}

// ProcessOption configures a Process executor.
type ProcessOption func(*Process)

// WithRunner injects a custom runner (primarily for tests).
func WithRunner(r Runner) ProcessOption {
	return func(p *Process) {
		if r != nil {
			p.runner = r
		}
	}
}

// Process drives the external download helper.
type Process struct {
	command string
	script  string
	runner  Runner
	logger  *slog.Logger
}

// NewProcess constructs a helper-backed executor.
func NewProcess(command, script string, logger *slog.Logger, opts ...ProcessOption) (*Process, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, errors.New("helper command required")
	}
	p := &Process{
		command: command,
		script:  strings.TrimSpace(script),
		runner:  commandRunner{},
		logger:  logging.NewComponentLogger(logger, "executor"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type progressLine struct {
	Progress               float64 `json:"progress"`
	DownloadedBytes        int64   `json:"downloaded_bytes"`
	TotalBytes             int64   `json:"total_bytes"`
	EstimatedTimeRemaining *int64  `json:"estimated_time_remaining"`
}

// Execute runs the helper once for target.
func (p *Process) Execute(ctx context.Context, target download.Target, onProgress func(download.ProgressUpdate)) (download.Resolved, error) {
	if err := ValidateTarget(target); err != nil {
		return download.Resolved{}, err
	}
	logger := logging.WithContext(ctx, p.logger)

	args := make([]string, 0, 7)
	if p.script != "" {
		args = append(args, p.script)
	}
	args = append(args,
		"--browser", string(target.Browser),
		"--version", target.Version,
		"--platform", target.Platform,
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu          sync.Mutex
		installPath string
		version     = target.Version
		totalBytes  int64
		helperErr   error
	)
	onStdout := func(line string) {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "PROGRESS:"):
			update, err := parseProgress(strings.TrimPrefix(line, "PROGRESS:"))
			if err != nil {
				logger.Debug("unparseable helper progress", logging.String("line", line), logging.Error(err))
				return
			}
			mu.Lock()
			if update.TotalBytes > 0 {
				totalBytes = update.TotalBytes
			}
			mu.Unlock()
			if onProgress != nil {
				onProgress(update)
			}
		case strings.HasPrefix(line, "COMPLETED:"):
			mu.Lock()
			installPath = strings.TrimSpace(strings.TrimPrefix(line, "COMPLETED:"))
			mu.Unlock()
		case strings.HasPrefix(line, "VERSION:"):
			if v := strings.TrimSpace(strings.TrimPrefix(line, "VERSION:")); v != "" {
				mu.Lock()
				version = v
				mu.Unlock()
			}
		case strings.HasPrefix(line, "ERROR:"):
			msg := strings.TrimSpace(strings.TrimPrefix(line, "ERROR:"))
			if msg == "" {
				msg = "unknown helper error"
			}
			mu.Lock()
			if helperErr == nil {
				helperErr = errors.New(msg)
			}
			mu.Unlock()
			cancel()
		default:
			if line != "" {
				logger.Debug("helper output", logging.String("line", line))
			}
		}
	}
	onStderr := func(line string) {
		if strings.TrimSpace(line) == "" {
			return
		}
		logging.WarnWithContext(logger, "helper stderr", "helper_stderr",
			logging.String("line", line),
			logging.String(logging.FieldErrorHint, "inspect the helper script output"),
			logging.String(logging.FieldImpact, "informational; the attempt outcome is decided by the helper's exit status"),
		)
	}

	runErr := p.runner.Run(runCtx, p.command, args, onStdout, onStderr)

	mu.Lock()
	defer mu.Unlock()
	if helperErr != nil {
		return download.Resolved{}, helperErr
	}
	if ctx.Err() != nil {
		return download.Resolved{}, ctx.Err()
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return download.Resolved{}, fmt.Errorf("helper process failed with exit code %d", exitErr.ExitCode())
		}
		return download.Resolved{}, fmt.Errorf("helper process failed: %w", runErr)
	}
	if installPath == "" {
		return download.Resolved{}, errors.New("download completed but install path not found")
	}
	return download.Resolved{
		InstallPath: installPath,
		Version:     version,
		TotalBytes:  totalBytes,
	}, nil
}

// parseProgress decodes one PROGRESS payload. Ratios above 1 are read as
// percentages.
func parseProgress(payload string) (download.ProgressUpdate, error) {
	var line progressLine
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &line); err != nil {
		return download.ProgressUpdate{}, err
	}
	ratio := line.Progress
	if ratio > 1 && ratio <= 100 {
		ratio /= 100
	}
	update := download.ProgressUpdate{
		Ratio:           ratio,
		DownloadedBytes: line.DownloadedBytes,
		TotalBytes:      line.TotalBytes,
	}
	if line.EstimatedTimeRemaining != nil && *line.EstimatedTimeRemaining >= 0 {
		eta := time.Duration(*line.EstimatedTimeRemaining) * time.Second
		update.ETA = &eta
	}
	return update, nil
}

// pipeGrace is how long output readers may drain after cancellation before
// the pipes are closed under them.
const pipeGrace = 2 * time.Second

type commandRunner struct{}

// Run starts binary in its own process group. Cancelling ctx kills the whole
// group, so grandchildren holding the output pipes cannot pin the call.
func (commandRunner) Run(ctx context.Context, binary string, args []string, onStdout, onStderr func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = pipeGrace
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start helper process: %w", err)
	}

	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once

	scan := func(r io.Reader, forward func(string)) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			if forward != nil {
				forward(scanner.Text())
			}
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	wg.Add(2)
	go scan(stdout, onStdout)
	go scan(stderr, onStderr)

	drained := make(chan struct{})
	go func() {
		select {
		case <-drained:
			return
		case <-ctx.Done():
		}
		_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
		timer := time.NewTimer(pipeGrace)
		defer timer.Stop()
		select {
		case <-drained:
		case <-timer.C:
			_ = stdout.Close()
			_ = stderr.Close()
		}
	}()

	wg.Wait()
	close(drained)
	if ctx.Err() != nil {
		_ = cmd.Wait()
		return ctx.Err()
	}
	if scanErr != nil {
		_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
		_ = cmd.Wait()
		return fmt.Errorf("scan helper output: %w", scanErr)
	}
	return cmd.Wait()
}
