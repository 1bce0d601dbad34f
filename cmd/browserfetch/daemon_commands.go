package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"browserfetch/internal/api"
	"browserfetch/internal/daemonctl"
	"browserfetch/internal/retry"
	"browserfetch/internal/textutil"
)

const daemonBinary = "browserfetchd"

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var logLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the browserfetch daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, daemonctl.LaunchOptions{
				SocketPath: ctx.socketPath(),
				ConfigPath: ctx.configFlagValue(),
				LogLevel:   logLevel,
			}, 10*time.Second)
			if err != nil {
				return err
			}
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(stdout, "Daemon already running (pid %d)\n", result.PID)
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for the launched daemon")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the browserfetch daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), 10*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Daemon did not exit in time; killed pid %d\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, retry and catalog status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), ctx.configValue())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, status)
			}
			printStatus(cmd, status)
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}

func printStatus(cmd *cobra.Command, status api.DaemonStatus) {
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)
	section := func(title string) {
		for _, line := range renderSectionHeader(title, colorize) {
			fmt.Fprintln(stdout, line)
		}
	}

	section("Daemon")
	if status.Running {
		detail := fmt.Sprintf("Running (pid %d, executor %s)", status.PID, status.Executor)
		fmt.Fprintln(stdout, renderStatusLine("browserfetchd", statusOK, detail, colorize))
		if status.APIAddress != "" {
			fmt.Fprintln(stdout, renderStatusLine("HTTP API", statusOK, status.APIAddress, colorize))
		} else {
			fmt.Fprintln(stdout, renderStatusLine("HTTP API", statusInfo, "Disabled", colorize))
		}
		fmt.Fprintln(stdout, renderStatusLine("Event subscribers", statusInfo,
			fmt.Sprintf("%d (dropped %d)", status.EventSubscribers, status.EventsDropped), colorize))
	} else {
		fmt.Fprintln(stdout, renderStatusLine("browserfetchd", statusWarn, "Not running (run `browserfetch start`)", colorize))
	}
	fmt.Fprintln(stdout)

	if status.Running {
		section("Retry")
		breakerKind := statusOK
		switch status.Breaker.State {
		case retry.StateOpen:
			breakerKind = statusError
		case retry.StateHalfOpen:
			breakerKind = statusWarn
		}
		detail := fmt.Sprintf("%s (%d/%d failures)", status.Breaker.State, status.Breaker.FailureCount, status.Breaker.FailureThreshold)
		if status.Breaker.NextAttempt != nil {
			detail += ", retry at " + status.Breaker.NextAttempt.Local().Format("15:04:05")
		}
		fmt.Fprintln(stdout, renderStatusLine("Global breaker", breakerKind, detail, colorize))
		fmt.Fprintln(stdout, renderStatusLine("Tracked tasks", statusInfo, fmt.Sprintf("%d", status.RetryStates), colorize))
		fmt.Fprintln(stdout)
	}

	section("Preflight")
	for _, check := range status.Preflight {
		fmt.Fprintln(stdout, renderStatusLine(check.Name, passKind(check.Passed), check.Detail, colorize))
	}
	fmt.Fprintln(stdout)

	section("Catalog")
	fmt.Fprintln(stdout, renderStatusLine("Database", passKind(status.Database.IntegrityCheck == "ok"),
		fmt.Sprintf("%s (schema v%d, %s)", status.CatalogPath, status.Database.SchemaVersion, textutil.FormatBytes(status.Database.SizeBytes)), colorize))
	fmt.Fprintln(stdout, renderStatusLine("Installed", statusInfo,
		fmt.Sprintf("%d browser(s), %s", status.Catalog.Browsers, textutil.FormatBytes(status.Catalog.InstalledBytes)), colorize))
	fmt.Fprintln(stdout)

	section("Tasks")
	counts := status.TaskCounts
	if !status.Running {
		counts = status.Catalog.Tasks
	}
	if len(counts) == 0 {
		fmt.Fprintln(stdout, "No tasks")
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{colorTaskStatus(k, colorize), fmt.Sprintf("%d", counts[k])})
	}
	fmt.Fprint(stdout, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
}

// daemonExecutable prefers a browserfetchd next to this binary, then PATH.
func daemonExecutable() (string, error) {
	if self, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(self), daemonBinary)
		if info, statErr := os.Stat(candidate); statErr == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	path, err := exec.LookPath(daemonBinary)
	if err != nil {
		return "", fmt.Errorf("locate %s: %w", daemonBinary, err)
	}
	return path, nil
}
