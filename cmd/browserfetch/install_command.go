package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"browserfetch/internal/api"
	"browserfetch/internal/download"
	"browserfetch/internal/ipc"
	"browserfetch/internal/textutil"
)

const waitPollInterval = 500 * time.Millisecond

func newInstallCommand(ctx *commandContext) *cobra.Command {
	var platform string
	var wait bool

	cmd := &cobra.Command{
		Use:   "install <browser> <version>",
		Short: "Download and install a browser",
		Long: "Download and install a browser. Browser is one of chrome, chromium, firefox or chromedriver.\n" +
			"The platform defaults to the host platform.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Install(ipc.InstallRequest{
					BrowserType: args[0],
					Version:     args[1],
					Platform:    platform,
				})
				if err != nil {
					return err
				}
				task := resp.Task
				if !wait {
					if ctx.jsonOutput() {
						return writeJSON(cmd, task)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Task %s queued: %s %s (%s)\n", task.ID, task.BrowserType, task.Version, task.Platform)
					return nil
				}
				final, err := waitForTask(cmd, client, task.ID, !ctx.jsonOutput())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					if err := writeJSON(cmd, final); err != nil {
						return err
					}
				}
				if final.Status == string(download.StatusFailed) {
					return fmt.Errorf("task %s failed: %s", final.ID, final.ErrorMessage)
				}
				if !ctx.jsonOutput() {
					fmt.Fprintf(cmd.OutOrStdout(), "Installed %s %s at %s\n", final.BrowserType, firstNonEmpty(final.ResolvedVersion, final.Version), firstNonEmpty(final.ExecutablePath, final.InstallPath))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&platform, "platform", "p", "", "Target platform (win64, win32, mac_arm, mac_x64, linux64)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the download to finish")
	return cmd
}

// waitForTask polls until the task is completed or failed. Progress goes to
// stdout when show is set; terminals get a redrawn progress bar.
func waitForTask(cmd *cobra.Command, client *ipc.Client, taskID string, show bool) (api.Task, error) {
	out := cmd.OutOrStdout()
	tty := show && shouldColorize(out)
	lastStatus := ""
	for {
		resp, err := client.Progress(taskID)
		if err != nil {
			return api.Task{}, err
		}
		task := resp.Task
		terminal := download.Status(task.Status).Terminal()
		if show {
			switch {
			case tty:
				fmt.Fprintf(out, "\r\x1b[2K%s", progressLine(task))
				if terminal {
					fmt.Fprintln(out)
				}
			case task.Status != lastStatus:
				fmt.Fprintln(out, progressLine(task))
			}
		}
		lastStatus = task.Status
		if terminal {
			return task, nil
		}
		select {
		case <-cmd.Context().Done():
			return task, cmd.Context().Err()
		case <-time.After(waitPollInterval):
		}
	}
}

func progressLine(task api.Task) string {
	parts := []string{
		fmt.Sprintf("%-11s", task.Status),
		progressBar(task.Progress, 24),
		textutil.FormatProgress(task.DownloadedBytes, task.TotalBytes, task.Progress),
	}
	if eta := etaDuration(task); eta != nil {
		parts = append(parts, "ETA "+textutil.FormatETA(eta))
	}
	if task.RetryCount > 0 {
		parts = append(parts, fmt.Sprintf("retry %d", task.RetryCount))
	}
	return strings.Join(parts, "  ")
}

func etaDuration(task api.Task) *time.Duration {
	if task.EstimatedTimeRemaining == nil {
		return nil
	}
	d := time.Duration(*task.EstimatedTimeRemaining) * time.Second
	return &d
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func printTask(out io.Writer, task api.Task) {
	rows := [][]string{
		{"ID", task.ID},
		{"Browser", task.BrowserType},
		{"Version", firstNonEmpty(task.ResolvedVersion, task.Version)},
		{"Platform", task.Platform},
		{"Status", task.Status},
		{"Progress", textutil.FormatProgress(task.DownloadedBytes, task.TotalBytes, task.Progress)},
		{"ETA", textutil.FormatETA(etaDuration(task))},
		{"Retries", fmt.Sprintf("%d", task.RetryCount)},
		{"Created", task.CreatedAt},
		{"Updated", task.UpdatedAt},
	}
	if task.ErrorMessage != "" {
		rows = append(rows, []string{"Error", task.ErrorMessage})
	}
	if task.InstallPath != "" {
		rows = append(rows, []string{"Install path", task.InstallPath})
	}
	if task.ExecutablePath != "" {
		rows = append(rows, []string{"Executable", task.ExecutablePath})
	}
	if task.BrowserID != "" {
		rows = append(rows, []string{"Browser ID", task.BrowserID})
	}
	for _, row := range rows {
		fmt.Fprintf(out, "%-13s %s\n", row[0]+":", row[1])
	}
}
