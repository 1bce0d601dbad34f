package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"browserfetch/internal/api"
	"browserfetch/internal/ipc"
	"browserfetch/internal/textutil"
)

func newTasksCommand(ctx *commandContext) *cobra.Command {
	tasksCmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"task"},
		Short:   "Inspect and manage download tasks",
	}
	tasksCmd.AddCommand(
		newTasksListCommand(ctx),
		newTasksShowCommand(ctx),
		newTasksRetryCommand(ctx),
		newTasksRemoveCommand(ctx),
		newTasksRetriesCommand(ctx),
		newTasksResetCommand(ctx),
	)
	return tasksCmd
}

func newTasksListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var statuses []string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List live and recent tasks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.List(limit)
				if err != nil {
					return err
				}
				tasks := filterTasks(resp.Tasks, statuses)
				if ctx.jsonOutput() {
					return writeJSON(cmd, tasks)
				}
				out := cmd.OutOrStdout()
				if len(tasks) == 0 {
					fmt.Fprintln(out, "No tasks")
					return nil
				}
				fmt.Fprint(out, renderTaskTable(tasks, shouldColorize(out)))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of history records")
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Only show tasks in these statuses")
	return cmd
}

func filterTasks(tasks []api.Task, statuses []string) []api.Task {
	if len(statuses) == 0 {
		return tasks
	}
	want := make(map[string]struct{}, len(statuses))
	for _, s := range statuses {
		want[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	out := make([]api.Task, 0, len(tasks))
	for _, task := range tasks {
		if _, ok := want[task.Status]; ok {
			out = append(out, task)
		}
	}
	return out
}

func renderTaskTable(tasks []api.Task, colorize bool) string {
	rows := make([][]string, 0, len(tasks))
	for _, task := range tasks {
		detail := textutil.FormatProgress(task.DownloadedBytes, task.TotalBytes, task.Progress)
		if task.ErrorMessage != "" {
			detail = task.ErrorMessage
		}
		rows = append(rows, []string{
			shortTaskID(task.ID),
			task.BrowserType,
			firstNonEmpty(task.ResolvedVersion, task.Version),
			task.Platform,
			colorTaskStatus(task.Status, colorize),
			fmt.Sprintf("%d", task.RetryCount),
			detail,
		})
	}
	return renderTable(
		[]string{"ID", "Browser", "Version", "Platform", "Status", "Retries", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func shortTaskID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// resolveTaskID expands a unique id prefix, as printed by tasks list.
func resolveTaskID(client *ipc.Client, arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", fmt.Errorf("task id is required")
	}
	if len(arg) >= 36 {
		return arg, nil
	}
	resp, err := client.List(0)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, task := range resp.Tasks {
		if task.ID == arg {
			return arg, nil
		}
		if strings.HasPrefix(task.ID, arg) {
			matches = append(matches, task.ID)
		}
	}
	switch len(matches) {
	case 0:
		return arg, nil
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("task id prefix %q is ambiguous (%d matches)", arg, len(matches))
	}
}

func newTasksShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				id, err := resolveTaskID(client, args[0])
				if err != nil {
					return err
				}
				resp, err := client.Progress(id)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp.Task)
				}
				printTask(cmd.OutOrStdout(), resp.Task)
				return nil
			})
		},
	}
}

func newTasksRetryCommand(ctx *commandContext) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "retry <task-id>",
		Short: "Retry a failed task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				id, err := resolveTaskID(client, args[0])
				if err != nil {
					return err
				}
				resp, err := client.Retry(id)
				if err != nil {
					return err
				}
				task := resp.Task
				if wait {
					if task, err = waitForTask(cmd, client, id, !ctx.jsonOutput()); err != nil {
						return err
					}
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, task)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %s %s (retry %d)\n", task.ID, task.Status, task.RetryCount)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the retried download to finish")
	return cmd
}

func newTasksRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <task-id>",
		Aliases: []string{"rm"},
		Short:   "Cancel a task and delete it from history",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				id, err := resolveTaskID(client, args[0])
				if err != nil {
					return err
				}
				resp, err := client.Remove(id)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %s removed\n", id)
				return nil
			})
		},
	}
}

func newTasksRetriesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retries <task-id>",
		Short: "Show the retry history recorded for a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				id, err := resolveTaskID(client, args[0])
				if err != nil {
					return err
				}
				resp, err := client.RetryHistory(id)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp.History)
				}
				printRetryHistory(cmd, resp.History)
				return nil
			})
		},
	}
}

func printRetryHistory(cmd *cobra.Command, history api.RetryHistory) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Task:          %s\n", history.TaskID)
	if history.Strategy != "" {
		fmt.Fprintf(out, "Strategy:      %s\n", history.Strategy)
	}
	fmt.Fprintf(out, "Circuit open:  %s", yesNo(history.CircuitOpen))
	if history.OpenUntil != nil {
		fmt.Fprintf(out, " (until %s)", history.OpenUntil.Local().Format("15:04:05"))
	}
	fmt.Fprintln(out)
	if history.NextRetryAt != nil {
		fmt.Fprintf(out, "Next retry:    %s\n", history.NextRetryAt.Local().Format("15:04:05"))
	}
	if len(history.Attempts) == 0 {
		fmt.Fprintln(out, "No failed attempts recorded")
		return
	}
	rows := make([][]string, 0, len(history.Attempts))
	for _, attempt := range history.Attempts {
		next := "-"
		if attempt.NextRetryAt != nil {
			next = attempt.NextRetryAt.Local().Format("15:04:05")
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", attempt.Number),
			attempt.Kind,
			attempt.Severity,
			textutil.FormatSince(attempt.Timestamp),
			next,
		})
	}
	fmt.Fprint(out, renderTable(
		[]string{"#", "Kind", "Severity", "When", "Next retry"},
		rows,
		[]columnAlignment{alignRight},
	))
}

func newTasksResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <task-id>",
		Short: "Discard a task's retry history and per-task circuit breaker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				id, err := resolveTaskID(client, args[0])
				if err != nil {
					return err
				}
				resp, err := client.ResetRetry(id)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				if resp.Reset {
					fmt.Fprintf(cmd.OutOrStdout(), "Retry state for %s cleared\n", id)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "No retry state recorded for %s\n", id)
				}
				return nil
			})
		},
	}
}
