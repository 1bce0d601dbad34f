package main

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"browserfetch/internal/api"
	"browserfetch/internal/ipc"
	"browserfetch/internal/logging"
	"browserfetch/internal/logs"
)

const logFollowWait = 5 * time.Second

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int
	var taskID string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show daemon logs",
		Long:  "Show daemon logs. Reads from the running daemon and falls back to the log file when it is not reachable.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.dialClient()
			if err != nil {
				if taskID != "" {
					return err
				}
				return tailLogFile(cmd, ctx, lines, follow)
			}
			defer client.Close()
			return streamDaemonLogs(cmd, ctx, client, ipc.LogTailRequest{
				Offset: -1,
				Limit:  lines,
				TaskID: taskID,
			}, follow)
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new log entries")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of recent entries to show")
	cmd.Flags().StringVar(&taskID, "task", "", "Only show entries for this task")
	return cmd
}

func streamDaemonLogs(cmd *cobra.Command, ctx *commandContext, client *ipc.Client, req ipc.LogTailRequest, follow bool) error {
	out := cmd.OutOrStdout()
	for {
		resp, err := client.LogTail(req)
		if err != nil {
			return err
		}
		for _, evt := range resp.Events {
			if ctx.jsonOutput() {
				if err := writeJSON(cmd, evt); err != nil {
					return err
				}
				continue
			}
			fmt.Fprintln(out, formatLogEvent(evt))
		}
		for _, line := range resp.Lines {
			fmt.Fprintln(out, line)
		}
		if !follow {
			return nil
		}
		if cmd.Context().Err() != nil {
			return nil
		}
		req.Since = resp.Next
		req.Offset = resp.Offset
		req.Follow = true
		req.WaitMillis = int(logFollowWait / time.Millisecond)
	}
}

func tailLogFile(cmd *cobra.Command, ctx *commandContext, lines int, follow bool) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	path := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)
	out := cmd.OutOrStdout()
	opts := logs.TailOptions{Offset: -1, Limit: lines}
	for {
		result, err := logs.Tail(cmd.Context(), path, opts)
		if err != nil {
			if cmd.Context().Err() != nil {
				return nil
			}
			return err
		}
		for _, line := range result.Lines {
			fmt.Fprintln(out, line)
		}
		if !follow {
			return nil
		}
		opts = logs.TailOptions{Offset: result.Offset, Follow: true, Wait: logFollowWait}
	}
}

func formatLogEvent(evt api.LogEvent) string {
	var b strings.Builder
	ts := evt.Timestamp
	if parsed, err := time.Parse(time.RFC3339Nano, evt.Timestamp); err == nil {
		ts = parsed.Local().Format("2006-01-02 15:04:05")
	}
	fmt.Fprintf(&b, "%s %-5s", ts, evt.Level)
	if evt.Component != "" {
		fmt.Fprintf(&b, " [%s]", evt.Component)
	}
	if evt.TaskID != "" {
		fmt.Fprintf(&b, " (%s)", shortTaskID(evt.TaskID))
	}
	b.WriteString(" ")
	b.WriteString(evt.Message)
	writeFields(&b, evt.Fields)
	return b.String()
}

func writeFields(w io.StringWriter, fields map[string]string) {
	if len(fields) == 0 {
		return
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := fields[k]
		if strings.ContainsAny(v, " \t") {
			v = fmt.Sprintf("%q", v)
		}
		_, _ = w.WriteString(" " + k + "=" + v)
	}
}
