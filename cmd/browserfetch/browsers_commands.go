package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"browserfetch/internal/ipc"
	"browserfetch/internal/textutil"
)

func newBrowsersCommand(ctx *commandContext) *cobra.Command {
	browsersCmd := &cobra.Command{
		Use:     "browsers",
		Aliases: []string{"browser"},
		Short:   "Manage installed browsers",
	}

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List installed browsers",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Browsers()
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp.Browsers)
				}
				out := cmd.OutOrStdout()
				if len(resp.Browsers) == 0 {
					fmt.Fprintln(out, "No browsers installed")
					return nil
				}
				rows := make([][]string, 0, len(resp.Browsers))
				var total int64
				for _, b := range resp.Browsers {
					total += b.FileSize
					rows = append(rows, []string{
						shortTaskID(b.ID),
						b.BrowserType,
						b.Version,
						b.Platform,
						textutil.FormatBytes(b.FileSize),
						b.DownloadDate,
						firstNonEmpty(b.ExecutablePath, b.InstallPath),
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Browser", "Version", "Platform", "Size", "Downloaded", "Path"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
				))
				fmt.Fprintf(out, "%d browser(s), %s on disk\n", len(resp.Browsers), textutil.FormatBytes(total))
				return nil
			})
		},
	}

	var keepFiles bool
	removeCmd := &cobra.Command{
		Use:     "remove <browser-id>",
		Aliases: []string{"rm"},
		Short:   "Uninstall a browser",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				id, err := resolveBrowserID(client, args[0])
				if err != nil {
					return err
				}
				resp, err := client.DeleteBrowser(id, keepFiles)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp.Browser)
				}
				b := resp.Browser
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s %s (%s)\n", b.BrowserType, b.Version, b.Platform)
				if keepFiles {
					fmt.Fprintf(cmd.OutOrStdout(), "Files kept at %s\n", b.InstallPath)
				}
				return nil
			})
		},
	}
	removeCmd.Flags().BoolVar(&keepFiles, "keep-files", false, "Remove the catalog entry but leave files on disk")

	browsersCmd.AddCommand(listCmd, removeCmd)
	return browsersCmd
}

func resolveBrowserID(client *ipc.Client, arg string) (string, error) {
	if len(arg) >= 36 {
		return arg, nil
	}
	resp, err := client.Browsers()
	if err != nil {
		return "", err
	}
	match := ""
	for _, b := range resp.Browsers {
		if b.ID == arg {
			return arg, nil
		}
		if len(arg) > 0 && len(b.ID) >= len(arg) && b.ID[:len(arg)] == arg {
			if match != "" {
				return "", fmt.Errorf("browser id prefix %q is ambiguous", arg)
			}
			match = b.ID
		}
	}
	if match == "" {
		return arg, nil
	}
	return match, nil
}
