package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"browserfetch/internal/download"
	"browserfetch/internal/executor"
)

func newPlatformCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "platform",
		Short:       "Show the host platform and supported targets",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			current := executor.CurrentPlatform()
			if ctx.jsonOutput() {
				return writeJSON(cmd, map[string]any{
					"platform":  current,
					"goos":      runtime.GOOS,
					"goarch":    runtime.GOARCH,
					"platforms": executor.Platforms,
					"browsers":  download.Browsers,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Host platform: %s (%s/%s)\n", current, runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(out, "Platforms:     %v\n", executor.Platforms)
			fmt.Fprintf(out, "Browsers:      %v\n", download.Browsers)
			return nil
		},
	}
}
