// Command browserfetchd is the browserfetch daemon. It owns the download
// orchestrator, retry coordinator and catalog, and serves the CLI over a unix
// socket and, optionally, the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"browserfetch/internal/config"
	"browserfetch/internal/daemonrun"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath, socketPath, logLevel string
	var development bool

	cmd := &cobra.Command{
		Use:           "browserfetchd",
		Short:         "Run the browserfetch daemon in the foreground",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, socketPath)
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
			})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&socketPath, "socket", "", "Override paths.socket_path")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level")
	cmd.Flags().BoolVar(&development, "dev", false, "Include source locations in log output")
	return cmd
}

func loadConfig(configPath, socketPath string) (*config.Config, error) {
	cfg, _, _, err := config.Load(strings.TrimSpace(configPath))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if socket := strings.TrimSpace(socketPath); socket != "" {
		expanded, err := config.ExpandPath(socket)
		if err != nil {
			return nil, fmt.Errorf("resolve socket path: %w", err)
		}
		cfg.Paths.SocketPath = expanded
	}
	return cfg, nil
}
