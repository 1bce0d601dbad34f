package daemonrun

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"

	"browserfetch/internal/catalog"
	"browserfetch/internal/config"
	"browserfetch/internal/daemon"
	"browserfetch/internal/download"
	"browserfetch/internal/events"
	"browserfetch/internal/executor"
	"browserfetch/internal/ipc"
	"browserfetch/internal/logging"
	"browserfetch/internal/preflight"
)

// PIDFileName is written under paths.data_dir while the daemon runs.
const PIDFileName = "browserfetchd.pid"

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the browserfetch daemon and blocks until it is signalled or
// stopped over IPC.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logHub := logging.NewStreamHub(cfg.Logging.StreamCapacity)
	logPath := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)
	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
		Hub:         logHub,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logPreflight(signalCtx, logger, cfg)

	pidPath := filepath.Join(cfg.Paths.DataDir, PIDFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := catalog.Open(cfg)
	if err != nil {
		logger.Error("open catalog", logging.Error(err))
		return err
	}

	exec, closer, err := buildExecutor(signalCtx, cfg, logger)
	if err != nil {
		store.Close()
		return fmt.Errorf("configure executor: %w", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	daemonOpts := []daemon.Option{
		daemon.WithLogStream(logHub, logPath),
		daemon.WithExecutorName(cfg.Download.Executor),
	}
	if addr := strings.TrimSpace(cfg.Events.RedisAddr); addr != "" {
		client, redisErr := events.NewRedisClient(signalCtx, addr, cfg.Events.RedisPassword, cfg.Events.RedisDB)
		if redisErr != nil {
			logging.WarnWithContext(logger, "redis unavailable", "redis_connect_failed",
				logging.String("addr", addr),
				logging.Error(redisErr),
				logging.String(logging.FieldImpact, "task events will not be mirrored to redis"),
				logging.String(logging.FieldErrorHint, "check events.redis_addr and that redis is reachable"),
			)
		} else {
			defer client.Close()
			daemonOpts = append(daemonOpts, daemon.WithRedis(client))
		}
	}

	d, err := daemon.New(cfg, store, exec, logger, daemonOpts...)
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "another daemon may hold "+cfg.LockPath()),
		)
		return err
	}

	ipcServer, err := ipc.NewServer(signalCtx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	select {
	case <-signalCtx.Done():
		logger.Info("browserfetch daemon shutting down", logging.String("reason", "signal"))
	case <-d.Done():
		logger.Info("browserfetch daemon shutting down", logging.String("reason", "stop requested"))
	}
	return nil
}

func buildExecutor(ctx context.Context, cfg *config.Config, logger *slog.Logger) (download.Executor, io.Closer, error) {
	switch cfg.Download.Executor {
	case config.ExecutorMirror:
		mirror, err := executor.OpenMirror(ctx, cfg.Download.MirrorBucket, cfg.Paths.InstallDir, cfg.Download.MinFreeBytes, logger)
		if err != nil {
			return nil, nil, err
		}
		return mirror, mirror, nil
	case config.ExecutorProcess, "":
		proc, err := executor.NewProcess(cfg.Download.HelperCommand, cfg.Download.HelperScript, logger)
		if err != nil {
			return nil, nil, err
		}
		return proc, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown executor %q", cfg.Download.Executor)
	}
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	results := preflight.RunAll(ctx, cfg)
	for _, failed := range preflight.Failed(results) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", failed.Name),
			logging.String("detail", failed.Detail),
			logging.String(logging.FieldImpact, "downloads may fail until this is fixed"),
		)
	}
	logger.Info("preflight snapshot",
		logging.String(logging.FieldEventType, "preflight_snapshot"),
		logging.Int("checks", len(results)),
		logging.Int("failed", len(preflight.Failed(results))),
		logging.String("executor", cfg.Download.Executor),
	)
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
