package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"browserfetch/internal/catalog"
	"browserfetch/internal/config"
	"browserfetch/internal/download"
	"browserfetch/internal/events"
	"browserfetch/internal/executor"
	"browserfetch/internal/faults"
	"browserfetch/internal/logging"
	"browserfetch/internal/notifications"
	"browserfetch/internal/retry"
	"browserfetch/internal/staging"
)

const shutdownTimeout = 10 * time.Second

// Daemon owns the download runtime and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *catalog.Store
	coord    *retry.Coordinator
	orch     *download.Orchestrator
	hub      *events.Hub
	recorder *catalog.TaskRecorder
	redis    *events.RedisSink
	notifier *notifications.Notifier
	logHub   *logging.StreamHub
	logPath  string
	execName string
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	startedAt time.Time
	cancel    context.CancelFunc
	bg        sync.WaitGroup

	stopOnce sync.Once
	stopped  chan struct{}
}

// Option customizes a Daemon.
type Option func(*options)

type options struct {
	logHub    *logging.StreamHub
	logPath   string
	redis     events.RedisClient
	execName  string
	orchestra []download.Option
}

// WithLogStream exposes hub through the log endpoints.
func WithLogStream(hub *logging.StreamHub, logPath string) Option {
	return func(o *options) {
		o.logHub = hub
		o.logPath = logPath
	}
}

// WithRedis mirrors task events to a Redis channel.
func WithRedis(client events.RedisClient) Option {
	return func(o *options) { o.redis = client }
}

// WithExecutorName labels the executor in status output.
func WithExecutorName(name string) Option {
	return func(o *options) { o.execName = name }
}

// WithOrchestratorOptions appends options after the config-derived ones.
func WithOrchestratorOptions(opts ...download.Option) Option {
	return func(o *options) { o.orchestra = append(o.orchestra, opts...) }
}

// New constructs a daemon with initialized dependencies. The daemon takes
// ownership of store and closes it in Close.
func New(cfg *config.Config, store *catalog.Store, exec download.Executor, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || exec == nil {
		return nil, errors.New("daemon requires config, catalog store, and executor")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.execName == "" {
		o.execName = cfg.Download.Executor
	}

	coord := retry.NewCoordinator(retry.Options{
		FailureThreshold:    cfg.Retry.FailureThreshold,
		SuccessThreshold:    cfg.Retry.SuccessThreshold,
		BreakerTimeout:      cfg.BreakerTimeout(),
		TaskWindow:          cfg.Retry.TaskWindow,
		TaskSevereThreshold: cfg.Retry.TaskSevereThreshold,
		TaskCooldown:        cfg.TaskCooldown(),
		StateTTL:            cfg.StateTTL(),
	}, logger)

	hub := events.NewHub(cfg.Events.Buffer)
	recorder := catalog.NewTaskRecorder(store, logger)
	publishers := events.Multi{hub, recorder}
	var redisSink *events.RedisSink
	if o.redis != nil {
		redisSink = events.NewRedisSink(o.redis, cfg.Events.RedisChannel, cfg.Events.Buffer, logger)
		publishers = append(publishers, redisSink)
	}
	var notifier *notifications.Notifier
	if cfg.Events.NtfyTopic != "" {
		notifier = notifications.New(cfg.Events.NtfyTopic, cfg.NtfyTimeout(), logger)
		publishers = append(publishers, notifier)
	}

	orchOpts := []download.Option{
		download.WithAttemptTimeout(cfg.AttemptTimeout()),
		download.WithRetryCeiling(cfg.Download.RetryCeiling),
		download.WithLanguage(faults.ParseLanguage(cfg.Download.Language)),
		download.WithLocator(executor.HostLocator),
	}
	orchOpts = append(orchOpts, o.orchestra...)
	orch := download.New(exec, coord, catalog.NewCompletionSink(store), publishers, logger, orchOpts...)

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		coord:    coord,
		orch:     orch,
		hub:      hub,
		recorder: recorder,
		redis:    redisSink,
		notifier: notifier,
		logHub:   o.logHub,
		logPath:  o.logPath,
		execName: o.execName,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		stopped:  make(chan struct{}),
	}
	if o.logPath == "" && cfg.Paths.LogDir != "" {
		d.logPath = filepath.Join(cfg.Paths.LogDir, logging.LogFileName)
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, starts retry-state housekeeping and the
// HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	select {
	case <-d.stopped:
		return errors.New("daemon has been stopped")
	default:
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another browserfetch daemon instance is already running")
	}

	if swept := staging.CleanPartials(ctx, d.cfg.Paths.InstallDir, 0, d.logger); len(swept.Errors) > 0 {
		d.logger.Warn("partial download sweep incomplete", logging.Int("errors", len(swept.Errors)))
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	d.cancel = cancel
	d.bg.Add(1)
	go func() {
		defer d.bg.Done()
		d.coord.Run(runCtx, d.cfg.CleanupInterval())
	}()

	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("browserfetch daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
		logging.String("executor", d.execName),
		logging.String("api", d.api.address()),
	)
	return nil
}

// Stop aborts running downloads, stops background work and releases the
// lock. A stopped daemon cannot be started again.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		defer close(d.stopped)
		if !d.running.Load() {
			return
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := d.orch.Shutdown(shutdownCtx); err != nil {
			logging.WarnWithContext(d.logger, "downloads did not stop in time", "daemon_shutdown_timeout",
				logging.Error(err),
				logging.String(logging.FieldImpact, "partially extracted installs may remain on disk"),
			)
		}
		if d.cancel != nil {
			d.cancel()
		}
		d.api.stop()
		d.bg.Wait()
		if err := d.recorder.Flush(shutdownCtx); err != nil {
			d.logger.Warn("task history flush incomplete", logging.Error(err))
		}
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(err))
		}
		d.running.Store(false)
		d.logger.Info("browserfetch daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
	})
}

// Done is closed once Stop has finished.
func (d *Daemon) Done() <-chan struct{} {
	return d.stopped
}

// Close stops the daemon and releases every resource it owns.
func (d *Daemon) Close() error {
	d.Stop()
	d.recorder.Close()
	if d.redis != nil {
		d.redis.Close()
	}
	if d.notifier != nil {
		d.notifier.Close()
	}
	return d.store.Close()
}

// Running reports whether Start succeeded and Stop has not run.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Events exposes the in-process event hub.
func (d *Daemon) Events() *events.Hub {
	return d.hub
}

// LogStream returns the in-memory log buffer, if configured.
func (d *Daemon) LogStream() *logging.StreamHub {
	return d.logHub
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// APIAddress is the bound HTTP address, empty when the API is disabled.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

func pid() int {
	return os.Getpid()
}
