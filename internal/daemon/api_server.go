package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"browserfetch/internal/api"
	"browserfetch/internal/catalog"
	"browserfetch/internal/config"
	"browserfetch/internal/download"
	"browserfetch/internal/events"
	"browserfetch/internal/logging"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	server *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// newAPIServer returns a nil server when api_bind is empty; every method
// tolerates a nil receiver.
func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}
	router := api.NewRouter(apiBackend{d}, api.Options{Token: cfg.Paths.APIToken, Logger: logger})
	return &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		// No write timeout: /api/events and followed /api/logs hold the
		// response open.
		server: &http.Server{
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_serve_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "HTTP clients cannot reach the daemon"),
			)
		}
	}()
	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *apiServer) address() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

// apiBackend adapts the daemon to api.Backend.
type apiBackend struct {
	d *Daemon
}

func (b apiBackend) Status(ctx context.Context) api.DaemonStatus {
	return StatusDTO(b.d.Status(ctx))
}

func (b apiBackend) Install(ctx context.Context, req api.InstallRequest) (download.Task, error) {
	return b.d.Install(ctx, InstallRequest{BrowserType: req.BrowserType, Version: req.Version, Platform: req.Platform})
}

func (b apiBackend) Task(ctx context.Context, id string) (download.Task, error) {
	return b.d.Task(ctx, id)
}

func (b apiBackend) Tasks(ctx context.Context, limit int) ([]download.Task, error) {
	return b.d.Tasks(ctx, limit)
}

func (b apiBackend) Retry(ctx context.Context, id string) (download.Task, error) {
	return b.d.Retry(ctx, id)
}

func (b apiBackend) Remove(ctx context.Context, id string) error {
	return b.d.Remove(ctx, id)
}

func (b apiBackend) RetryHistory(id string) (api.RetryHistory, error) {
	info, err := b.d.RetryHistory(id)
	if err != nil {
		return api.RetryHistory{}, err
	}
	return RetryHistoryDTO(info), nil
}

func (b apiBackend) ResetRetry(id string) bool {
	return b.d.ResetRetry(id)
}

func (b apiBackend) Browsers(ctx context.Context) ([]catalog.Browser, error) {
	return b.d.Browsers(ctx)
}

func (b apiBackend) DeleteBrowser(ctx context.Context, id string, keepFiles bool) (catalog.Browser, error) {
	return b.d.DeleteBrowser(ctx, id, keepFiles)
}

func (b apiBackend) Subscribe() (<-chan events.Envelope, func()) {
	return b.d.hub.Subscribe()
}

func (b apiBackend) LogStream() *logging.StreamHub {
	return b.d.logHub
}

// StatusDTO converts a daemon status into its transport form.
func StatusDTO(s Status) api.DaemonStatus {
	out := api.DaemonStatus{
		Running:          s.Running,
		PID:              s.PID,
		Executor:         s.Executor,
		LockPath:         s.LockPath,
		CatalogPath:      s.CatalogPath,
		SocketPath:       s.SocketPath,
		LogPath:          s.LogPath,
		APIAddress:       s.APIAddress,
		Breaker:          s.Breaker,
		RetryStates:      s.RetryStates,
		ActiveTasks:      s.ActiveTasks,
		TaskCounts:       s.TaskCounts,
		Catalog:          s.Catalog,
		Database:         s.Database,
		Preflight:        s.Preflight,
		EventSubscribers: s.EventSubscribers,
		EventsDropped:    s.EventsDropped,
	}
	if !s.StartedAt.IsZero() {
		out.StartedAt = s.StartedAt.UTC().Format(time.RFC3339)
	}
	return out
}

// RetryHistoryDTO converts coordinator state into its transport form.
func RetryHistoryDTO(info RetryInfo) api.RetryHistory {
	return api.RetryHistory{
		TaskID:      info.TaskID,
		Attempts:    info.Attempts,
		Strategy:    info.Strategy,
		CircuitOpen: info.CircuitOpen,
		OpenUntil:   info.OpenUntil,
		NextRetryAt: info.NextRetryAt,
	}
}
