package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"browserfetch/internal/api"
	"browserfetch/internal/daemon"
	"browserfetch/internal/logging"
	"browserfetch/internal/logs"
	"browserfetch/internal/services"
)

// ServiceName is the JSON-RPC service prefix.
const ServiceName = "Browserfetch"

const maxLogWait = 30 * time.Second

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(ServiceName, &service{daemon: d, logger: logger, ctx: serverCtx}); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// Serve starts accepting RPC connections until Close.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"),
				)
				continue
			}
			s.track(conn, true)
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.track(c, false)
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

func (s *Server) track(c net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[c] = struct{}{}
	} else {
		delete(s.conns, c)
	}
}

// Close stops the server, drops open connections and removes the socket.
func (s *Server) Close() {
	s.cancel()
	_ = s.listener.Close()
	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"),
		)
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	resp.Status = daemon.StatusDTO(s.daemon.Status(s.ctx))
	return nil
}

func (s *service) Install(req InstallRequest, resp *TaskResponse) error {
	task, err := s.daemon.Install(s.ctx, daemon.InstallRequest{
		BrowserType: req.BrowserType,
		Version:     req.Version,
		Platform:    req.Platform,
	})
	if err != nil {
		return err
	}
	resp.Task = api.FromTask(task)
	return nil
}

func (s *service) Retry(req TaskRequest, resp *TaskResponse) error {
	task, err := s.daemon.Retry(s.ctx, req.TaskID)
	if err != nil {
		return err
	}
	resp.Task = api.FromTask(task)
	return nil
}

func (s *service) Remove(req TaskRequest, resp *RemoveResponse) error {
	if err := s.daemon.Remove(s.ctx, req.TaskID); err != nil {
		return err
	}
	resp.Removed = true
	return nil
}

func (s *service) Progress(req TaskRequest, resp *TaskResponse) error {
	task, err := s.daemon.Task(s.ctx, req.TaskID)
	if err != nil {
		return err
	}
	resp.Task = api.FromTask(task)
	return nil
}

func (s *service) List(req ListRequest, resp *ListResponse) error {
	tasks, err := s.daemon.Tasks(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	resp.Tasks = api.FromTasks(tasks)
	return nil
}

func (s *service) Browsers(_ BrowsersRequest, resp *BrowsersResponse) error {
	list, err := s.daemon.Browsers(s.ctx)
	if err != nil {
		return err
	}
	resp.Browsers = api.FromBrowsers(list)
	return nil
}

func (s *service) DeleteBrowser(req DeleteBrowserRequest, resp *DeleteBrowserResponse) error {
	b, err := s.daemon.DeleteBrowser(s.ctx, req.ID, req.KeepFiles)
	if err != nil {
		return err
	}
	resp.Browser = api.FromBrowser(b)
	return nil
}

func (s *service) RetryHistory(req TaskRequest, resp *RetryHistoryResponse) error {
	info, err := s.daemon.RetryHistory(req.TaskID)
	if err != nil {
		return err
	}
	resp.History = daemon.RetryHistoryDTO(info)
	return nil
}

func (s *service) ResetRetry(req TaskRequest, resp *ResetRetryResponse) error {
	resp.Reset = s.daemon.ResetRetry(req.TaskID)
	return nil
}

// LogTail serves the in-memory log stream when the daemon has one and falls
// back to tailing the log file.
func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	wait := min(time.Duration(req.WaitMillis)*time.Millisecond, maxLogWait)
	if wait <= 0 && req.Follow {
		wait = time.Second
	}

	if hub := s.daemon.LogStream(); hub != nil {
		ctx, cancel := context.WithTimeout(s.ctx, wait)
		defer cancel()
		var (
			raw  []logging.LogEvent
			next uint64
			err  error
		)
		if req.Since == 0 && !req.Follow && req.Limit > 0 {
			raw, next = hub.Tail(req.Limit)
		} else {
			raw, next, err = hub.Fetch(ctx, req.Since, req.Limit, req.Follow)
		}
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			return err
		}
		filtered := make([]logging.LogEvent, 0, len(raw))
		for _, evt := range raw {
			if req.TaskID == "" || evt.TaskID == req.TaskID {
				filtered = append(filtered, evt)
			}
		}
		resp.Events = api.FromLogEvents(filtered)
		resp.Next = next
		return nil
	}

	logPath := s.daemon.LogPath()
	if logPath == "" {
		return services.Wrap(services.ErrConfiguration, "ipc", "log tail", "daemon has no log file", nil)
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Info("daemon stop requested", logging.String(logging.FieldEventType, "daemon_stop_requested"))
	s.daemon.Stop()
	resp.Stopped = true
	return nil
}
