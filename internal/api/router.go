package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"browserfetch/internal/catalog"
	"browserfetch/internal/download"
	"browserfetch/internal/events"
	"browserfetch/internal/logging"
	"browserfetch/internal/services"
)

// Backend is the daemon surface the HTTP API exposes.
type Backend interface {
	Status(ctx context.Context) DaemonStatus
	Install(ctx context.Context, req InstallRequest) (download.Task, error)
	Task(ctx context.Context, id string) (download.Task, error)
	Tasks(ctx context.Context, limit int) ([]download.Task, error)
	Retry(ctx context.Context, id string) (download.Task, error)
	Remove(ctx context.Context, id string) error
	RetryHistory(id string) (RetryHistory, error)
	ResetRetry(id string) bool
	Browsers(ctx context.Context) ([]catalog.Browser, error)
	DeleteBrowser(ctx context.Context, id string, keepFiles bool) (catalog.Browser, error)
	Subscribe() (<-chan events.Envelope, func())
	LogStream() *logging.StreamHub
}

// Options tunes the router.
type Options struct {
	Token  string
	Logger *slog.Logger
}

type handlers struct {
	backend Backend
	logger  *slog.Logger
}

// NewRouter builds the gin engine serving every /api route.
func NewRouter(backend Backend, opts Options) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	logger := logging.NewComponentLogger(opts.Logger, "api")
	h := &handlers{backend: backend, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	group := r.Group("/api", authMiddleware(opts.Token))
	group.GET("/status", h.status)
	group.GET("/tasks", h.listTasks)
	group.POST("/tasks", h.createTask)
	group.GET("/tasks/:id", h.getTask)
	group.POST("/tasks/:id/retry", h.retryTask)
	group.DELETE("/tasks/:id", h.removeTask)
	group.GET("/tasks/:id/retries", h.retryHistory)
	group.DELETE("/tasks/:id/retries", h.resetRetry)
	group.GET("/browsers", h.listBrowsers)
	group.DELETE("/browsers/:id", h.deleteBrowser)
	group.GET("/logs", h.logs)
	group.GET("/events", h.events)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
	})
	return r
}

// authMiddleware validates bearer tokens. An empty token disables auth.
func authMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		presented, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok && c.FullPath() == "/api/events" {
			presented, ok = c.GetQuery("token")
		}
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			return
		}
		c.Next()
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("api request",
			logging.String("method", c.Request.Method),
			logging.String("path", c.FullPath()),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("duration", time.Since(start)),
		)
	}
}

func (h *handlers) fail(c *gin.Context, err error) {
	status := services.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("api request failed",
			logging.String("path", c.FullPath()),
			logging.Error(err),
		)
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}
