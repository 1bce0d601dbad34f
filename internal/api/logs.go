package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"browserfetch/internal/logging"
)

const (
	defaultLogLimit = 200
	maxFollowWait   = 30 * time.Second
)

// logs serves the retained log buffer. follow=1 long-polls until an event
// newer than since arrives or the wait expires.
func (h *handlers) logs(c *gin.Context) {
	hub := h.backend.LogStream()
	if hub == nil {
		c.JSON(http.StatusOK, LogStreamResponse{Events: []LogEvent{}})
		return
	}

	since, _ := strconv.ParseUint(c.Query("since"), 10, 64)
	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit <= 0 {
		limit = defaultLogLimit
	}
	follow := queryBool(c, "follow")
	taskID := strings.TrimSpace(c.Query("task"))
	component := strings.TrimSpace(c.Query("component"))

	var (
		raw  []logging.LogEvent
		next uint64
	)
	if queryBool(c, "tail") && since == 0 && !follow {
		raw, next = hub.Tail(limit)
	} else {
		ctx, cancel := context.WithTimeout(c.Request.Context(), maxFollowWait)
		defer cancel()
		var err error
		raw, next, err = hub.Fetch(ctx, since, limit, follow)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			h.fail(c, err)
			return
		}
	}

	filtered := make([]logging.LogEvent, 0, len(raw))
	for _, evt := range raw {
		if taskID != "" && evt.TaskID != taskID {
			continue
		}
		if component != "" && !strings.EqualFold(component, evt.Component) {
			continue
		}
		filtered = append(filtered, evt)
	}
	c.JSON(http.StatusOK, LogStreamResponse{Events: FromLogEvents(filtered), Next: next})
}
