package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"browserfetch/internal/services"
)

func (h *handlers) status(c *gin.Context) {
	c.JSON(http.StatusOK, h.backend.Status(c.Request.Context()))
}

func (h *handlers) listTasks(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	tasks, err := h.backend.Tasks(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, FromTasks(tasks))
}

func (h *handlers) createTask(c *gin.Context) {
	var req InstallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, services.Wrap(services.ErrValidation, "api", "install", "invalid request body", err))
		return
	}
	task, err := h.backend.Install(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, FromTask(task))
}

func (h *handlers) getTask(c *gin.Context) {
	task, err := h.backend.Task(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, FromTask(task))
}

func (h *handlers) retryTask(c *gin.Context) {
	task, err := h.backend.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, FromTask(task))
}

func (h *handlers) removeTask(c *gin.Context) {
	if err := h.backend.Remove(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) retryHistory(c *gin.Context) {
	history, err := h.backend.RetryHistory(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (h *handlers) resetRetry(c *gin.Context) {
	if !h.backend.ResetRetry(c.Param("id")) {
		h.fail(c, services.Wrap(services.ErrNotFound, "api", "reset retry", "no retry state for task "+c.Param("id"), nil))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) listBrowsers(c *gin.Context) {
	list, err := h.backend.Browsers(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, FromBrowsers(list))
}

func (h *handlers) deleteBrowser(c *gin.Context) {
	b, err := h.backend.DeleteBrowser(c.Request.Context(), c.Param("id"), queryBool(c, "keep_files"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, FromBrowser(b))
}

func queryBool(c *gin.Context, key string) bool {
	v, err := strconv.ParseBool(c.Query(key))
	return err == nil && v
}
