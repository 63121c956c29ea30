package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"futuresexec/internal/stackhandler"
)

type OperationRunner interface {
	RunOperation(ctx context.Context, name string) error
}

// OpsHandler lets an operator trigger one handler operation out of schedule.
type OpsHandler struct {
	Runner OperationRunner
}

func (h *OpsHandler) Register(r *gin.Engine) {
	g := r.Group("/api/ops")
	g.GET("", h.list)
	g.POST("/:name", h.run)
}

// @Summary List runnable operations
// @Tags ops
// @Success 200 {object} map[string]any
// @Router /api/ops [get]
func (h *OpsHandler) list(c *gin.Context) {
	Ok(c, stackhandler.OperationNames(), nil)
}

// @Summary Run one operation now
// @Tags ops
// @Param name path string true "operation name"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Failure 502 {object} map[string]any
// @Router /api/ops/{name} [post]
func (h *OpsHandler) run(c *gin.Context) {
	if h.Runner == nil {
		Error(c, http.StatusInternalServerError, "stack handler unavailable", nil)
		return
	}
	name := strings.TrimSpace(c.Param("name"))
	start := time.Now()
	err := h.Runner.RunOperation(c.Request.Context(), name)
	meta := map[string]any{"took_ms": time.Since(start).Milliseconds()}
	if errors.Is(err, stackhandler.ErrUnknownOperation) {
		Error(c, http.StatusNotFound, err.Error(), nil)
		return
	}
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), meta)
		return
	}
	Ok(c, map[string]any{"op": name}, meta)
}
