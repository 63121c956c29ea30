package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"futuresexec/internal/repository"
)

type AlertsHandler struct {
	Repo repository.AlertRepository
}

func (h *AlertsHandler) Register(r *gin.Engine) {
	g := r.Group("/api/alerts")
	g.GET("", h.list)
	g.POST("/:id/ack", h.ack)
}

// @Summary List operator alerts
// @Tags alerts
// @Param level query string false "alert level"
// @Param source query string false "alert source"
// @Param unacknowledged query bool false "only unacknowledged"
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Success 200 {object} map[string]any
// @Router /api/alerts [get]
func (h *AlertsHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	params := repository.ListAlertsParams{
		Limit:          limit,
		Offset:         offset,
		Level:          stringQueryPtr(c, "level"),
		Source:         stringQueryPtr(c, "source"),
		Unacknowledged: boolQueryDefault(c, "unacknowledged", false),
		OrderBy:        "created_at",
		Asc:            boolPtr(false),
	}
	items, err := h.Repo.ListAlerts(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountAlerts(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Acknowledge an alert
// @Tags alerts
// @Param id path int true "alert id"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/alerts/{id}/ack [post]
func (h *AlertsHandler) ack(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	acked, err := h.Repo.AcknowledgeAlert(c.Request.Context(), id, time.Now().UTC())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if !acked {
		Error(c, http.StatusNotFound, "alert not found or already acknowledged", nil)
		return
	}
	Ok(c, map[string]any{"id": id, "acknowledged": true}, nil)
}
