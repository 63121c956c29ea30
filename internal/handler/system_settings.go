package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"futuresexec/internal/service"
)

type SystemSettingsHandler struct {
	Settings *service.SystemSettingsService
}

func (h *SystemSettingsHandler) Register(r *gin.Engine) {
	g := r.Group("/api/system-settings")
	g.GET("/switches", h.listSwitches)
	g.GET("/switches/:name", h.getSwitch)
	g.PUT("/switches/:name", h.putSwitch)
}

// @Summary List feature switches
// @Tags system-settings
// @Success 200 {object} map[string]any
// @Router /api/system-settings/switches [get]
func (h *SystemSettingsHandler) listSwitches(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings service unavailable", nil)
		return
	}
	items, err := h.Settings.Switches(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		out = append(out, map[string]any{
			"name":       strings.TrimPrefix(it.Key, service.FeaturePrefix),
			"key":        it.Key,
			"enabled":    it.Enabled,
			"updated_at": it.UpdatedAt,
		})
	}
	Ok(c, out, nil)
}

func switchKey(c *gin.Context) (string, string, bool) {
	name := strings.TrimSpace(c.Param("name"))
	key := service.FeaturePrefix + name
	if name == "" || !service.IsKnownSwitch(key) {
		Error(c, http.StatusNotFound, "unknown switch", nil)
		return "", "", false
	}
	return name, key, true
}

// @Summary Get a feature switch
// @Tags system-settings
// @Param name path string true "switch name without the feature. prefix"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/system-settings/switches/{name} [get]
func (h *SystemSettingsHandler) getSwitch(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings service unavailable", nil)
		return
	}
	name, key, ok := switchKey(c)
	if !ok {
		return
	}
	fallback := service.DefaultFeatureSwitches()[key]
	Ok(c, map[string]any{
		"name":    name,
		"key":     key,
		"enabled": h.Settings.IsEnabled(c.Request.Context(), key, fallback),
	}, nil)
}

type putSwitchRequest struct {
	Enabled *bool `json:"enabled"`
}

// @Summary Turn a feature switch on or off
// @Tags system-settings
// @Param name path string true "switch name without the feature. prefix"
// @Param body body putSwitchRequest true "switch value"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/system-settings/switches/{name} [put]
func (h *SystemSettingsHandler) putSwitch(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings service unavailable", nil)
		return
	}
	name, key, ok := switchKey(c)
	if !ok {
		return
	}
	var req putSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if err := h.Settings.SetEnabled(c.Request.Context(), key, *req.Enabled); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, map[string]any{
		"name":    name,
		"key":     key,
		"enabled": *req.Enabled,
	}, nil)
}
