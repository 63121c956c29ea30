package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"futuresexec/internal/positions"
	"futuresexec/internal/rollstate"
)

type RollStateBook interface {
	RollStateView(ctx context.Context, instrument string) (positions.RollStateView, error)
	ListRollStateViews(ctx context.Context) ([]positions.RollStateView, error)
	SetRollState(ctx context.Context, instrument string, to rollstate.State) error
	CompleteRollAdjusted(ctx context.Context, instrument string) error
}

// RollStatesHandler is the operator surface for per-instrument roll states.
type RollStatesHandler struct {
	Book RollStateBook
}

func (h *RollStatesHandler) Register(r *gin.Engine) {
	g := r.Group("/api/roll-states")
	g.GET("", h.list)
	g.GET("/:instrument", h.get)
	g.PUT("/:instrument", h.put)
	g.POST("/:instrument/adjusted-complete", h.adjustedComplete)
}

// @Summary List roll states
// @Tags roll-states
// @Success 200 {object} map[string]any
// @Router /api/roll-states [get]
func (h *RollStatesHandler) list(c *gin.Context) {
	if h.Book == nil {
		Error(c, http.StatusInternalServerError, "positions unavailable", nil)
		return
	}
	items, err := h.Book.ListRollStateViews(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"total": len(items)})
}

// @Summary Get roll state and allowed transitions
// @Tags roll-states
// @Param instrument path string true "instrument code"
// @Success 200 {object} map[string]any
// @Router /api/roll-states/{instrument} [get]
func (h *RollStatesHandler) get(c *gin.Context) {
	if h.Book == nil {
		Error(c, http.StatusInternalServerError, "positions unavailable", nil)
		return
	}
	instrument := strings.TrimSpace(c.Param("instrument"))
	view, err := h.Book.RollStateView(c.Request.Context(), instrument)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, view, nil)
}

type putRollStateRequest struct {
	State string `json:"state"`
}

// @Summary Change roll state
// @Tags roll-states
// @Param instrument path string true "instrument code"
// @Param body body putRollStateRequest true "new state"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/roll-states/{instrument} [put]
func (h *RollStatesHandler) put(c *gin.Context) {
	if h.Book == nil {
		Error(c, http.StatusInternalServerError, "positions unavailable", nil)
		return
	}
	instrument := strings.TrimSpace(c.Param("instrument"))
	var req putRollStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	to, err := rollstate.Parse(req.State)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), map[string]any{"states": rollstate.All()})
		return
	}
	if err := h.Book.SetRollState(c.Request.Context(), instrument, to); err != nil {
		h.writeTransitionError(c, err)
		return
	}
	view, _ := h.Book.RollStateView(c.Request.Context(), instrument)
	Ok(c, view, nil)
}

// @Summary Mark an adjusted roll as booked
// @Tags roll-states
// @Param instrument path string true "instrument code"
// @Success 200 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/roll-states/{instrument}/adjusted-complete [post]
func (h *RollStatesHandler) adjustedComplete(c *gin.Context) {
	if h.Book == nil {
		Error(c, http.StatusInternalServerError, "positions unavailable", nil)
		return
	}
	instrument := strings.TrimSpace(c.Param("instrument"))
	if err := h.Book.CompleteRollAdjusted(c.Request.Context(), instrument); err != nil {
		h.writeTransitionError(c, err)
		return
	}
	view, _ := h.Book.RollStateView(c.Request.Context(), instrument)
	Ok(c, view, nil)
}

func (h *RollStatesHandler) writeTransitionError(c *gin.Context, err error) {
	var te *rollstate.TransitionError
	switch {
	case errors.As(err, &te):
		Error(c, http.StatusConflict, err.Error(), map[string]any{"allowed_next_states": te.Allowed})
	case errors.Is(err, rollstate.ErrUnknownState):
		Error(c, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, positions.ErrNoContracts):
		Error(c, http.StatusNotFound, err.Error(), nil)
	default:
		Error(c, http.StatusConflict, err.Error(), nil)
	}
}
