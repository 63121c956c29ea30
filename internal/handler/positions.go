package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"futuresexec/internal/broker"
	"futuresexec/internal/positions"
	"futuresexec/internal/repository"
)

type BreakChecker interface {
	ListBreaksBetweenContractAndStrategyPositions(ctx context.Context) ([]positions.Break, error)
	ExternalBreaks(ctx context.Context, live []broker.Position) ([]positions.ExternalBreak, error)
}

type PositionsHandler struct {
	Repo   repository.Repository
	Breaks BreakChecker
	// Broker is optional; without it external breaks are not served.
	Broker broker.Broker
}

func (h *PositionsHandler) Register(r *gin.Engine) {
	g := r.Group("/api/positions")
	g.GET("/contracts", h.contracts)
	g.GET("/strategies", h.strategies)
	g.GET("/breaks", h.breaks)
	g.GET("/breaks/external", h.externalBreaks)

	r.GET("/api/fills", h.fills)
}

func positionParams(c *gin.Context) repository.ListPositionsParams {
	return repository.ListPositionsParams{
		Limit:      intQuery(c, "limit", 200),
		Offset:     intQuery(c, "offset", 0),
		Instrument: stringQueryPtr(c, "instrument"),
		Strategy:   stringQueryPtr(c, "strategy"),
		NonZero:    boolQueryDefault(c, "non_zero", false),
		Asc:        boolPtr(true),
	}
}

// @Summary Contract positions
// @Tags positions
// @Param instrument query string false "instrument code"
// @Param non_zero query bool false "only non-zero positions"
// @Success 200 {object} map[string]any
// @Router /api/positions/contracts [get]
func (h *PositionsHandler) contracts(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	items, err := h.Repo.ListContractPositions(c.Request.Context(), positionParams(c))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

// @Summary Strategy positions
// @Tags positions
// @Param instrument query string false "instrument code"
// @Param strategy query string false "strategy name"
// @Param non_zero query bool false "only non-zero positions"
// @Success 200 {object} map[string]any
// @Router /api/positions/strategies [get]
func (h *PositionsHandler) strategies(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	items, err := h.Repo.ListStrategyPositions(c.Request.Context(), positionParams(c))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

// @Summary Breaks between contract and strategy positions
// @Tags positions
// @Success 200 {object} map[string]any
// @Router /api/positions/breaks [get]
func (h *PositionsHandler) breaks(c *gin.Context) {
	if h.Breaks == nil {
		Error(c, http.StatusInternalServerError, "positions unavailable", nil)
		return
	}
	items, err := h.Breaks.ListBreaksBetweenContractAndStrategyPositions(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"total": len(items)})
}

// @Summary Breaks between recorded and venue contract positions
// @Tags positions
// @Success 200 {object} map[string]any
// @Failure 502 {object} map[string]any
// @Router /api/positions/breaks/external [get]
func (h *PositionsHandler) externalBreaks(c *gin.Context) {
	if h.Breaks == nil || h.Broker == nil {
		Error(c, http.StatusInternalServerError, "broker unavailable", nil)
		return
	}
	live, err := h.Broker.Positions(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	items, err := h.Breaks.ExternalBreaks(c.Request.Context(), live)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"total": len(items)})
}

// @Summary Recorded broker fills
// @Tags positions
// @Param instrument query string false "instrument code"
// @Param since query string false "RFC3339 lower bound"
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Success 200 {object} map[string]any
// @Router /api/fills [get]
func (h *PositionsHandler) fills(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListFillsParams{
		Limit:      intQuery(c, "limit", 100),
		Offset:     intQuery(c, "offset", 0),
		Instrument: stringQueryPtr(c, "instrument"),
		OrderBy:    "filled_at",
		Asc:        boolPtr(false),
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			Error(c, http.StatusBadRequest, "invalid since", nil)
			return
		}
		params.Since = &since
	}
	items, err := h.Repo.ListFills(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}
