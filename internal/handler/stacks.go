package handler

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"futuresexec/internal/order"
	"futuresexec/internal/stack"
)

// StacksHandler exposes read-only views of the three order stacks.
type StacksHandler struct {
	Stacks stack.Set
}

func (h *StacksHandler) Register(r *gin.Engine) {
	g := r.Group("/api/stacks")
	g.GET("", h.summary)
	g.GET("/:stack/orders", h.list)
	g.GET("/:stack/orders/:id", h.get)
}

// @Summary Order counts per stack
// @Tags stacks
// @Success 200 {object} map[string]any
// @Router /api/stacks [get]
func (h *StacksHandler) summary(c *gin.Context) {
	out := make([]map[string]any, 0, 3)
	for _, s := range h.Stacks.All() {
		if s == nil {
			continue
		}
		n, err := s.CountOrders(c.Request.Context())
		if err != nil {
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
		active, err := s.ActiveOrders(c.Request.Context())
		if err != nil {
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
		out = append(out, map[string]any{
			"stack":  s.Name(),
			"orders": n,
			"active": len(active),
		})
	}
	Ok(c, out, nil)
}

// @Summary List orders on a stack
// @Tags stacks
// @Param stack path string true "instrument, contract or broker"
// @Param active query bool false "only active orders"
// @Param instrument query string false "instrument code"
// @Param strategy query string false "strategy name"
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Success 200 {object} map[string]any
// @Router /api/stacks/{stack}/orders [get]
func (h *StacksHandler) list(c *gin.Context) {
	s := h.stackFor(c)
	if s == nil {
		return
	}
	var (
		items []*order.Order
		err   error
	)
	if boolQueryDefault(c, "active", false) {
		items, err = s.ActiveOrders(c.Request.Context())
	} else {
		items, err = s.AllOrders(c.Request.Context())
	}
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	instrument := strings.TrimSpace(c.Query("instrument"))
	strategy := strings.TrimSpace(c.Query("strategy"))
	filtered := items[:0]
	for _, o := range items {
		if instrument != "" && o.InstrumentCode != instrument {
			continue
		}
		if strategy != "" && o.StrategyName != strategy {
			continue
		}
		filtered = append(filtered, o)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].ID < filtered[j].ID })

	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	total := int64(len(filtered))
	page := []*order.Order{}
	if offset < len(filtered) {
		end := offset + limit
		if end > len(filtered) {
			end = len(filtered)
		}
		page = filtered[offset:end]
	}
	Ok(c, page, paginationMeta(limit, offset, total))
}

// @Summary Get one order
// @Tags stacks
// @Param stack path string true "instrument, contract or broker"
// @Param id path int true "order id"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/stacks/{stack}/orders/{id} [get]
func (h *StacksHandler) get(c *gin.Context) {
	s := h.stackFor(c)
	if s == nil {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := s.GetOrder(c.Request.Context(), id)
	if errors.Is(err, stack.ErrOrderNotFound) {
		Error(c, http.StatusNotFound, "order not found", nil)
		return
	}
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}

func (h *StacksHandler) stackFor(c *gin.Context) stack.Stack {
	s := h.Stacks.ByName(strings.TrimSpace(c.Param("stack")))
	if s == nil {
		Error(c, http.StatusNotFound, "unknown stack", nil)
	}
	return s
}
