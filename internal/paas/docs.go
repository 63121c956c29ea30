package paas

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func RegisterDocs(r *gin.Engine) {
	r.GET("/docs", func(c *gin.Context) {
		c.Header("Content-Type", "text/markdown; charset=utf-8")
		c.String(http.StatusOK, `# Stack Handler

Operator surface for the futures order stacks (instrument, contract, broker).
Scheduled operations run from cron; everything here is inspection plus
manual triggers.

## Auth

All /api/* routes require a Bearer token (validated by the PaaS gateway).
Health endpoints are public.

## Routes

- GET /healthz
- GET /readyz
- GET /swagger/index.html
- GET /api/stacks
- GET /api/stacks/{stack}/orders
- GET /api/stacks/{stack}/orders/{id}
- GET /api/roll-states
- GET /api/roll-states/{instrument}
- PUT /api/roll-states/{instrument}
- POST /api/roll-states/{instrument}/adjusted-complete
- GET /api/positions/contracts
- GET /api/positions/strategies
- GET /api/positions/breaks
- GET /api/positions/breaks/external
- GET /api/fills
- GET /api/alerts
- POST /api/alerts/{id}/ack
- GET /api/ops
- POST /api/ops/{name}
- GET /api/system-settings/switches
- GET /api/system-settings/switches/{name}
- PUT /api/system-settings/switches/{name}
`)
	})
}
