package http

import (
	"github.com/gofiber/fiber/v2"

	"bridgify/core/bridge"
)

// HealthHandler exposes the health probe (§4.7) over HTTP. Register shape
// (one struct, one Register(app) call wiring GET routes) carried over from
// the teacher's worker_health.go; the checks themselves are now the
// bridge's own pool/cache health rather than Postgres/Redis pings.
type HealthHandler struct {
	bridge *bridge.Bridge
}

func NewHealthHandler(b *bridge.Bridge) *HealthHandler {
	return &HealthHandler{bridge: b}
}

func (h *HealthHandler) Register(app *fiber.App) {
	app.Get("/health", h.Health)
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	report := h.bridge.Health()

	status := fiber.StatusOK
	if report.PoolHealth.Status == "unhealthy" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(report)
}
