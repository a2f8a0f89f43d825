package bootstrap

import (
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	httptransport "bridgify/adapter/in/http"
	"bridgify/config"
	"bridgify/core/bridge"
	"bridgify/infra/middleware"
)

// NewAPI builds the fiber app serving /health and /mcp over HTTP. Buffer
// sizes, go-json encoder/decoder wiring, and the disabled server header are
// carried over from the teacher's fiber.Config block in
// internal/bootstrap/worker_api.go; the auth/CORS/compression/webhook
// middleware that block had no counterpart here and was dropped since this
// bridge has no multi-tenant HTTP API surface to protect — only one local
// caller (§6's "typically standard input/output of a spawned process", and
// for the HTTP transport, a single trusted operator process).
func NewAPI(cfg *config.Config, b *bridge.Bridge) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		StrictRouting:         false,
		CaseSensitive:         false,

		ReadBufferSize:  16384,
		WriteBufferSize: 16384,

		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit: 10 * 1024 * 1024,

		ServerHeader:       "",
		DisableDefaultDate: true,
	})

	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger())

	httptransport.NewHealthHandler(b).Register(app)
	httptransport.NewMCPHandler(b).Register(app)

	return app
}
