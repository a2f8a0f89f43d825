package http

import (
	"github.com/gofiber/fiber/v2"

	"bridgify/core/bridge"
	"bridgify/core/router"
	"bridgify/pkg/apperr"
	"bridgify/rpc"
)

// MCPHandler is the HTTP transport's thin relay into the protocol layer
// (§1: "their only responsibility is to hand a parsed request to the core
// and write back its response"). HTTP has no persistent per-connection
// state, so all callers share one Session for the process's lifetime —
// the first POST must be "initialize" the same as a line-oriented
// transport's first line.
type MCPHandler struct {
	bridge *bridge.Bridge
	sess   *rpc.Session
}

func NewMCPHandler(b *bridge.Bridge) *MCPHandler {
	return &MCPHandler{bridge: b, sess: rpc.NewSession()}
}

func (h *MCPHandler) Register(app *fiber.App) {
	app.Post("/mcp", h.Handle)
}

func (h *MCPHandler) Handle(c *fiber.Ctx) error {
	release, err := h.bridge.Admit(c.Context())
	if err != nil {
		// §6: /mcp always answers 200; application errors — including
		// admission rejection — live in the JSON-RPC envelope, never in
		// the HTTP status line.
		return h.writeError(c, err)
	}
	defer release()

	ctx, cancel := h.bridge.RequestContext(c.Context())
	defer cancel()

	ctx = router.WithCaller(ctx, c.IP())
	resp := rpc.ServeOne(ctx, h.sess, h.bridge.Router, c.Body())

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(resp)
}

func (h *MCPHandler) writeError(c *fiber.Ctx, err error) error {
	rpcErr := apperr.AsRPCError(err)
	resp := rpc.NewError(nil, rpcErr.Code(), rpcErr.Message, rpcErr.DataType(), rpcErr.Details, rpcErr.RetryAfter)
	data, encErr := rpc.Marshal(resp)
	if encErr != nil {
		return encErr
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(data)
}
