// Package middleware holds the HTTP transport's cross-cutting fiber
// handlers. Recover/RequestID/RequestLogger/SecurityHeaders are adapted
// from the teacher's infra/middleware/worker_error.go and
// worker_security.go (same responsibilities, re-pointed at zerolog and
// with the request/auth/DB-specific pieces the bridge doesn't have
// dropped); ErrorHandler here only covers fiber-level errors (bad routes,
// panics) since JSON-RPC errors are shaped by pkg/apperr and written
// directly by adapter/in/http/mcp.go, never surfaced as HTTP error pages.
package middleware

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"bridgify/pkg/logger"
)

var log = logger.Component("http")

// RequestID attaches a unique id to every request, echoing a caller-
// supplied one if present.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Locals("request_id", requestID)
		c.Set("X-Request-ID", requestID)
		return c.Next()
	}
}

// RequestLogger logs method/path/status/duration for every request. Never
// logs the body, per §4.9's "never log request bodies or email content".
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		duration := time.Since(start)
		event := log.Info()
		if status >= 500 {
			event = log.Error()
		} else if status >= 400 {
			event = log.Warn()
		}
		event.
			Str("request_id", fmt.Sprint(c.Locals("request_id"))).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("duration", duration).
			Msg("request completed")

		return err
	}
}

// Recover converts a panic into a 500 response instead of crashing the
// process, logging the stack trace.
func Recover() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Str("request_id", fmt.Sprint(c.Locals("request_id"))).
					Str("path", c.Path()).
					Interface("panic", r).
					Str("stack", string(debug.Stack())).
					Msg("panic recovered")
				err = fiber.NewError(fiber.StatusInternalServerError, "internal error")
			}
		}()
		return c.Next()
	}
}

// SecurityHeaders adds the standard defensive response headers.
func SecurityHeaders() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'")
		c.Set("Server", "")
		return c.Next()
	}
}

// ErrorHandler is fiber's catch-all for errors that escape route handlers
// (routing failures, body-limit violations) — not for JSON-RPC errors,
// which the /mcp handler always encodes as 200-status JSON-RPC error
// objects per the protocol, never as HTTP error statuses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "internal error"
		if fe, ok := err.(*fiber.Error); ok {
			code = fe.Code
			message = fe.Message
		}
		return c.Status(code).JSON(fiber.Map{"error": message})
	}
}
