// Package middleware provides the Fiber middleware chain: request context
// propagation, structured request logging and tracing.
package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/egypcoder/grouptherapy-radio/internal/observability"
)

// ContextMiddleware injects the request ID from Fiber locals into the request
// context so deeper layers can correlate their log lines.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rid := c.Locals("requestid"); rid != nil {
			if ridStr, ok := rid.(string); ok {
				c.SetUserContext(observability.WithCorrelationID(c.UserContext(), ridStr))
			}
		}
		return c.Next()
	}
}

// StructuredLogger returns a Fiber middleware that logs each request with
// slog after it has been handled.
func StructuredLogger(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		fields := []any{
			slog.Int("status", c.Response().StatusCode()),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("ip", c.IP()),
			slog.Duration("latency", time.Since(start)),
		}
		if rid := observability.ExtractCorrelationID(c.UserContext()); rid != "" {
			fields = append(fields, slog.String("request_id", rid))
		}

		if err != nil {
			fields = append(fields, slog.String("error", err.Error()))
			logger.Error("request failed", fields...)
		} else {
			logger.Info("request processed", fields...)
		}
		return err
	}
}
