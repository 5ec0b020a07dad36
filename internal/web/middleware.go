package web

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/kavwad/clippertv/internal/logger"
)

// RequestLogger assigns each request a correlation ID, carries it on
// the request context for downstream log lines, and logs the completed
// request. An incoming X-Request-ID header wins over a generated one.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("X-Request-ID", requestID)

		reqLogger := logger.Default().With("request_id", requestID)
		ctx := logger.WithRequestID(c.UserContext(), requestID)
		c.SetUserContext(logger.WithLogger(ctx, reqLogger))

		err := c.Next()

		// The error handler runs after this middleware returns, so the
		// response status is derived from the error when there is one.
		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}

		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		reqLogger.Log(c.UserContext(), level, "http_request",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", c.IP(),
		)
		return err
	}
}
