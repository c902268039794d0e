package middleware

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/accounts/internal/apperr"
)

// Audit emits one structured log line per request. Handler errors are passed
// through unchanged so the app error handler still renders them.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			} else {
				status = apperr.Status(err)
			}
		}

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		}
		if requestID := RequestIDFrom(c); requestID != "" {
			attrs = append(attrs, slog.String("request_id", requestID))
		}
		if userID, _ := c.Locals(LocalUserID).(string); userID != "" {
			attrs = append(attrs, slog.String("user_id", userID))
		}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
			logger.WarnContext(c.UserContext(), "request completed", attrs...)
			return err
		}

		logger.InfoContext(c.UserContext(), "request completed", attrs...)
		return nil
	}
}
