package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/accounts/internal/apperr"
	"github.com/congo-pay/accounts/internal/config"
	"github.com/congo-pay/accounts/internal/middleware"
	"github.com/congo-pay/accounts/internal/routes"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app *fiber.App
	cfg config.Config
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(d routes.Deps) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      d.Cfg.App.Name,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: ErrorHandler(d.Logger),
	})

	if err := routes.Setup(app, d); err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: d.Cfg}, nil
}

// App exposes the underlying Fiber app, mainly for app.Test in tests.
func (s *Server) App() *fiber.App { return s.app }

// ErrorHandler renders every handler error as {"status":"error","message":...}.
// Server-side failures are logged and replaced with a generic message.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := apperr.Status(err)
		message := apperr.Message(err)

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		}

		if code >= http.StatusInternalServerError {
			logger.ErrorContext(c.UserContext(), "request failed",
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
				slog.String("request_id", middleware.RequestIDFrom(c)),
				slog.Any("error", err),
			)
			message = "internal server error"
		}

		return c.Status(code).JSON(fiber.Map{
			"status":  "error",
			"message": message,
		})
	}
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
