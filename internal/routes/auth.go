package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/accounts/internal/auth"
	"github.com/congo-pay/accounts/internal/identity"
	"github.com/congo-pay/accounts/internal/pin"
)

// AuthHandlers groups the handlers mounted under /auth.
type AuthHandlers struct {
	Identity    *identity.Handler
	Auth        *auth.Handler
	Pin         *pin.Handler
	RateLimiter fiber.Handler
}

// RegisterAuthRoutes wires registration, login, token, password and PIN endpoints.
func RegisterAuthRoutes(r fiber.Router, h AuthHandlers, jwtmw fiber.Handler) {
	group := r.Group("/auth")
	group.Post("/register", h.Identity.Register)
	if h.RateLimiter != nil {
		group.Post("/login", h.RateLimiter, h.Auth.Login)
	} else {
		group.Post("/login", h.Auth.Login)
	}
	group.Post("/refresh", h.Auth.Refresh)

	group.Patch("/password/change", jwtmw, h.Auth.ChangePassword)

	pins := group.Group("/pin", jwtmw)
	pins.Patch("/set", h.Pin.Set)
	pins.Patch("/change", h.Pin.Change)
	pins.Post("/verify", h.Pin.Verify)
	pins.Get("/history", h.Pin.History)
}
