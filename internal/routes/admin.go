package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/accounts/internal/admin"
	"github.com/congo-pay/accounts/internal/ledger"
)

// RegisterAdminRoutes wires back-office endpoints. r must already enforce
// the admin role.
func RegisterAdminRoutes(r fiber.Router, users *admin.Handler, deposits *ledger.Handler) {
	r.Get("/users", users.ListUsers)
	r.Patch("/users/:id/status", users.SetStatus)
	r.Patch("/deposits/:id", deposits.Review)
}
