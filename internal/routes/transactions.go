package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/accounts/internal/ledger"
)

// RegisterTransactionRoutes wires deposit declaration and listing on the
// authenticated /transactions group. idem is optional and guards deposit
// creation against client retries.
func RegisterTransactionRoutes(r fiber.Router, h *ledger.Handler, idem fiber.Handler) {
	if idem != nil {
		r.Post("/deposit", idem, h.Deposit)
	} else {
		r.Post("/deposit", h.Deposit)
	}
	r.Get("/deposit", h.List)
}
