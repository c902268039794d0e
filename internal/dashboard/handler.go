package dashboard

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Get handles GET /dashboard/:id.
func (h *Handler) Get(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	role, _ := c.Locals("role").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing identity")
	}
	d, err := h.svc.Get(c.UserContext(), uid, role, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "success", "data": d})
}
