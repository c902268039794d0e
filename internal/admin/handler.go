package admin

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/accounts/internal/validation"
)

type Handler struct {
	svc      *Service
	validate *validation.Validator
}

func NewHandler(svc *Service, validate *validation.Validator) *Handler {
	return &Handler{svc: svc, validate: validate}
}

// ListUsers handles GET /admin/users.
func (h *Handler) ListUsers(c *fiber.Ctx) error {
	users, err := h.svc.ListUsers(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "All users fetched successfully", "users": users})
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=active suspended blocked"`
}

// SetStatus handles PATCH /admin/users/:id/status.
func (h *Handler) SetStatus(c *fiber.Ctx) error {
	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return err
	}
	actor, _ := c.Locals("user_id").(string)
	if err := h.svc.SetStatus(c.UserContext(), actor, c.Params("id"), req.Status); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "success", "message": "User status updated"})
}
