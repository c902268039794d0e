package ledger

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

type depositRequest struct {
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	Reference string `json:"reference" validate:"required,max=64"`
}

// Deposit handles POST /transactions/deposit.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing identity")
	}
	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return err
	}
	d, err := h.svc.Deposit(c.UserContext(), uid, req.Amount, req.Reference)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"status": "success", "data": d})
}

// List handles GET /transactions/deposit?status=.
func (h *Handler) List(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	role, _ := c.Locals("role").(string)
	out, err := h.svc.List(c.UserContext(), uid, role, c.Query("status"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "success", "data": out})
}

type reviewRequest struct {
	Status string `json:"status" validate:"required,oneof=confirmed rejected"`
}

// Review handles PATCH /admin/deposits/:id.
func (h *Handler) Review(c *fiber.Ctx) error {
	var req reviewRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return err
	}
	reviewer, _ := c.Locals("user_id").(string)
	d, err := h.svc.Review(c.UserContext(), reviewer, c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "success", "data": d})
}
