package pin

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/accounts/internal/validation"
)

// Handler exposes the PIN endpoints. The subject always comes from the
// verified access token, never from the request body.
type Handler struct {
	svc      *Service
	validate *validation.Validator
}

func NewHandler(svc *Service, validate *validation.Validator) *Handler {
	return &Handler{svc: svc, validate: validate}
}

type setRequest struct {
	PIN string `json:"pin" validate:"required,pin"`
}

type changeRequest struct {
	NewPIN string `json:"new_pin" validate:"required,pin"`
	Reason string `json:"reason" validate:"omitempty,max=100"`
}

func subject(c *fiber.Ctx) (string, error) {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return "", fiber.NewError(http.StatusUnauthorized, "missing identity")
	}
	return uid, nil
}

// Set handles PATCH /auth/pin/set.
func (h *Handler) Set(c *fiber.Ctx) error {
	uid, err := subject(c)
	if err != nil {
		return err
	}
	var req setRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return err
	}
	if err := h.svc.Set(c.UserContext(), uid, req.PIN); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "success", "message": "PIN set successfully"})
}

// Change handles PATCH /auth/pin/change.
func (h *Handler) Change(c *fiber.Ctx) error {
	uid, err := subject(c)
	if err != nil {
		return err
	}
	var req changeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return err
	}
	if err := h.svc.Change(c.UserContext(), uid, req.NewPIN, req.Reason); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "success", "message": "PIN changed successfully"})
}

// Verify handles POST /auth/pin/verify.
func (h *Handler) Verify(c *fiber.Ctx) error {
	uid, err := subject(c)
	if err != nil {
		return err
	}
	var req setRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return err
	}
	if err := h.svc.Verify(c.UserContext(), uid, req.PIN); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "success", "message": "PIN verified"})
}

type auditResponse struct {
	Action    string    `json:"action"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// History handles GET /auth/pin/history.
func (h *Handler) History(c *fiber.Ctx) error {
	uid, err := subject(c)
	if err != nil {
		return err
	}
	entries, err := h.svc.History(c.UserContext(), uid)
	if err != nil {
		return err
	}
	out := make([]auditResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditResponse{Action: e.Action, Reason: e.Reason, CreatedAt: e.CreatedAt})
	}
	return c.JSON(fiber.Map{"status": "success", "data": out})
}
