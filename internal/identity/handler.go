package identity

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type userResponse struct {
	UserID        string    `json:"user_id"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name,omitempty"`
	Phone         string    `json:"phone"`
	PhoneVerified bool      `json:"phone_verified"`
	Role          string    `json:"role"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	Status        string    `json:"status"`
	ReferralCode  string    `json:"referral_code"`
	Referred      bool      `json:"referred"`
	CreatedAt     time.Time `json:"created_at"`
}

// Register handles user onboarding.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req RegisterInput
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	reg, err := h.service.Register(c.UserContext(), req)
	if err != nil {
		return err
	}
	u := reg.User
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"status":  "success",
		"message": "User registered successfully",
		"data": userResponse{
			UserID:        u.ID,
			FirstName:     u.FirstName,
			LastName:      u.LastName,
			Phone:         u.Phone,
			PhoneVerified: u.PhoneVerified,
			Role:          u.Role,
			AvatarURL:     u.AvatarURL,
			Status:        u.Status,
			ReferralCode:  reg.ReferralCode,
			Referred:      reg.Claim != nil,
			CreatedAt:     u.CreatedAt,
		},
	})
}
