package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/congo-pay/accounts/internal/apperr"
	"github.com/congo-pay/accounts/internal/store"
)

// UserRow is one line of the admin user listing.
type UserRow struct {
	ID             string     `json:"id"`
	FirstName      string     `json:"first_name"`
	Phone          string     `json:"phone"`
	Role           string     `json:"role"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	LastLogin      *time.Time `json:"last_login"`
	LockedUntil    *time.Time `json:"locked_until"`
	PinSet         bool       `json:"pin_set"`
	ReferralCode   string     `json:"referral_code,omitempty"`
	TotalReferrals int        `json:"total_referrals"`
	TotalEarnings  int64      `json:"total_earnings"`
}

type Service struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewService(st store.Store, logger *slog.Logger) *Service {
	return &Service{store: st, logger: logger, now: time.Now}
}

// ListUsers returns every user, newest first.
func (s *Service) ListUsers(ctx context.Context) ([]UserRow, error) {
	overviews, err := s.store.ListUserOverviews(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]UserRow, 0, len(overviews))
	for _, o := range overviews {
		out = append(out, UserRow{
			ID:             o.User.ID,
			FirstName:      o.User.FirstName,
			Phone:          o.User.Phone,
			Role:           o.User.Role,
			Status:         o.User.Status,
			CreatedAt:      o.User.CreatedAt,
			LastLogin:      o.LastLogin,
			LockedUntil:    o.LockedUntil,
			PinSet:         o.PinSet,
			ReferralCode:   o.ReferralCode,
			TotalReferrals: o.TotalReferrals,
			TotalEarnings:  o.TotalEarnings,
		})
	}
	return out, nil
}

// SetStatus moves a user to active, suspended or blocked. Admins cannot
// change their own status.
func (s *Service) SetStatus(ctx context.Context, actorID, userID, status string) error {
	switch status {
	case store.StatusActive, store.StatusSuspended, store.StatusBlocked:
	default:
		return apperr.Validation("status must be one of active, suspended, blocked")
	}
	if actorID == userID {
		return apperr.Validation("admins cannot change their own status")
	}
	if err := s.store.UpdateUserStatus(ctx, userID, status, s.now().UTC()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("set status: %w", apperr.ErrNotFound)
		}
		return fmt.Errorf("set status: %w", err)
	}
	s.logger.Info("user status changed", "actor_id", actorID, "user_id", userID, "status", status)
	return nil
}
