package dashboard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/congo-pay/accounts/internal/apperr"
	"github.com/congo-pay/accounts/internal/store"
)

const recentReferralLimit = 5

type UserSummary struct {
	ID            string    `json:"id"`
	FirstName     string    `json:"first_name"`
	Phone         string    `json:"phone"`
	PhoneVerified bool      `json:"phone_verified"`
	Role          string    `json:"role"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	Status        string    `json:"status"`
	MemberSince   time.Time `json:"member_since"`
}

type Security struct {
	LoginAttempts int        `json:"login_attempts"`
	LastLogin     *time.Time `json:"last_login"`
	AccountLocked bool       `json:"account_locked"`
	PinSet        bool       `json:"pin_set"`
	PinLocked     bool       `json:"pin_locked"`
}

type Referral struct {
	Code                   string    `json:"code,omitempty"`
	IsActive               bool      `json:"is_active"`
	TotalReferrals         int       `json:"total_referrals"`
	TotalEarnings          int64     `json:"total_earnings"`
	TotalEarningsFormatted string    `json:"total_earnings_formatted"`
	LastUpdated            time.Time `json:"last_updated"`
}

type RecentReferral struct {
	ID               string     `json:"id"`
	RefereeID        string     `json:"referee_id"`
	RefereeFirstName string     `json:"referee_first_name"`
	RefereePhone     string     `json:"referee_phone_partial"`
	CodeUsed         string     `json:"referral_code_used"`
	Status           string     `json:"status"`
	ExpiresAt        time.Time  `json:"expires_at"`
	ClaimedAt        *time.Time `json:"claimed_at"`
	DaysToExpire     int        `json:"days_to_expire"`
	IsExpired        bool       `json:"is_expired"`
}

type Statistics struct {
	Pending int              `json:"pending_claims"`
	Claimed int              `json:"claimed_referrals"`
	Expired int              `json:"expired_claims"`
	Total   int              `json:"total_claims"`
	Recent  []RecentReferral `json:"recent_referrals"`
}

type Summary struct {
	AccountStatus         string `json:"account_status"`
	VerificationComplete  bool   `json:"verification_complete"`
	SecuritySetupComplete bool   `json:"security_setup_complete"`
	ReferralProgramActive bool   `json:"referral_program_active"`
	TotalNetworkSize      int    `json:"total_network_size"`
	LifetimeEarnings      string `json:"lifetime_earnings"`
	ActiveReferralCode    string `json:"active_referral_code,omitempty"`
}

// Dashboard is the read-only account overview. It never carries hashes.
type Dashboard struct {
	User       UserSummary `json:"user"`
	Security   Security    `json:"security"`
	Referral   Referral    `json:"referral"`
	Statistics Statistics  `json:"referral_statistics"`
	Summary    Summary     `json:"summary"`
}

type Service struct {
	store store.Queries
	now   func() time.Time
}

func NewService(st store.Queries) *Service {
	return &Service{store: st, now: time.Now}
}

// Get builds the dashboard for userID. Customers may only read their own;
// admins may read any.
func (s *Service) Get(ctx context.Context, requesterID, requesterRole, userID string) (Dashboard, error) {
	if requesterID != userID && requesterRole != store.RoleAdmin {
		return Dashboard{}, fmt.Errorf("dashboard: %w", apperr.ErrForbidden)
	}
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Dashboard{}, fmt.Errorf("dashboard: %w", apperr.ErrNotFound)
		}
		return Dashboard{}, fmt.Errorf("dashboard: find user: %w", err)
	}
	now := s.now()

	out := Dashboard{User: UserSummary{
		ID:            user.ID,
		FirstName:     user.FirstName,
		Phone:         user.Phone,
		PhoneVerified: user.PhoneVerified,
		Role:          user.Role,
		AvatarURL:     user.AvatarURL,
		Status:        user.Status,
		MemberSince:   user.CreatedAt,
	}}

	cred, err := s.store.FindCredential(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return Dashboard{}, fmt.Errorf("dashboard: credential: %w", err)
	}
	out.Security.LoginAttempts = cred.LoginAttempts
	out.Security.LastLogin = cred.LastLogin
	out.Security.AccountLocked = cred.LockedUntil != nil && now.Before(*cred.LockedUntil)

	pin, err := s.store.FindPin(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return Dashboard{}, fmt.Errorf("dashboard: pin: %w", err)
	}
	out.Security.PinSet = pin.PinSet
	out.Security.PinLocked = pin.PinLockedUntil != nil && now.Before(*pin.PinLockedUntil)

	ref, err := s.store.FindReferralCodeByUser(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return Dashboard{}, fmt.Errorf("dashboard: referral code: %w", err)
	}
	out.Referral = Referral{
		Code:                   ref.Code,
		IsActive:               ref.IsActive,
		TotalReferrals:         ref.TotalReferrals,
		TotalEarnings:          ref.TotalEarnings,
		TotalEarningsFormatted: FormatCents(ref.TotalEarnings),
		LastUpdated:            ref.UpdatedAt,
	}

	claims, err := s.store.ListClaimsByReferrer(ctx, userID)
	if err != nil {
		return Dashboard{}, fmt.Errorf("dashboard: claims: %w", err)
	}
	out.Statistics.Recent = []RecentReferral{}
	for _, c := range claims {
		switch c.Status {
		case store.ClaimPending:
			out.Statistics.Pending++
		case store.ClaimClaimed:
			out.Statistics.Claimed++
		case store.ClaimExpired:
			out.Statistics.Expired++
		}
		if len(out.Statistics.Recent) >= recentReferralLimit {
			continue
		}
		referee, err := s.store.FindUserByID(ctx, c.RefereeID)
		if err != nil {
			continue
		}
		out.Statistics.Recent = append(out.Statistics.Recent, RecentReferral{
			ID:               c.ID,
			RefereeID:        c.RefereeID,
			RefereeFirstName: referee.FirstName,
			RefereePhone:     MaskPhone(referee.Phone),
			CodeUsed:         c.Code,
			Status:           c.Status,
			ExpiresAt:        c.ExpiresAt,
			ClaimedAt:        c.ClaimedAt,
			DaysToExpire:     daysUntil(c.ExpiresAt, now),
			IsExpired:        now.After(c.ExpiresAt),
		})
	}
	out.Statistics.Total = out.Statistics.Pending + out.Statistics.Claimed + out.Statistics.Expired

	out.Summary = Summary{
		AccountStatus:         user.Status,
		VerificationComplete:  user.PhoneVerified,
		SecuritySetupComplete: pin.PinSet,
		ReferralProgramActive: ref.IsActive,
		TotalNetworkSize:      ref.TotalReferrals,
		LifetimeEarnings:      out.Referral.TotalEarningsFormatted,
		ActiveReferralCode:    ref.Code,
	}
	return out, nil
}

// MaskPhone keeps the first five and last two characters of a phone number.
func MaskPhone(phone string) string {
	n := len(phone)
	switch {
	case n == 0:
		return ""
	case n >= 7:
		stars := n - 7
		if stars < 4 {
			stars = 4
		}
		return phone[:5] + strings.Repeat("*", stars) + phone[n-2:]
	case n <= 2:
		return strings.Repeat("*", n)
	default:
		return phone[:1] + strings.Repeat("*", n-2) + phone[n-1:]
	}
}

// FormatCents renders minor units as dollars with two decimals.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

func daysUntil(t, now time.Time) int {
	return int(math.Ceil(t.Sub(now).Hours() / 24))
}
