package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/accounts/internal/apperr"
	"github.com/congo-pay/accounts/internal/notification"
	"github.com/congo-pay/accounts/internal/referral"
	"github.com/congo-pay/accounts/internal/store"
	"github.com/congo-pay/accounts/internal/validation"
)

const maxCodeAttempts = 5

// PasswordHasher hashes new passwords.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
}

// Config tunes registration side effects.
type Config struct {
	// ClaimWindow is how long a referral claim stays pending.
	ClaimWindow time.Duration
	// StrictInvitation rejects registrations carrying an unknown invitation code.
	StrictInvitation bool
}

// RegisterInput is the registration request.
type RegisterInput struct {
	FirstName      string `json:"first_name" validate:"required,max=100"`
	LastName       string `json:"last_name" validate:"omitempty,max=100"`
	Phone          string `json:"phone" validate:"required,phone"`
	Password       string `json:"password" validate:"required,min=6,max=72"`
	AvatarURL      string `json:"avatar_url" validate:"omitempty,url,max=500"`
	Role           string `json:"role" validate:"omitempty,oneof=customer admin"`
	InvitationCode string `json:"invitation_code" validate:"omitempty,max=16"`
}

// Registration is what a successful registration created.
type Registration struct {
	User         store.User
	ReferralCode string
	Claim        *store.ReferralClaim
}

// Service runs the registration workflow.
type Service struct {
	store    store.Store
	hasher   PasswordHasher
	notifier notification.Notifier
	validate *validation.Validator
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
	newCode  func() (string, error)
}

func NewService(st store.Store, hasher PasswordHasher, notifier notification.Notifier, validate *validation.Validator, cfg Config, logger *slog.Logger) *Service {
	if cfg.ClaimWindow <= 0 {
		cfg.ClaimWindow = referral.DefaultClaimWindow
	}
	return &Service{
		store:    st,
		hasher:   hasher,
		notifier: notifier,
		validate: validate,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		newCode:  referral.NewCode,
	}
}

// Register creates the user together with its credential, an unset PIN
// record and a referral code. A resolvable invitation code also records a
// pending claim and bumps the inviter's counter. Everything commits in one
// transaction.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Registration, error) {
	in.Phone = strings.TrimSpace(in.Phone)
	in.FirstName = strings.TrimSpace(in.FirstName)
	if err := s.validate.Struct(in); err != nil {
		return Registration{}, err
	}
	if in.Role == "" {
		in.Role = store.RoleCustomer
	}

	// Fast path only; the unique constraint on phone decides races.
	if _, err := s.store.FindUserByPhone(ctx, in.Phone); err == nil {
		return Registration{}, fmt.Errorf("register: %w", apperr.ErrDuplicatePhone)
	} else if !errors.Is(err, store.ErrNotFound) {
		return Registration{}, fmt.Errorf("register: check phone: %w", err)
	}

	hash, err := s.hasher.HashPassword(in.Password)
	if err != nil {
		return Registration{}, fmt.Errorf("register: %w", err)
	}

	now := s.now().UTC()
	user := store.User{
		ID:        uuid.NewString(),
		FirstName: in.FirstName,
		LastName:  strings.TrimSpace(in.LastName),
		Phone:     in.Phone,
		Role:      in.Role,
		AvatarURL: in.AvatarURL,
		Status:    store.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	out := Registration{User: user}
	var inviter string

	err = s.store.WithTx(ctx, func(q store.Queries) error {
		if err := q.InsertUser(ctx, user); err != nil {
			if errors.Is(err, store.ErrDuplicatePhone) {
				return fmt.Errorf("register: %w", apperr.ErrDuplicatePhone)
			}
			return fmt.Errorf("register: insert user: %w", err)
		}
		if err := q.InsertCredential(ctx, store.Credential{UserID: user.ID, PasswordHash: hash, UpdatedAt: now}); err != nil {
			return fmt.Errorf("register: insert credential: %w", err)
		}
		if err := q.InsertPin(ctx, store.PinRecord{UserID: user.ID, UpdatedAt: now}); err != nil {
			return fmt.Errorf("register: insert pin record: %w", err)
		}

		code, err := s.uniqueCode(ctx, q)
		if err != nil {
			return err
		}
		if err := q.InsertReferralCode(ctx, store.ReferralCode{UserID: user.ID, Code: code, IsActive: true, UpdatedAt: now}); err != nil {
			return fmt.Errorf("register: insert referral code: %w", err)
		}
		out.ReferralCode = code

		if in.InvitationCode == "" {
			return nil
		}
		claim, err := s.claim(ctx, q, user, referral.Normalize(in.InvitationCode), now)
		if err != nil || claim == nil {
			return err
		}
		out.Claim = claim
		inviter = claim.ReferrerID
		return nil
	})
	if err != nil {
		return Registration{}, err
	}

	s.logger.Info("registration completed", "user_id", user.ID, "role", user.Role, "referred", out.Claim != nil)
	if inviter != "" {
		s.notifyInviter(ctx, inviter, user)
	}
	return out, nil
}

func (s *Service) uniqueCode(ctx context.Context, q store.Queries) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := s.newCode()
		if err != nil {
			return "", fmt.Errorf("register: %w", err)
		}
		_, err = q.FindReferralCode(ctx, code)
		if errors.Is(err, store.ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", fmt.Errorf("register: check referral code: %w", err)
		}
	}
	return "", fmt.Errorf("register: no free referral code after %d attempts", maxCodeAttempts)
}

// claim links the new user to the owner of code. A malformed, unknown or
// inactive code returns (nil, nil) unless strict invitations are enabled.
// Malformed codes never reach the store.
func (s *Service) claim(ctx context.Context, q store.Queries, user store.User, code string, now time.Time) (*store.ReferralClaim, error) {
	var (
		ref store.ReferralCode
		err = store.ErrNotFound
	)
	if referral.Valid(code) {
		ref, err = q.FindReferralCode(ctx, code)
	}
	switch {
	case errors.Is(err, store.ErrNotFound) || (err == nil && !ref.IsActive):
		if s.cfg.StrictInvitation {
			return nil, apperr.Validation("invitation code %q is not valid", code)
		}
		s.logger.Warn("unknown invitation code ignored", "code", code, "user_id", user.ID)
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("register: resolve invitation: %w", err)
	}

	claim := store.ReferralClaim{
		ID:         uuid.NewString(),
		ReferrerID: ref.UserID,
		RefereeID:  user.ID,
		Code:       code,
		Status:     store.ClaimPending,
		ExpiresAt:  now.Add(s.cfg.ClaimWindow),
		CreatedAt:  now,
	}
	if err := q.InsertReferralClaim(ctx, claim); err != nil {
		return nil, fmt.Errorf("register: insert claim: %w", err)
	}
	if err := q.IncrementReferrals(ctx, ref.UserID, now); err != nil {
		return nil, fmt.Errorf("register: increment referrals: %w", err)
	}
	return &claim, nil
}

func (s *Service) notifyInviter(ctx context.Context, inviterID string, referee store.User) {
	if s.notifier == nil {
		return
	}
	inviter, err := s.store.FindUserByID(ctx, inviterID)
	if err != nil {
		s.logger.Warn("referral notification skipped", "inviter_id", inviterID, "error", err)
		return
	}
	msg := notification.Message{
		Kind:        notification.KindReferralClaimed,
		Destination: inviter.Phone,
		Body:        fmt.Sprintf("%s joined with your invitation code", referee.FirstName),
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("referral notification failed", "inviter_id", inviterID, "error", err)
	}
}
