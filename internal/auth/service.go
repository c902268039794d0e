package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/congo-pay/accounts/internal/apperr"
	"github.com/congo-pay/accounts/internal/store"
)

// Hasher is the subset of hashing.Hasher the login workflow needs.
type Hasher interface {
	HashPassword(password string) (string, error)
	Verify(secret, hash string) (bool, error)
	NeedsRehash(hash string, target int) bool
	PasswordCost() int
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	UserID string    `json:"user_id"`
	Role   string    `json:"role"`
	Tokens TokenPair `json:"tokens"`
}

// Service runs the login, refresh and password change workflows.
type Service struct {
	store  store.Store
	hasher Hasher
	tokens *TokenService
	policy LockoutPolicy
	logger *slog.Logger
	now    func() time.Time
}

func NewService(st store.Store, hasher Hasher, tokens *TokenService, policy LockoutPolicy, logger *slog.Logger) *Service {
	return &Service{store: st, hasher: hasher, tokens: tokens, policy: policy, logger: logger, now: time.Now}
}

// Login authenticates phone and password and issues a token pair.
//
// The credential row is read and written in one transaction. A locked
// credential is rejected before the password is hashed, and a failed
// verification persists the incremented counter before returning.
func (s *Service) Login(ctx context.Context, phone, password string) (LoginResult, error) {
	if phone == "" || password == "" {
		return LoginResult{}, apperr.Validation("phone and password are required")
	}

	user, err := s.store.FindUserByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, fmt.Errorf("login: %w", apperr.ErrNotFound)
		}
		return LoginResult{}, fmt.Errorf("login: find user: %w", err)
	}
	if user.Status != store.StatusActive {
		s.logger.Info("login rejected", "user_id", user.ID, "status", user.Status)
		return LoginResult{}, fmt.Errorf("login: %w", apperr.ErrAccountStatus)
	}

	var outcome error
	err = s.store.WithTx(ctx, func(q store.Queries) error {
		cred, err := q.LockCredential(ctx, user.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				s.logger.Error("user has no credential row", "user_id", user.ID)
				return fmt.Errorf("login: credential for %s: %w", user.ID, apperr.ErrIntegrity)
			}
			return fmt.Errorf("login: load credential: %w", err)
		}

		now := s.now().UTC()
		if minutes, locked := s.policy.Check(cred.LockedUntil, now); locked {
			s.logger.Info("login locked", "user_id", user.ID, "minutes_remaining", minutes)
			outcome = &apperr.LockedError{Subject: "Account", Minutes: minutes}
			return nil
		}

		ok, err := s.hasher.Verify(password, cred.PasswordHash)
		if err != nil {
			return fmt.Errorf("login: verify password: %w", err)
		}
		if !ok {
			state := s.policy.Fail(cred.LoginAttempts, now)
			cred.LoginAttempts = state.Attempts
			cred.LockedUntil = state.LockedUntil
			cred.UpdatedAt = now
			if err := q.UpdateCredential(ctx, cred); err != nil {
				return fmt.Errorf("login: record failed attempt: %w", err)
			}
			s.logger.Warn("login failed", "user_id", user.ID, "attempts", state.Attempts, "locked", state.LockedUntil != nil)
			outcome = apperr.ErrInvalidCredentials
			return nil
		}

		state := s.policy.Succeed()
		cred.LoginAttempts = state.Attempts
		cred.LockedUntil = state.LockedUntil
		cred.LastLogin = &now
		cred.UpdatedAt = now
		if s.hasher.NeedsRehash(cred.PasswordHash, s.hasher.PasswordCost()) {
			if rehashed, err := s.hasher.HashPassword(password); err != nil {
				s.logger.Warn("password rehash failed", "user_id", user.ID, "error", err)
			} else {
				cred.PasswordHash = rehashed
			}
		}
		if err := q.UpdateCredential(ctx, cred); err != nil {
			return fmt.Errorf("login: record success: %w", err)
		}
		return nil
	})
	if err != nil {
		return LoginResult{}, err
	}
	if outcome != nil {
		return LoginResult{}, fmt.Errorf("login: %w", outcome)
	}

	pair, err := s.tokens.IssuePair(user.Phone, user.Role, user.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("login: %w: %v", apperr.ErrToken, err)
	}
	return LoginResult{UserID: user.ID, Role: user.Role, Tokens: pair}, nil
}

// Refresh exchanges a refresh token for a new access token. The user is
// reloaded so the new token carries the current phone and role.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	userID, ok := s.tokens.VerifyRefresh(refreshToken)
	if !ok {
		return "", 0, fmt.Errorf("refresh: %w", apperr.ErrUnauthorized)
	}
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", 0, fmt.Errorf("refresh: %w", apperr.ErrUnauthorized)
		}
		return "", 0, fmt.Errorf("refresh: find user: %w", err)
	}
	if user.Status != store.StatusActive {
		return "", 0, fmt.Errorf("refresh: %w", apperr.ErrAccountStatus)
	}
	access, ok := s.tokens.Refresh(refreshToken, user.Phone, user.Role)
	if !ok {
		return "", 0, fmt.Errorf("refresh: %w", apperr.ErrUnauthorized)
	}
	expiresIn := int64(s.tokens.AccessTTL().Seconds())
	if exp, ok := s.tokens.Expiration(access); ok {
		expiresIn = int64(exp.Sub(s.now()).Seconds())
	}
	return access, expiresIn, nil
}

// ChangePassword replaces the password after checking the current one. A
// wrong current password counts towards the login lock, and a locked account
// cannot change its password until the lock expires.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if len(next) < 6 {
		return apperr.Validation("new password must be at least 6 characters")
	}
	if current == next {
		return apperr.Validation("new password must differ from the current one")
	}
	var outcome error
	err := s.store.WithTx(ctx, func(q store.Queries) error {
		cred, err := q.LockCredential(ctx, userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("change password: %w", apperr.ErrNotFound)
			}
			return fmt.Errorf("change password: load credential: %w", err)
		}

		now := s.now().UTC()
		if minutes, locked := s.policy.Check(cred.LockedUntil, now); locked {
			outcome = &apperr.LockedError{Subject: "Account", Minutes: minutes}
			return nil
		}

		ok, err := s.hasher.Verify(current, cred.PasswordHash)
		if err != nil {
			return fmt.Errorf("change password: verify: %w", err)
		}
		if !ok {
			state := s.policy.Fail(cred.LoginAttempts, now)
			cred.LoginAttempts = state.Attempts
			cred.LockedUntil = state.LockedUntil
			cred.UpdatedAt = now
			if err := q.UpdateCredential(ctx, cred); err != nil {
				return fmt.Errorf("change password: record failed attempt: %w", err)
			}
			s.logger.Warn("password change rejected", "user_id", userID, "attempts", state.Attempts, "locked", state.LockedUntil != nil)
			outcome = apperr.ErrInvalidCredentials
			return nil
		}

		hash, err := s.hasher.HashPassword(next)
		if err != nil {
			return fmt.Errorf("change password: %w", err)
		}
		state := s.policy.Succeed()
		cred.PasswordHash = hash
		cred.LoginAttempts = state.Attempts
		cred.LockedUntil = state.LockedUntil
		cred.UpdatedAt = now
		if err := q.UpdateCredential(ctx, cred); err != nil {
			return fmt.Errorf("change password: update: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if outcome != nil {
		return fmt.Errorf("change password: %w", outcome)
	}
	s.logger.Info("password changed", "user_id", userID)
	return nil
}
