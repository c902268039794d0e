package pin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/accounts/internal/apperr"
	"github.com/congo-pay/accounts/internal/auth"
	"github.com/congo-pay/accounts/internal/notification"
	"github.com/congo-pay/accounts/internal/store"
	"github.com/congo-pay/accounts/internal/validation"
)

const (
	reasonInitial       = "Initial PIN set"
	reasonDefaultChange = "User changed the PIN"
	reasonLocked        = "Too many failed PIN attempts"
	reasonUnlocked      = "Lock expired"
	maxReasonLength     = 100
)

// Hasher is the subset of hashing.Hasher used for PINs.
type Hasher interface {
	HashPIN(pin string) (string, error)
	Verify(secret, hash string) (bool, error)
}

// Service implements the transaction PIN state machine: UNSET -> SET on Set,
// SET -> SET on Change. Every hash change appends an audit entry.
//
// Change does not re-verify the previous PIN. Callers reach it with a valid
// access token only; a stolen token is therefore enough to replace the PIN.
type Service struct {
	store    store.Store
	hasher   Hasher
	policy   auth.LockoutPolicy
	notifier notification.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(st store.Store, hasher Hasher, policy auth.LockoutPolicy, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{store: st, hasher: hasher, policy: policy, notifier: notifier, logger: logger, now: time.Now}
}

// Set stores the first PIN for a user.
func (s *Service) Set(ctx context.Context, userID, pin string) error {
	if !validation.PIN(pin) {
		return apperr.Validation("PIN must be 4 to 6 digits")
	}
	err := s.store.WithTx(ctx, func(q store.Queries) error {
		_, rec, err := s.load(ctx, q, userID)
		if err != nil {
			return err
		}
		if rec.PinSet {
			return apperr.ErrAlreadySet
		}
		return s.write(ctx, q, rec, pin, store.PinActionCreated, reasonInitial)
	})
	if err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	s.logger.Info("pin set", "user_id", userID)
	return nil
}

// Change overwrites an existing PIN. An empty reason is recorded as the
// default change reason.
func (s *Service) Change(ctx context.Context, userID, newPin, reason string) error {
	if !validation.PIN(newPin) {
		return apperr.Validation("PIN must be 4 to 6 digits")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = reasonDefaultChange
	}
	if len(reason) > maxReasonLength {
		return apperr.Validation("reason must be at most %d characters", maxReasonLength)
	}
	err := s.store.WithTx(ctx, func(q store.Queries) error {
		_, rec, err := s.load(ctx, q, userID)
		if err != nil {
			return err
		}
		if !rec.PinSet {
			return apperr.ErrNotSet
		}
		return s.write(ctx, q, rec, newPin, store.PinActionChanged, reason)
	})
	if err != nil {
		return fmt.Errorf("change pin: %w", err)
	}
	s.logger.Info("pin changed", "user_id", userID)
	return nil
}

// Verify checks a PIN against the stored hash. Failures count towards the
// PIN lock, which is independent of the login lock.
func (s *Service) Verify(ctx context.Context, userID, pin string) error {
	if !validation.PIN(pin) {
		return apperr.Validation("PIN must be 4 to 6 digits")
	}
	var (
		outcome   error
		lockedNow bool
		phone     string
	)
	err := s.store.WithTx(ctx, func(q store.Queries) error {
		user, rec, err := s.load(ctx, q, userID)
		if err != nil {
			return err
		}
		phone = user.Phone
		if !rec.PinSet || rec.PinHash == nil {
			return apperr.ErrNotSet
		}

		now := s.now().UTC()
		if minutes, locked := s.policy.Check(rec.PinLockedUntil, now); locked {
			outcome = &apperr.LockedError{Subject: "PIN", Minutes: minutes}
			return nil
		}

		ok, err := s.hasher.Verify(pin, *rec.PinHash)
		if err != nil {
			return err
		}
		wasLocked := rec.PinLockedUntil != nil
		if !ok {
			state := s.policy.Fail(rec.PinAttempts, now)
			rec.PinAttempts = state.Attempts
			rec.PinLockedUntil = state.LockedUntil
			rec.UpdatedAt = now
			if err := q.UpdatePin(ctx, rec); err != nil {
				return err
			}
			if state.LockedUntil != nil {
				lockedNow = true
				if err := s.audit(ctx, q, userID, store.PinActionLocked, reasonLocked, now); err != nil {
					return err
				}
			}
			outcome = apperr.ErrInvalidCredentials
			return nil
		}

		state := s.policy.Succeed()
		rec.PinAttempts = state.Attempts
		rec.PinLockedUntil = state.LockedUntil
		rec.UpdatedAt = now
		if err := q.UpdatePin(ctx, rec); err != nil {
			return err
		}
		if wasLocked {
			return s.audit(ctx, q, userID, store.PinActionUnlocked, reasonUnlocked, now)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("verify pin: %w", err)
	}
	if lockedNow {
		s.logger.Warn("pin locked", "user_id", userID)
		s.notifyLocked(ctx, phone)
	}
	if outcome != nil {
		return fmt.Errorf("verify pin: %w", outcome)
	}
	return nil
}

// History lists the audit trail of a user's PIN in insertion order.
func (s *Service) History(ctx context.Context, userID string) ([]store.PinAuditEntry, error) {
	if _, err := s.store.FindUserByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("pin history: %w", apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("pin history: %w", err)
	}
	entries, err := s.store.ListPinAudit(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("pin history: %w", err)
	}
	return entries, nil
}

func (s *Service) load(ctx context.Context, q store.Queries, userID string) (store.User, store.PinRecord, error) {
	user, err := q.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.User{}, store.PinRecord{}, apperr.ErrNotFound
		}
		return store.User{}, store.PinRecord{}, err
	}
	rec, err := q.LockPin(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Error("user has no pin record", "user_id", userID)
			return store.User{}, store.PinRecord{}, fmt.Errorf("pin record for %s: %w", userID, apperr.ErrIntegrity)
		}
		return store.User{}, store.PinRecord{}, err
	}
	return user, rec, nil
}

func (s *Service) write(ctx context.Context, q store.Queries, rec store.PinRecord, pin, action, reason string) error {
	hash, err := s.hasher.HashPIN(pin)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	rec.PinHash = &hash
	rec.PinSet = true
	rec.PinAttempts = 0
	rec.PinLockedUntil = nil
	rec.UpdatedAt = now
	if err := q.UpdatePin(ctx, rec); err != nil {
		return err
	}
	return s.audit(ctx, q, rec.UserID, action, reason, now)
}

func (s *Service) audit(ctx context.Context, q store.Queries, userID, action, reason string, at time.Time) error {
	return q.AppendPinAudit(ctx, store.PinAuditEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Action:    action,
		Reason:    reason,
		CreatedAt: at,
	})
}

func (s *Service) notifyLocked(ctx context.Context, phone string) {
	if s.notifier == nil || phone == "" {
		return
	}
	msg := notification.Message{
		Kind:        notification.KindPinLocked,
		Destination: phone,
		Body:        "Your transaction PIN was locked after repeated failed attempts",
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("pin lock notification failed", "error", err)
	}
}
