package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/accounts/internal/apperr"
	"github.com/congo-pay/accounts/internal/store"
)

// Service validates deposit requests and enforces who may see and review them.
type Service struct {
	ledger Ledger
	logger *slog.Logger
	now    func() time.Time
}

func NewService(l Ledger, logger *slog.Logger) *Service {
	return &Service{ledger: l, logger: logger, now: time.Now}
}

// Deposit records a pending deposit for userID.
func (s *Service) Deposit(ctx context.Context, userID string, amount int64, reference string) (Deposit, error) {
	reference = strings.TrimSpace(reference)
	if amount <= 0 {
		return Deposit{}, apperr.Validation("amount must be positive")
	}
	if reference == "" || len(reference) > 64 {
		return Deposit{}, apperr.Validation("reference must be 1 to 64 characters")
	}
	d, err := s.ledger.Record(ctx, Deposit{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		Reference: reference,
		Status:    StatusPending,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateDeposit) {
			return d, fmt.Errorf("deposit %s: %w: %v", reference, apperr.ErrConflict, err)
		}
		return Deposit{}, fmt.Errorf("deposit: %w", err)
	}
	s.logger.Info("deposit recorded", "deposit_id", d.ID, "user_id", userID, "amount", amount)
	return d, nil
}

// List returns deposits filtered by status. Customers only see their own.
func (s *Service) List(ctx context.Context, requesterID, role, status string) ([]Deposit, error) {
	switch status {
	case "", StatusPending, StatusConfirmed, StatusRejected:
	default:
		return nil, apperr.Validation("status must be one of pending, confirmed, rejected")
	}
	owner := requesterID
	if role == store.RoleAdmin {
		owner = ""
	}
	out, err := s.ledger.List(ctx, status, owner)
	if err != nil {
		return nil, fmt.Errorf("list deposits: %w", err)
	}
	return out, nil
}

// Review confirms or rejects a pending deposit.
func (s *Service) Review(ctx context.Context, reviewerID, id, status string) (Deposit, error) {
	if status != StatusConfirmed && status != StatusRejected {
		return Deposit{}, apperr.Validation("status must be confirmed or rejected")
	}
	d, err := s.ledger.Review(ctx, id, reviewerID, status, s.now().UTC())
	switch {
	case errors.Is(err, ErrDepositNotFound):
		return Deposit{}, fmt.Errorf("review deposit: %w", apperr.ErrNotFound)
	case errors.Is(err, ErrAlreadyReviewed):
		return Deposit{}, apperr.Validation("deposit is already %s", d.Status)
	case err != nil:
		return Deposit{}, fmt.Errorf("review deposit: %w", err)
	}
	s.logger.Info("deposit reviewed", "deposit_id", id, "reviewer_id", reviewerID, "status", status)
	return d, nil
}
