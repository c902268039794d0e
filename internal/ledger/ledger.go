package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDuplicateDeposit indicates the reference was already recorded. The
	// existing deposit is returned alongside it so callers can treat the
	// request as idempotent.
	ErrDuplicateDeposit = errors.New("duplicate deposit reference")

	// ErrDepositNotFound is returned when no deposit has the given id.
	ErrDepositNotFound = errors.New("deposit not found")

	// ErrAlreadyReviewed is returned when reviewing a deposit that left pending.
	ErrAlreadyReviewed = errors.New("deposit already reviewed")
)

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusRejected  = "rejected"
)

// Deposit is a user-declared incoming transfer awaiting admin review.
// Amount is in minor currency units.
type Deposit struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Amount     int64      `json:"amount"`
	Reference  string     `json:"reference"`
	Status     string     `json:"status"`
	ReviewedBy string     `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Ledger defines the contract implemented by deposit backends.
type Ledger interface {
	Record(ctx context.Context, d Deposit) (Deposit, error)
	Get(ctx context.Context, id string) (Deposit, error)
	// List returns deposits newest first. An empty status lists all.
	List(ctx context.Context, status, userID string) ([]Deposit, error)
	// Review moves a pending deposit to confirmed or rejected.
	Review(ctx context.Context, id, reviewerID, status string, at time.Time) (Deposit, error)
}
