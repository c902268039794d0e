package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by point lookups that match no row.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicatePhone is the unique-constraint violation on users.phone.
	ErrDuplicatePhone = errors.New("duplicate phone")

	// ErrDuplicateReferralCode is the unique-constraint violation on referral codes.
	ErrDuplicateReferralCode = errors.New("duplicate referral code")

	// ErrDuplicate covers any other unique-constraint violation.
	ErrDuplicate = errors.New("duplicate record")
)

// Queries is the per-entity data access surface. It is implemented both by a
// Store and by the transaction handle passed to Store.WithTx.
type Queries interface {
	FindUserByID(ctx context.Context, id string) (User, error)
	FindUserByPhone(ctx context.Context, phone string) (User, error)
	ListUserOverviews(ctx context.Context) ([]UserOverview, error)
	InsertUser(ctx context.Context, user User) error
	UpdateUserStatus(ctx context.Context, id, status string, at time.Time) error

	FindCredential(ctx context.Context, userID string) (Credential, error)
	// LockCredential reads the credential and holds a row lock until the
	// surrounding transaction ends, where the backend supports it.
	LockCredential(ctx context.Context, userID string) (Credential, error)
	InsertCredential(ctx context.Context, cred Credential) error
	UpdateCredential(ctx context.Context, cred Credential) error

	FindPin(ctx context.Context, userID string) (PinRecord, error)
	LockPin(ctx context.Context, userID string) (PinRecord, error)
	InsertPin(ctx context.Context, pin PinRecord) error
	UpdatePin(ctx context.Context, pin PinRecord) error
	AppendPinAudit(ctx context.Context, entry PinAuditEntry) error
	ListPinAudit(ctx context.Context, userID string) ([]PinAuditEntry, error)

	FindReferralCodeByUser(ctx context.Context, userID string) (ReferralCode, error)
	FindReferralCode(ctx context.Context, code string) (ReferralCode, error)
	InsertReferralCode(ctx context.Context, code ReferralCode) error
	IncrementReferrals(ctx context.Context, userID string, at time.Time) error
	InsertReferralClaim(ctx context.Context, claim ReferralClaim) error
	ListClaimsByReferrer(ctx context.Context, referrerID string) ([]ReferralClaim, error)
	ListClaimsByReferee(ctx context.Context, refereeID string) ([]ReferralClaim, error)
}

// Store is a Queries implementation with an explicit transaction boundary.
type Store interface {
	Queries
	// WithTx runs fn in one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(q Queries) error) error
	Ping(ctx context.Context) error
}
