package store

import "time"

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"

	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusBlocked   = "blocked"
)

// Pin audit action kinds.
const (
	PinActionCreated  = "created"
	PinActionChanged  = "changed"
	PinActionReset    = "reset"
	PinActionLocked   = "locked"
	PinActionUnlocked = "unlocked"
)

// Referral claim statuses.
const (
	ClaimPending = "pending"
	ClaimClaimed = "claimed"
	ClaimExpired = "expired"
)

// User is the identity record. Phone is the login key.
type User struct {
	ID            string
	FirstName     string
	LastName      string
	Phone         string
	PhoneVerified bool
	Role          string
	AvatarURL     string
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Credential holds the password hash and login throttling state of a user.
type Credential struct {
	UserID        string
	PasswordHash  string
	LoginAttempts int
	LastLogin     *time.Time
	LockedUntil   *time.Time
	UpdatedAt     time.Time
}

// PinRecord holds the transaction PIN state. PinHash is nil until PinSet.
type PinRecord struct {
	UserID         string
	PinHash        *string
	PinSet         bool
	PinAttempts    int
	PinLockedUntil *time.Time
	UpdatedAt      time.Time
}

// PinAuditEntry is an append-only record of a PIN state change.
type PinAuditEntry struct {
	ID        string
	UserID    string
	Action    string
	Reason    string
	CreatedAt time.Time
}

// ReferralCode is the invitation code owned by a user with its running totals.
// TotalEarnings is expressed in minor currency units.
type ReferralCode struct {
	UserID         string
	Code           string
	TotalReferrals int
	TotalEarnings  int64
	IsActive       bool
	UpdatedAt      time.Time
}

// ReferralClaim attributes one registration to a referrer's code.
type ReferralClaim struct {
	ID         string
	ReferrerID string
	RefereeID  string
	Code       string
	Status     string
	ExpiresAt  time.Time
	ClaimedAt  *time.Time
	CreatedAt  time.Time
}

// UserOverview is the admin listing projection of a user and its satellite rows.
type UserOverview struct {
	User           User
	LastLogin      *time.Time
	LockedUntil    *time.Time
	PinSet         bool
	ReferralCode   string
	TotalReferrals int
	TotalEarnings  int64
}
