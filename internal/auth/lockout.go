package auth

import (
	"math"
	"time"
)

const (
	DefaultMaxAttempts  = 3
	DefaultLockDuration = 15 * time.Minute
)

// LockState is the counter and lock pair persisted after an attempt.
type LockState struct {
	Attempts    int
	LockedUntil *time.Time
}

// LockoutPolicy decides when repeated failures lock a credential.
type LockoutPolicy struct {
	MaxAttempts  int
	LockDuration time.Duration
}

// NewLockoutPolicy falls back to 3 attempts and 15 minutes for zero values.
func NewLockoutPolicy(maxAttempts int, lockDuration time.Duration) LockoutPolicy {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if lockDuration <= 0 {
		lockDuration = DefaultLockDuration
	}
	return LockoutPolicy{MaxAttempts: maxAttempts, LockDuration: lockDuration}
}

// Check reports whether lockedUntil is still in the future and, if so, the
// whole minutes remaining rounded up.
func (p LockoutPolicy) Check(lockedUntil *time.Time, now time.Time) (int, bool) {
	if lockedUntil == nil || !lockedUntil.After(now) {
		return 0, false
	}
	minutes := int(math.Ceil(lockedUntil.Sub(now).Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	return minutes, true
}

// Fail records one more failed attempt and engages the lock once the
// threshold is reached.
func (p LockoutPolicy) Fail(attempts int, now time.Time) LockState {
	next := attempts + 1
	state := LockState{Attempts: next}
	if next >= p.MaxAttempts {
		until := now.Add(p.LockDuration)
		state.LockedUntil = &until
	}
	return state
}

// Succeed clears the counter and any lock.
func (p LockoutPolicy) Succeed() LockState {
	return LockState{}
}
