package hashing

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/accounts/internal/apperr"
)

const (
	// DefaultPasswordCost is the bcrypt work factor applied to passwords.
	DefaultPasswordCost = 12
	// DefaultPinCost is lower because PINs are short and rate limited separately.
	DefaultPinCost = 10
)

// Config carries the work factors used for new hashes.
type Config struct {
	PasswordCost int
	PinCost      int
}

// Hasher hashes and verifies passwords and PINs with bcrypt. It holds no
// mutable state and is safe for concurrent use.
type Hasher struct {
	passwordCost int
	pinCost      int
}

// New validates the configured work factors and builds a Hasher. Zero values
// fall back to the defaults.
func New(cfg Config) (*Hasher, error) {
	if cfg.PasswordCost == 0 {
		cfg.PasswordCost = DefaultPasswordCost
	}
	if cfg.PinCost == 0 {
		cfg.PinCost = DefaultPinCost
	}
	for _, cost := range []int{cfg.PasswordCost, cfg.PinCost} {
		if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
			return nil, fmt.Errorf("bcrypt cost %d outside [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
		}
	}
	return &Hasher{passwordCost: cfg.PasswordCost, pinCost: cfg.PinCost}, nil
}

// PasswordCost returns the target work factor for passwords.
func (h *Hasher) PasswordCost() int { return h.passwordCost }

// PinCost returns the target work factor for PINs.
func (h *Hasher) PinCost() int { return h.pinCost }

// Hash returns the bcrypt encoding of secret at the given cost.
func (h *Hasher) Hash(secret string, cost int) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrHashing, err)
	}
	return string(out), nil
}

// HashPassword hashes a password at the password cost.
func (h *Hasher) HashPassword(password string) (string, error) {
	return h.Hash(password, h.passwordCost)
}

// HashPIN hashes a transaction PIN at the PIN cost.
func (h *Hasher) HashPIN(pin string) (string, error) {
	return h.Hash(pin, h.pinCost)
}

// Verify reports whether secret matches hash. A mismatch is (false, nil); a
// hash the primitive cannot parse is an apperr.ErrHashing.
func (h *Hasher) Verify(secret, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", apperr.ErrHashing, err)
	}
}

// NeedsRehash reports whether hash was produced with a cost below target.
// Hashes that cannot be parsed report false.
func (h *Hasher) NeedsRehash(hash string, target int) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return false
	}
	return cost < target
}
