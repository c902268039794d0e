package referral

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const (
	// Alphabet omits 0, O, 1 and I so codes survive being read aloud.
	Alphabet   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	CodeLength = 8

	// DefaultClaimWindow is how long a claim stays pending before it expires.
	DefaultClaimWindow = 7 * 24 * time.Hour
)

// NewCode returns a random referral code drawn from Alphabet.
func NewCode() (string, error) {
	max := big.NewInt(int64(len(Alphabet)))
	var b strings.Builder
	b.Grow(CodeLength)
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("referral code entropy: %w", err)
		}
		b.WriteByte(Alphabet[n.Int64()])
	}
	return b.String(), nil
}

// Normalize trims and upper-cases a user-entered code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Valid reports whether code has the shape of a generated code.
func Valid(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(Alphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
