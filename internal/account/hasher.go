package account

import (
	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost puts a verification in the ~100ms range on commodity hardware.
const DefaultBcryptCost = 12

// bcrypt only reads the first 72 bytes of a password.
const maxPasswordBytes = 72

// PasswordHasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	h, err := bcrypt.GenerateFromPassword(clamp(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Verify reports a mismatch (or an unparsable digest) as false.
func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), clamp(pw)) == nil
}

// clamp cuts pw to the bytes bcrypt hashes, so longer passwords still verify.
func clamp(pw string) []byte {
	b := []byte(pw)
	if len(b) > maxPasswordBytes {
		b = b[:maxPasswordBytes]
	}
	return b
}
