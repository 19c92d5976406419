package hash

import (
	"crypto/subtle"
	"fmt"
	"strings"
)

// Hash turns a plaintext secret into a storable representation and verifies
// plaintexts against it.
type Hash interface {
	Hash(str string) ([]byte, error)
	Verify(hashed, str string) bool
}

// Plain stores the secret as-is. Verify still compares in constant time.
type Plain struct{}

// NewPlain returns a pass-through hasher.
func NewPlain() *Plain {
	return &Plain{}
}

// Hash returns str unchanged.
func (Plain) Hash(str string) ([]byte, error) {
	return []byte(str), nil
}

// Verify reports whether hashed equals str.
func (Plain) Verify(hashed, str string) bool {
	if hashed == "" || str == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(hashed), []byte(str)) == 1
}

// ErrUnknownAlgorithm is returned by New for an unsupported algorithm name.
type ErrUnknownAlgorithm string

func (e ErrUnknownAlgorithm) Error() string {
	return fmt.Sprintf("hash: unknown algorithm %q", string(e))
}

// New returns the hasher for algorithm: plain, hmac, argon2id or bcrypt.
// An empty algorithm selects plain.
func New(algorithm, pepper string) (Hash, error) {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case "", "plain":
		return NewPlain(), nil
	case "hmac":
		return NewHMACSHA256(pepper), nil
	case "argon2id":
		return NewArgon2id(pepper), nil
	case "bcrypt":
		return NewBcrypt(0, pepper), nil
	default:
		return nil, ErrUnknownAlgorithm(algorithm)
	}
}
