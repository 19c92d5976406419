package otp

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

// DefaultLength is the number of digits in a generated code.
const DefaultLength = 6

// Generator produces one-time passcodes.
type Generator interface {
	Generate() (string, error)
}

// Numeric generates zero-padded decimal codes of a fixed length.
type Numeric struct {
	length int
	max    *big.Int
	rand   io.Reader
}

// NewNumeric returns a generator for codes with the given number of digits.
// A length outside 4..10 falls back to DefaultLength.
func NewNumeric(length int) *Numeric {
	if length < 4 || length > 10 {
		length = DefaultLength
	}

	return &Numeric{
		length: length,
		max:    new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil),
		rand:   rand.Reader,
	}
}

// Length returns the number of digits of every generated code.
func (n *Numeric) Length() int {
	return n.length
}

// Generate returns a uniformly distributed code in [0, 10^length) rendered
// with leading zeros.
func (n *Numeric) Generate() (string, error) {
	v, err := rand.Int(n.rand, n.max)
	if err != nil {
		return "", fmt.Errorf("otp: read random: %w", err)
	}

	return fmt.Sprintf("%0*d", n.length, v), nil
}
