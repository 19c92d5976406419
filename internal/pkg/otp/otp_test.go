package otp

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumeric_Generate(t *testing.T) {
	g := NewNumeric(DefaultLength)
	require.Equal(t, 6, g.Length())

	digits := make(map[rune]int)
	for range 2000 {
		code, err := g.Generate()
		require.NoError(t, err)
		require.Len(t, code, 6)

		for _, r := range code {
			require.True(t, r >= '0' && r <= '9', code)
			digits[r]++
		}
	}

	// 12000 digits across 10 symbols; every symbol must show up.
	assert.Len(t, digits, 10)
}

func TestNumeric_ZeroPadded(t *testing.T) {
	g := NewNumeric(6)
	g.rand = bytes.NewReader(make([]byte, 64))

	code, err := g.Generate()
	require.NoError(t, err)
	assert.Equal(t, "000000", code)
}

func TestNumeric_LengthFallback(t *testing.T) {
	assert.Equal(t, DefaultLength, NewNumeric(0).Length())
	assert.Equal(t, DefaultLength, NewNumeric(42).Length())
	assert.Equal(t, 8, NewNumeric(8).Length())
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestNumeric_RandError(t *testing.T) {
	g := NewNumeric(6)
	g.rand = failingReader{}

	code, err := g.Generate()
	assert.Empty(t, code)
	assert.ErrorContains(t, err, "entropy exhausted")
}
