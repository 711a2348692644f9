package magiclink

import (
	"bytes"
	"context"
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNumericCodeGenerator(t *testing.T) {
	g := NumericCodeGenerator{}
	for i := 0; i < 1000; i++ {
		s, err := g.Generate(context.Background())
		assert.NoError(t, err)
		assert.Len(t, s, 6)
		n, err := strconv.Atoi(s)
		assert.NoError(t, err)
		assert.GreaterOrEqual(t, n, 100000)
		assert.LessOrEqual(t, n, 999999)
	}
}

func TestNumericCodeGeneratorBounds(t *testing.T) {
	// An all-zero source yields the smallest code.
	g := NumericCodeGenerator{Rand: bytes.NewReader(make([]byte, 64))}
	s, err := g.Generate(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "100000", s)

	// An exhausted source is an error.
	g = NumericCodeGenerator{Rand: bytes.NewReader(nil)}
	_, err = g.Generate(context.Background())
	assert.Error(t, err)
}

func TestHexTokenGenerator(t *testing.T) {
	g := HexTokenGenerator{Bytes: 24}
	re := regexp.MustCompile(`^[0-9a-f]{48}$`)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		s, err := g.Generate(context.Background())
		assert.NoError(t, err)
		assert.Regexp(t, re, s)
		assert.False(t, seen[s])
		seen[s] = true
	}

	_, err := HexTokenGenerator{}.Generate(context.Background())
	assert.Error(t, err)
}
