package magiclink

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"math/big"
	"strconv"
)

const (
	codeMin = 100000
	codeMax = 999999
)

// TokenGenerator defines an interface for generating cryptographically
// secure codes and tokens.
type TokenGenerator interface {
	// Generate should return a token and nil error on success, or an empty
	// string and error on failure.
	Generate(ctx context.Context) (string, error)
}

// NumericCodeGenerator generates the six digit codes users type into the
// app, drawn uniformly from [100000, 999999].
type NumericCodeGenerator struct {
	// Rand is the entropy source; crypto/rand.Reader when nil.
	Rand io.Reader
}

func (g NumericCodeGenerator) Generate(ctx context.Context) (string, error) {
	r := g.Rand
	if r == nil {
		r = rand.Reader
	}
	n, err := rand.Int(r, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+codeMin, 10), nil
}

// HexTokenGenerator generates opaque link tokens from Bytes random bytes,
// hex-encoded (so the token is twice as many characters).
type HexTokenGenerator struct {
	Bytes int
	Rand  io.Reader
}

func (g HexTokenGenerator) Generate(ctx context.Context) (string, error) {
	if g.Bytes <= 0 {
		return "", errors.New("hex token length must be positive")
	}
	r := g.Rand
	if r == nil {
		r = rand.Reader
	}
	b := make([]byte, g.Bytes)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
