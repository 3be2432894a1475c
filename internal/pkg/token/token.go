package token

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

var million = big.NewInt(1_000_000)

// NewCode returns a six-digit one-time code drawn uniformly from 000000-999999.
func NewCode() (string, error) {
	n, err := rand.Int(rand.Reader, million)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
