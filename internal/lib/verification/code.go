// Package verification generates the short numeric codes emailed during
// registration and password reset.
package verification

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// CodeTTL is how long an emailed code stays valid.
const CodeTTL = 10 * time.Minute

var codeMax = big.NewInt(1000000)

// NewCode returns a random zero-padded 6-digit code.
func NewCode() (string, error) {
	const op = "verification.NewCode"
	n, err := rand.Int(rand.Reader, codeMax)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
