// Package jwt implements generation and parsing of the HS256 tokens used
// for authenticated sessions.
package jwt

import (
	"time"
)

// Maker describes generation and parsing of session tokens.
type Maker interface {
	// GenerateToken issues a token for the given user uid and email.
	GenerateToken(userUID, email string) (string, error)
	// ParseToken validates a token and returns its claims.
	ParseToken(tokenStr string) (*CustomClaims, error)
}

// MakerImpl implements Maker with a shared secret and a token TTL.
type MakerImpl struct {
	secretKey string
	tokenTTL  time.Duration
}

// NewJWTMaker creates a MakerImpl from the secret key and TTL.
func NewJWTMaker(secretKey string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
		tokenTTL:  ttl,
	}
}
