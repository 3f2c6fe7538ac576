package token

import (
	"errors"
	"time"
)

var (
	// ErrMalformed is returned when a token cannot be parsed or its claims are unusable.
	ErrMalformed = errors.New("token malformed")
	// ErrBadSignature is returned when the signature does not match the configured key and algorithm.
	ErrBadSignature = errors.New("token signature mismatch")
	// ErrExpired is returned when the signature is valid but the expiry has passed.
	ErrExpired = errors.New("token expired")
)

// Claims is the signed payload of a session token.
type Claims struct {
	StoreKey  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec signs and verifies session tokens. Implementations are pure functions of
// their input and an immutable signing configuration, and are safe for
// concurrent use.
type Codec interface {
	Sign(claims Claims) (string, error)
	Verify(token string) (Claims, error)
}

// Kind labels a verification error for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrBadSignature):
		return "bad_signature"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	default:
		return "unknown"
	}
}
