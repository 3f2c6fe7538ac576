package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// KeyBytes is the entropy of a store key.
const KeyBytes = 32

// NewKey returns a fresh unguessable store key (base64url, no padding).
// A store key is a bearer credential for the record it names.
func NewKey() (string, error) {
	var buf [KeyBytes]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate session key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf[:]), nil
}
