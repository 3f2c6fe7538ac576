package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	goSession "github.com/MrEthical07/goSession"
)

// ErrInactiveUser is returned for a correct password on a disabled account.
// It wraps goSession.ErrInvalidCredentials.
var ErrInactiveUser = fmt.Errorf("%w: inactive user", goSession.ErrInvalidCredentials)

// User is one account known to a verifier.
type User struct {
	Subject    string
	Hash       string
	Active     bool
	Attributes map[string]string
}

// MemoryVerifier keeps argon2id-hashed users in memory. Usernames are
// matched case-insensitively.
type MemoryVerifier struct {
	hasher *Argon2
	dummy  string

	mu    sync.RWMutex
	users map[string]User
}

var _ goSession.CredentialVerifier = (*MemoryVerifier)(nil)

// NewMemoryVerifier returns an empty verifier hashing with hasher.
func NewMemoryVerifier(hasher *Argon2) (*MemoryVerifier, error) {
	if hasher == nil {
		return nil, errors.New("credentials: hasher is required")
	}
	dummy, err := hasher.Hash("dummy-password-for-unknown-users")
	if err != nil {
		return nil, err
	}
	return &MemoryVerifier{
		hasher: hasher,
		dummy:  dummy,
		users:  map[string]User{},
	}, nil
}

// AddUser hashes password and registers an active account.
func (v *MemoryVerifier) AddUser(username, password, subject string, attrs map[string]string) error {
	if strings.TrimSpace(username) == "" || subject == "" {
		return errors.New("credentials: username and subject are required")
	}
	hash, err := v.hasher.Hash(password)
	if err != nil {
		return err
	}
	return v.Put(username, User{Subject: subject, Hash: hash, Active: true, Attributes: attrs})
}

// Put registers an account with a precomputed hash.
func (v *MemoryVerifier) Put(username string, u User) error {
	if _, err := parsePHC(u.Hash); err != nil {
		return err
	}
	attrs := make(map[string]string, len(u.Attributes))
	for k, val := range u.Attributes {
		attrs[k] = val
	}
	u.Attributes = attrs

	v.mu.Lock()
	defer v.mu.Unlock()
	v.users[normalizeUsername(username)] = u
	return nil
}

// Verify implements goSession.CredentialVerifier. Unknown usernames still
// pay for one argon2 derivation.
func (v *MemoryVerifier) Verify(ctx context.Context, username, password string) (string, map[string]string, error) {
	v.mu.RLock()
	u, ok := v.users[normalizeUsername(username)]
	v.mu.RUnlock()

	hash := u.Hash
	if !ok {
		hash = v.dummy
	}
	match, err := v.hasher.Verify(password, hash)
	if err != nil {
		return "", nil, err
	}
	if !ok || !match {
		return "", nil, goSession.ErrInvalidCredentials
	}
	if !u.Active {
		return "", nil, ErrInactiveUser
	}

	attrs := make(map[string]string, len(u.Attributes))
	for k, val := range u.Attributes {
		attrs[k] = val
	}
	return u.Subject, attrs, nil
}

func normalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
