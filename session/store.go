package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

var (
	// ErrStoreUnavailable is returned when the backing store cannot be reached.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrStoreTimeout is returned when a store call exceeds its deadline.
	ErrStoreTimeout = errors.New("session store timeout")
	// ErrKeyExists is returned by Save when the key is already present.
	ErrKeyExists = errors.New("session key already exists")
	// ErrRecordCorrupt is returned when a stored record cannot be decoded.
	ErrRecordCorrupt = errors.New("session record corrupt")
)

// Store persists session attributes under opaque keys.
//
// Implementations must be safe for concurrent use. Load returns (nil, false,
// nil) for missing or expired keys. Save must not overwrite an existing key
// and must return [ErrKeyExists] instead. Delete is idempotent.
type Store interface {
	Load(ctx context.Context, key string) (Attributes, bool, error)
	Save(ctx context.Context, key string, attrs Attributes, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// IsStoreError reports whether err is an availability failure (unavailable
// or timeout) as opposed to a logical outcome such as [ErrKeyExists].
func IsStoreError(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrStoreTimeout)
}

// newRecord builds the envelope written by every adapter.
func newRecord(key string, attrs Attributes, now time.Time, ttl time.Duration) *Record {
	return &Record{
		Key:        key,
		Attributes: attrs,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
}

// backendError classifies a driver error as a timeout or an outage.
func backendError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || isNetTimeout(err) {
		return fmt.Errorf("%w: %v", ErrStoreTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func isNetTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
