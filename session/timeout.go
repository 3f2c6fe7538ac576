package session

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimeoutStore bounds every call on the wrapped [Store] with a deadline.
// Calls are never retried.
type TimeoutStore struct {
	next    Store
	timeout time.Duration
}

var _ Store = (*TimeoutStore)(nil)

// WithTimeout wraps next so that each call runs under context.WithTimeout(d).
// A non-positive d returns next unchanged.
func WithTimeout(next Store, d time.Duration) Store {
	if d <= 0 {
		return next
	}
	return &TimeoutStore{next: next, timeout: d}
}

func (s *TimeoutStore) Load(ctx context.Context, key string) (Attributes, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	attrs, ok, err := s.next.Load(ctx, key)
	return attrs, ok, s.mapDeadline(ctx, err)
}

func (s *TimeoutStore) Save(ctx context.Context, key string, attrs Attributes, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.mapDeadline(ctx, s.next.Save(ctx, key, attrs, ttl))
}

func (s *TimeoutStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.mapDeadline(ctx, s.next.Delete(ctx, key))
}

// mapDeadline reports any failure that coincides with an expired deadline as
// ErrStoreTimeout, whatever the driver returned.
func (s *TimeoutStore) mapDeadline(ctx context.Context, err error) error {
	if err == nil || errors.Is(err, ErrStoreTimeout) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: exceeded %s: %v", ErrStoreTimeout, s.timeout, err)
	}
	return err
}
