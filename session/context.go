package session

import (
	"context"
	"encoding/json"
	"sync"
)

type sessionContextKey struct{}

// Session is the per-request view of session attributes. Handlers mutate it;
// the engine persists or clears it when the response is committed.
//
// A Session belongs to exactly one request. Its methods are safe for use by
// goroutines spawned within that request.
type Session struct {
	mu         sync.Mutex
	values     Attributes
	priorKey   string
	startedSet bool
	regenerate bool
}

// New returns an empty session that did not originate from a stored record.
func New() *Session {
	return &Session{values: Attributes{}}
}

// Resume returns a session populated from the record stored under priorKey.
// The attributes are copied.
func Resume(priorKey string, attrs Attributes) *Session {
	values := attrs.Clone()
	return &Session{
		values:     values,
		priorKey:   priorKey,
		startedSet: len(values) > 0,
	}
}

// WithSession attaches s to ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// FromContext returns the session attached by the session middleware.
func FromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(sessionContextKey{}).(*Session)
	return s, ok && s != nil
}

// Get unmarshals the value under key into dst.
func (s *Session) Get(key string, dst any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values.Get(key, dst)
}

// GetString returns the string value under key.
func (s *Session) GetString(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values.GetString(key)
}

// Set stores v (JSON-encoded) under key.
func (s *Session) Set(key string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values.Set(key, v)
}

// SetRaw stores an already-encoded JSON value under key.
func (s *Session) SetRaw(key string, raw json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(json.RawMessage, len(raw))
	copy(cp, raw)
	s.values[key] = cp
}

// Delete removes key.
func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Clear removes every attribute. Committing a cleared session that started
// non-empty expires the client cookie.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = Attributes{}
}

// Has reports whether key is set.
func (s *Session) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.values[key]
	return ok
}

// Keys returns the attribute names in sorted order.
func (s *Session) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values.Keys()
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}

func (s *Session) IsEmpty() bool {
	return s.Len() == 0
}

// Values returns a snapshot copy of the attributes.
func (s *Session) Values() Attributes {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values.Clone()
}

// StartedEmpty reports whether the request arrived without stored attributes.
func (s *Session) StartedEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.startedSet
}

// PriorKey is the store key the session was loaded from, or "".
func (s *Session) PriorKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.priorKey
}

// Regenerate asks the commit phase to delete the prior record once the new
// one is saved. Call it on privilege changes such as login.
func (s *Session) Regenerate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regenerate = true
}

// RegenerateRequested reports whether [Session.Regenerate] was called.
func (s *Session) RegenerateRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regenerate
}
