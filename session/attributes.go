package session

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Attributes is the serializable key/value payload of a session. Values are
// raw JSON so that records round-trip through any store without loss.
type Attributes map[string]json.RawMessage

// Clone returns a deep copy. The result is never nil.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		cp := make(json.RawMessage, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// Set marshals v and stores it under key.
func (a Attributes) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode attribute %q: %w", key, err)
	}
	a[key] = raw
	return nil
}

// Get unmarshals the value under key into dst. It reports false when the key
// is absent.
func (a Attributes) Get(key string, dst any) (bool, error) {
	raw, ok := a[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("decode attribute %q: %w", key, err)
	}
	return true, nil
}

// GetString returns the value under key when it is a JSON string.
func (a Attributes) GetString(key string) (string, bool) {
	raw, ok := a[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Keys returns the attribute names in sorted order.
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports whether both maps hold the same keys with byte-identical values.
func (a Attributes) Equal(b Attributes) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		w, ok := b[k]
		if !ok || string(v) != string(w) {
			return false
		}
	}
	return true
}
