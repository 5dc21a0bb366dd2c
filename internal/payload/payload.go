// Package payload provides a typed view over tracker webhook JSON.
// Field access never panics: a missing or mistyped field is an
// explicit absence the caller must branch on.
package payload

import (
	"encoding/json"
	"fmt"
)

// Payload is a decoded webhook body. The zero value behaves as an
// empty document: every lookup misses.
type Payload struct {
	root map[string]any
}

// Value is the result of a lookup. The ok accessors convert with
// JSON's native types in mind (all JSON numbers decode as float64).
type Value struct {
	raw     any
	present bool
}

// Parse decodes a JSON webhook body. The top level must be an object.
func Parse(b []byte) (Payload, error) {
	var root map[string]any
	if err := json.Unmarshal(b, &root); err != nil {
		return Payload{}, fmt.Errorf("parse webhook payload: %w", err)
	}
	return Payload{root: root}, nil
}

// Field looks up a top-level field.
func (p Payload) Field(name string) Value {
	return p.Path(name)
}

// Path walks nested objects: Path("issue", "user", "login") reads
// issue.user.login. Any missing segment or non-object intermediate
// yields an absent Value.
func (p Payload) Path(names ...string) Value {
	var current any = p.root
	if p.root == nil || len(names) == 0 {
		return Value{}
	}
	for _, name := range names {
		obj, ok := current.(map[string]any)
		if !ok {
			return Value{}
		}
		current, ok = obj[name]
		if !ok {
			return Value{}
		}
	}
	return Value{raw: current, present: true}
}

// AsString returns the value as a string, reporting whether it was
// present and actually a string.
func (v Value) AsString() (string, bool) {
	if !v.present {
		return "", false
	}
	s, ok := v.raw.(string)
	return s, ok
}

// AsInt64 returns the value as an int64. JSON numbers arrive as
// float64; fractional values are not integers and report absence.
func (v Value) AsInt64() (int64, bool) {
	if !v.present {
		return 0, false
	}
	f, ok := v.raw.(float64)
	if !ok || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

// Present reports whether the field existed at all, regardless of type.
func (v Value) Present() bool {
	return v.present
}
