// Package document holds the in-flight state a pipeline run works on.
package document

import (
	"github.com/smartyellow/services/core/schema"
)

// Values is a nested value tree as decoded from JSON. Nested objects are
// map[string]any, arrays are []any.
type Values map[string]any

// Get returns the value at p and whether it is present.
func (v Values) Get(p schema.Path) (any, bool) {
	if len(p) == 0 {
		return nil, false
	}
	var cur any = map[string]any(v)
	for _, seg := range p {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the value at p when it is a string.
func (v Values) String(p schema.Path) string {
	val, _ := v.Get(p)
	s, _ := val.(string)
	return s
}

// Set stores val at p, creating intermediate objects as needed.
// Intermediate values that are not objects are replaced.
func (v Values) Set(p schema.Path, val any) {
	if len(p) == 0 {
		return
	}
	m := map[string]any(v)
	for _, seg := range p[:len(p)-1] {
		next, ok := asMap(m[seg])
		if !ok {
			next = make(map[string]any)
			m[seg] = next
		}
		m = next
	}
	m[p.Last()] = val
}

// Delete removes the value at p. Missing paths are ignored.
func (v Values) Delete(p schema.Path) {
	if len(p) == 0 {
		return
	}
	m := map[string]any(v)
	for _, seg := range p[:len(p)-1] {
		next, ok := asMap(m[seg])
		if !ok {
			return
		}
		m = next
	}
	delete(m, p.Last())
}

// Clone returns a deep copy.
func (v Values) Clone() Values {
	if v == nil {
		return Values{}
	}
	return Values(Copy(map[string]any(v)).(map[string]any))
}

// Copy deep-copies JSON-shaped values.
func Copy(val any) any {
	switch t := val.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[k] = Copy(v)
		}
		return out
	case Values:
		return Copy(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = Copy(v)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = v
		}
		return out
	default:
		return t
	}
}

// Equal compares JSON-shaped values. Numbers compare by value regardless
// of their Go type.
func Equal(a, b any) bool {
	if fa, ok := number(a); ok {
		fb, ok := number(b)
		return ok && fa == fb
	}
	switch ta := a.(type) {
	case map[string]any:
		tb, ok := asMap(b)
		if !ok || len(ta) != len(tb) {
			return false
		}
		for k, v := range ta {
			w, ok := tb[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	case Values:
		return Equal(map[string]any(ta), b)
	case []any:
		tb, ok := b.([]any)
		if !ok || len(ta) != len(tb) {
			return false
		}
		for i := range ta {
			if !Equal(ta[i], tb[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// IsEmpty reports whether a value counts as not provided: nil, "", an
// empty list, or a locale map without any non-empty text.
func IsEmpty(val any) bool {
	switch t := val.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		for _, v := range t {
			if !IsEmpty(v) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func asMap(val any) (map[string]any, bool) {
	switch t := val.(type) {
	case map[string]any:
		return t, true
	case Values:
		return map[string]any(t), true
	default:
		return nil, false
	}
}

func number(val any) (float64, bool) {
	switch n := val.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}
