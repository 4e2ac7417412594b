package document

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Presence describes the outcome of a field lookup.
type Presence int

const (
	// Absent means the key is not set.
	Absent Presence = iota
	// Present means the key is set and holds the requested kind.
	Present
	// Malformed means the key is set but holds a value of another kind.
	Malformed
)

func (p Presence) String() string {
	switch p {
	case Present:
		return "present"
	case Malformed:
		return "malformed"
	default:
		return "absent"
	}
}

// Value is the typed result of a field lookup.
type Value[T any] struct {
	V     T
	State Presence
	Raw   any // the stored value, set when State is Malformed
}

// Ok reports whether the value is present and well-typed.
func (v Value[T]) Ok() bool { return v.State == Present }

// Or returns the value when present, else def.
func (v Value[T]) Or(def T) T {
	if v.State == Present {
		return v.V
	}
	return def
}

// Fields is the parsed key/value content of a document. Values are
// JSON-compatible: string, bool, int64, float64, nil, []any, map[string]any.
type Fields map[string]any

// Has reports whether key is set (even to null).
func (f Fields) Has(key string) bool {
	_, ok := f.lookup(key)
	return ok
}

// Get returns the raw value at a dotted path such as "metadata.owner".
func (f Fields) Get(path string) (any, bool) {
	return f.lookup(path)
}

func (f Fields) lookup(path string) (any, bool) {
	if f == nil {
		return nil, false
	}
	if v, ok := f[path]; ok {
		return v, true
	}
	parts := strings.Split(path, ".")
	var cur any = map[string]any(f)
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String looks up a string field.
func (f Fields) String(key string) Value[string] {
	raw, ok := f.lookup(key)
	if !ok {
		return Value[string]{}
	}
	s, ok := raw.(string)
	if !ok {
		return Value[string]{State: Malformed, Raw: raw}
	}
	return Value[string]{V: s, State: Present}
}

// Int looks up an integer field. Floats with no fractional part count as
// integers; booleans never do.
func (f Fields) Int(key string) Value[int64] {
	raw, ok := f.lookup(key)
	if !ok {
		return Value[int64]{}
	}
	switch n := raw.(type) {
	case int64:
		return Value[int64]{V: n, State: Present}
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return Value[int64]{V: int64(n), State: Present}
		}
	}
	return Value[int64]{State: Malformed, Raw: raw}
}

// Bool looks up a boolean field.
func (f Fields) Bool(key string) Value[bool] {
	raw, ok := f.lookup(key)
	if !ok {
		return Value[bool]{}
	}
	b, ok := raw.(bool)
	if !ok {
		return Value[bool]{State: Malformed, Raw: raw}
	}
	return Value[bool]{V: b, State: Present}
}

// Strings looks up a list of strings. A single string is not promoted.
func (f Fields) Strings(key string) Value[[]string] {
	raw, ok := f.lookup(key)
	if !ok {
		return Value[[]string]{}
	}
	list, ok := raw.([]any)
	if !ok {
		return Value[[]string]{State: Malformed, Raw: raw}
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return Value[[]string]{State: Malformed, Raw: raw}
		}
		out = append(out, s)
	}
	return Value[[]string]{V: out, State: Present}
}

// Map looks up a nested object.
func (f Fields) Map(key string) Value[Fields] {
	raw, ok := f.lookup(key)
	if !ok {
		return Value[Fields]{}
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return Value[Fields]{State: Malformed, Raw: raw}
	}
	return Value[Fields]{V: Fields(m), State: Present}
}

// Keys returns the top-level keys in sorted order.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy so callers can hand the fields to code that may
// mutate them.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	return Fields(cloneValue(map[string]any(f)).(map[string]any))
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[k] = cloneValue(item)
		}
		return m
	case []any:
		a := make([]any, len(val))
		for i, item := range val {
			a[i] = cloneValue(item)
		}
		return a
	default:
		return val
	}
}

// KindOf names the coarse JSON kind of a normalized value.
func KindOf(v any) string {
	switch n := v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int64:
		return "integer"
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return "integer"
		}
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
