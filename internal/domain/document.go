package domain

import (
	"strings"

	"github.com/spf13/cast"
)

// IDField is the primary key of every stored document.
const IDField = "_id"

// Document is a schemaless record as held by the document store.
// Fields are addressed with dot-separated paths; individual keys may
// contain spaces (e.g. "originalData.PaymentIntent ID").
type Document map[string]any

// ID returns the document primary key as a string.
func (d Document) ID() string {
	v, ok := d[IDField]
	if !ok || v == nil {
		return ""
	}
	return cast.ToString(v)
}

// Lookup resolves a dot-separated path through nested maps.
func (d Document) Lookup(path string) (any, bool) {
	var cur any = map[string]any(d)
	for _, key := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the trimmed string form of the value at path, or "" when
// the value is absent or not representable as a string.
func (d Document) String(path string) string {
	v, ok := d.Lookup(path)
	if !ok || !IsPresent(v) {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// Has reports whether path holds a present value.
func (d Document) Has(path string) bool {
	v, ok := d.Lookup(path)
	return ok && IsPresent(v)
}

// Set writes value at path, creating intermediate maps as needed.
func (d Document) Set(path string, value any) {
	keys := strings.Split(path, ".")
	m := map[string]any(d)
	for _, key := range keys[:len(keys)-1] {
		next, ok := asMap(m[key])
		if !ok {
			next = map[string]any{}
			m[key] = next
		}
		m = next
	}
	m[keys[len(keys)-1]] = value
}

// Unset removes the value at path. Missing paths are ignored.
func (d Document) Unset(path string) {
	keys := strings.Split(path, ".")
	m := map[string]any(d)
	for _, key := range keys[:len(keys)-1] {
		next, ok := asMap(m[key])
		if !ok {
			return
		}
		m = next
	}
	delete(m, keys[len(keys)-1])
}

// Clone returns a deep copy of the document's maps and slices.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Document(cloneMap(d))
}

// IsPresent is the single definition of "has a value" shared by the
// normalizer and both matchers: nil, empty and whitespace-only strings
// are absent; everything else is present.
func IsPresent(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(val) != ""
	case *string:
		return val != nil && strings.TrimSpace(*val) != ""
	default:
		return true
	}
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Document:
		return m, true
	default:
		return nil, false
	}
}

func cloneMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = cloneValue(v)
	}
	return dst
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case Document:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneMap(item)
		}
		return out
	default:
		return val
	}
}
