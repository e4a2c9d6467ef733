package domain

import (
	"math"

	"github.com/spf13/cast"
)

// Filter selects documents. Every Eq condition must hold and, when Or is
// non-empty, at least one of the Or branches must hold too.
type Filter struct {
	Eq map[string]any
	Or []Filter
}

// Eq builds a single-field equality filter.
func Eq(path string, value any) Filter {
	return Filter{Eq: map[string]any{path: value}}
}

// ByID selects a document by primary key.
func ByID(id string) Filter {
	return Eq(IDField, id)
}

// Or composes filters with boolean OR.
func Or(filters ...Filter) Filter {
	return Filter{Or: filters}
}

// AnyOf builds an OR of equality conditions of value against every path.
func AnyOf(paths []string, value any) Filter {
	f := Filter{Or: make([]Filter, 0, len(paths))}
	for _, p := range paths {
		f.Or = append(f.Or, Eq(p, value))
	}
	return f
}

// IsEmpty reports whether the filter selects every document.
func (f Filter) IsEmpty() bool {
	return len(f.Eq) == 0 && len(f.Or) == 0
}

// Matches evaluates the filter against doc.
func (f Filter) Matches(doc Document) bool {
	for path, want := range f.Eq {
		got, ok := doc.Lookup(path)
		if !ok || !ValuesEqual(got, want) {
			return false
		}
	}
	if len(f.Or) == 0 {
		return true
	}
	for _, branch := range f.Or {
		if branch.Matches(doc) {
			return true
		}
	}
	return false
}

// ValuesEqual compares two loosely typed values the way the store does:
// numbers by value, everything else by exact string form.
func ValuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if isNumber(a) && isNumber(b) {
		fa, errA := cast.ToFloat64E(a)
		fb, errB := cast.ToFloat64E(b)
		return errA == nil && errB == nil && math.Abs(fa-fb) < 1e-9
	}
	sa, errA := cast.ToStringE(a)
	sb, errB := cast.ToStringE(b)
	if errA != nil || errB != nil {
		return false
	}
	return sa == sb
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}

// Update describes a field-level modification.
type Update struct {
	Set   map[string]any
	Unset []string
}

// IsEmpty reports whether the update changes nothing.
func (u Update) IsEmpty() bool {
	return len(u.Set) == 0 && len(u.Unset) == 0
}

// Merge returns a new update holding the fields of both; other wins on
// conflicting Set keys.
func (u Update) Merge(other Update) Update {
	out := Update{Set: make(map[string]any, len(u.Set)+len(other.Set))}
	for k, v := range u.Set {
		out.Set[k] = v
	}
	for k, v := range other.Set {
		out.Set[k] = v
	}
	out.Unset = append(append(out.Unset, u.Unset...), other.Unset...)
	return out
}

// Clone returns a deep copy, so applying it never shares Set values with
// the caller.
func (u Update) Clone() Update {
	out := Update{Unset: append([]string(nil), u.Unset...)}
	if u.Set != nil {
		out.Set = make(map[string]any, len(u.Set))
		for k, v := range u.Set {
			out.Set[k] = cloneValue(v)
		}
	}
	return out
}

// Apply mutates doc in place. Unset runs before Set.
func (u Update) Apply(doc Document) {
	for _, path := range u.Unset {
		doc.Unset(path)
	}
	for path, v := range u.Set {
		doc.Set(path, v)
	}
}
