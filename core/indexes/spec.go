// Package indexes derives storage index specifications from schema
// fields and per-template index directives. Index names are a pure
// function of the ordered keys, so re-planning an unchanged schema
// always produces the same names and the backend sees idempotent
// submissions.
package indexes

import (
	"reflect"
	"strings"
)

// Kind is the ordering or mode of one index key.
type Kind int

const (
	Asc Kind = iota
	Desc
	Text
	Hashed
)

// String returns the name fragment for the kind ("1", "-1", "text",
// "hashed"), matching the backend's own index naming convention.
func (k Kind) String() string {
	switch k {
	case Desc:
		return "-1"
	case Text:
		return "text"
	case Hashed:
		return "hashed"
	default:
		return "1"
	}
}

// Key is one (storage field, kind) component of an index.
type Key struct {
	Field string
	Kind  Kind
}

// Spec describes one index to maintain on a collection.
type Spec struct {
	// Name identifies the index. Derived from the keys unless a
	// directive supplied a custom name.
	Name string

	// Keys is the ordered key set. Fields are storage names.
	Keys []Key

	// Unique enforces distinct values across documents.
	Unique bool

	// Sparse skips documents missing the indexed fields. Set for
	// unique indexes on non-required fields so absent values do not
	// collide.
	Sparse bool

	// ExpireAfter is the TTL in seconds. Zero means no expiry.
	ExpireAfter int64

	// Extra holds backend options passed through verbatim.
	Extra map[string]any
}

// SpecName derives the deterministic name for an ordered key set:
// each key contributes "field_kind", joined with "_".
func SpecName(keys []Key) string {
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k.Field+"_"+k.Kind.String())
	}
	return strings.Join(parts, "_")
}

// HasField reports whether any key indexes the given storage field.
func (s Spec) HasField(field string) bool {
	for _, k := range s.Keys {
		if k.Field == field {
			return true
		}
	}
	return false
}

// Equal reports whether two specs are structurally identical.
func (s Spec) Equal(o Spec) bool {
	if s.Name != o.Name || s.Unique != o.Unique || s.Sparse != o.Sparse || s.ExpireAfter != o.ExpireAfter {
		return false
	}
	if len(s.Keys) != len(o.Keys) {
		return false
	}
	for i := range s.Keys {
		if s.Keys[i] != o.Keys[i] {
			return false
		}
	}
	if len(s.Extra) != len(o.Extra) {
		return false
	}
	// Extra values come from YAML and may be sequences or mappings;
	// == would panic on those.
	for k, v := range s.Extra {
		if ov, ok := o.Extra[k]; !ok || !reflect.DeepEqual(ov, v) {
			return false
		}
	}
	return true
}

// EqualSpecs reports whether two spec lists are identical, order
// included. Registration idempotency checks rely on this.
func EqualSpecs(a, b []Spec) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
