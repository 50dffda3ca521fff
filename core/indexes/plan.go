package indexes

import "fmt"

// Field is the planner's view of one schema field.
type Field struct {
	// Attribute is the field's storage name.
	Attribute string

	// Unique marks the field for an implicit unique index.
	Unique bool

	// Required controls sparseness of the implicit unique index:
	// optional unique fields get sparse indexes so absent values do
	// not collide.
	Required bool

	// PrimaryKey excludes the field from implicit indexes; the
	// backend's primary-key slot enforces its uniqueness natively.
	PrimaryKey bool
}

// Plan derives the index specs for one schema.
//
// Order is deterministic: explicit directives first (declaration
// order), then the discriminator's own index, then implicit unique
// indexes (schema field order). Duplicate names keep the first spec.
//
// discriminator is the storage name of the discriminator field when
// the schema belongs to a non-abstract subclass sharing its family's
// collection, empty otherwise. Every spec not already covering the
// discriminator gets it appended as a trailing ascending key, scoping
// the index per subtype inside the shared collection.
func Plan(fields []Field, directives []Directive, discriminator string) ([]Spec, error) {
	var specs []Spec

	for _, d := range directives {
		if len(d.Keys) == 0 {
			return nil, fmt.Errorf("index directive: key list is empty")
		}
		keys := compound(d.Keys, discriminator)
		name := d.Name
		if name == "" {
			name = SpecName(keys)
		}
		specs = append(specs, Spec{
			Name:        name,
			Keys:        keys,
			Unique:      d.Unique,
			Sparse:      d.Sparse,
			ExpireAfter: d.ExpireAfter,
			Extra:       d.Extra,
		})
	}

	if discriminator != "" {
		keys := []Key{{Field: discriminator, Kind: Asc}}
		specs = append(specs, Spec{Name: SpecName(keys), Keys: keys})
	}

	for _, f := range fields {
		if !f.Unique || f.PrimaryKey {
			continue
		}
		keys := compound([]Key{{Field: f.Attribute, Kind: Asc}}, discriminator)
		specs = append(specs, Spec{
			Name:   SpecName(keys),
			Keys:   keys,
			Unique: true,
			Sparse: !f.Required,
		})
	}

	return dedupe(specs), nil
}

// compound appends the discriminator as a trailing ascending key when
// it is not already part of the key set.
func compound(keys []Key, discriminator string) []Key {
	if discriminator == "" {
		return keys
	}
	for _, k := range keys {
		if k.Field == discriminator {
			return keys
		}
	}
	out := make([]Key, len(keys), len(keys)+1)
	copy(out, keys)
	return append(out, Key{Field: discriminator, Kind: Asc})
}

func dedupe(specs []Spec) []Spec {
	seen := make(map[string]bool, len(specs))
	out := specs[:0]
	for _, s := range specs {
		if seen[s.Name] {
			continue
		}
		seen[s.Name] = true
		out = append(out, s)
	}
	return out
}
