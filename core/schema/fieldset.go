package schema

import (
	"fmt"

	"github.com/albmarin/umongo/core/i18n"
)

// FieldSet is an ordered, immutable collection of field descriptors
// with logical- and storage-name lookups. It drives the transformation
// pipeline shared by compiled schemas and embedded values.
type FieldSet struct {
	fields []Descriptor
	byName map[string]int
	byAttr map[string]int
}

// NewFieldSet validates the descriptors and builds the lookups.
// Declaration order is preserved.
func NewFieldSet(fields []Descriptor) (*FieldSet, error) {
	fs := &FieldSet{
		fields: make([]Descriptor, len(fields)),
		byName: make(map[string]int, len(fields)),
		byAttr: make(map[string]int, len(fields)),
	}
	copy(fs.fields, fields)

	for i := range fs.fields {
		d := &fs.fields[i]
		if err := validateDescriptor(*d); err != nil {
			return nil, err
		}
		if _, dup := fs.byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate field name %q", d.Name)
		}
		attr := d.StorageName()
		if _, dup := fs.byAttr[attr]; dup {
			return nil, fmt.Errorf("duplicate storage name %q", attr)
		}
		fs.byName[d.Name] = i
		fs.byAttr[attr] = i

		if d.HasDefault() {
			v, ferrs := d.Load(d.Default)
			if ferrs != nil {
				return nil, fmt.Errorf("field %q: default value is invalid: %v", d.Name, ferrs)
			}
			d.defaultValue = v
		}
	}
	return fs, nil
}

// validateDescriptor rejects declarations the pipeline cannot serve.
func validateDescriptor(d Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("field has no name")
	}
	if !isValidIdentifier(d.Name) {
		return fmt.Errorf("field name %q is not a valid identifier", d.Name)
	}
	if d.Attribute != "" && d.Attribute != PKAttribute && d.Attribute != DiscriminatorAttribute {
		if !isValidIdentifier(d.Attribute) {
			return fmt.Errorf("field %q: storage name %q is not a valid identifier", d.Name, d.Attribute)
		}
	}
	if d.Type == nil {
		return fmt.Errorf("field %q has no type", d.Name)
	}

	switch t := d.Type.(type) {
	case enumType:
		if len(t.values) == 0 {
			return fmt.Errorf("field %q: enum type requires values", d.Name)
		}
	case refType:
		if t.to == "" {
			return fmt.Errorf("field %q: ref type requires a target", d.Name)
		}
	case listType:
		if t.elem == nil {
			return fmt.Errorf("field %q: list type requires an element type", d.Name)
		}
	case embeddedType:
		if t.err != nil {
			return fmt.Errorf("field %q: %w", d.Name, t.err)
		}
	}

	for _, c := range d.Constraints {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("field %q: %w", d.Name, err)
		}
	}
	return nil
}

// Fields returns the descriptors in declaration order. The slice is
// shared; callers must not modify it.
func (fs *FieldSet) Fields() []Descriptor { return fs.fields }

// Len returns the field count.
func (fs *FieldSet) Len() int { return len(fs.fields) }

// Field looks up a descriptor by logical name.
func (fs *FieldSet) Field(name string) (Descriptor, bool) {
	i, ok := fs.byName[name]
	if !ok {
		return Descriptor{}, false
	}
	return fs.fields[i], true
}

// ByAttribute looks up a descriptor by storage name.
func (fs *FieldSet) ByAttribute(attr string) (Descriptor, bool) {
	i, ok := fs.byAttr[attr]
	if !ok {
		return Descriptor{}, false
	}
	return fs.fields[i], true
}

// Load converts a client mapping into object values keyed by logical
// name. Every field is attempted so the caller gets all errors in one
// pass: per-field coercion failures, unknown keys, and read-only
// violations are collected together. Defaults are applied for absent
// fields. Required-ness is not enforced here; it is deferred to first
// persist.
//
// Fields may be addressed by storage or logical name; the storage name
// takes precedence when both are present.
func (fs *FieldSet) Load(data map[string]any) (map[string]any, *ValidationError) {
	values := make(map[string]any, len(fs.fields))
	ve := NewValidationError()

	for _, d := range fs.fields {
		raw, found := fs.lookupClient(data, d)
		if !found {
			if d.HasDefault() {
				values[d.Name] = d.defaultObjectValue()
			}
			continue
		}
		if d.DumpOnly {
			ve.Add(d.Name, i18n.T("read-only field"))
			continue
		}
		v, ferrs := d.Load(raw)
		if ferrs != nil {
			ve.MergeAt(d.Name, ferrs)
			continue
		}
		values[d.Name] = v
	}

	for key := range data {
		if _, ok := fs.byAttr[key]; ok {
			continue
		}
		if _, ok := fs.byName[key]; ok {
			continue
		}
		ve.Add(key, i18n.T("unknown field"))
	}

	return values, ve
}

func (fs *FieldSet) lookupClient(data map[string]any, d Descriptor) (any, bool) {
	if raw, ok := data[d.StorageName()]; ok {
		return raw, true
	}
	if d.StorageName() != d.Name {
		if raw, ok := data[d.Name]; ok {
			return raw, true
		}
	}
	return nil, false
}

// Dump renders object values for the client. Fields with no value fall
// back to their default; fields with neither are omitted entirely,
// never emitted as null placeholders. Secret fields are never dumped.
func (fs *FieldSet) Dump(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for _, d := range fs.fields {
		if d.Type.Kind() == KindSecret {
			continue
		}
		v, ok := values[d.Name]
		if !ok {
			if !d.HasDefault() {
				continue
			}
			v = d.defaultObjectValue()
		}
		if v == nil {
			out[d.Name] = nil
			continue
		}
		out[d.Name] = d.Type.DumpClient(v)
	}
	return out
}

// ToStorage renders present object values as a storage mapping keyed
// by storage name.
func (fs *FieldSet) ToStorage(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for _, d := range fs.fields {
		v, ok := values[d.Name]
		if !ok {
			continue
		}
		if v == nil {
			out[d.StorageName()] = nil
			continue
		}
		out[d.StorageName()] = d.Type.ToStorage(v)
	}
	return out
}

// FromStorage converts a storage mapping back into object values.
// Unknown storage keys are an error: they indicate the schema and the
// stored data have drifted apart. Defaults are never applied here.
func (fs *FieldSet) FromStorage(raw map[string]any) (map[string]any, error) {
	values := make(map[string]any, len(raw))
	for key, rv := range raw {
		i, ok := fs.byAttr[key]
		if !ok {
			return nil, fmt.Errorf("unknown storage field %q", key)
		}
		d := fs.fields[i]
		if rv == nil {
			values[d.Name] = nil
			continue
		}
		v, err := d.Type.FromStorage(rv)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", d.Name, err)
		}
		values[d.Name] = v
	}
	return values, nil
}

// Check re-runs the synchronous checks for every present value. Used
// by the validate-before-persist phase to decide which fields may run
// their IO validators.
func (fs *FieldSet) Check(values map[string]any) *ValidationError {
	ve := NewValidationError()
	for _, d := range fs.fields {
		v, ok := values[d.Name]
		if !ok || v == nil {
			continue
		}
		if msgs := d.CheckValue(v); len(msgs) > 0 {
			ve.Add(d.Name, msgs...)
		}
	}
	return ve
}
