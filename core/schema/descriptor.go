package schema

import (
	"errors"

	"github.com/albmarin/umongo/core/i18n"
)

// Descriptor declares one attribute of a document template.
type Descriptor struct {
	// Name is the logical field name, used in the object and client
	// worlds.
	Name string

	// Attribute is the storage name. Empty means Name. Unique within
	// a schema's storage-name set.
	Attribute string

	// Type converts the field's values between worlds.
	Type Type

	// Required is enforced at first persist, not at assignment, so a
	// partially filled object remains a legal intermediate state.
	Required bool

	// Default is applied when the field is absent during client or
	// object construction. Never applied on storage loads, where
	// presence is guaranteed by the document's own prior writes.
	Default any

	// Unique derives an implicit unique index. Enforcement belongs to
	// the backend and is surfaced as a validation error on conflict.
	Unique bool

	// Nullable permits explicit null values.
	Nullable bool

	// DumpOnly fields are emitted on dump but rejected in client input.
	DumpOnly bool

	// Constraints are declarative checks run after coercion.
	Constraints []Constraint

	// Validators are synchronous checks run after constraints.
	Validators []Validator

	// IoValidators run only in the validate-before-persist phase,
	// after every synchronous check for the field passed.
	IoValidators []IoValidator

	// defaultValue caches the coerced object-world default. Set by
	// NewFieldSet.
	defaultValue any
}

// StorageName returns the storage key for the field.
func (d Descriptor) StorageName() string {
	if d.Attribute != "" {
		return d.Attribute
	}
	return d.Name
}

// HasDefault reports whether the field carries a default value.
func (d Descriptor) HasDefault() bool {
	return d.Default != nil
}

// Load coerces a client value and runs the field's synchronous checks.
// Returned errors are keyed relative to the field: the empty key
// addresses the field itself, other keys are nested sub-paths.
func (d Descriptor) Load(raw any) (any, FieldErrors) {
	if raw == nil {
		if d.Nullable {
			return nil, nil
		}
		return nil, FieldErrors{"": {i18n.T("field may not be null")}}
	}

	v, err := d.Type.Coerce(raw)
	if err != nil {
		var nested *ValidationError
		if errors.As(err, &nested) {
			return nil, nested.Fields
		}
		return nil, FieldErrors{"": {err.Error()}}
	}

	if msgs := d.CheckValue(v); len(msgs) > 0 {
		return nil, FieldErrors{"": msgs}
	}
	return v, nil
}

// CheckValue runs the field's constraints and synchronous validators
// against an already-coerced value, collecting every message.
func (d Descriptor) CheckValue(v any) []string {
	if v == nil {
		return nil
	}
	var msgs []string
	for _, c := range d.Constraints {
		if msg := CheckConstraint(v, c); msg != "" {
			msgs = append(msgs, msg)
		}
	}
	for _, validate := range d.Validators {
		if err := validate(v); err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	return msgs
}

// defaultObjectValue returns a fresh copy of the coerced default.
func (d Descriptor) defaultObjectValue() any {
	return cloneValue(d.defaultValue)
}

// cloneValue deep-copies compound values so shared defaults cannot be
// mutated through one document.
func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
