package schema

import (
	"fmt"
	"sort"
	"strings"
)

// SchemaErrorKey is the pseudo-field under which document-level
// validation messages are reported.
const SchemaErrorKey = "_schema"

// DefinitionError reports a mistake in a template declaration or its
// registration: invalid inheritance ordering, primary-key rebinding,
// divergent re-registration, reserved names. These are programming
// errors and should fail fast at startup.
type DefinitionError struct {
	Template string
	Reason   string
}

func (e *DefinitionError) Error() string {
	if e.Template == "" {
		return "definition error: " + e.Reason
	}
	return fmt.Sprintf("definition error: template %s: %s", e.Template, e.Reason)
}

// DefinitionErrorf builds a DefinitionError for a template.
func DefinitionErrorf(template, format string, args ...any) *DefinitionError {
	return &DefinitionError{Template: template, Reason: fmt.Sprintf(format, args...)}
}

// FieldErrors maps a field name to its validation messages. Nested
// fields use dotted paths ("address.city", "tags.0").
type FieldErrors map[string][]string

// Add appends messages for a field.
func (fe FieldErrors) Add(field string, msgs ...string) {
	fe[field] = append(fe[field], msgs...)
}

// Merge appends every entry of other into fe.
func (fe FieldErrors) Merge(other FieldErrors) {
	for field, msgs := range other {
		fe[field] = append(fe[field], msgs...)
	}
}

// MergeAt appends other's entries under the given field. The empty
// key in other addresses the field itself; any other key becomes a
// dotted sub-path.
func (fe FieldErrors) MergeAt(field string, other FieldErrors) {
	for key, msgs := range other {
		target := field
		if key != "" {
			target = field + "." + key
		}
		fe[target] = append(fe[target], msgs...)
	}
}

// ValidationError aggregates per-field validation failures from one
// load, set, or commit call. All failing fields are reported together,
// never truncated to the first.
type ValidationError struct {
	Fields FieldErrors
}

// NewValidationError returns an empty aggregate.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(FieldErrors)}
}

// Add appends messages for a field.
func (e *ValidationError) Add(field string, msgs ...string) {
	e.Fields.Add(field, msgs...)
}

// AddSchema appends document-level messages under SchemaErrorKey.
func (e *ValidationError) AddSchema(msgs ...string) {
	e.Fields.Add(SchemaErrorKey, msgs...)
}

// MergeAt appends nested field errors under the given field.
func (e *ValidationError) MergeAt(field string, other FieldErrors) {
	e.Fields.MergeAt(field, other)
}

// HasErrors reports whether any message was collected.
func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

// OrNil returns the error when messages were collected, otherwise a
// plain nil. Callers must use this instead of returning e directly to
// avoid a non-nil interface holding an empty aggregate.
func (e *ValidationError) OrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(e.Fields[field], "; ")))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
