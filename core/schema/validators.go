package schema

import (
	"context"
	"errors"
	"fmt"

	"github.com/albmarin/umongo/core/i18n"
)

// Validator is a synchronous field validator. It receives the coerced
// object-world value and returns an error describing why the value is
// invalid, or nil. Validators never see nil values.
type Validator func(value any) error

// DocumentValidator validates a whole document after all field
// validators passed. It receives the document's current values keyed
// by logical field name. Errors are reported under the schema-level
// key rather than a single field.
type DocumentValidator func(values map[string]any) error

// IoSession is the slice of backend capability that IO validators
// need. Keeping it this narrow lets the schema layer stay free of any
// driver dependency and makes validators trivial to fake in tests.
type IoSession interface {
	// Exists reports whether a document with the given primary key
	// exists in the named document's collection.
	Exists(ctx context.Context, document string, id any) (bool, error)
}

// IoValidator is a field validator that needs backend access, such as
// a referential integrity check. IO validators run only after all
// synchronous validation passed for the field, and only when the field
// holds a non-nil value.
type IoValidator interface {
	RunIoValidation(ctx context.Context, value any, sess IoSession) error
}

// IoValidatorFunc adapts a function to the IoValidator interface.
type IoValidatorFunc func(ctx context.Context, value any, sess IoSession) error

// RunIoValidation calls f.
func (f IoValidatorFunc) RunIoValidation(ctx context.Context, value any, sess IoSession) error {
	return f(ctx, value, sess)
}

// RefExists returns an IO validator that checks a Reference value
// points at an existing document. Values that are not references are
// ignored; the reference type's coercion already rejects those.
func RefExists() IoValidator {
	return IoValidatorFunc(func(ctx context.Context, value any, sess IoSession) error {
		ref, ok := value.(Reference)
		if !ok {
			return nil
		}
		found, err := sess.Exists(ctx, ref.Document, ref.ID)
		if err != nil {
			return fmt.Errorf("checking reference to %s: %w", ref.Document, err)
		}
		if !found {
			return errors.New(i18n.T("referenced document does not exist"))
		}
		return nil
	})
}
