package schema

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/albmarin/umongo/core/i18n"
)

// Type converts and validates one field's values across the three data
// worlds: client (untrusted input/output), object (validated
// in-memory), and storage (what the backend holds).
//
// Coerce then DumpClient is idempotent for accepted values, and
// FromStorage(ToStorage(v)) reconstructs v for every kind in the base
// set.
type Type interface {
	// Kind returns the semantic tag.
	Kind() Kind

	// Coerce converts a client value into its object form, validating
	// it. The returned error carries a translated message, or is a
	// *ValidationError for compound kinds with per-element failures.
	Coerce(raw any) (any, error)

	// DumpClient renders an object value for the client world.
	DumpClient(v any) any

	// ToStorage renders an object value for the storage world.
	ToStorage(v any) any

	// FromStorage converts a storage value back to its object form.
	// Failures here indicate schema drift or an adapter bug, not bad
	// user input.
	FromStorage(raw any) (any, error)
}

// Reference is the object-world value of a ref field: the target
// document's type identity plus its primary key. It does not own the
// referenced document.
type Reference struct {
	Document string
	ID       any
}

// -----------------------------------------------------------------------------
// String kinds
// -----------------------------------------------------------------------------

// stringType backs string and the semantic string kinds. check, when
// set, returns a translated message for invalid values.
type stringType struct {
	kind  Kind
	check func(s string) string
}

// String returns the plain string type.
func String() Type { return stringType{kind: KindString} }

// Email returns a string type validated as an email address.
func Email() Type { return stringType{kind: KindEmail, check: checkEmail} }

// URL returns a string type validated as an absolute URL.
func URL() Type { return stringType{kind: KindURL, check: checkURL} }

// UUID returns a string type validated as a UUID.
func UUID() Type { return stringType{kind: KindUUID, check: checkUUID} }

// Secret returns a string type that is never dumped to the client.
func Secret() Type { return stringType{kind: KindSecret} }

func (t stringType) Kind() Kind { return t.kind }

func (t stringType) Coerce(raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, errors.New(i18n.T("not a valid string"))
	}
	if t.check != nil {
		if msg := t.check(s); msg != "" {
			return nil, errors.New(msg)
		}
	}
	return s, nil
}

func (t stringType) DumpClient(v any) any { return v }
func (t stringType) ToStorage(v any) any  { return v }

func (t stringType) FromStorage(raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", raw)
	}
	return s, nil
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func checkEmail(s string) string {
	if !emailPattern.MatchString(s) {
		return i18n.T("not a valid email address")
	}
	return ""
}

func checkURL(s string) string {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return i18n.T("not a valid URL")
	}
	return ""
}

func checkUUID(s string) string {
	if _, err := uuid.Parse(s); err != nil {
		return i18n.T("not a valid UUID")
	}
	return ""
}

// -----------------------------------------------------------------------------
// Numeric and boolean kinds
// -----------------------------------------------------------------------------

type intType struct{}

// Int returns the integer type. Object values are int64.
func Int() Type { return intType{} }

func (intType) Kind() Kind { return KindInt }

func (intType) Coerce(raw any) (any, error) {
	if n, ok := asInt64(raw); ok {
		return n, nil
	}
	return nil, errors.New(i18n.T("not a valid integer"))
}

func (intType) DumpClient(v any) any { return v }
func (intType) ToStorage(v any) any  { return v }

func (intType) FromStorage(raw any) (any, error) {
	if n, ok := asInt64(raw); ok {
		return n, nil
	}
	return nil, fmt.Errorf("expected integer, got %T", raw)
}

type floatType struct{}

// Float returns the floating-point type. Object values are float64.
func Float() Type { return floatType{} }

func (floatType) Kind() Kind { return KindFloat }

func (floatType) Coerce(raw any) (any, error) {
	if f, err := toFloat64(raw); err == nil {
		return f, nil
	}
	return nil, errors.New(i18n.T("not a valid number"))
}

func (floatType) DumpClient(v any) any { return v }
func (floatType) ToStorage(v any) any  { return v }

func (floatType) FromStorage(raw any) (any, error) {
	switch n := raw.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	}
	return nil, fmt.Errorf("expected number, got %T", raw)
}

type boolType struct{}

// Bool returns the boolean type.
func Bool() Type { return boolType{} }

func (boolType) Kind() Kind { return KindBool }

func (boolType) Coerce(raw any) (any, error) {
	switch b := raw.(type) {
	case bool:
		return b, nil
	case string:
		switch b {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
	}
	return nil, errors.New(i18n.T("not a valid boolean"))
}

func (boolType) DumpClient(v any) any { return v }
func (boolType) ToStorage(v any) any  { return v }

func (boolType) FromStorage(raw any) (any, error) {
	b, ok := raw.(bool)
	if !ok {
		return nil, fmt.Errorf("expected boolean, got %T", raw)
	}
	return b, nil
}

// -----------------------------------------------------------------------------
// Datetime kind
// -----------------------------------------------------------------------------

type dateTimeType struct{}

// DateTime returns the datetime type. Object values are time.Time,
// normalized to UTC and truncated to millisecond precision to match
// the storage backend's resolution, so round trips are exact.
func DateTime() Type { return dateTimeType{} }

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (dateTimeType) Kind() Kind { return KindDateTime }

func (dateTimeType) Coerce(raw any) (any, error) {
	switch v := raw.(type) {
	case time.Time:
		return normalizeTime(v), nil
	case string:
		for _, layout := range dateTimeLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return normalizeTime(t), nil
			}
		}
	}
	return nil, errors.New(i18n.T("not a valid datetime"))
}

func (dateTimeType) DumpClient(v any) any {
	t, ok := v.(time.Time)
	if !ok {
		return v
	}
	return t.Format(time.RFC3339Nano)
}

func (dateTimeType) ToStorage(v any) any { return v }

func (dateTimeType) FromStorage(raw any) (any, error) {
	switch v := raw.(type) {
	case time.Time:
		return normalizeTime(v), nil
	case string:
		// Adapters that serialize documents as JSON hand datetimes
		// back as RFC 3339 strings.
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return normalizeTime(t), nil
		}
	}
	return nil, fmt.Errorf("expected datetime, got %T", raw)
}

func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// -----------------------------------------------------------------------------
// Enum kind
// -----------------------------------------------------------------------------

type enumType struct {
	values []string
}

// Enum returns a string type restricted to the given values.
func Enum(values ...string) Type { return enumType{values: values} }

func (t enumType) Kind() Kind { return KindEnum }

// Values returns the allowed values.
func (t enumType) Values() []string { return t.values }

func (t enumType) Coerce(raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, errors.New(i18n.T("not a valid string"))
	}
	for _, v := range t.values {
		if v == s {
			return s, nil
		}
	}
	return nil, errors.New(i18n.Tf("must be one of: %s", strings.Join(t.values, ", ")))
}

func (t enumType) DumpClient(v any) any { return v }
func (t enumType) ToStorage(v any) any  { return v }

func (t enumType) FromStorage(raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", raw)
	}
	return s, nil
}

// -----------------------------------------------------------------------------
// ID kind
// -----------------------------------------------------------------------------

type idType struct{}

// ID returns the identifier type used by primary-key fields. String
// and integer identifiers are accepted.
func ID() Type { return idType{} }

func (idType) Kind() Kind { return KindID }

func (idType) Coerce(raw any) (any, error) {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return nil, errors.New(i18n.T("not a valid identifier"))
		}
		return v, nil
	default:
		if n, ok := asInt64(raw); ok {
			return n, nil
		}
	}
	return nil, errors.New(i18n.T("not a valid identifier"))
}

func (idType) DumpClient(v any) any { return v }
func (idType) ToStorage(v any) any  { return v }

func (idType) FromStorage(raw any) (any, error) {
	switch raw.(type) {
	case string:
		return raw, nil
	default:
		if n, ok := asInt64(raw); ok {
			return n, nil
		}
	}
	return nil, fmt.Errorf("expected identifier, got %T", raw)
}

// -----------------------------------------------------------------------------
// Reference kind
// -----------------------------------------------------------------------------

type refType struct {
	to string
}

// Ref returns a reference type targeting the named document template.
// The client and storage forms are the referenced primary key; the
// object form is a Reference.
func Ref(to string) Type { return refType{to: to} }

func (t refType) Kind() Kind { return KindRef }

// Target returns the referenced template name.
func (t refType) Target() string { return t.to }

func (t refType) Coerce(raw any) (any, error) {
	switch v := raw.(type) {
	case Reference:
		if v.Document != "" && v.Document != t.to {
			return nil, errors.New(i18n.Tf("reference must target %s", t.to))
		}
		return Reference{Document: t.to, ID: v.ID}, nil
	case string:
		if v == "" {
			return nil, errors.New(i18n.T("not a valid reference"))
		}
		return Reference{Document: t.to, ID: v}, nil
	default:
		if n, ok := asInt64(raw); ok {
			return Reference{Document: t.to, ID: n}, nil
		}
	}
	return nil, errors.New(i18n.T("not a valid reference"))
}

func (t refType) DumpClient(v any) any {
	if ref, ok := v.(Reference); ok {
		return ref.ID
	}
	return v
}

func (t refType) ToStorage(v any) any {
	if ref, ok := v.(Reference); ok {
		return ref.ID
	}
	return v
}

func (t refType) FromStorage(raw any) (any, error) {
	switch raw.(type) {
	case string:
		return Reference{Document: t.to, ID: raw}, nil
	default:
		if n, ok := asInt64(raw); ok {
			return Reference{Document: t.to, ID: n}, nil
		}
	}
	return nil, fmt.Errorf("expected reference key, got %T", raw)
}

// -----------------------------------------------------------------------------
// List kind
// -----------------------------------------------------------------------------

type listType struct {
	elem Type
}

// List returns a list type with the given element type. Object values
// are []any.
func List(elem Type) Type { return listType{elem: elem} }

func (t listType) Kind() Kind { return KindList }

// Elem returns the element type.
func (t listType) Elem() Type { return t.elem }

func (t listType) Coerce(raw any) (any, error) {
	items, ok := asSlice(raw)
	if !ok {
		return nil, errors.New(i18n.T("not a valid list"))
	}

	out := make([]any, 0, len(items))
	ve := NewValidationError()
	for i, item := range items {
		v, err := t.elem.Coerce(item)
		if err != nil {
			var nested *ValidationError
			if errors.As(err, &nested) {
				ve.MergeAt(strconv.Itoa(i), nested.Fields)
			} else {
				ve.Add(strconv.Itoa(i), err.Error())
			}
			continue
		}
		out = append(out, v)
	}
	if ve.HasErrors() {
		return nil, ve
	}
	return out, nil
}

func (t listType) DumpClient(v any) any {
	items, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = t.elem.DumpClient(item)
	}
	return out
}

func (t listType) ToStorage(v any) any {
	items, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = t.elem.ToStorage(item)
	}
	return out
}

func (t listType) FromStorage(raw any) (any, error) {
	items, ok := asSlice(raw)
	if !ok {
		return nil, fmt.Errorf("expected list, got %T", raw)
	}
	out := make([]any, len(items))
	for i, item := range items {
		v, err := t.elem.FromStorage(item)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Embedded kind
// -----------------------------------------------------------------------------

type embeddedType struct {
	fields *FieldSet
	err    error
}

// Embedded returns an inline sub-document type with its own field set.
// Embedded documents take no part in inheritance and have no primary
// key of their own.
func Embedded(fields ...Descriptor) Type {
	fs, err := NewFieldSet(fields)
	return embeddedType{fields: fs, err: err}
}

func (t embeddedType) Kind() Kind { return KindEmbedded }

// Fields returns the embedded field set.
func (t embeddedType) Fields() *FieldSet { return t.fields }

func (t embeddedType) Coerce(raw any) (any, error) {
	data, ok := raw.(map[string]any)
	if !ok {
		return nil, errors.New(i18n.T("not a valid document"))
	}
	values, ve := t.fields.Load(data)
	if ve.HasErrors() {
		return nil, ve
	}
	return values, nil
}

func (t embeddedType) DumpClient(v any) any {
	values, ok := v.(map[string]any)
	if !ok {
		return v
	}
	return t.fields.Dump(values)
}

func (t embeddedType) ToStorage(v any) any {
	values, ok := v.(map[string]any)
	if !ok {
		return v
	}
	return t.fields.ToStorage(values)
}

func (t embeddedType) FromStorage(raw any) (any, error) {
	data, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected document, got %T", raw)
	}
	return t.fields.FromStorage(data)
}

// -----------------------------------------------------------------------------
// Conversion helpers
// -----------------------------------------------------------------------------

// asInt64 converts integral values to int64. Floats are accepted only
// when integral, so JSON numbers survive the round trip.
func asInt64(raw any) (int64, bool) {
	switch n := raw.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int16:
		return int64(n), true
	case int8:
		return int64(n), true
	case uint:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		if integralInt64(n) {
			return int64(n), true
		}
	case float32:
		f := float64(n)
		if integralInt64(f) {
			return int64(f), true
		}
	case string:
		if v, err := strconv.ParseInt(n, 10, 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

// integralInt64 reports whether f is a whole number inside the int64
// range. The upper bound excludes 2^63 itself; int64(f) of anything
// outside the range is implementation-defined, not an overflow error.
func integralInt64(f float64) bool {
	return f == math.Trunc(f) && !math.IsInf(f, 0) && f >= -1<<63 && f < 1<<63
}

// asSlice widens common slice types to []any.
func asSlice(raw any) ([]any, bool) {
	switch items := raw.(type) {
	case []any:
		return items, true
	case []string:
		out := make([]any, len(items))
		for i, v := range items {
			out[i] = v
		}
		return out, true
	case []int:
		out := make([]any, len(items))
		for i, v := range items {
			out[i] = v
		}
		return out, true
	case []int64:
		out := make([]any, len(items))
		for i, v := range items {
			out[i] = v
		}
		return out, true
	case []float64:
		out := make([]any, len(items))
		for i, v := range items {
			out[i] = v
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(items))
		for i, v := range items {
			out[i] = v
		}
		return out, true
	}
	return nil, false
}
