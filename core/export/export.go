// Package export renders compiled schemas as OpenAPI schema objects,
// the external validation representation callers can hand to any
// OpenAPI-aware toolchain. The export is field-for-field: types,
// formats, nullability, enums, and declarative constraints all carry
// over. IO validators have no OpenAPI equivalent and are dropped; that
// is a documented limitation of the target representation, not a
// defect.
package export

import (
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/albmarin/umongo/core/registry"
	"github.com/albmarin/umongo/core/schema"
)

// SchemaOf converts a compiled schema into an OpenAPI object schema.
// Fields marked required are listed as such even though the runtime
// only enforces presence at first persist; the export describes the
// shape of a complete document.
func SchemaOf(s *schema.Schema) *openapi3.Schema {
	out := fieldsetSchema(s.Fields())
	out.Title = s.Name()
	return out
}

// Components renders every non-abstract implementation registered on
// the instance as a named component schema.
func Components(inst *registry.Instance) openapi3.Schemas {
	out := make(openapi3.Schemas)
	for _, impl := range inst.Implementations() {
		s := impl.Schema()
		if s.Abstract() {
			continue
		}
		out[s.Name()] = SchemaOf(s).NewRef()
	}
	return out
}

func fieldsetSchema(fields []schema.Descriptor) *openapi3.Schema {
	props := make(openapi3.Schemas, len(fields))
	var required []string
	for _, d := range fields {
		props[d.Name] = FieldSchema(d).NewRef()
		if d.Required {
			required = append(required, d.Name)
		}
	}
	return &openapi3.Schema{
		Type:       openapi3.TypeObject,
		Properties: props,
		Required:   required,
	}
}

// FieldSchema converts one field descriptor. Dump-only fields export as
// readOnly, secret fields as writeOnly.
func FieldSchema(d schema.Descriptor) *openapi3.Schema {
	out := typeSchema(d.Type)
	out.Nullable = d.Nullable
	if d.DumpOnly {
		out.ReadOnly = true
	}
	if d.Type.Kind() == schema.KindSecret {
		out.WriteOnly = true
	}
	if d.HasDefault() {
		out.Default = d.Default
	}
	for _, c := range d.Constraints {
		applyConstraint(out, c)
	}
	return out
}

func typeSchema(t schema.Type) *openapi3.Schema {
	switch t.Kind() {
	case schema.KindString, schema.KindSecret:
		return &openapi3.Schema{Type: openapi3.TypeString}
	case schema.KindEmail:
		return &openapi3.Schema{Type: openapi3.TypeString, Format: "email"}
	case schema.KindURL:
		return &openapi3.Schema{Type: openapi3.TypeString, Format: "uri"}
	case schema.KindUUID:
		return &openapi3.Schema{Type: openapi3.TypeString, Format: "uuid"}
	case schema.KindID:
		return &openapi3.Schema{Type: openapi3.TypeString}
	case schema.KindInt:
		return &openapi3.Schema{Type: openapi3.TypeInteger, Format: "int64"}
	case schema.KindFloat:
		return &openapi3.Schema{Type: openapi3.TypeNumber, Format: "double"}
	case schema.KindBool:
		return &openapi3.Schema{Type: openapi3.TypeBoolean}
	case schema.KindDateTime:
		return &openapi3.Schema{Type: openapi3.TypeString, Format: "date-time"}
	case schema.KindEnum:
		out := &openapi3.Schema{Type: openapi3.TypeString}
		if e, ok := t.(interface{ Values() []string }); ok {
			for _, v := range e.Values() {
				out.Enum = append(out.Enum, v)
			}
		}
		return out
	case schema.KindRef:
		out := &openapi3.Schema{Type: openapi3.TypeString}
		if r, ok := t.(interface{ Target() string }); ok {
			out.Description = fmt.Sprintf("primary key of a %s document", r.Target())
		}
		return out
	case schema.KindList:
		out := &openapi3.Schema{Type: openapi3.TypeArray}
		if l, ok := t.(interface{ Elem() schema.Type }); ok {
			out.Items = typeSchema(l.Elem()).NewRef()
		}
		return out
	case schema.KindEmbedded:
		if e, ok := t.(interface{ Fields() *schema.FieldSet }); ok {
			return fieldsetSchema(e.Fields().Fields())
		}
		return &openapi3.Schema{Type: openapi3.TypeObject}
	default:
		return &openapi3.Schema{}
	}
}

func applyConstraint(out *openapi3.Schema, c schema.Constraint) {
	switch c.Type {
	case schema.ConstraintMin:
		if f, ok := asFloat(c.Value); ok {
			out.Min = openapi3.Float64Ptr(f)
		}
	case schema.ConstraintMax:
		if f, ok := asFloat(c.Value); ok {
			out.Max = openapi3.Float64Ptr(f)
		}
	case schema.ConstraintMinLength:
		if n, ok := asUint(c.Value); ok {
			out.MinLength = n
		}
	case schema.ConstraintMaxLength:
		if n, ok := asUint(c.Value); ok {
			out.MaxLength = openapi3.Uint64Ptr(n)
		}
	case schema.ConstraintPattern:
		if p, ok := c.Value.(string); ok {
			out.Pattern = p
		}
	case schema.ConstraintNotEmpty:
		if out.MinLength == 0 {
			out.MinLength = 1
		}
	case schema.ConstraintOneOf:
		switch vals := c.Value.(type) {
		case []any:
			out.Enum = append(out.Enum, vals...)
		case []string:
			for _, v := range vals {
				out.Enum = append(out.Enum, v)
			}
		}
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func asUint(v any) (uint64, bool) {
	switch n := v.(type) {
	case int:
		if n >= 0 {
			return uint64(n), true
		}
	case int64:
		if n >= 0 {
			return uint64(n), true
		}
	case float64:
		if n >= 0 {
			return uint64(n), true
		}
	}
	return 0, false
}
