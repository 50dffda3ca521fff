package schema

import (
	"fmt"
	"strings"

	"github.com/albmarin/umongo/core/convention"
	"github.com/albmarin/umongo/core/i18n"
	"github.com/albmarin/umongo/core/indexes"
)

const (
	// PKAttribute is the storage name every primary key binds to.
	PKAttribute = "_id"

	// DiscriminatorName is the logical name of the discriminator
	// field injected into child schemas.
	DiscriminatorName = "cls"

	// DiscriminatorAttribute is its storage name.
	DiscriminatorAttribute = "_cls"

	// implicitPKName is the logical name of the synthesized primary
	// key when a template binds nothing to PKAttribute.
	implicitPKName = "id"
)

// Schema is a compiled template: the template's own fields merged with
// every inherited field into one ordered set, the primary key
// resolved, the discriminator injected when the template shares a
// collection with an ancestor, and the index plan derived. Schemas are
// immutable once compiled.
type Schema struct {
	name        string
	collection  string
	abstract    bool
	inheritable bool

	fields  *FieldSet
	pkIndex int
	// discIndex is -1 when the schema carries no discriminator.
	discIndex int
	discValue string

	specs      []indexes.Spec
	validators []DocumentValidator

	fingerprint string
}

// Compile builds the runtime schema for a template. parent must be the
// already compiled schema of tpl.Parent, or nil for root templates;
// compiling children before their parents is a definition error, which
// keeps the field order deterministic (parents before children).
func Compile(tpl *Template, parent *Schema) (*Schema, error) {
	if tpl == nil {
		return nil, &DefinitionError{Reason: "nil template"}
	}
	if !isValidIdentifier(tpl.Name) {
		return nil, DefinitionErrorf(tpl.Name, "template name is not a valid identifier")
	}
	if tpl.Meta.Abstract && tpl.Meta.AllowInheritance != nil && !*tpl.Meta.AllowInheritance {
		return nil, DefinitionErrorf(tpl.Name, "abstract templates cannot forbid inheritance")
	}
	if tpl.Meta.Abstract && tpl.Meta.Collection != "" {
		return nil, DefinitionErrorf(tpl.Name, "abstract templates cannot declare a collection")
	}

	switch {
	case tpl.Parent == nil && parent != nil:
		return nil, DefinitionErrorf(tpl.Name, "compiled against parent %s but extends none", parent.name)
	case tpl.Parent != nil && parent == nil:
		return nil, DefinitionErrorf(tpl.Name, "parent %s has not been compiled", tpl.Parent.Name)
	case tpl.Parent != nil && parent.name != tpl.Parent.Name:
		return nil, DefinitionErrorf(tpl.Name, "extends %s but was compiled against %s", tpl.Parent.Name, parent.name)
	}
	if parent != nil && !parent.inheritable {
		return nil, DefinitionErrorf(tpl.Name, "parent %s does not allow inheritance", parent.name)
	}

	// A template whose ancestry contains a concrete document shares
	// that document's collection and needs the discriminator to tell
	// siblings apart on load.
	isChild := parent != nil && (!parent.abstract || parent.HasDiscriminator())

	fields, err := mergeFields(tpl, parent)
	if err != nil {
		return nil, err
	}

	pkIndex := -1
	for i, d := range fields {
		if d.StorageName() == PKAttribute {
			pkIndex = i
			break
		}
	}
	if pkIndex == -1 {
		if _, taken := fieldNamed(fields, implicitPKName); taken {
			return nil, DefinitionErrorf(tpl.Name,
				"field %s is reserved for the implicit primary key; bind a field to %s explicitly", implicitPKName, PKAttribute)
		}
		implicit := Descriptor{
			Name:      implicitPKName,
			Attribute: PKAttribute,
			Type:      ID(),
			DumpOnly:  true,
		}
		fields = append([]Descriptor{implicit}, fields...)
		pkIndex = 0
	}

	discIndex := -1
	discValue := ""
	if isChild {
		fields = append(fields, Descriptor{
			Name:      DiscriminatorName,
			Attribute: DiscriminatorAttribute,
			Type:      String(),
			Default:   tpl.Name,
		})
		discIndex = len(fields) - 1
		discValue = tpl.Name
	}

	fieldSet, err := NewFieldSet(fields)
	if err != nil {
		return nil, DefinitionErrorf(tpl.Name, "%s", err.Error())
	}

	collection, err := resolveCollection(tpl, parent)
	if err != nil {
		return nil, err
	}

	s := &Schema{
		name:        tpl.Name,
		collection:  collection,
		abstract:    tpl.Meta.Abstract,
		inheritable: tpl.Meta.Inheritable(),
		fields:      fieldSet,
		pkIndex:     pkIndex,
		discIndex:   discIndex,
		discValue:   discValue,
	}

	if parent != nil {
		s.validators = append(s.validators, parent.validators...)
	}
	s.validators = append(s.validators, tpl.Validators...)

	if !tpl.Meta.Abstract {
		specs, err := indexes.Plan(s.indexFields(), tpl.Meta.Indexes, s.discriminatorAttribute())
		if err != nil {
			return nil, DefinitionErrorf(tpl.Name, "invalid index directive: %s", err.Error())
		}
		s.specs = specs
	}

	s.fingerprint = fingerprint(s)
	return s, nil
}

// mergeFields lays out the inherited fields (minus the parent's
// discriminator, which the child re-declares with its own value) and
// applies the template's own fields on top: same logical name
// overrides in place, new names append.
func mergeFields(tpl *Template, parent *Schema) ([]Descriptor, error) {
	var fields []Descriptor
	if parent != nil {
		for i, d := range parent.fields.Fields() {
			if i == parent.discIndex {
				continue
			}
			fields = append(fields, d)
		}
	}

	for _, d := range tpl.Fields {
		if d.Name == DiscriminatorName || d.StorageName() == DiscriminatorAttribute {
			return nil, DefinitionErrorf(tpl.Name, "field %s: name is reserved for the discriminator", d.Name)
		}
		if parent != nil && d.StorageName() == PKAttribute {
			return nil, DefinitionErrorf(tpl.Name,
				"field %s: primary key is already bound by an ancestor of %s", d.Name, tpl.Name)
		}
		if i, ok := fieldNamed(fields, d.Name); ok {
			if fields[i].StorageName() != d.StorageName() {
				return nil, DefinitionErrorf(tpl.Name,
					"field %s: override changes storage name %s to %s", d.Name, fields[i].StorageName(), d.StorageName())
			}
			fields[i] = d
			continue
		}
		fields = append(fields, d)
	}
	return fields, nil
}

func fieldNamed(fields []Descriptor, name string) (int, bool) {
	for i := range fields {
		if fields[i].Name == name {
			return i, true
		}
	}
	return 0, false
}

// resolveCollection picks the backing collection. Children carry their
// ancestor's collection and may not redeclare it; abstract templates
// carry it forward without using it, so a concrete grandchild under an
// abstract middle still lands in the family collection.
func resolveCollection(tpl *Template, parent *Schema) (string, error) {
	if parent != nil && parent.collection != "" {
		if tpl.Meta.Collection != "" {
			return "", DefinitionErrorf(tpl.Name,
				"cannot redeclare collection %s inherited from %s", parent.collection, parent.name)
		}
		return parent.collection, nil
	}
	if tpl.Meta.Abstract {
		return "", nil
	}
	if tpl.Meta.Collection != "" {
		return tpl.Meta.Collection, nil
	}
	return convention.CollectionName(tpl.Name), nil
}

// -----------------------------------------------------------------------------
// Accessors
// -----------------------------------------------------------------------------

// Name returns the template name the schema was compiled from.
func (s *Schema) Name() string { return s.name }

// Collection returns the backing collection name. Abstract root
// schemas have none.
func (s *Schema) Collection() string { return s.collection }

// Abstract reports whether documents may be built from this schema.
func (s *Schema) Abstract() bool { return s.abstract }

// Inheritable reports whether templates may extend this schema.
func (s *Schema) Inheritable() bool { return s.inheritable }

// Fields returns every field in deterministic order: implicit primary
// key first if synthesized, then parents' fields before the template's
// own, then the discriminator last when present.
func (s *Schema) Fields() []Descriptor { return s.fields.Fields() }

// Field looks up a field by logical name.
func (s *Schema) Field(name string) (Descriptor, bool) { return s.fields.Field(name) }

// PK returns the primary-key field.
func (s *Schema) PK() Descriptor { return s.fields.Fields()[s.pkIndex] }

// HasDiscriminator reports whether the schema stores a type
// discriminator alongside its fields.
func (s *Schema) HasDiscriminator() bool { return s.discIndex >= 0 }

// DiscriminatorValue returns the value stored in the discriminator
// field, or "" when the schema has none.
func (s *Schema) DiscriminatorValue() string { return s.discValue }

// IndexSpecs returns the planned index specifications: directive
// indexes first, then the discriminator index, then implicit unique
// indexes. Abstract schemas plan nothing.
func (s *Schema) IndexSpecs() []indexes.Spec { return s.specs }

// Validators returns the document-level validators, ancestors' first.
func (s *Schema) Validators() []DocumentValidator { return s.validators }

// Fingerprint returns a deterministic signature of the compiled
// schema, used to detect divergent re-registrations.
func (s *Schema) Fingerprint() string { return s.fingerprint }

func (s *Schema) discriminatorAttribute() string {
	if s.discIndex < 0 {
		return ""
	}
	return DiscriminatorAttribute
}

func (s *Schema) indexFields() []indexes.Field {
	out := make([]indexes.Field, 0, s.fields.Len())
	for i, d := range s.fields.Fields() {
		out = append(out, indexes.Field{
			Attribute:  d.StorageName(),
			Unique:     d.Unique,
			Required:   d.Required,
			PrimaryKey: i == s.pkIndex,
		})
	}
	return out
}

// -----------------------------------------------------------------------------
// Pipeline
// -----------------------------------------------------------------------------

// Load converts a client mapping into object values, running every
// field's coercion and synchronous checks and aggregating all failures
// into one error. A client-supplied discriminator is accepted only
// when it names this schema.
func (s *Schema) Load(data map[string]any) (map[string]any, error) {
	values, ve := s.fields.Load(data)
	if s.discIndex >= 0 {
		if v, ok := values[DiscriminatorName]; ok && v != any(s.discValue) {
			ve.Add(DiscriminatorName, i18n.Tf("invalid discriminator value %v", v))
		}
	}
	if ve.HasErrors() {
		return nil, ve
	}
	return values, nil
}

// Dump renders object values for the client.
func (s *Schema) Dump(values map[string]any) map[string]any {
	return s.fields.Dump(values)
}

// ToStorage renders present object values as a storage mapping.
func (s *Schema) ToStorage(values map[string]any) map[string]any {
	return s.fields.ToStorage(values)
}

// FromStorage converts a storage mapping back into object values.
func (s *Schema) FromStorage(raw map[string]any) (map[string]any, error) {
	return s.fields.FromStorage(raw)
}

// Check re-runs the synchronous checks for every present value.
func (s *Schema) Check(values map[string]any) *ValidationError {
	return s.fields.Check(values)
}

// -----------------------------------------------------------------------------
// Fingerprint
// -----------------------------------------------------------------------------

// fingerprint flattens the compiled schema into a stable string.
// Validator functions cannot be compared, so only their counts
// participate; swapping one validator body for another is not a
// divergence this can see.
func fingerprint(s *Schema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "name=%s;collection=%s;abstract=%t;cls=%s;", s.name, s.collection, s.abstract, s.discValue)
	fmt.Fprintf(&b, "validators=%d;fields=", len(s.validators))
	for i, d := range s.fields.Fields() {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(fieldSignature(d))
	}
	return b.String()
}

func fieldSignature(d Descriptor) string {
	return fmt.Sprintf("%s:%s:%s:req=%t:uniq=%t:null=%t:ro=%t:default=%v:checks=%d/%d/%d",
		d.Name, d.StorageName(), typeSignature(d.Type),
		d.Required, d.Unique, d.Nullable, d.DumpOnly,
		d.Default, len(d.Constraints), len(d.Validators), len(d.IoValidators))
}

func typeSignature(t Type) string {
	switch tt := t.(type) {
	case enumType:
		return "enum(" + strings.Join(tt.values, "|") + ")"
	case refType:
		return "ref(" + tt.to + ")"
	case listType:
		return "list(" + typeSignature(tt.elem) + ")"
	case embeddedType:
		sigs := make([]string, 0, tt.fields.Len())
		for _, d := range tt.fields.Fields() {
			sigs = append(sigs, fieldSignature(d))
		}
		return "embedded(" + strings.Join(sigs, ";") + ")"
	default:
		return string(t.Kind())
	}
}
