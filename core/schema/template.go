package schema

import "github.com/albmarin/umongo/core/indexes"

// Meta carries everything a template declares besides its fields.
type Meta struct {
	// Abstract marks a template that exists only to be inherited.
	// Abstract templates have no collection and cannot be
	// instantiated.
	Abstract bool

	// AllowInheritance opts a concrete template into having children.
	// nil means the default: abstract templates are inheritable,
	// concrete ones are not. Setting it to false on an abstract
	// template is a contradiction and fails compilation.
	AllowInheritance *bool

	// Collection names the backing collection. Only concrete
	// templates may set it; children inherit the nearest concrete
	// ancestor's collection and may not override it. When empty on a
	// root concrete template, the snake_case of the template name is
	// used.
	Collection string

	// Indexes lists the template's own index directives. Directives
	// are not inherited; each template declares its own.
	Indexes []indexes.Directive
}

// Inheritable reports whether children may extend this template.
func (m Meta) Inheritable() bool {
	if m.AllowInheritance != nil {
		return *m.AllowInheritance
	}
	return m.Abstract
}

// Template is the passive declaration of a document model: an ordered
// field list plus meta. Templates carry no behavior and are not tied
// to any backend; compiling one against a registry produces the
// runtime Schema.
type Template struct {
	// Name identifies the template. It doubles as the discriminator
	// value stored in child documents.
	Name string

	// Fields in declaration order. Order is visible in dumps and in
	// derived index names, so it is preserved everywhere.
	Fields []Descriptor

	// Meta holds collection, inheritance and index declarations.
	Meta Meta

	// Parent is the template this one extends, or nil for roots.
	Parent *Template

	// Validators run against the whole document after every field
	// validated. They are inherited by children.
	Validators []DocumentValidator
}
