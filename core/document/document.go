// Package document implements the runtime document: a mutable, typed
// value set bound to one schema and one backend collection, with
// validate-before-persist semantics.
package document

import (
	"errors"

	"github.com/albmarin/umongo/core/i18n"
	"github.com/albmarin/umongo/core/schema"
	"github.com/albmarin/umongo/ports"
)

// ErrNotCreated reports an operation that needs a persisted document,
// called on one that was never committed.
var ErrNotCreated = errors.New("document has not been committed")

// Binding is what a document needs from the implementation it was
// built by: the compiled schema, the backend collection, and the
// context-level collaborators. registry.Implementation satisfies it.
type Binding interface {
	// Schema returns the compiled schema.
	Schema() *schema.Schema

	// Collection returns the backing collection.
	Collection() ports.Collection

	// GenerateID produces a primary key for documents committed
	// without one.
	GenerateID() string

	// IoSession returns the backend view handed to IO validators.
	IoSession() schema.IoSession

	// FieldForIndex maps a violated unique index name back to the
	// logical field it was derived from, or "" when unknown.
	FieldForIndex(index string) string

	// Metrics returns the context's measurement sink.
	Metrics() ports.Metrics
}

// Document is one in-memory document instance. Values are object-world
// and keyed by logical field name. A document starts transient;
// Commit marks it persisted.
type Document struct {
	binding   Binding
	schema    *schema.Schema
	values    map[string]any
	persisted bool
}

// New builds an empty document with the schema's defaults applied.
// Building from an abstract schema is a definition error.
func New(b Binding) (*Document, error) {
	s := b.Schema()
	if s.Abstract() {
		return nil, schema.DefinitionErrorf(s.Name(), "abstract template cannot be instantiated")
	}
	values, err := s.Load(map[string]any{})
	if err != nil {
		return nil, err
	}
	return &Document{binding: b, schema: s, values: values}, nil
}

// Load builds a document from a client mapping. All field failures are
// aggregated into one ValidationError; required fields may be absent,
// they are checked at commit.
func Load(b Binding, data map[string]any) (*Document, error) {
	s := b.Schema()
	if s.Abstract() {
		return nil, schema.DefinitionErrorf(s.Name(), "abstract template cannot be instantiated")
	}
	values, err := s.Load(data)
	if err != nil {
		return nil, err
	}
	return &Document{binding: b, schema: s, values: values}, nil
}

// FromStorage rebuilds a document from a storage mapping. The document
// is already persisted; defaults are not applied.
func FromStorage(b Binding, raw map[string]any) (*Document, error) {
	s := b.Schema()
	values, err := s.FromStorage(raw)
	if err != nil {
		return nil, err
	}
	return &Document{binding: b, schema: s, values: values, persisted: true}, nil
}

// Schema returns the document's compiled schema.
func (d *Document) Schema() *schema.Schema { return d.schema }

// IsPersisted reports whether the document exists in the backend.
func (d *Document) IsPersisted() bool { return d.persisted }

// PK returns the primary-key value, or nil when not set yet.
func (d *Document) PK() any {
	return d.values[d.schema.PK().Name]
}

// Get returns the value of a field by logical name. Unset fields
// return nil.
func (d *Document) Get(name string) (any, error) {
	if _, ok := d.schema.Field(name); !ok {
		return nil, unknownField(name)
	}
	return d.values[name], nil
}

// Set assigns one field from a client-world value, running the field's
// coercion and synchronous checks. The discriminator is never
// assignable; the primary key only before the first commit.
func (d *Document) Set(name string, raw any) error {
	desc, ok := d.schema.Field(name)
	if !ok {
		return unknownField(name)
	}
	if name == schema.DiscriminatorName {
		return readOnlyField(name)
	}
	if desc.DumpOnly && name != d.schema.PK().Name {
		return readOnlyField(name)
	}
	if name == d.schema.PK().Name && d.persisted {
		return immutablePK(name)
	}

	v, ferrs := desc.Load(raw)
	if ferrs != nil {
		ve := schema.NewValidationError()
		ve.MergeAt(name, ferrs)
		return ve
	}
	d.values[name] = v
	return nil
}

// Unset removes a field value. The primary key of a persisted document
// and the discriminator cannot be removed.
func (d *Document) Unset(name string) error {
	if _, ok := d.schema.Field(name); !ok {
		return unknownField(name)
	}
	if name == schema.DiscriminatorName {
		return readOnlyField(name)
	}
	if name == d.schema.PK().Name && d.persisted {
		return immutablePK(name)
	}
	delete(d.values, name)
	return nil
}

// Update assigns several fields at once from a client mapping,
// aggregating all failures. Nothing is assigned when any field fails.
func (d *Document) Update(data map[string]any) error {
	staged := make(map[string]any, len(data))
	ve := schema.NewValidationError()

	for name, raw := range data {
		desc, ok := d.lookupClient(name)
		if !ok {
			ve.Add(name, i18n.T("unknown field"))
			continue
		}
		if desc.Name == schema.DiscriminatorName {
			if raw == d.schema.DiscriminatorValue() {
				continue
			}
			ve.Add(desc.Name, i18n.T("read-only field"))
			continue
		}
		if desc.DumpOnly {
			ve.Add(desc.Name, i18n.T("read-only field"))
			continue
		}
		if desc.Name == d.schema.PK().Name && d.persisted {
			ve.Add(desc.Name, i18n.T("primary key of a persisted document cannot be changed"))
			continue
		}
		if raw == nil {
			if !desc.Nullable {
				ve.Add(desc.Name, i18n.T("field may not be null"))
				continue
			}
			staged[desc.Name] = nil
			continue
		}
		v, ferrs := desc.Load(raw)
		if ferrs != nil {
			ve.MergeAt(desc.Name, ferrs)
			continue
		}
		staged[desc.Name] = v
	}

	if ve.HasErrors() {
		return ve
	}
	for name, v := range staged {
		d.values[name] = v
	}
	return nil
}

// lookupClient resolves a client key against the schema, storage name
// first like the load pipeline.
func (d *Document) lookupClient(key string) (schema.Descriptor, bool) {
	for _, desc := range d.schema.Fields() {
		if desc.StorageName() == key {
			return desc, true
		}
	}
	return d.schema.Field(key)
}

// Dump renders the document for the client world.
func (d *Document) Dump() map[string]any {
	return d.schema.Dump(d.values)
}

// ToStorage renders the document for the storage world.
func (d *Document) ToStorage() map[string]any {
	return d.schema.ToStorage(d.values)
}

// Values returns the object-world values keyed by logical name. The
// map is shared; callers must not modify it.
func (d *Document) Values() map[string]any { return d.values }

func unknownField(name string) error {
	ve := schema.NewValidationError()
	ve.Add(name, i18n.T("unknown field"))
	return ve
}

func readOnlyField(name string) error {
	ve := schema.NewValidationError()
	ve.Add(name, i18n.T("read-only field"))
	return ve
}

func immutablePK(name string) error {
	ve := schema.NewValidationError()
	ve.Add(name, i18n.T("primary key of a persisted document cannot be changed"))
	return ve
}
