package registry

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/albmarin/umongo/core/document"
	"github.com/albmarin/umongo/core/schema"
	"github.com/albmarin/umongo/ports"
)

// Implementation is a template bound to one instance: the compiled
// schema plus the collection handle its documents live in. Concrete
// implementations build and query documents; abstract ones only anchor
// their family.
type Implementation struct {
	template *schema.Template
	schema   *schema.Schema
	instance *Instance
	parent   *Implementation

	// offspring collects registered strict descendants, registration
	// order. Guarded by instance.mu.
	offspring []*Implementation

	// coll is nil for abstract implementations.
	coll ports.Collection

	// fieldByIndex maps unique index names back to logical fields.
	fieldByIndex map[string]string

	indexesEnsured atomic.Bool
}

var _ document.Binding = (*Implementation)(nil)

// Name returns the template name.
func (m *Implementation) Name() string { return m.template.Name }

// Template returns the unbound template.
func (m *Implementation) Template() *schema.Template { return m.template }

// Schema returns the compiled schema.
func (m *Implementation) Schema() *schema.Schema { return m.schema }

// Collection returns the bound collection handle, nil for abstract
// implementations.
func (m *Implementation) Collection() ports.Collection { return m.coll }

// Parent returns the implementation this one extends, or nil.
func (m *Implementation) Parent() *Implementation { return m.parent }

// Offspring returns the registered descendants in registration order.
func (m *Implementation) Offspring() []*Implementation {
	m.instance.mu.RLock()
	defer m.instance.mu.RUnlock()

	out := make([]*Implementation, len(m.offspring))
	copy(out, m.offspring)
	return out
}

// GenerateID produces a primary key via the instance's generator.
func (m *Implementation) GenerateID() string { return m.instance.idgen.New() }

// Metrics returns the instance's measurement sink.
func (m *Implementation) Metrics() ports.Metrics { return m.instance.metrics }

// IoSession returns the instance-backed session handed to IO
// validators.
func (m *Implementation) IoSession() schema.IoSession {
	return ioSession{instance: m.instance}
}

// FieldForIndex maps a violated unique index name back to the logical
// field it was derived from, or "" when unknown.
func (m *Implementation) FieldForIndex(index string) string {
	return m.fieldByIndex[index]
}

// NewDocument builds an empty document with the schema's defaults
// applied.
func (m *Implementation) NewDocument() (*document.Document, error) {
	return document.New(m)
}

// Build constructs a document from a client mapping.
func (m *Implementation) Build(data map[string]any) (*document.Document, error) {
	return document.Load(m, data)
}

// FromStorage rebuilds a document from a storage mapping. The stored
// discriminator routes to the concrete subtype the document was
// written as, so family queries materialize each row under its own
// schema.
func (m *Implementation) FromStorage(raw map[string]any) (*document.Document, error) {
	target := m
	if v, ok := raw[schema.DiscriminatorAttribute]; ok {
		name, _ := v.(string)
		impl, err := m.instance.ByDiscriminator(name)
		if err != nil {
			return nil, err
		}
		if !m.inFamily(impl) {
			return nil, fmt.Errorf("stored discriminator %s does not belong to %s", name, m.Name())
		}
		target = impl
	}
	return document.FromStorage(target, raw)
}

// inFamily reports whether other is m itself or a registered
// descendant of m.
func (m *Implementation) inFamily(other *Implementation) bool {
	for a := other; a != nil; a = a.parent {
		if a == m {
			return true
		}
	}
	return false
}

// EnsureIndexes submits the schema's planned indexes to the backend.
// Repeat calls are no-ops; abstract implementations have no plan.
func (m *Implementation) EnsureIndexes(ctx context.Context) error {
	if m.schema.Abstract() || m.indexesEnsured.Load() {
		return nil
	}
	for _, spec := range m.schema.IndexSpecs() {
		if err := m.coll.EnsureIndex(ctx, spec); err != nil {
			return err
		}
		m.instance.metrics.IndexEnsured(m.schema.Collection())
	}
	m.indexesEnsured.Store(true)
	return nil
}

// Find returns the documents matching the filter. Filters use storage
// field names. Subclass implementations only see their own subtree of
// the shared collection.
func (m *Implementation) Find(ctx context.Context, filter ports.Filter, opts ports.FindOptions) ([]*document.Document, error) {
	if m.schema.Abstract() {
		return nil, schema.DefinitionErrorf(m.Name(), "abstract template has no collection")
	}
	raws, err := m.coll.Find(ctx, m.scopedFilter(filter), opts)
	if err != nil {
		return nil, err
	}
	docs := make([]*document.Document, 0, len(raws))
	for _, raw := range raws {
		doc, err := m.FromStorage(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// FindOne returns the first document matching the filter, or
// ports.ErrNotFound.
func (m *Implementation) FindOne(ctx context.Context, filter ports.Filter) (*document.Document, error) {
	if m.schema.Abstract() {
		return nil, schema.DefinitionErrorf(m.Name(), "abstract template has no collection")
	}
	raw, err := m.coll.FindOne(ctx, m.scopedFilter(filter))
	if err != nil {
		return nil, err
	}
	return m.FromStorage(raw)
}

// Count returns the number of documents matching the filter.
func (m *Implementation) Count(ctx context.Context, filter ports.Filter) (int64, error) {
	if m.schema.Abstract() {
		return 0, schema.DefinitionErrorf(m.Name(), "abstract template has no collection")
	}
	return m.coll.CountDocuments(ctx, m.scopedFilter(filter))
}

// scopedFilter narrows a filter to the implementation's subtree when
// it shares its collection with a family: the discriminator must be
// its own value or a registered descendant's.
func (m *Implementation) scopedFilter(filter ports.Filter) ports.Filter {
	if !m.schema.HasDiscriminator() {
		return filter
	}
	out := make(ports.Filter, len(filter)+1)
	for k, v := range filter {
		out[k] = v
	}
	names := []string{m.schema.DiscriminatorValue()}
	for _, child := range m.Offspring() {
		if child.schema.Abstract() {
			continue
		}
		names = append(names, child.schema.DiscriminatorValue())
	}
	if len(names) == 1 {
		out[schema.DiscriminatorAttribute] = names[0]
	} else {
		out[schema.DiscriminatorAttribute] = names
	}
	return out
}
