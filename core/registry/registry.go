// Package registry binds document templates to a backend database.
// Templates stay unbound and reusable; an Instance compiles them into
// schemas, attaches collection handles, and hands out Implementations
// that build, persist, and query documents. One process may run
// several instances against different databases.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/albmarin/umongo/core/indexes"
	"github.com/albmarin/umongo/core/schema"
	"github.com/albmarin/umongo/ports"
)

// NotRegisteredError reports a lookup for a template, collection, or
// discriminator value the instance does not know.
type NotRegisteredError struct {
	Name string
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("%s is not registered", e.Name)
}

// Config carries the collaborators documents are bound to. Zero-value
// fields get working defaults: UUID primary keys and no-op metrics.
type Config struct {
	IDGenerator ports.IDGenerator
	Metrics     ports.Metrics
	Logger      zerolog.Logger
}

// Instance owns one database binding and the implementations
// registered on it. Registration is serialized; lookups are safe for
// concurrent use.
type Instance struct {
	db      ports.Database
	idgen   ports.IDGenerator
	metrics ports.Metrics
	log     zerolog.Logger

	mu sync.RWMutex

	// implementations by template name
	byName map[string]*Implementation

	// family roots by collection name
	byCollection map[string]*Implementation
}

// New creates an empty instance bound to db.
func New(db ports.Database, config Config) *Instance {
	if config.IDGenerator == nil {
		config.IDGenerator = uuidGenerator{}
	}
	if config.Metrics == nil {
		config.Metrics = ports.NopMetrics{}
	}
	return &Instance{
		db:           db,
		idgen:        config.IDGenerator,
		metrics:      config.Metrics,
		log:          config.Logger,
		byName:       make(map[string]*Implementation),
		byCollection: make(map[string]*Implementation),
	}
}

type uuidGenerator struct{}

func (uuidGenerator) New() string { return uuid.NewString() }

// Register compiles a template against this instance and returns its
// implementation. Parents must be registered before their children.
// Registering the same template twice is a no-op as long as its
// compiled structure and index plan are unchanged; a divergent
// re-registration is a DefinitionError.
func (i *Instance) Register(tpl *schema.Template) (*Implementation, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if tpl == nil {
		return nil, schema.DefinitionErrorf("", "cannot register a nil template")
	}

	var parent *Implementation
	if tpl.Parent != nil {
		parent = i.byName[tpl.Parent.Name]
		if parent == nil {
			return nil, schema.DefinitionErrorf(tpl.Name,
				"parent %s must be registered first", tpl.Parent.Name)
		}
	}
	var parentSchema *schema.Schema
	if parent != nil {
		parentSchema = parent.schema
	}

	s, err := schema.Compile(tpl, parentSchema)
	if err != nil {
		return nil, err
	}

	if existing, ok := i.byName[tpl.Name]; ok {
		if existing.schema.Fingerprint() != s.Fingerprint() ||
			!indexes.EqualSpecs(existing.schema.IndexSpecs(), s.IndexSpecs()) {
			return nil, schema.DefinitionErrorf(tpl.Name,
				"already registered with a different structure")
		}
		return existing, nil
	}

	impl := &Implementation{
		template: tpl,
		schema:   s,
		instance: i,
		parent:   parent,
	}
	impl.fieldByIndex = fieldIndexMap(s, parent)
	if !s.Abstract() {
		impl.coll = i.db.Collection(s.Collection())
	}

	i.byName[tpl.Name] = impl
	if !s.Abstract() {
		if _, claimed := i.byCollection[s.Collection()]; !claimed {
			i.byCollection[s.Collection()] = impl
		}
	}
	for a := parent; a != nil; a = a.parent {
		a.offspring = append(a.offspring, impl)
	}

	i.log.Info().
		Str("template", tpl.Name).
		Str("collection", s.Collection()).
		Bool("abstract", s.Abstract()).
		Int("indexes", len(s.IndexSpecs())).
		Msg("template registered")

	return impl, nil
}

// MustRegister is Register, panicking on error. Meant for startup-time
// declarations where a bad template is a programming mistake.
func (i *Instance) MustRegister(tpl *schema.Template) *Implementation {
	impl, err := i.Register(tpl)
	if err != nil {
		panic(err)
	}
	return impl
}

// RegisterAll registers templates in order, stopping at the first
// failure. Callers pass parents before children; schema.Resolve
// produces that order.
func (i *Instance) RegisterAll(tpls []*schema.Template) error {
	for _, tpl := range tpls {
		if _, err := i.Register(tpl); err != nil {
			return err
		}
	}
	return nil
}

// ImplementationFor returns the implementation registered under the
// template name.
func (i *Instance) ImplementationFor(name string) (*Implementation, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	impl, ok := i.byName[name]
	if !ok {
		return nil, &NotRegisteredError{Name: name}
	}
	return impl, nil
}

// ByCollection returns the family root implementation claiming the
// collection: the first concrete template registered for it.
func (i *Instance) ByCollection(collection string) (*Implementation, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	impl, ok := i.byCollection[collection]
	if !ok {
		return nil, &NotRegisteredError{Name: collection}
	}
	return impl, nil
}

// ByDiscriminator returns the implementation whose documents carry the
// given discriminator value.
func (i *Instance) ByDiscriminator(value string) (*Implementation, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	impl, ok := i.byName[value]
	if !ok || !impl.schema.HasDiscriminator() {
		return nil, &NotRegisteredError{Name: value}
	}
	return impl, nil
}

// Implementations returns every registered implementation sorted by
// template name.
func (i *Instance) Implementations() []*Implementation {
	i.mu.RLock()
	defer i.mu.RUnlock()

	impls := make([]*Implementation, 0, len(i.byName))
	for _, impl := range i.byName {
		impls = append(impls, impl)
	}
	sort.Slice(impls, func(a, b int) bool {
		return impls[a].template.Name < impls[b].template.Name
	})
	return impls
}

// EnsureAllIndexes submits the planned indexes of every concrete
// implementation to the backend.
func (i *Instance) EnsureAllIndexes(ctx context.Context) error {
	for _, impl := range i.Implementations() {
		if err := impl.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("ensuring indexes for %s: %w", impl.Name(), err)
		}
	}
	return nil
}

// fieldIndexMap builds the unique index name to logical field reverse
// map used to turn duplicate-key failures into field errors. A child
// inherits its ancestors' entries: a write through the child can
// violate an index the parent planned.
func fieldIndexMap(s *schema.Schema, parent *Implementation) map[string]string {
	out := make(map[string]string)
	if parent != nil {
		for idx, field := range parent.fieldByIndex {
			out[idx] = field
		}
	}
	byAttr := make(map[string]string, len(s.Fields()))
	for _, d := range s.Fields() {
		byAttr[d.StorageName()] = d.Name
	}
	for _, spec := range s.IndexSpecs() {
		if !spec.Unique || len(spec.Keys) == 0 {
			continue
		}
		if field, ok := byAttr[spec.Keys[0].Field]; ok {
			out[spec.Name] = field
		}
	}
	return out
}

// ioSession runs IO validators against the instance's own database.
type ioSession struct {
	instance *Instance
}

// Exists reports whether a document of the named template with the
// given primary key is stored.
func (s ioSession) Exists(ctx context.Context, name string, id any) (bool, error) {
	impl, err := s.instance.ImplementationFor(name)
	if err != nil {
		return false, err
	}
	n, err := impl.Count(ctx, ports.Filter{schema.PKAttribute: id})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
