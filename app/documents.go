package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/albmarin/umongo/core/document"
	"github.com/albmarin/umongo/core/i18n"
	"github.com/albmarin/umongo/core/registry"
	"github.com/albmarin/umongo/core/schema"
	"github.com/albmarin/umongo/ports"
)

// ErrNotSecretField reports a secret operation aimed at a field that is
// not secret-kind.
var ErrNotSecretField = errors.New("field is not a secret")

// DocumentService provides generic CRUD over every bound collection.
// Secret-kind fields are hashed before they reach the store and are
// never present in returned client mappings.
type DocumentService struct {
	schemas *SchemaService
	hasher  ports.Hasher
	log     zerolog.Logger
}

// NewDocumentService creates a document service on the current schema
// binding.
func NewDocumentService(schemas *SchemaService, hasher ports.Hasher, logger zerolog.Logger) *DocumentService {
	return &DocumentService{
		schemas: schemas,
		hasher:  hasher,
		log:     logger.With().Str("component", "documents").Logger(),
	}
}

// Collections returns the bound collection names, sorted.
func (s *DocumentService) Collections() []string {
	seen := make(map[string]bool)
	var out []string
	for _, impl := range s.schemas.Instance().Implementations() {
		c := impl.Schema().Collection()
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Create builds a document from a client mapping and persists it. For
// collections shared by an inheritance family, the mapping may carry
// the discriminator to pick the concrete subtype; without one the
// family root is used.
func (s *DocumentService) Create(ctx context.Context, collection string, data map[string]any) (map[string]any, error) {
	impl, err := s.implFor(collection, data)
	if err != nil {
		return nil, err
	}
	if err := s.hashSecrets(impl.Schema(), data); err != nil {
		return nil, err
	}

	doc, err := impl.Build(data)
	if err != nil {
		return nil, err
	}
	if err := doc.Commit(ctx); err != nil {
		return nil, err
	}

	s.log.Info().Str("collection", collection).Interface("id", doc.PK()).Msg("document created")
	return doc.Dump(), nil
}

// Get returns the document with the given primary key.
func (s *DocumentService) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	doc, err := s.byID(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	return doc.Dump(), nil
}

// FindBy returns the document whose unique field matches the given
// value.
func (s *DocumentService) FindBy(ctx context.Context, collection, field, value string) (map[string]any, error) {
	impl, err := s.root(collection)
	if err != nil {
		return nil, err
	}
	desc, ok := impl.Schema().Field(field)
	if !ok {
		ve := schema.NewValidationError()
		ve.Add(field, i18n.T("unknown field"))
		return nil, ve
	}
	if !desc.Unique {
		ve := schema.NewValidationError()
		ve.Add(field, i18n.T("field is not unique"))
		return nil, ve
	}

	v, err := desc.Type.Coerce(value)
	if err != nil {
		ve := schema.NewValidationError()
		ve.Add(field, err.Error())
		return nil, ve
	}
	doc, err := impl.FindOne(ctx, ports.Filter{desc.StorageName(): desc.Type.ToStorage(v)})
	if err != nil {
		return nil, err
	}
	return doc.Dump(), nil
}

// List returns a page of documents plus the collection's total count.
func (s *DocumentService) List(ctx context.Context, collection string, limit, offset int) ([]map[string]any, int64, error) {
	impl, err := s.root(collection)
	if err != nil {
		return nil, 0, err
	}

	docs, err := impl.Find(ctx, ports.Filter{}, ports.FindOptions{Limit: limit, Offset: offset})
	if err != nil {
		return nil, 0, err
	}
	total, err := impl.Count(ctx, ports.Filter{})
	if err != nil {
		return nil, 0, err
	}

	out := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Dump())
	}
	return out, total, nil
}

// Update applies a partial client mapping to the stored document and
// persists the result.
func (s *DocumentService) Update(ctx context.Context, collection, id string, data map[string]any) (map[string]any, error) {
	doc, err := s.byID(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	if err := s.hashSecrets(doc.Schema(), data); err != nil {
		return nil, err
	}
	if err := doc.Update(data); err != nil {
		return nil, err
	}
	if err := doc.Commit(ctx); err != nil {
		return nil, err
	}
	return doc.Dump(), nil
}

// Delete removes the document with the given primary key.
func (s *DocumentService) Delete(ctx context.Context, collection, id string) error {
	doc, err := s.byID(ctx, collection, id)
	if err != nil {
		return err
	}
	if err := doc.Delete(ctx); err != nil {
		return err
	}
	s.log.Info().Str("collection", collection).Str("id", id).Msg("document deleted")
	return nil
}

// SetSecret replaces one secret-kind field with the hash of the given
// plaintext.
func (s *DocumentService) SetSecret(ctx context.Context, collection, id, field, plaintext string) error {
	doc, err := s.byID(ctx, collection, id)
	if err != nil {
		return err
	}
	desc, ok := doc.Schema().Field(field)
	if !ok {
		ve := schema.NewValidationError()
		ve.Add(field, i18n.T("unknown field"))
		return ve
	}
	if desc.Type.Kind() != schema.KindSecret {
		return fmt.Errorf("%w: %s", ErrNotSecretField, field)
	}

	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return fmt.Errorf("hash %s: %w", field, err)
	}
	if err := doc.Set(field, string(hash)); err != nil {
		return err
	}
	return doc.Commit(ctx)
}

// CheckSecret compares a plaintext against the stored hash of a
// secret-kind field.
func (s *DocumentService) CheckSecret(ctx context.Context, collection, id, field, plaintext string) (bool, error) {
	doc, err := s.byID(ctx, collection, id)
	if err != nil {
		return false, err
	}
	v, err := doc.Get(field)
	if err != nil {
		return false, err
	}
	hash, ok := v.(string)
	if !ok {
		return false, nil
	}
	return s.hasher.Compare([]byte(hash), plaintext), nil
}

// root returns the family root implementation for a collection.
func (s *DocumentService) root(collection string) (*registry.Implementation, error) {
	return s.schemas.Instance().ByCollection(collection)
}

// implFor resolves the implementation a client mapping should build
// under: the subtype named by its discriminator, or the family root.
func (s *DocumentService) implFor(collection string, data map[string]any) (*registry.Implementation, error) {
	root, err := s.root(collection)
	if err != nil {
		return nil, err
	}

	cls, ok := data[schema.DiscriminatorName].(string)
	if !ok {
		cls, ok = data[schema.DiscriminatorAttribute].(string)
	}
	if !ok {
		return root, nil
	}
	if cls == root.Name() {
		if !root.Schema().HasDiscriminator() {
			delete(data, schema.DiscriminatorAttribute)
			delete(data, schema.DiscriminatorName)
		}
		return root, nil
	}

	impl, err := s.schemas.Instance().ByDiscriminator(cls)
	if err != nil {
		return nil, err
	}
	if impl.Schema().Collection() != collection {
		return nil, &registry.NotRegisteredError{Name: cls}
	}
	// The mapping addressed the subtype; its own Load re-checks the
	// value, so the key moves to the subtype's logical name.
	delete(data, schema.DiscriminatorAttribute)
	data[schema.DiscriminatorName] = cls
	return impl, nil
}

// byID fetches a stored document by primary key. Identifier segments
// arrive as strings; collections keyed by integers get a second lookup
// with the parsed value.
func (s *DocumentService) byID(ctx context.Context, collection, id string) (*document.Document, error) {
	impl, err := s.root(collection)
	if err != nil {
		return nil, err
	}

	doc, err := impl.FindOne(ctx, ports.Filter{schema.PKAttribute: id})
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, ports.ErrNotFound) {
		return nil, err
	}
	if n, perr := strconv.ParseInt(id, 10, 64); perr == nil {
		return impl.FindOne(ctx, ports.Filter{schema.PKAttribute: n})
	}
	return nil, err
}

// hashSecrets replaces plaintext secret-kind values in a client
// mapping with their hashes.
func (s *DocumentService) hashSecrets(sch *schema.Schema, data map[string]any) error {
	for _, desc := range sch.Fields() {
		if desc.Type.Kind() != schema.KindSecret {
			continue
		}
		key := desc.StorageName()
		raw, ok := data[key]
		if !ok {
			key = desc.Name
			raw, ok = data[key]
		}
		if !ok {
			continue
		}
		plaintext, ok := raw.(string)
		if !ok {
			continue
		}
		hash, err := s.hasher.Hash(plaintext)
		if err != nil {
			return fmt.Errorf("hash %s: %w", desc.Name, err)
		}
		data[key] = string(hash)
	}
	return nil
}
