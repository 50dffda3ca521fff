package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/albmarin/umongo/core/indexes"
	"github.com/albmarin/umongo/core/schema"
	"github.com/albmarin/umongo/ports"
)

// -----------------------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------------------

type fakeCollection struct {
	collection string
	insertErr  error
	replaceErr error

	inserted []map[string]any
	replaced []map[string]any
	deleted  []any
	stored   map[string]map[string]any
}

var _ ports.Collection = (*fakeCollection)(nil)

func (c *fakeCollection) Name() string { return c.collection }

func (c *fakeCollection) InsertOne(_ context.Context, doc map[string]any) error {
	if c.insertErr != nil {
		return c.insertErr
	}
	c.inserted = append(c.inserted, doc)
	return nil
}

func (c *fakeCollection) ReplaceOne(_ context.Context, id any, doc map[string]any) error {
	if c.replaceErr != nil {
		return c.replaceErr
	}
	c.replaced = append(c.replaced, doc)
	return nil
}

func (c *fakeCollection) FindOne(_ context.Context, filter ports.Filter) (map[string]any, error) {
	id, _ := filter[schema.PKAttribute].(string)
	doc, ok := c.stored[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out, nil
}

func (c *fakeCollection) Find(context.Context, ports.Filter, ports.FindOptions) ([]map[string]any, error) {
	return nil, nil
}

func (c *fakeCollection) CountDocuments(context.Context, ports.Filter) (int64, error) {
	return 0, nil
}

func (c *fakeCollection) DeleteOne(_ context.Context, id any) error {
	c.deleted = append(c.deleted, id)
	return nil
}

func (c *fakeCollection) EnsureIndex(context.Context, indexes.Spec) error { return nil }
func (c *fakeCollection) Drop(context.Context) error                     { return nil }

type fakeSession struct {
	existing map[string]bool
	err      error
	calls    int
}

func (s *fakeSession) Exists(_ context.Context, document string, id any) (bool, error) {
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	return s.existing[fmt.Sprintf("%s/%v", document, id)], nil
}

type fakeMetrics struct {
	committed map[string]int // "collection/op"
	rejected  map[string]int
}

var _ ports.Metrics = (*fakeMetrics)(nil)

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{committed: map[string]int{}, rejected: map[string]int{}}
}

func (m *fakeMetrics) DocumentCommitted(collection, op string) {
	m.committed[collection+"/"+op]++
}
func (m *fakeMetrics) ValidationFailed(collection string) { m.rejected[collection]++ }
func (m *fakeMetrics) IndexEnsured(string)                {}

type fakeBinding struct {
	schema       *schema.Schema
	coll         *fakeCollection
	sess         *fakeSession
	nextID       string
	fieldByIndex map[string]string
	metrics      *fakeMetrics
}

var _ Binding = (*fakeBinding)(nil)

func (b *fakeBinding) Schema() *schema.Schema       { return b.schema }
func (b *fakeBinding) Collection() ports.Collection { return b.coll }
func (b *fakeBinding) GenerateID() string           { return b.nextID }
func (b *fakeBinding) IoSession() schema.IoSession  { return b.sess }
func (b *fakeBinding) Metrics() ports.Metrics       { return b.metrics }

func (b *fakeBinding) FieldForIndex(idx string) string {
	return b.fieldByIndex[idx]
}

func playerTemplate() *schema.Template {
	return &schema.Template{
		Name: "Player",
		Fields: []schema.Descriptor{
			{Name: "nick", Type: schema.String(), Required: true, Unique: true},
			{Name: "email", Attribute: "contact_email", Type: schema.Email()},
			{Name: "age", Type: schema.Int(), Constraints: []schema.Constraint{
				{Type: schema.ConstraintMin, Value: 0},
			}},
			{Name: "level", Type: schema.Int(), Default: 1},
			{Name: "team", Type: schema.Ref("Team"), IoValidators: []schema.IoValidator{
				schema.RefExists(),
			}},
		},
	}
}

func testBinding(t *testing.T, tpl *schema.Template) *fakeBinding {
	t.Helper()
	s, err := schema.Compile(tpl, nil)
	if err != nil {
		t.Fatalf("Compile(%s) returned error: %v", tpl.Name, err)
	}
	return &fakeBinding{
		schema:       s,
		coll:         &fakeCollection{collection: s.Collection(), stored: map[string]map[string]any{}},
		sess:         &fakeSession{existing: map[string]bool{"Team/t-1": true}},
		nextID:       "p-generated",
		fieldByIndex: map[string]string{"nick_1": "nick"},
		metrics:      newFakeMetrics(),
	}
}

func wantFieldError(t *testing.T, err error, field, contains string) {
	t.Helper()
	if err == nil {
		t.Fatalf("no error, want one for field %q", field)
	}
	var ve *schema.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error is %T, want *ValidationError: %v", err, err)
	}
	msgs := ve.Fields[field]
	if len(msgs) == 0 {
		t.Fatalf("no error for field %q, got %v", field, ve.Fields)
	}
	if !strings.Contains(strings.Join(msgs, "; "), contains) {
		t.Errorf("errors for %q = %v, want one containing %q", field, msgs, contains)
	}
}

// -----------------------------------------------------------------------------
// Construction
// -----------------------------------------------------------------------------

func TestNew_AppliesDefaults(t *testing.T) {
	b := testBinding(t, playerTemplate())
	doc, err := New(b)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if doc.IsPersisted() {
		t.Error("fresh document reports persisted")
	}
	if doc.PK() != nil {
		t.Errorf("PK = %v, want nil before commit", doc.PK())
	}
	level, err := doc.Get("level")
	if err != nil {
		t.Fatalf("Get(level) returned error: %v", err)
	}
	if level != int64(1) {
		t.Errorf("level = %v (%T), want int64 1 from default", level, level)
	}
}

func TestNew_AbstractRejected(t *testing.T) {
	b := testBinding(t, &schema.Template{Name: "Base", Meta: schema.Meta{Abstract: true}})
	_, err := New(b)
	var de *schema.DefinitionError
	if !errors.As(err, &de) {
		t.Fatalf("error is %T, want *DefinitionError: %v", err, err)
	}
	if !strings.Contains(err.Error(), "abstract template cannot be instantiated") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestLoad_AggregatesFailures(t *testing.T) {
	b := testBinding(t, playerTemplate())
	_, err := Load(b, map[string]any{
		"nick": "ada",
		"age":  "not a number",
		"rank": 3,
	})
	wantFieldError(t, err, "age", "not a valid integer")
	wantFieldError(t, err, "rank", "unknown field")
}

func TestFromStorage_MarksPersisted(t *testing.T) {
	b := testBinding(t, playerTemplate())
	doc, err := FromStorage(b, map[string]any{
		"_id":           "p-1",
		"nick":          "ada",
		"contact_email": "ada@example.com",
	})
	if err != nil {
		t.Fatalf("FromStorage returned error: %v", err)
	}
	if !doc.IsPersisted() {
		t.Error("storage-loaded document reports transient")
	}
	if doc.PK() != "p-1" {
		t.Errorf("PK = %v, want p-1", doc.PK())
	}
	if v, _ := doc.Get("level"); v != nil {
		t.Errorf("level = %v, want no default on storage load", v)
	}
}

// -----------------------------------------------------------------------------
// Field access
// -----------------------------------------------------------------------------

func TestSet_GuardsReservedFields(t *testing.T) {
	b := testBinding(t, playerTemplate())
	doc, err := New(b)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if err := doc.Set("nick", "ada"); err != nil {
		t.Errorf("Set(nick) returned error: %v", err)
	}
	if v, _ := doc.Get("nick"); v != "ada" {
		t.Errorf("nick = %v, want ada", v)
	}

	wantFieldError(t, doc.Set("missing", 1), "missing", "unknown field")
	wantFieldError(t, doc.Set("age", -3), "age", "must be at least 0")

	if err := doc.Set("id", "custom-1"); err != nil {
		t.Errorf("Set(id) before commit returned error: %v", err)
	}
	if err := doc.Commit(context.Background()); err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}
	wantFieldError(t, doc.Set("id", "other"), "id",
		"primary key of a persisted document cannot be changed")
}

func TestUnset(t *testing.T) {
	b := testBinding(t, playerTemplate())
	doc, err := Load(b, map[string]any{"nick": "ada", "age": 30})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if err := doc.Unset("age"); err != nil {
		t.Errorf("Unset(age) returned error: %v", err)
	}
	if v, _ := doc.Get("age"); v != nil {
		t.Errorf("age = %v after Unset, want nil", v)
	}

	if err := doc.Commit(context.Background()); err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}
	wantFieldError(t, doc.Unset("id"), "id",
		"primary key of a persisted document cannot be changed")
}

func TestUpdate_AssignsNothingOnFailure(t *testing.T) {
	b := testBinding(t, playerTemplate())
	doc, err := Load(b, map[string]any{"nick": "ada", "age": 30})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	err = doc.Update(map[string]any{
		"nick": "lovelace",
		"age":  "old",
	})
	wantFieldError(t, err, "age", "not a valid integer")
	if v, _ := doc.Get("nick"); v != "ada" {
		t.Errorf("nick = %v after failed update, want ada untouched", v)
	}

	if err := doc.Update(map[string]any{
		"nick":          "lovelace",
		"contact_email": "ada@example.com",
	}); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if v, _ := doc.Get("nick"); v != "lovelace" {
		t.Errorf("nick = %v, want lovelace", v)
	}
	if v, _ := doc.Get("email"); v != "ada@example.com" {
		t.Errorf("email = %v, want storage key to address the field", v)
	}
}

func TestUpdate_RejectsNullForNonNullable(t *testing.T) {
	b := testBinding(t, playerTemplate())
	doc, err := Load(b, map[string]any{"nick": "ada"})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	wantFieldError(t, doc.Update(map[string]any{"age": nil}), "age", "field may not be null")
}

// -----------------------------------------------------------------------------
// Validation
// -----------------------------------------------------------------------------

func TestValidate_RequiredChecked(t *testing.T) {
	b := testBinding(t, playerTemplate())
	doc, err := New(b)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	wantFieldError(t, doc.Validate(context.Background()), "nick",
		"missing data for required field")
}

func TestValidate_ReChecksStoredValues(t *testing.T) {
	b := testBinding(t, playerTemplate())
	doc, err := FromStorage(b, map[string]any{"_id": "p-1", "nick": "ada", "age": -5})
	if err != nil {
		t.Fatalf("FromStorage returned error: %v", err)
	}
	wantFieldError(t, doc.Validate(context.Background()), "age", "must be at least 0")
}

func TestValidate_DocumentValidatorsGated(t *testing.T) {
	calls := 0
	tpl := playerTemplate()
	tpl.Validators = []schema.DocumentValidator{func(values map[string]any) error {
		calls++
		if values["nick"] == "banned" {
			return errors.New("nick is banned")
		}
		return nil
	}}
	b := testBinding(t, tpl)

	doc, err := Load(b, map[string]any{"nick": "banned"})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	wantFieldError(t, doc.Validate(context.Background()), schema.SchemaErrorKey, "nick is banned")
	if calls != 1 {
		t.Fatalf("validator calls = %d, want 1", calls)
	}

	empty, err := New(b)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	err = empty.Validate(context.Background())
	wantFieldError(t, err, "nick", "missing data for required field")
	var ve *schema.ValidationError
	errors.As(err, &ve)
	if len(ve.Fields[schema.SchemaErrorKey]) > 0 {
		t.Errorf("document validator ran despite field errors: %v", ve.Fields)
	}
	if calls != 1 {
		t.Errorf("validator calls = %d, want still 1", calls)
	}
}

func TestValidate_IoValidatorOnCleanFields(t *testing.T) {
	b := testBinding(t, playerTemplate())

	doc, err := Load(b, map[string]any{"nick": "ada", "team": "t-1"})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if b.sess.calls != 1 {
		t.Errorf("session calls = %d, want 1", b.sess.calls)
	}

	dangling, err := Load(b, map[string]any{"nick": "ada", "team": "t-404"})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	wantFieldError(t, dangling.Validate(context.Background()), "team",
		"referenced document does not exist")
}

func TestValidate_IoValidatorSkippedAfterSyncFailure(t *testing.T) {
	tpl := playerTemplate()
	tpl.Fields[4].Validators = []schema.Validator{func(any) error {
		return errors.New("frozen roster")
	}}
	b := testBinding(t, tpl)

	doc, err := FromStorage(b, map[string]any{"_id": "p-1", "nick": "ada", "team": "t-1"})
	if err != nil {
		t.Fatalf("FromStorage returned error: %v", err)
	}
	wantFieldError(t, doc.Validate(context.Background()), "team", "frozen roster")
	if b.sess.calls != 0 {
		t.Errorf("session calls = %d, want 0 after sync failure", b.sess.calls)
	}
}

func TestValidate_BackendErrorPassesThrough(t *testing.T) {
	b := testBinding(t, playerTemplate())
	b.sess.err = &ports.BackendError{Op: "find", Err: errors.New("boom")}

	doc, err := Load(b, map[string]any{"nick": "ada", "team": "t-1"})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	err = doc.Validate(context.Background())
	var be *ports.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("error is %T, want *BackendError: %v", err, err)
	}
	var ve *schema.ValidationError
	if errors.As(err, &ve) {
		t.Error("backend failure was folded into a validation error")
	}
}

// -----------------------------------------------------------------------------
// Commit, delete, reload
// -----------------------------------------------------------------------------

func TestCommit_InsertsWithGeneratedPK(t *testing.T) {
	b := testBinding(t, playerTemplate())
	doc, err := Load(b, map[string]any{"nick": "ada", "email": "ada@example.com"})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if err := doc.Commit(context.Background()); err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}
	if !doc.IsPersisted() {
		t.Error("committed document reports transient")
	}
	if doc.PK() != "p-generated" {
		t.Errorf("PK = %v, want p-generated", doc.PK())
	}
	if len(b.coll.inserted) != 1 {
		t.Fatalf("inserts = %d, want 1", len(b.coll.inserted))
	}
	want := map[string]any{
		"_id":           "p-generated",
		"nick":          "ada",
		"contact_email": "ada@example.com",
		"level":         int64(1),
	}
	if diff := cmp.Diff(want, b.coll.inserted[0]); diff != "" {
		t.Errorf("stored document mismatch (-want +got):\n%s", diff)
	}
}

func TestCommit_ValidatesBeforeBackend(t *testing.T) {
	b := testBinding(t, playerTemplate())
	doc, err := New(b)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	wantFieldError(t, doc.Commit(context.Background()), "nick",
		"missing data for required field")
	if len(b.coll.inserted) != 0 {
		t.Errorf("inserts = %d, want 0 after validation failure", len(b.coll.inserted))
	}
	if doc.IsPersisted() {
		t.Error("document reports persisted after failed commit")
	}
}

func TestCommit_DuplicateKeyBecomesValidationError(t *testing.T) {
	b := testBinding(t, playerTemplate())
	b.coll.insertErr = &ports.DuplicateKeyError{Index: "nick_1"}

	doc, err := Load(b, map[string]any{"nick": "ada"})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	wantFieldError(t, doc.Commit(context.Background()), "nick", "value must be unique")
	if doc.IsPersisted() {
		t.Error("document reports persisted after duplicate key")
	}

	b.coll.insertErr = &ports.DuplicateKeyError{Index: "mystery_1"}
	wantFieldError(t, doc.Commit(context.Background()), schema.SchemaErrorKey,
		"value must be unique")
}

func TestCommit_ReplacesPersistedDocument(t *testing.T) {
	b := testBinding(t, playerTemplate())
	doc, err := FromStorage(b, map[string]any{"_id": "p-1", "nick": "ada"})
	if err != nil {
		t.Fatalf("FromStorage returned error: %v", err)
	}

	if err := doc.Set("nick", "lovelace"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := doc.Commit(context.Background()); err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}
	if len(b.coll.inserted) != 0 || len(b.coll.replaced) != 1 {
		t.Fatalf("inserts = %d replaces = %d, want 0 and 1",
			len(b.coll.inserted), len(b.coll.replaced))
	}
	if b.coll.replaced[0]["nick"] != "lovelace" {
		t.Errorf("replaced nick = %v, want lovelace", b.coll.replaced[0]["nick"])
	}
}

func TestCommit_RecordsMetrics(t *testing.T) {
	b := testBinding(t, playerTemplate())
	ctx := context.Background()

	doc, err := Load(b, map[string]any{"nick": "ada"})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if err := doc.Commit(ctx); err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}
	if got := b.metrics.committed["player/insert"]; got != 1 {
		t.Errorf("insert count = %d, want 1", got)
	}

	if err := doc.Set("age", 30); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := doc.Commit(ctx); err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}
	if got := b.metrics.committed["player/replace"]; got != 1 {
		t.Errorf("replace count = %d, want 1", got)
	}

	if err := doc.Delete(ctx); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if got := b.metrics.committed["player/delete"]; got != 1 {
		t.Errorf("delete count = %d, want 1", got)
	}

	empty, err := New(b)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := empty.Commit(ctx); err == nil {
		t.Fatal("Commit of empty document succeeded, want validation error")
	}
	if got := b.metrics.rejected["player"]; got != 1 {
		t.Errorf("rejection count = %d, want 1", got)
	}
}

func TestValidate_RequiredSkippedOncePersisted(t *testing.T) {
	b := testBinding(t, playerTemplate())
	doc, err := FromStorage(b, map[string]any{"_id": "p-1", "age": 3})
	if err != nil {
		t.Fatalf("FromStorage returned error: %v", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		t.Fatalf("Validate of a stored document rechecked required presence: %v", err)
	}
	if err := doc.Commit(context.Background()); err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}
}

func TestDelete(t *testing.T) {
	b := testBinding(t, playerTemplate())
	doc, err := New(b)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := doc.Delete(context.Background()); !errors.Is(err, ErrNotCreated) {
		t.Errorf("Delete on transient document = %v, want ErrNotCreated", err)
	}

	persisted, err := FromStorage(b, map[string]any{"_id": "p-1", "nick": "ada"})
	if err != nil {
		t.Fatalf("FromStorage returned error: %v", err)
	}
	if err := persisted.Delete(context.Background()); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if persisted.IsPersisted() {
		t.Error("document reports persisted after delete")
	}
	if len(b.coll.deleted) != 1 || b.coll.deleted[0] != "p-1" {
		t.Errorf("deleted = %v, want [p-1]", b.coll.deleted)
	}
}

func TestReload(t *testing.T) {
	b := testBinding(t, playerTemplate())
	doc, err := New(b)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := doc.Reload(context.Background()); !errors.Is(err, ErrNotCreated) {
		t.Errorf("Reload on transient document = %v, want ErrNotCreated", err)
	}

	b.coll.stored["p-1"] = map[string]any{"_id": "p-1", "nick": "fresh", "level": 3}
	persisted, err := FromStorage(b, map[string]any{"_id": "p-1", "nick": "stale"})
	if err != nil {
		t.Fatalf("FromStorage returned error: %v", err)
	}
	if err := persisted.Reload(context.Background()); err != nil {
		t.Fatalf("Reload returned error: %v", err)
	}
	if v, _ := persisted.Get("nick"); v != "fresh" {
		t.Errorf("nick = %v after reload, want fresh", v)
	}
	if v, _ := persisted.Get("level"); v != int64(3) {
		t.Errorf("level = %v after reload, want int64 3", v)
	}
}
