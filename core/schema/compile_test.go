package schema

import (
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/albmarin/umongo/core/indexes"
)

func boolPtr(b bool) *bool { return &b }

func compileOk(t *testing.T, tpl *Template, parent *Schema) *Schema {
	t.Helper()
	s, err := Compile(tpl, parent)
	if err != nil {
		t.Fatalf("Compile(%s) returned error: %v", tpl.Name, err)
	}
	return s
}

func wantDefinitionError(t *testing.T, err error, contains string) {
	t.Helper()
	if err == nil {
		t.Fatal("Compile succeeded, want definition error")
	}
	var de *DefinitionError
	if !errors.As(err, &de) {
		t.Fatalf("error is %T, want *DefinitionError: %v", err, err)
	}
	if !strings.Contains(err.Error(), contains) {
		t.Errorf("error = %q, want it to contain %q", err.Error(), contains)
	}
}

func fieldNames(s *Schema) []string {
	names := make([]string, 0, len(s.Fields()))
	for _, d := range s.Fields() {
		names = append(names, d.Name)
	}
	return names
}

func specNames(specs []indexes.Spec) []string {
	names := make([]string, 0, len(specs))
	for _, sp := range specs {
		names = append(names, sp.Name)
	}
	return names
}

// -----------------------------------------------------------------------------
// Root compilation
// -----------------------------------------------------------------------------

func TestCompile_RootSynthesizesImplicitPK(t *testing.T) {
	s := compileOk(t, &Template{
		Name:   "User",
		Fields: []Descriptor{{Name: "nick", Type: String()}},
	}, nil)

	got := fieldNames(s)
	want := []string{"id", "nick"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("fields = %v, want %v", got, want)
	}

	pk := s.PK()
	if pk.Name != "id" || pk.StorageName() != PKAttribute || !pk.DumpOnly {
		t.Errorf("pk = %+v, want dump-only id bound to %s", pk, PKAttribute)
	}
	if s.Collection() != "user" {
		t.Errorf("collection = %q, want user", s.Collection())
	}
	if s.HasDiscriminator() {
		t.Error("root schema has a discriminator")
	}
}

func TestCompile_ExplicitPK(t *testing.T) {
	s := compileOk(t, &Template{
		Name: "Event",
		Fields: []Descriptor{
			{Name: "slug", Attribute: "_id", Type: ID()},
			{Name: "title", Type: String()},
		},
	}, nil)

	if s.PK().Name != "slug" {
		t.Errorf("pk = %q, want slug", s.PK().Name)
	}
	if _, ok := s.Field("id"); ok {
		t.Error("implicit id synthesized despite an explicit primary key")
	}
	if got := fieldNames(s); got[0] != "slug" {
		t.Errorf("fields = %v, want declaration order preserved", got)
	}
}

func TestCompile_ImplicitPKNameCollision(t *testing.T) {
	_, err := Compile(&Template{
		Name:   "Bad",
		Fields: []Descriptor{{Name: "id", Type: Int()}},
	}, nil)
	wantDefinitionError(t, err, "reserved for the implicit primary key")
}

func TestCompile_CustomCollection(t *testing.T) {
	s := compileOk(t, &Template{
		Name: "User",
		Meta: Meta{Collection: "accounts"},
	}, nil)
	if s.Collection() != "accounts" {
		t.Errorf("collection = %q, want accounts", s.Collection())
	}
}

// -----------------------------------------------------------------------------
// Meta rejections
// -----------------------------------------------------------------------------

func TestCompile_MetaRejections(t *testing.T) {
	cases := []struct {
		name    string
		tpl     *Template
		wantErr string
	}{
		{
			"abstract forbidding inheritance",
			&Template{Name: "Base", Meta: Meta{Abstract: true, AllowInheritance: boolPtr(false)}},
			"abstract templates cannot forbid inheritance",
		},
		{
			"abstract with collection",
			&Template{Name: "Base", Meta: Meta{Abstract: true, Collection: "bases"}},
			"abstract templates cannot declare a collection",
		},
		{
			"invalid name",
			&Template{Name: "Not A Name"},
			"not a valid identifier",
		},
		{
			"reserved discriminator name",
			&Template{Name: "Doc", Fields: []Descriptor{{Name: "cls", Type: String()}}},
			"reserved for the discriminator",
		},
		{
			"reserved discriminator attribute",
			&Template{Name: "Doc", Fields: []Descriptor{{Name: "kind", Attribute: "_cls", Type: String()}}},
			"reserved for the discriminator",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(tc.tpl, nil)
			wantDefinitionError(t, err, tc.wantErr)
		})
	}
}

// -----------------------------------------------------------------------------
// Inheritance
// -----------------------------------------------------------------------------

func TestCompile_ChildOfConcreteParent(t *testing.T) {
	parentTpl := &Template{
		Name:   "Parent",
		Fields: []Descriptor{{Name: "nick", Type: String()}},
		Meta:   Meta{AllowInheritance: boolPtr(true)},
	}
	parent := compileOk(t, parentTpl, nil)

	child := compileOk(t, &Template{
		Name:   "Child",
		Fields: []Descriptor{{Name: "rank", Type: Int()}},
		Parent: parentTpl,
	}, parent)

	got := fieldNames(child)
	want := []string{"id", "nick", "rank", "cls"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("fields = %v, want %v", got, want)
	}

	if !child.HasDiscriminator() {
		t.Fatal("child schema has no discriminator")
	}
	if child.DiscriminatorValue() != "Child" {
		t.Errorf("discriminator value = %q, want Child", child.DiscriminatorValue())
	}
	if child.Collection() != parent.Collection() {
		t.Errorf("child collection = %q, want parent's %q", child.Collection(), parent.Collection())
	}

	cls, ok := child.Field(DiscriminatorName)
	if !ok {
		t.Fatal("discriminator field missing")
	}
	if cls.StorageName() != DiscriminatorAttribute {
		t.Errorf("discriminator storage name = %q, want %s", cls.StorageName(), DiscriminatorAttribute)
	}
}

func TestCompile_ChildOfAbstractRootIsRoot(t *testing.T) {
	baseTpl := &Template{
		Name:   "Base",
		Fields: []Descriptor{{Name: "created", Type: DateTime()}},
		Meta:   Meta{Abstract: true},
	}
	base := compileOk(t, baseTpl, nil)
	if base.Collection() != "" {
		t.Errorf("abstract collection = %q, want none", base.Collection())
	}
	if base.HasDiscriminator() {
		t.Error("abstract root has a discriminator")
	}

	person := compileOk(t, &Template{
		Name:   "Person",
		Fields: []Descriptor{{Name: "name", Type: String()}},
		Parent: baseTpl,
	}, base)

	if person.HasDiscriminator() {
		t.Error("first concrete descendant of an abstract root has a discriminator")
	}
	if person.Collection() != "person" {
		t.Errorf("collection = %q, want person", person.Collection())
	}
	if _, ok := person.Field("created"); !ok {
		t.Error("inherited field created is missing")
	}
}

func TestCompile_AbstractMiddleCarriesFamily(t *testing.T) {
	rootTpl := &Template{Name: "Animal", Meta: Meta{AllowInheritance: boolPtr(true)}}
	root := compileOk(t, rootTpl, nil)

	midTpl := &Template{Name: "FlyingAnimal", Meta: Meta{Abstract: true}, Parent: rootTpl}
	mid := compileOk(t, midTpl, root)
	if !mid.HasDiscriminator() {
		t.Error("abstract middle of a concrete family has no discriminator")
	}
	if mid.Collection() != "animal" {
		t.Errorf("middle collection = %q, want animal", mid.Collection())
	}

	leaf := compileOk(t, &Template{Name: "Bat", Parent: midTpl}, mid)
	if !leaf.HasDiscriminator() || leaf.DiscriminatorValue() != "Bat" {
		t.Errorf("leaf discriminator = %q, want Bat", leaf.DiscriminatorValue())
	}
	if leaf.Collection() != "animal" {
		t.Errorf("leaf collection = %q, want animal", leaf.Collection())
	}
}

func TestCompile_ParentNotInheritable(t *testing.T) {
	parentTpl := &Template{Name: "Sealed"}
	parent := compileOk(t, parentTpl, nil)

	_, err := Compile(&Template{Name: "Child", Parent: parentTpl}, parent)
	wantDefinitionError(t, err, "does not allow inheritance")
}

func TestCompile_ParentMismatch(t *testing.T) {
	otherTpl := &Template{Name: "Other", Meta: Meta{AllowInheritance: boolPtr(true)}}
	other := compileOk(t, otherTpl, nil)

	_, err := Compile(&Template{Name: "Loner"}, other)
	wantDefinitionError(t, err, "extends none")

	parentTpl := &Template{Name: "Parent", Meta: Meta{AllowInheritance: boolPtr(true)}}
	_, err = Compile(&Template{Name: "Child", Parent: parentTpl}, nil)
	wantDefinitionError(t, err, "has not been compiled")

	_, err = Compile(&Template{Name: "Child", Parent: parentTpl}, other)
	wantDefinitionError(t, err, "compiled against Other")
}

func TestCompile_PKRebindRejected(t *testing.T) {
	parentTpl := &Template{Name: "Parent", Meta: Meta{AllowInheritance: boolPtr(true)}}
	parent := compileOk(t, parentTpl, nil)

	_, err := Compile(&Template{
		Name:   "Child",
		Fields: []Descriptor{{Name: "other", Attribute: "_id", Type: ID()}},
		Parent: parentTpl,
	}, parent)
	wantDefinitionError(t, err, "primary key is already bound")
}

func TestCompile_CollectionRedeclareRejected(t *testing.T) {
	parentTpl := &Template{Name: "Parent", Meta: Meta{AllowInheritance: boolPtr(true)}}
	parent := compileOk(t, parentTpl, nil)

	_, err := Compile(&Template{
		Name:   "Child",
		Meta:   Meta{Collection: "elsewhere"},
		Parent: parentTpl,
	}, parent)
	wantDefinitionError(t, err, "cannot redeclare collection")
}

func TestCompile_FieldOverride(t *testing.T) {
	parentTpl := &Template{
		Name: "Parent",
		Fields: []Descriptor{
			{Name: "name", Type: String()},
			{Name: "age", Type: Int()},
		},
		Meta: Meta{AllowInheritance: boolPtr(true)},
	}
	parent := compileOk(t, parentTpl, nil)

	child := compileOk(t, &Template{
		Name: "Child",
		Fields: []Descriptor{
			{Name: "name", Type: String(), Required: true},
		},
		Parent: parentTpl,
	}, parent)

	got := fieldNames(child)
	want := "id,name,age,cls"
	if strings.Join(got, ",") != want {
		t.Errorf("fields = %v, want %s (override keeps position)", got, want)
	}
	name, _ := child.Field("name")
	if !name.Required {
		t.Error("override did not replace the inherited descriptor")
	}

	_, err := Compile(&Template{
		Name: "Mover",
		Fields: []Descriptor{
			{Name: "name", Attribute: "full_name", Type: String()},
		},
		Parent: parentTpl,
	}, parent)
	wantDefinitionError(t, err, "override changes storage name")
}

func TestCompile_ValidatorsInherited(t *testing.T) {
	parentTpl := &Template{
		Name:       "Parent",
		Meta:       Meta{AllowInheritance: boolPtr(true)},
		Validators: []DocumentValidator{func(map[string]any) error { return nil }},
	}
	parent := compileOk(t, parentTpl, nil)

	child := compileOk(t, &Template{
		Name:       "Child",
		Parent:     parentTpl,
		Validators: []DocumentValidator{func(map[string]any) error { return nil }},
	}, parent)

	if len(child.Validators()) != 2 {
		t.Errorf("child validators = %d, want parent's plus own", len(child.Validators()))
	}
}

// -----------------------------------------------------------------------------
// Index planning
// -----------------------------------------------------------------------------

func TestCompile_FamilyIndexPlans(t *testing.T) {
	parentTpl := &Template{
		Name:   "Parent",
		Fields: []Descriptor{{Name: "unique_in_parent", Type: Int(), Unique: true}},
		Meta:   Meta{AllowInheritance: boolPtr(true)},
	}
	parent := compileOk(t, parentTpl, nil)

	child := compileOk(t, &Template{
		Name:   "Child",
		Fields: []Descriptor{{Name: "unique_in_child", Type: String(), Unique: true}},
		Parent: parentTpl,
	}, parent)

	if got := specNames(parent.IndexSpecs()); len(got) != 1 || got[0] != "unique_in_parent_1" {
		t.Errorf("parent specs = %v, want [unique_in_parent_1]", got)
	}

	got := specNames(child.IndexSpecs())
	sort.Strings(got)
	want := []string{"_cls_1", "unique_in_child_1__cls_1", "unique_in_parent_1__cls_1"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("child specs = %v, want %v", got, want)
	}

	family := map[string]bool{}
	for _, name := range append(specNames(parent.IndexSpecs()), got...) {
		family[name] = true
	}
	if len(family) != 4 {
		t.Errorf("family index names = %v, want 4 distinct", family)
	}
}

func TestCompile_SparseTracksRequired(t *testing.T) {
	s := compileOk(t, &Template{
		Name: "User",
		Fields: []Descriptor{
			{Name: "email", Type: Email(), Unique: true, Required: true},
			{Name: "nick", Type: String(), Unique: true},
		},
	}, nil)

	var email, nick indexes.Spec
	for _, sp := range s.IndexSpecs() {
		switch sp.Name {
		case "email_1":
			email = sp
		case "nick_1":
			nick = sp
		}
	}
	if !email.Unique || email.Sparse {
		t.Errorf("email spec = %+v, want unique non-sparse", email)
	}
	if !nick.Unique || !nick.Sparse {
		t.Errorf("nick spec = %+v, want unique sparse", nick)
	}
}

func TestCompile_DirectiveErrorIsDefinitionError(t *testing.T) {
	_, err := Compile(&Template{
		Name: "Bad",
		Meta: Meta{Indexes: []indexes.Directive{{}}},
	}, nil)
	wantDefinitionError(t, err, "invalid index directive")
}

func TestCompile_AbstractPlansNoIndexes(t *testing.T) {
	s := compileOk(t, &Template{
		Name:   "Base",
		Fields: []Descriptor{{Name: "email", Type: Email(), Unique: true}},
		Meta:   Meta{Abstract: true},
	}, nil)
	if len(s.IndexSpecs()) != 0 {
		t.Errorf("abstract specs = %v, want none", s.IndexSpecs())
	}
}

// -----------------------------------------------------------------------------
// Fingerprint
// -----------------------------------------------------------------------------

func TestCompile_FingerprintDeterministic(t *testing.T) {
	tpl := func() *Template {
		return &Template{
			Name: "User",
			Fields: []Descriptor{
				{Name: "nick", Type: String(), Unique: true},
				{Name: "age", Type: Int(), Default: 18},
			},
		}
	}

	a := compileOk(t, tpl(), nil)
	b := compileOk(t, tpl(), nil)
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("identical templates produced different fingerprints")
	}

	changed := tpl()
	changed.Fields[1].Default = 21
	c := compileOk(t, changed, nil)
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("changed default did not change the fingerprint")
	}
}

// -----------------------------------------------------------------------------
// Pipeline with discriminator
// -----------------------------------------------------------------------------

func TestSchema_LoadDiscriminator(t *testing.T) {
	parentTpl := &Template{Name: "Parent", Meta: Meta{AllowInheritance: boolPtr(true)}}
	parent := compileOk(t, parentTpl, nil)
	child := compileOk(t, &Template{Name: "Child", Parent: parentTpl}, parent)

	values, err := child.Load(map[string]any{})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if values[DiscriminatorName] != "Child" {
		t.Errorf("values[cls] = %v, want Child", values[DiscriminatorName])
	}

	if _, err := child.Load(map[string]any{"cls": "Child"}); err != nil {
		t.Errorf("Load rejected the schema's own discriminator value: %v", err)
	}

	_, err = child.Load(map[string]any{"cls": "Parent"})
	if err == nil {
		t.Fatal("Load accepted a foreign discriminator value")
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error is %T, want *ValidationError", err)
	}
	if len(ve.Fields[DiscriminatorName]) == 0 {
		t.Errorf("errors = %v, want one under cls", ve.Fields)
	}
}

func TestSchema_StorageUsesAttributes(t *testing.T) {
	parentTpl := &Template{
		Name:   "Parent",
		Fields: []Descriptor{{Name: "nick", Type: String()}},
		Meta:   Meta{AllowInheritance: boolPtr(true)},
	}
	parent := compileOk(t, parentTpl, nil)
	child := compileOk(t, &Template{Name: "Child", Parent: parentTpl}, parent)

	values, err := child.Load(map[string]any{"nick": "bob"})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	stored := child.ToStorage(values)
	if stored[DiscriminatorAttribute] != "Child" {
		t.Errorf("stored[_cls] = %v, want Child", stored[DiscriminatorAttribute])
	}
	if _, ok := stored[DiscriminatorName]; ok {
		t.Error("storage mapping used the logical discriminator name")
	}

	back, err := child.FromStorage(stored)
	if err != nil {
		t.Fatalf("FromStorage returned error: %v", err)
	}
	if back["nick"] != "bob" || back[DiscriminatorName] != "Child" {
		t.Errorf("FromStorage = %v", back)
	}
}
