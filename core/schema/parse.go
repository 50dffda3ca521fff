package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/albmarin/umongo/core/indexes"
)

// Declaration is one parsed template file, before inheritance is
// resolved. Extends names the parent template, which may live in
// another file.
type Declaration struct {
	Template *Template
	Extends  string
	File     string
}

// ParseFile parses a template declaration from a YAML file.
func ParseFile(path string) (Declaration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Declaration{}, fmt.Errorf("read file %s: %w", path, err)
	}
	decl, err := Parse(data)
	if err != nil {
		return Declaration{}, fmt.Errorf("parse %s: %w", path, err)
	}
	decl.File = path
	return decl, nil
}

// Parse parses a template declaration from YAML bytes.
func Parse(data []byte) (Declaration, error) {
	var decl templateDecl
	if err := yaml.Unmarshal(data, &decl); err != nil {
		return Declaration{}, fmt.Errorf("parse yaml: %w", err)
	}
	tpl, err := buildTemplate(decl)
	if err != nil {
		return Declaration{}, err
	}
	return Declaration{Template: tpl, Extends: decl.Extends}, nil
}

// ParseDir parses every template declaration under a directory,
// including subdirectories. Entries are visited in name order, so the
// result is deterministic.
func ParseDir(dir string) ([]Declaration, error) {
	var decls []Declaration

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			sub, err := ParseDir(path)
			if err != nil {
				return nil, err
			}
			decls = append(decls, sub...)
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		decl, err := ParseFile(path)
		if err != nil {
			return nil, err
		}
		decls = append(decls, decl)
	}

	return decls, nil
}

// Resolve wires the Parent pointers of parsed declarations and returns
// the templates ordered parents before children, ready for
// registration. Duplicate names, unknown parents and inheritance
// cycles are definition errors.
func Resolve(decls []Declaration) ([]*Template, error) {
	byName := make(map[string]Declaration, len(decls))
	for _, d := range decls {
		if prev, dup := byName[d.Template.Name]; dup {
			return nil, DefinitionErrorf(d.Template.Name,
				"declared twice (%s and %s)", locationOf(prev), locationOf(d))
		}
		byName[d.Template.Name] = d
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(decls))
	ordered := make([]*Template, 0, len(decls))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return DefinitionErrorf(name, "inheritance cycle detected")
		}
		state[name] = visiting

		d := byName[name]
		if d.Extends != "" {
			parent, ok := byName[d.Extends]
			if !ok {
				return DefinitionErrorf(name, "extends unknown template %s", d.Extends)
			}
			if err := visit(parent.Template.Name); err != nil {
				return err
			}
			d.Template.Parent = parent.Template
		}

		ordered = append(ordered, d.Template)
		state[name] = done
		return nil
	}

	for _, d := range decls {
		if err := visit(d.Template.Name); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

func locationOf(d Declaration) string {
	if d.File != "" {
		return d.File
	}
	return "inline"
}

// -----------------------------------------------------------------------------
// YAML carriers
// -----------------------------------------------------------------------------

type templateDecl struct {
	Name             string              `yaml:"name"`
	Extends          string              `yaml:"extends"`
	Abstract         bool                `yaml:"abstract"`
	AllowInheritance *bool               `yaml:"allow_inheritance"`
	Collection       string              `yaml:"collection"`
	Fields           []fieldDecl         `yaml:"fields"`
	Indexes          []indexes.Directive `yaml:"indexes"`
	Validate         []string            `yaml:"validate"`
}

type fieldDecl struct {
	Name      string `yaml:"name"`
	Attribute string `yaml:"attribute"`
	Required  bool   `yaml:"required"`
	Unique    bool   `yaml:"unique"`
	Nullable  bool   `yaml:"nullable"`
	DumpOnly  bool   `yaml:"dump_only"`
	Default   any    `yaml:"default"`

	typeDecl `yaml:",inline"`

	Constraints []Constraint `yaml:"constraints"`
	Validate    []string     `yaml:"validate"`
	IoValidate  []string     `yaml:"io_validate"`
}

// typeDecl is the type part of a field declaration. Lists nest one via
// `of`, embedded documents via `fields`. `of` also accepts the scalar
// shorthand `of: string`.
type typeDecl struct {
	Type   string      `yaml:"type"`
	Values []string    `yaml:"values"`
	To     string      `yaml:"to"`
	Of     *typeDecl   `yaml:"of"`
	Fields []fieldDecl `yaml:"fields"`
}

// UnmarshalYAML accepts either the scalar shorthand (a bare type name)
// or the full mapping form.
func (t *typeDecl) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		t.Type = node.Value
		return nil
	}
	type plain typeDecl
	return node.Decode((*plain)(t))
}

// -----------------------------------------------------------------------------
// Declaration building
// -----------------------------------------------------------------------------

func buildTemplate(decl templateDecl) (*Template, error) {
	if decl.Name == "" {
		return nil, &DefinitionError{Reason: "template has no name"}
	}
	if !isValidIdentifier(decl.Name) {
		return nil, DefinitionErrorf(decl.Name, "template name is not a valid identifier")
	}

	fields := make([]Descriptor, 0, len(decl.Fields))
	for _, fd := range decl.Fields {
		d, err := buildDescriptor(decl.Name, fd)
		if err != nil {
			return nil, err
		}
		fields = append(fields, d)
	}

	validators := make([]DocumentValidator, 0, len(decl.Validate))
	for _, rule := range decl.Validate {
		v, err := ExprDocValidator(rule)
		if err != nil {
			return nil, DefinitionErrorf(decl.Name, "invalid rule %q: %s", rule, err.Error())
		}
		validators = append(validators, v)
	}

	return &Template{
		Name:   decl.Name,
		Fields: fields,
		Meta: Meta{
			Abstract:         decl.Abstract,
			AllowInheritance: decl.AllowInheritance,
			Collection:       decl.Collection,
			Indexes:          decl.Indexes,
		},
		Validators: validators,
	}, nil
}

func buildDescriptor(template string, fd fieldDecl) (Descriptor, error) {
	if fd.Name == "" {
		return Descriptor{}, DefinitionErrorf(template, "field has no name")
	}

	typ, err := buildType(fd.typeDecl)
	if err != nil {
		return Descriptor{}, DefinitionErrorf(template, "field %s: %s", fd.Name, err.Error())
	}

	validators := make([]Validator, 0, len(fd.Validate))
	for _, rule := range fd.Validate {
		v, err := ExprValidator(rule)
		if err != nil {
			return Descriptor{}, DefinitionErrorf(template, "field %s: invalid rule %q: %s", fd.Name, rule, err.Error())
		}
		validators = append(validators, v)
	}

	ioValidators := make([]IoValidator, 0, len(fd.IoValidate))
	for _, name := range fd.IoValidate {
		switch name {
		case "ref_exists":
			ioValidators = append(ioValidators, RefExists())
		default:
			return Descriptor{}, DefinitionErrorf(template, "field %s: unknown io validator %q", fd.Name, name)
		}
	}

	return Descriptor{
		Name:         fd.Name,
		Attribute:    fd.Attribute,
		Type:         typ,
		Required:     fd.Required,
		Unique:       fd.Unique,
		Nullable:     fd.Nullable,
		DumpOnly:     fd.DumpOnly,
		Default:      fd.Default,
		Constraints:  fd.Constraints,
		Validators:   validators,
		IoValidators: ioValidators,
	}, nil
}

func buildType(decl typeDecl) (Type, error) {
	switch decl.Type {
	case "string":
		return String(), nil
	case "email":
		return Email(), nil
	case "url":
		return URL(), nil
	case "uuid":
		return UUID(), nil
	case "secret":
		return Secret(), nil
	case "int", "integer":
		return Int(), nil
	case "float", "number":
		return Float(), nil
	case "bool", "boolean":
		return Bool(), nil
	case "datetime", "timestamp":
		return DateTime(), nil
	case "id":
		return ID(), nil
	case "enum":
		if len(decl.Values) == 0 {
			return nil, fmt.Errorf("enum type requires values")
		}
		return Enum(decl.Values...), nil
	case "ref":
		if decl.To == "" {
			return nil, fmt.Errorf("ref type requires 'to' target")
		}
		return Ref(decl.To), nil
	case "list":
		if decl.Of == nil {
			return nil, fmt.Errorf("list type requires 'of' element type")
		}
		elem, err := buildType(*decl.Of)
		if err != nil {
			return nil, err
		}
		return List(elem), nil
	case "embedded":
		if len(decl.Fields) == 0 {
			return nil, fmt.Errorf("embedded type requires fields")
		}
		fields := make([]Descriptor, 0, len(decl.Fields))
		for _, fd := range decl.Fields {
			d, err := buildDescriptor("", fd)
			if err != nil {
				return nil, err
			}
			fields = append(fields, d)
		}
		return Embedded(fields...), nil
	case "":
		return nil, fmt.Errorf("field has no type")
	default:
		return nil, fmt.Errorf("unknown type %q", decl.Type)
	}
}

// isValidIdentifier checks if a string is a valid identifier.
func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, c := range s {
		if i == 0 {
			if !isLetter(c) && c != '_' {
				return false
			}
		} else {
			if !isLetter(c) && !isDigit(c) && c != '_' {
				return false
			}
		}
	}

	return true
}

func isLetter(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}
