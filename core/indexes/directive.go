package indexes

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Directive is one declared index in a template's meta. Three YAML
// forms are accepted:
//
//	- email              # single field reference
//	- [-age, name]       # compound key
//	- key: [-age, name]  # full form with backend options
//	  unique: true
//	  sparse: true
//	  expire_after: 3600
//	  name: custom_name
//
// Field references use storage names, optionally prefixed with a
// marker: "+" ascending (default), "-" descending, "$" text, "#"
// hashed.
type Directive struct {
	Keys        []Key
	Unique      bool
	Sparse      bool
	ExpireAfter int64
	Name        string
	Extra       map[string]any
}

// directiveDecl is the YAML carrier for the mapping form.
type directiveDecl struct {
	Key         []string       `yaml:"key"`
	Unique      bool           `yaml:"unique"`
	Sparse      bool           `yaml:"sparse"`
	ExpireAfter int64          `yaml:"expire_after"`
	Name        string         `yaml:"name"`
	Extra       map[string]any `yaml:"extra"`
}

// UnmarshalYAML accepts the scalar, sequence, and mapping directive forms.
func (d *Directive) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var ref string
		if err := node.Decode(&ref); err != nil {
			return err
		}
		key, err := ParseFieldRef(ref)
		if err != nil {
			return err
		}
		d.Keys = []Key{key}
		return nil

	case yaml.SequenceNode:
		var refs []string
		if err := node.Decode(&refs); err != nil {
			return err
		}
		keys, err := parseFieldRefs(refs)
		if err != nil {
			return err
		}
		d.Keys = keys
		return nil

	case yaml.MappingNode:
		var decl directiveDecl
		if err := node.Decode(&decl); err != nil {
			return err
		}
		keys, err := parseFieldRefs(decl.Key)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			return fmt.Errorf("index directive: key list is empty")
		}
		d.Keys = keys
		d.Unique = decl.Unique
		d.Sparse = decl.Sparse
		d.ExpireAfter = decl.ExpireAfter
		d.Name = decl.Name
		d.Extra = decl.Extra
		return nil

	default:
		return fmt.Errorf("index directive: expected scalar, sequence, or mapping")
	}
}

// ParseFieldRef parses a "[marker]fieldname" reference into a Key.
func ParseFieldRef(ref string) (Key, error) {
	if ref == "" {
		return Key{}, fmt.Errorf("index directive: empty field reference")
	}

	kind := Asc
	switch ref[0] {
	case '+':
		ref = ref[1:]
	case '-':
		kind = Desc
		ref = ref[1:]
	case '$':
		kind = Text
		ref = ref[1:]
	case '#':
		kind = Hashed
		ref = ref[1:]
	}

	if ref == "" {
		return Key{}, fmt.Errorf("index directive: field reference has a marker but no name")
	}

	return Key{Field: ref, Kind: kind}, nil
}

func parseFieldRefs(refs []string) ([]Key, error) {
	keys := make([]Key, 0, len(refs))
	for _, ref := range refs {
		key, err := ParseFieldRef(ref)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}
