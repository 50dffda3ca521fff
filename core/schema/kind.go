package schema

// Kind is the semantic tag of a field type.
type Kind string

const (
	// Primitive kinds
	KindString   Kind = "string"
	KindInt      Kind = "int"
	KindFloat    Kind = "float"
	KindBool     Kind = "bool"
	KindDateTime Kind = "datetime"

	// Compound kinds
	KindList     Kind = "list"
	KindEmbedded Kind = "embedded"
	KindRef      Kind = "ref"

	// Semantic kinds (string with validation)
	KindEmail Kind = "email"
	KindURL   Kind = "url"
	KindUUID  Kind = "uuid"
	KindEnum  Kind = "enum"

	// Special kinds
	KindID     Kind = "id"     // primary-key identifier
	KindSecret Kind = "secret" // never dumped to the client
)

// IsValid reports whether the kind is one of the known tags.
func (k Kind) IsValid() bool {
	switch k {
	case KindString, KindInt, KindFloat, KindBool, KindDateTime,
		KindList, KindEmbedded, KindRef,
		KindEmail, KindURL, KindUUID, KindEnum,
		KindID, KindSecret:
		return true
	default:
		return false
	}
}
