/*
Package schema defines declarative document templates and compiles them
into runtime schemas.

A template declares a document model: an ordered list of typed fields
plus meta (collection, inheritance, indexes). Templates are passive and
backend-free; compiling one produces a Schema that drives the whole
transformation pipeline between the three data worlds:

  - client:  untrusted input and rendered output
  - object:  validated in-memory values
  - storage: what the backend holds

# Template Definition

A minimal template in YAML:

	name: User
	fields:
	  - { name: nick, type: string, required: true, unique: true }
	  - { name: email, type: email }
	  - { name: password, type: secret }
	  - { name: status, type: enum, values: [pending, active, suspended], default: pending }
	  - { name: team, type: ref, to: Team, io_validate: [ref_exists] }

# Field Types

Supported field types:

  - string:    text value
  - int:       integer value (int64 in the object world)
  - float:     floating-point value
  - bool:      boolean value
  - datetime:  date/time value, millisecond precision, UTC
  - id:        primary-key identifier (string or integer)
  - email:     email address (validated)
  - url:       absolute URL (validated)
  - uuid:      UUID (validated)
  - enum:      one of a set of values (requires values)
  - ref:       reference to another template (requires to)
  - secret:    sensitive value, never dumped to the client
  - list:      ordered values of one element type (requires of)
  - embedded:  inline sub-document (requires fields)

# Inheritance

A template may extend another. The child inherits the parent's fields
in order, ahead of its own, and shares the nearest concrete ancestor's
collection. Children sharing a collection carry a discriminator field
(logical name "cls", stored as "_cls") holding their template name, so
loads can tell siblings apart:

	name: Admin
	extends: User
	fields:
	  - { name: clearance, type: int }

Abstract templates exist only to be inherited; they declare no
collection and cannot be instantiated.

# Validation

Fields validate in stages. Coercion and constraints run on every load
and assignment; `validate` rules are Expr expressions over `value`;
`io_validate` names backend-backed validators that run only before a
persist, and only when everything synchronous passed. Failures across
fields are aggregated into one ValidationError rather than truncated to
the first.

	fields:
	  - name: age
	    type: int
	    constraints:
	      - { type: min, value: 0 }
	    validate: ["value < 150"]

# Parsing

Load templates from YAML and resolve inheritance:

	decls, err := schema.ParseDir("schemas/")
	templates, err := schema.Resolve(decls)

Resolve orders templates parents before children, ready for
registration.
*/
package schema
