// Package schema reads the graph type definitions that drive the GraphQL API.
//
// Types are declared in GraphQL SDL with a small set of directives:
//
//	@id(autogenerate: Boolean = true)            key field, one per type
//	@timestamp(operations: [CREATE | UPDATE])    set by the server on writes
//	@relationship(type: String!, direction: IN | OUT)
//	@private                                     stored, never exposed
//
// The default model (Player owns Objects) is embedded in the binary.
package schema

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
)

//go:embed schema.graphql
var defaultSource string

// Scalars supported on stored fields.
const (
	ScalarID       = "ID"
	ScalarString   = "String"
	ScalarInt      = "Int"
	ScalarFloat    = "Float"
	ScalarBoolean  = "Boolean"
	ScalarDateTime = "DateTime"
)

var scalars = map[string]bool{
	ScalarID:       true,
	ScalarString:   true,
	ScalarInt:      true,
	ScalarFloat:    true,
	ScalarBoolean:  true,
	ScalarDateTime: true,
}

// IsScalar reports whether name is a supported scalar type.
func IsScalar(name string) bool {
	return scalars[name]
}

// Direction of a relationship seen from the declaring type.
type Direction string

const (
	In  Direction = "IN"
	Out Direction = "OUT"
)

// Operation is a write that can set a timestamp.
type Operation string

const (
	Create Operation = "CREATE"
	Update Operation = "UPDATE"
)

// Model is a validated set of types.
type Model struct {
	Types  []*Type
	byName map[string]*Type
}

// Type returns the type named name.
func (m *Model) Type(name string) (*Type, bool) {
	t, ok := m.byName[name]
	return t, ok
}

// Type is one node type. Its name is also the storage label.
type Type struct {
	Name        string
	Description string
	Fields      []*Field

	// Key is the @id field
	Key *Field
}

// Plural is the lower-camel plural used for root fields (Player -> players).
func (t *Type) Plural() string {
	return strings.ToLower(t.Name[:1]) + t.Name[1:] + "s"
}

// Field returns the field named name.
func (t *Type) Field(name string) (*Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// Scalars returns the stored (non-relationship) fields, private ones included.
func (t *Type) Scalars() []*Field {
	var out []*Field
	for _, f := range t.Fields {
		if f.Relationship == nil {
			out = append(out, f)
		}
	}
	return out
}

// Exposed returns the scalar fields visible through the API.
func (t *Type) Exposed() []*Field {
	var out []*Field
	for _, f := range t.Scalars() {
		if !f.Private {
			out = append(out, f)
		}
	}
	return out
}

// Relationships returns the relationship fields.
func (t *Type) Relationships() []*Field {
	var out []*Field
	for _, f := range t.Fields {
		if f.Relationship != nil {
			out = append(out, f)
		}
	}
	return out
}

// Timestamps returns the fields stamped on op.
func (t *Type) Timestamps(op Operation) []*Field {
	var out []*Field
	for _, f := range t.Fields {
		if f.StampedOn(op) {
			out = append(out, f)
		}
	}
	return out
}

// Field is a stored scalar or a relationship.
type Field struct {
	Name        string
	Description string

	// Type is the named type (scalar or target type name)
	Type string

	NonNull bool
	List    bool

	// ID marks the key field; Autogenerate assigns a UUID when unset on create
	ID           bool
	Autogenerate bool

	Timestamp []Operation
	Private   bool

	Relationship *Relationship
}

// StampedOn reports whether the field is a timestamp set on op.
func (f *Field) StampedOn(op Operation) bool {
	for _, o := range f.Timestamp {
		if o == op {
			return true
		}
	}
	return false
}

// IsTimestamp reports whether the server owns the field's value.
func (f *Field) IsTimestamp() bool {
	return len(f.Timestamp) > 0
}

// Relationship describes an edge declared on a field.
type Relationship struct {
	Type      string
	Direction Direction
	Target    *Type

	// Inverse is the field on Target declaring the same edge, if any
	Inverse *Field
}

// Default returns the embedded model.
func Default() (*Model, error) {
	return Parse(defaultSource)
}

// Load parses the SDL at path, or the embedded model when path is empty.
func Load(path string) (*Model, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", path, err)
	}
	return Parse(string(data))
}
