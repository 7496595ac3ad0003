package schema

import (
	"fmt"
	"strconv"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// Parse reads SDL into a validated Model. Directive and scalar declarations
// in the document are accepted and ignored.
func Parse(sdl string) (*Model, error) {
	doc, err := parser.ParseSchema(&ast.Source{Name: "schema.graphql", Input: sdl})
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}

	m := &Model{byName: map[string]*Type{}}
	pending := map[*Field]*ast.FieldDefinition{}

	for _, def := range doc.Definitions {
		switch def.Kind {
		case ast.Scalar:
			if !IsScalar(def.Name) {
				return nil, fmt.Errorf("custom scalar %s is not supported", def.Name)
			}
			continue
		case ast.Object:
		default:
			return nil, fmt.Errorf("%s: only object types are supported, got %s", def.Name, def.Kind)
		}

		if _, dup := m.byName[def.Name]; dup {
			return nil, fmt.Errorf("type %s is declared twice", def.Name)
		}
		if IsScalar(def.Name) {
			return nil, fmt.Errorf("type %s shadows a scalar", def.Name)
		}

		t := &Type{Name: def.Name, Description: def.Description}
		for _, fd := range def.Fields {
			f, err := parseField(t, fd)
			if err != nil {
				return nil, err
			}
			t.Fields = append(t.Fields, f)
			if fd.Directives.ForName("relationship") != nil {
				pending[f] = fd
			}
		}
		m.Types = append(m.Types, t)
		m.byName[t.Name] = t
	}

	if len(m.Types) == 0 {
		return nil, fmt.Errorf("schema declares no types")
	}

	for _, t := range m.Types {
		for _, f := range t.Fields {
			fd, ok := pending[f]
			if !ok {
				continue
			}
			if err := resolveRelationship(m, t, f, fd); err != nil {
				return nil, err
			}
		}
	}

	for _, t := range m.Types {
		if err := validateType(t); err != nil {
			return nil, err
		}
	}
	for _, t := range m.Types {
		linkInverses(t)
	}
	return m, nil
}

func parseField(t *Type, fd *ast.FieldDefinition) (*Field, error) {
	f := &Field{
		Name:        fd.Name,
		Description: fd.Description,
		NonNull:     fd.Type.NonNull,
	}
	if len(fd.Arguments) > 0 {
		return nil, fmt.Errorf("%s.%s: field arguments are generated, not declared", t.Name, fd.Name)
	}

	typ := fd.Type
	if typ.Elem != nil {
		f.List = true
		typ = typ.Elem
		if typ.Elem != nil {
			return nil, fmt.Errorf("%s.%s: nested lists are not supported", t.Name, fd.Name)
		}
	}
	f.Type = typ.NamedType

	for _, d := range fd.Directives {
		switch d.Name {
		case "id":
			f.ID = true
			f.Autogenerate = true
			if arg := d.Arguments.ForName("autogenerate"); arg != nil {
				v, err := strconv.ParseBool(arg.Value.Raw)
				if err != nil {
					return nil, fmt.Errorf("%s.%s: @id(autogenerate) must be a Boolean", t.Name, fd.Name)
				}
				f.Autogenerate = v
			}
		case "timestamp":
			ops, err := timestampOperations(d)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", t.Name, fd.Name, err)
			}
			f.Timestamp = ops
		case "private":
			f.Private = true
		case "relationship":
			// resolved once every type is known
		default:
			return nil, fmt.Errorf("%s.%s: unknown directive @%s", t.Name, fd.Name, d.Name)
		}
	}
	return f, nil
}

func timestampOperations(d *ast.Directive) ([]Operation, error) {
	arg := d.Arguments.ForName("operations")
	if arg == nil {
		return []Operation{Create, Update}, nil
	}

	values := []*ast.Value{arg.Value}
	if arg.Value.Kind == ast.ListValue {
		values = values[:0]
		for _, child := range arg.Value.Children {
			values = append(values, child.Value)
		}
	}

	var ops []Operation
	for _, v := range values {
		switch Operation(v.Raw) {
		case Create, Update:
			ops = append(ops, Operation(v.Raw))
		default:
			return nil, fmt.Errorf("@timestamp operation %q must be CREATE or UPDATE", v.Raw)
		}
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("@timestamp needs at least one operation")
	}
	return ops, nil
}

func resolveRelationship(m *Model, t *Type, f *Field, fd *ast.FieldDefinition) error {
	d := fd.Directives.ForName("relationship")

	typeArg := d.Arguments.ForName("type")
	if typeArg == nil || typeArg.Value.Raw == "" {
		return fmt.Errorf("%s.%s: @relationship needs a type", t.Name, f.Name)
	}

	dir := Out
	if arg := d.Arguments.ForName("direction"); arg != nil {
		dir = Direction(arg.Value.Raw)
	}
	if dir != In && dir != Out {
		return fmt.Errorf("%s.%s: @relationship direction must be IN or OUT", t.Name, f.Name)
	}

	target, ok := m.Type(f.Type)
	if !ok {
		return fmt.Errorf("%s.%s: relationship target %s is not a declared type", t.Name, f.Name, f.Type)
	}

	f.Relationship = &Relationship{Type: typeArg.Value.Raw, Direction: dir, Target: target}
	return nil
}

func validateType(t *Type) error {
	var keys []*Field
	for _, f := range t.Fields {
		if f.ID {
			keys = append(keys, f)
		}

		if f.Relationship == nil {
			if !IsScalar(f.Type) {
				return fmt.Errorf("%s.%s: type %s needs @relationship or must be a scalar", t.Name, f.Name, f.Type)
			}
			if f.List {
				return fmt.Errorf("%s.%s: list scalars are not supported", t.Name, f.Name)
			}
		} else if f.ID || f.IsTimestamp() || f.Private {
			return fmt.Errorf("%s.%s: relationship fields cannot carry @id, @timestamp or @private", t.Name, f.Name)
		}

		if f.IsTimestamp() && f.Type != ScalarDateTime {
			return fmt.Errorf("%s.%s: @timestamp requires DateTime, got %s", t.Name, f.Name, f.Type)
		}
	}

	if len(keys) != 1 {
		return fmt.Errorf("type %s must have exactly one @id field, found %d", t.Name, len(keys))
	}
	key := keys[0]
	if key.Type != ScalarID && key.Type != ScalarString {
		return fmt.Errorf("%s.%s: @id field must be ID or String", t.Name, key.Name)
	}
	if key.Private {
		return fmt.Errorf("%s.%s: @id field cannot be private", t.Name, key.Name)
	}
	t.Key = key

	for _, f := range t.Relationships() {
		for _, other := range f.Relationship.Target.Relationships() {
			if other.Relationship.Type != f.Relationship.Type || other.Relationship.Target != t {
				continue
			}
			if other == f {
				continue
			}
			if other.Relationship.Direction == f.Relationship.Direction {
				return fmt.Errorf("%s.%s and %s.%s declare %s in the same direction",
					t.Name, f.Name, f.Relationship.Target.Name, other.Name, f.Relationship.Type)
			}
		}
	}
	return nil
}

func linkInverses(t *Type) {
	for _, f := range t.Relationships() {
		rel := f.Relationship
		for _, other := range rel.Target.Relationships() {
			o := other.Relationship
			if o.Type == rel.Type && o.Target == t && o.Direction != rel.Direction {
				rel.Inverse = other
				break
			}
		}
	}
}
