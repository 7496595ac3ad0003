package graph

import (
	"sort"
	"strings"

	"github.com/graphql-go/graphql"

	"evalgo.org/realmgate/internal/schema"
	"evalgo.org/realmgate/internal/storage"
)

// whereKey is the meaning of one key of a TWhere input.
type whereKey struct {
	name string

	// scalar comparisons
	field *schema.Field
	op    storage.Operator

	// relationship filters
	rel        *schema.Field
	quantifier storage.Quantifier
}

// builder assembles graphql-go types for every model type. Types reference
// each other through thunks, so all of them are registered before any
// field map is evaluated.
type builder struct {
	s *Schema

	objects   map[string]*graphql.Object
	where     map[string]*graphql.InputObject
	sorts     map[string]*graphql.InputObject
	options   map[string]*graphql.InputObject
	creates   map[string]*graphql.InputObject
	updates   map[string]*graphql.InputObject
	connects  map[string]*graphql.InputObject
	whereKeys map[string][]whereKey
	byKey     map[string]map[string]whereKey

	sortDirection *graphql.Enum
	deleteInfo    *graphql.Object
}

func newBuilder(s *Schema) *builder {
	return &builder{
		s:         s,
		objects:   map[string]*graphql.Object{},
		where:     map[string]*graphql.InputObject{},
		sorts:     map[string]*graphql.InputObject{},
		options:   map[string]*graphql.InputObject{},
		creates:   map[string]*graphql.InputObject{},
		updates:   map[string]*graphql.InputObject{},
		connects:  map[string]*graphql.InputObject{},
		whereKeys: map[string][]whereKey{},
		byKey:     s.keys,
	}
}

var scalarTypes = map[string]*graphql.Scalar{
	schema.ScalarID:       graphql.ID,
	schema.ScalarString:   graphql.String,
	schema.ScalarInt:      graphql.Int,
	schema.ScalarFloat:    graphql.Float,
	schema.ScalarBoolean:  graphql.Boolean,
	schema.ScalarDateTime: graphql.DateTime,
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func nonNullOutput(t graphql.Output, nonNull bool) graphql.Output {
	if nonNull {
		return graphql.NewNonNull(t)
	}
	return t
}

func nonNullInput(t graphql.Input, nonNull bool) graphql.Input {
	if nonNull {
		return graphql.NewNonNull(t)
	}
	return t
}

func (b *builder) build() (graphql.Schema, error) {
	b.sortDirection = graphql.NewEnum(graphql.EnumConfig{
		Name: "SortDirection",
		Values: graphql.EnumValueConfigMap{
			"ASC":  &graphql.EnumValueConfig{Value: "ASC", Description: "Ascending order"},
			"DESC": &graphql.EnumValueConfig{Value: "DESC", Description: "Descending order"},
		},
	})
	b.deleteInfo = graphql.NewObject(graphql.ObjectConfig{
		Name: "DeleteInfo",
		Fields: graphql.Fields{
			"nodesDeleted":         &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"relationshipsDeleted": &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
		},
	})

	for _, t := range b.s.model.Types {
		b.registerWhereKeys(t)
	}
	for _, t := range b.s.model.Types {
		b.registerTypes(t)
	}

	query := graphql.Fields{}
	mutation := graphql.Fields{}
	for _, t := range b.s.model.Types {
		b.addQueries(t, query)
		b.addMutations(t, mutation)
	}

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    graphql.NewObject(graphql.ObjectConfig{Name: "Query", Fields: query}),
		Mutation: graphql.NewObject(graphql.ObjectConfig{Name: "Mutation", Fields: mutation}),
	})
}

func (b *builder) registerWhereKeys(t *schema.Type) {
	var keys []whereKey
	add := func(k whereKey) { keys = append(keys, k) }

	for _, f := range t.Exposed() {
		add(whereKey{name: f.Name, field: f, op: storage.OpEq})
		add(whereKey{name: f.Name + "_NOT", field: f, op: storage.OpNot})
		add(whereKey{name: f.Name + "_IN", field: f, op: storage.OpIn})
		add(whereKey{name: f.Name + "_NOT_IN", field: f, op: storage.OpNotIn})

		switch f.Type {
		case schema.ScalarID, schema.ScalarString:
			add(whereKey{name: f.Name + "_CONTAINS", field: f, op: storage.OpContains})
			add(whereKey{name: f.Name + "_STARTS_WITH", field: f, op: storage.OpStartsWith})
			add(whereKey{name: f.Name + "_ENDS_WITH", field: f, op: storage.OpEndsWith})
		case schema.ScalarInt, schema.ScalarFloat, schema.ScalarDateTime:
			add(whereKey{name: f.Name + "_LT", field: f, op: storage.OpLT})
			add(whereKey{name: f.Name + "_LTE", field: f, op: storage.OpLTE})
			add(whereKey{name: f.Name + "_GT", field: f, op: storage.OpGT})
			add(whereKey{name: f.Name + "_GTE", field: f, op: storage.OpGTE})
		}
	}

	for _, f := range t.Relationships() {
		if f.List {
			add(whereKey{name: f.Name + "_SOME", rel: f, quantifier: storage.Some})
			add(whereKey{name: f.Name + "_NONE", rel: f, quantifier: storage.None})
		} else {
			add(whereKey{name: f.Name, rel: f, quantifier: storage.Some})
			add(whereKey{name: f.Name + "_NOT", rel: f, quantifier: storage.None})
		}
	}

	b.whereKeys[t.Name] = keys
	b.byKey[t.Name] = make(map[string]whereKey, len(keys))
	for _, k := range keys {
		b.byKey[t.Name][k.name] = k
	}
}

func (b *builder) registerTypes(t *schema.Type) {
	b.where[t.Name] = graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   t.Name + "Where",
		Fields: graphql.InputObjectConfigFieldMapThunk(func() graphql.InputObjectConfigFieldMap { return b.whereFields(t) }),
	})

	sortFields := graphql.InputObjectConfigFieldMap{}
	for _, f := range t.Exposed() {
		sortFields[f.Name] = &graphql.InputObjectFieldConfig{Type: b.sortDirection}
	}
	b.sorts[t.Name] = graphql.NewInputObject(graphql.InputObjectConfig{
		Name:        t.Name + "Sort",
		Description: "Fields to sort " + t.Name + " results by. Only one field should be set per object.",
		Fields:      sortFields,
	})

	b.options[t.Name] = graphql.NewInputObject(graphql.InputObjectConfig{
		Name: t.Name + "Options",
		Fields: graphql.InputObjectConfigFieldMap{
			"sort":   &graphql.InputObjectFieldConfig{Type: graphql.NewList(graphql.NewNonNull(b.sorts[t.Name]))},
			"limit":  &graphql.InputObjectFieldConfig{Type: graphql.Int},
			"offset": &graphql.InputObjectFieldConfig{Type: graphql.Int},
		},
	})

	b.objects[t.Name] = graphql.NewObject(graphql.ObjectConfig{
		Name:        t.Name,
		Description: t.Description,
		Fields:      graphql.FieldsThunk(func() graphql.Fields { return b.objectFields(t) }),
	})

	b.creates[t.Name] = graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   t.Name + "CreateInput",
		Fields: graphql.InputObjectConfigFieldMapThunk(func() graphql.InputObjectConfigFieldMap { return b.createFields(t) }),
	})

	b.updates[t.Name] = graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   t.Name + "UpdateInput",
		Fields: graphql.InputObjectConfigFieldMapThunk(func() graphql.InputObjectConfigFieldMap { return b.updateFields(t) }),
	})
}

func (b *builder) whereFields(t *schema.Type) graphql.InputObjectConfigFieldMap {
	fields := graphql.InputObjectConfigFieldMap{}
	for _, k := range b.whereKeys[t.Name] {
		var typ graphql.Input
		switch {
		case k.rel != nil:
			typ = b.where[k.rel.Relationship.Target.Name]
		case k.op == storage.OpIn || k.op == storage.OpNotIn:
			typ = graphql.NewList(graphql.NewNonNull(scalarTypes[k.field.Type]))
		default:
			typ = scalarTypes[k.field.Type]
		}
		fields[k.name] = &graphql.InputObjectFieldConfig{Type: typ}
	}
	self := graphql.NewList(graphql.NewNonNull(b.where[t.Name]))
	fields["AND"] = &graphql.InputObjectFieldConfig{Type: self}
	fields["OR"] = &graphql.InputObjectFieldConfig{Type: self}
	return fields
}

func (b *builder) objectFields(t *schema.Type) graphql.Fields {
	fields := graphql.Fields{}
	for _, f := range t.Exposed() {
		fields[f.Name] = &graphql.Field{
			Type:        nonNullOutput(scalarTypes[f.Type], f.NonNull),
			Description: f.Description,
		}
	}

	for _, f := range t.Relationships() {
		target := f.Relationship.Target
		field := &graphql.Field{
			Description: f.Description,
			Resolve:     b.s.resolveRelationship(t, f),
		}
		if f.List {
			field.Type = graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(b.objects[target.Name])))
			field.Args = graphql.FieldConfigArgument{
				"where":   &graphql.ArgumentConfig{Type: b.where[target.Name]},
				"options": &graphql.ArgumentConfig{Type: b.options[target.Name]},
			}
		} else {
			field.Type = nonNullOutput(b.objects[target.Name], f.NonNull)
		}
		fields[f.Name] = field
	}
	return fields
}

// writable returns the exposed scalars a client may set.
func writable(t *schema.Type) []*schema.Field {
	var out []*schema.Field
	for _, f := range t.Exposed() {
		if !f.IsTimestamp() {
			out = append(out, f)
		}
	}
	return out
}

func (b *builder) createFields(t *schema.Type) graphql.InputObjectConfigFieldMap {
	fields := graphql.InputObjectConfigFieldMap{}
	for _, f := range writable(t) {
		required := f.NonNull
		if f.ID && f.Autogenerate {
			required = false
		}
		fields[f.Name] = &graphql.InputObjectFieldConfig{Type: nonNullInput(scalarTypes[f.Type], required)}
	}

	for _, f := range t.Relationships() {
		connect := b.connectInput(t, f)
		var connectType graphql.Input = connect
		if f.List {
			connectType = graphql.NewList(graphql.NewNonNull(connect))
		}
		fields[f.Name] = &graphql.InputObjectFieldConfig{
			Type: graphql.NewInputObject(graphql.InputObjectConfig{
				Name: t.Name + capitalize(f.Name) + "FieldInput",
				Fields: graphql.InputObjectConfigFieldMap{
					"connect": &graphql.InputObjectFieldConfig{Type: connectType},
				},
			}),
		}
	}
	return fields
}

func (b *builder) updateFields(t *schema.Type) graphql.InputObjectConfigFieldMap {
	fields := graphql.InputObjectConfigFieldMap{}
	for _, f := range writable(t) {
		if f.ID {
			continue
		}
		fields[f.Name] = &graphql.InputObjectFieldConfig{Type: scalarTypes[f.Type]}
	}

	for _, f := range t.Relationships() {
		connect := b.connectInput(t, f)
		disconnect := graphql.NewInputObject(graphql.InputObjectConfig{
			Name: t.Name + capitalize(f.Name) + "DisconnectFieldInput",
			Fields: graphql.InputObjectConfigFieldMap{
				"where": &graphql.InputObjectFieldConfig{Type: b.where[f.Relationship.Target.Name]},
			},
		})

		var connectType, disconnectType graphql.Input = connect, disconnect
		if f.List {
			connectType = graphql.NewList(graphql.NewNonNull(connect))
			disconnectType = graphql.NewList(graphql.NewNonNull(disconnect))
		}
		fields[f.Name] = &graphql.InputObjectFieldConfig{
			Type: graphql.NewInputObject(graphql.InputObjectConfig{
				Name: t.Name + capitalize(f.Name) + "UpdateFieldInput",
				Fields: graphql.InputObjectConfigFieldMap{
					"connect":    &graphql.InputObjectFieldConfig{Type: connectType},
					"disconnect": &graphql.InputObjectFieldConfig{Type: disconnectType},
				},
			}),
		}
	}
	return fields
}

// connectInput returns the shared TRConnectFieldInput type, creating it once.
func (b *builder) connectInput(t *schema.Type, f *schema.Field) *graphql.InputObject {
	name := t.Name + capitalize(f.Name) + "ConnectFieldInput"
	if in, ok := b.connects[name]; ok {
		return in
	}
	in := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: name,
		Fields: graphql.InputObjectConfigFieldMap{
			"where": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(b.where[f.Relationship.Target.Name])},
		},
	})
	b.connects[name] = in
	return in
}

func (b *builder) addQueries(t *schema.Type, query graphql.Fields) {
	plural := t.Plural()
	query[plural] = &graphql.Field{
		Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(b.objects[t.Name]))),
		Args: graphql.FieldConfigArgument{
			"where":   &graphql.ArgumentConfig{Type: b.where[t.Name]},
			"options": &graphql.ArgumentConfig{Type: b.options[t.Name]},
		},
		Resolve: b.s.resolveFind(t),
	}
	query[plural+"Count"] = &graphql.Field{
		Type: graphql.NewNonNull(graphql.Int),
		Args: graphql.FieldConfigArgument{
			"where": &graphql.ArgumentConfig{Type: b.where[t.Name]},
		},
		Resolve: b.s.resolveCount(t),
	}
}

func (b *builder) addMutations(t *schema.Type, mutation graphql.Fields) {
	plural := capitalize(t.Plural())
	list := graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(b.objects[t.Name])))

	mutation["create"+plural] = &graphql.Field{
		Type: list,
		Args: graphql.FieldConfigArgument{
			"input": &graphql.ArgumentConfig{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(b.creates[t.Name]))),
			},
		},
		Resolve: b.s.resolveCreate(t),
	}
	mutation["update"+plural] = &graphql.Field{
		Type: list,
		Args: graphql.FieldConfigArgument{
			"where":  &graphql.ArgumentConfig{Type: b.where[t.Name]},
			"update": &graphql.ArgumentConfig{Type: b.updates[t.Name]},
		},
		Resolve: b.s.resolveUpdate(t),
	}
	mutation["delete"+plural] = &graphql.Field{
		Type: graphql.NewNonNull(b.deleteInfo),
		Args: graphql.FieldConfigArgument{
			"where": &graphql.ArgumentConfig{Type: b.where[t.Name]},
		},
		Resolve: b.s.resolveDelete(t),
	}
}

// sortedKeys returns the keys of m in lexical order.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
