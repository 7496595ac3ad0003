package graph

import (
	"fmt"

	"github.com/graphql-go/graphql"

	"evalgo.org/realmgate/internal/schema"
	"evalgo.org/realmgate/internal/storage"
)

// relationOf describes a relationship field to the store.
func relationOf(f *schema.Field) storage.Relation {
	r := f.Relationship
	rel := storage.Relation{
		Type:      r.Type,
		Direction: storage.Direction(r.Direction),
		Target:    r.Target.Name,
		TargetKey: r.Target.Key.Name,
		Single:    !f.List,
	}
	if r.Inverse != nil {
		rel.InverseSingle = !r.Inverse.List
	}
	return rel
}

func refOf(t *schema.Type, node storage.Properties) (storage.NodeRef, error) {
	id, ok := node[t.Key.Name]
	if !ok || id == nil {
		return storage.NodeRef{}, fmt.Errorf("%s node has no %s", t.Name, t.Key.Name)
	}
	return storage.NodeRef{Label: t.Name, Key: t.Key.Name, ID: id}, nil
}

func (s *Schema) resolveFind(t *schema.Type) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		where, err := s.filter(t, p.Args["where"])
		if err != nil {
			return nil, err
		}
		opts, err := s.options(p.Args["options"])
		if err != nil {
			return nil, err
		}
		return s.store.Find(p.Context, t.Name, where, opts)
	}
}

func (s *Schema) resolveCount(t *schema.Type) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		where, err := s.filter(t, p.Args["where"])
		if err != nil {
			return nil, err
		}
		return s.store.Count(p.Context, t.Name, where)
	}
}

func (s *Schema) resolveRelationship(t *schema.Type, f *schema.Field) graphql.FieldResolveFn {
	rel := relationOf(f)
	target := f.Relationship.Target

	return func(p graphql.ResolveParams) (any, error) {
		source, ok := p.Source.(storage.Properties)
		if !ok {
			return nil, fmt.Errorf("unexpected source %T for %s.%s", p.Source, t.Name, f.Name)
		}
		ref, err := refOf(t, source)
		if err != nil {
			return nil, err
		}

		where, err := s.filter(target, p.Args["where"])
		if err != nil {
			return nil, err
		}
		opts, err := s.options(p.Args["options"])
		if err != nil {
			return nil, err
		}
		if !f.List {
			opts = storage.Options{Limit: 1}
		}

		nodes, err := s.store.Related(p.Context, ref, rel, where, opts)
		if err != nil {
			return nil, err
		}
		if f.List {
			return nodes, nil
		}
		if len(nodes) == 0 {
			return nil, nil
		}
		return nodes[0], nil
	}
}

func (s *Schema) resolveCreate(t *schema.Type) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		inputs, ok := p.Args["input"].([]any)
		if !ok {
			return nil, fmt.Errorf("input must be a list")
		}

		now := s.now().UTC()
		created := make([]storage.Properties, 0, len(inputs))
		for _, raw := range inputs {
			input, ok := raw.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("input items must be objects")
			}

			props := storage.Properties{}
			for _, f := range writable(t) {
				if v, ok := input[f.Name]; ok {
					props[f.Name] = v
				}
			}
			if props[t.Key.Name] == nil {
				if !t.Key.Autogenerate {
					return nil, fmt.Errorf("%s.%s is required", t.Name, t.Key.Name)
				}
				props[t.Key.Name] = s.newID()
			}
			for _, f := range t.Timestamps(schema.Create) {
				props[f.Name] = now
			}

			node, err := s.store.Create(p.Context, t.Name, t.Key.Name, props)
			if err != nil {
				return nil, err
			}
			ref, err := refOf(t, node)
			if err != nil {
				return nil, err
			}
			if err := s.applyRelationships(p, t, ref, input, false); err != nil {
				return nil, err
			}
			created = append(created, node)
		}
		return created, nil
	}
}

func (s *Schema) resolveUpdate(t *schema.Type) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		where, err := s.filter(t, p.Args["where"])
		if err != nil {
			return nil, err
		}
		update, _ := p.Args["update"].(map[string]any)

		props := storage.Properties{}
		for _, f := range writable(t) {
			if f.ID {
				continue
			}
			if v, ok := update[f.Name]; ok {
				props[f.Name] = v
			}
		}
		now := s.now().UTC()
		for _, f := range t.Timestamps(schema.Update) {
			props[f.Name] = now
		}

		nodes, err := s.store.Update(p.Context, t.Name, where, props)
		if err != nil {
			return nil, err
		}
		for _, node := range nodes {
			ref, err := refOf(t, node)
			if err != nil {
				return nil, err
			}
			if err := s.applyRelationships(p, t, ref, update, true); err != nil {
				return nil, err
			}
		}
		return nodes, nil
	}
}

func (s *Schema) resolveDelete(t *schema.Type) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		where, err := s.filter(t, p.Args["where"])
		if err != nil {
			return nil, err
		}
		info, err := s.store.Delete(p.Context, t.Name, where)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"nodesDeleted":         info.NodesDeleted,
			"relationshipsDeleted": info.RelationshipsDeleted,
		}, nil
	}
}

// applyRelationships runs the connect (and on update, disconnect) inputs of
// every relationship field present in input. Disconnects run first.
func (s *Schema) applyRelationships(p graphql.ResolveParams, t *schema.Type, ref storage.NodeRef, input map[string]any, update bool) error {
	for _, f := range t.Relationships() {
		fieldInput, ok := input[f.Name].(map[string]any)
		if !ok {
			continue
		}
		rel := relationOf(f)
		target := f.Relationship.Target

		if update {
			for _, item := range items(fieldInput["disconnect"]) {
				where, err := s.filter(target, item["where"])
				if err != nil {
					return err
				}
				if _, err := s.store.Disconnect(p.Context, ref, rel, where); err != nil {
					return err
				}
			}
		}

		for _, item := range items(fieldInput["connect"]) {
			where, err := s.filter(target, item["where"])
			if err != nil {
				return err
			}
			if _, err := s.store.Connect(p.Context, ref, rel, where); err != nil {
				return err
			}
		}
	}
	return nil
}

// items normalizes a single object or a list of objects.
func items(v any) []map[string]any {
	switch tv := v.(type) {
	case map[string]any:
		return []map[string]any{tv}
	case []any:
		out := make([]map[string]any, 0, len(tv))
		for _, item := range tv {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}
