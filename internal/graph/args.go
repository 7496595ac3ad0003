package graph

import (
	"fmt"

	"evalgo.org/realmgate/internal/schema"
	"evalgo.org/realmgate/internal/storage"
)

// filter converts a TWhere argument into a storage filter. A missing
// argument matches everything.
func (s *Schema) filter(t *schema.Type, arg any) (*storage.Filter, error) {
	if arg == nil {
		return nil, nil
	}
	where, ok := arg.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%sWhere must be an object", t.Name)
	}

	keys := s.keys[t.Name]
	f := &storage.Filter{}
	for _, name := range sortedKeys(where) {
		value := where[name]

		switch name {
		case "AND", "OR":
			subs, err := s.filterList(t, value)
			if err != nil {
				return nil, err
			}
			if name == "AND" {
				f.And = append(f.And, subs...)
			} else if len(subs) > 0 {
				f.Or = append(f.Or, subs...)
			}
			continue
		}

		key, ok := keys[name]
		if !ok {
			return nil, fmt.Errorf("unknown filter %s on %s", name, t.Name)
		}

		// null input fields never reach resolvers; "has no owner" is owner_NOT: {}
		if value == nil {
			continue
		}

		if key.rel != nil {
			sub, err := s.filter(key.rel.Relationship.Target, value)
			if err != nil {
				return nil, err
			}
			f.Relations = append(f.Relations, storage.RelationFilter{
				Relation:   relationOf(key.rel),
				Quantifier: key.quantifier,
				Where:      sub,
			})
			continue
		}

		f.Conditions = append(f.Conditions, storage.Condition{
			Field: key.field.Name,
			Op:    key.op,
			Value: value,
		})
	}
	return f, nil
}

func (s *Schema) filterList(t *schema.Type, value any) ([]*storage.Filter, error) {
	if value == nil {
		return nil, nil
	}
	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("AND/OR on %s must be a list", t.Name)
	}
	out := make([]*storage.Filter, 0, len(list))
	for _, item := range list {
		sub, err := s.filter(t, item)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			sub = &storage.Filter{}
		}
		out = append(out, sub)
	}
	return out, nil
}

// options converts a TOptions argument.
func (s *Schema) options(arg any) (storage.Options, error) {
	var opts storage.Options
	if arg == nil {
		return opts, nil
	}
	in, ok := arg.(map[string]any)
	if !ok {
		return opts, fmt.Errorf("options must be an object")
	}

	if v, ok := in["limit"].(int); ok {
		if v < 0 {
			return opts, fmt.Errorf("limit must not be negative")
		}
		opts.Limit = v
	}
	if v, ok := in["offset"].(int); ok {
		if v < 0 {
			return opts, fmt.Errorf("offset must not be negative")
		}
		opts.Offset = v
	}

	if list, ok := in["sort"].([]any); ok {
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			for _, field := range sortedKeys(m) {
				dir, _ := m[field].(string)
				if dir == "" {
					continue
				}
				opts.Sort = append(opts.Sort, storage.SortField{Field: field, Descending: dir == "DESC"})
			}
		}
	}
	return opts, nil
}
