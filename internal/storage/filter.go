package storage

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// Operator is a comparison applied to one property.
type Operator string

const (
	OpEq         Operator = "EQ"
	OpNot        Operator = "NOT"
	OpIn         Operator = "IN"
	OpNotIn      Operator = "NOT_IN"
	OpContains   Operator = "CONTAINS"
	OpStartsWith Operator = "STARTS_WITH"
	OpEndsWith   Operator = "ENDS_WITH"
	OpLT         Operator = "LT"
	OpLTE        Operator = "LTE"
	OpGT         Operator = "GT"
	OpGTE        Operator = "GTE"
)

// Condition compares one property against a value.
type Condition struct {
	Field string
	Op    Operator
	Value any
}

// Quantifier selects how a relationship filter matches.
type Quantifier string

const (
	// Some matches when at least one related node matches.
	Some Quantifier = "SOME"
	// None matches when no related node matches.
	None Quantifier = "NONE"
)

// RelationFilter matches nodes by their related nodes.
type RelationFilter struct {
	Relation   Relation
	Quantifier Quantifier
	Where      *Filter
}

// Filter is a conjunction of conditions, relationship filters and nested
// AND/OR groups. A nil or empty filter matches everything.
type Filter struct {
	Conditions []Condition
	Relations  []RelationFilter
	And        []*Filter
	Or         []*Filter
}

// Eq is a filter with a single equality condition.
func Eq(field string, value any) *Filter {
	return &Filter{Conditions: []Condition{{Field: field, Op: OpEq, Value: value}}}
}

// IsEmpty reports whether the filter matches everything.
func (f *Filter) IsEmpty() bool {
	return f == nil || (len(f.Conditions) == 0 && len(f.Relations) == 0 && len(f.And) == 0 && len(f.Or) == 0)
}

// SortField orders results by one property.
type SortField struct {
	Field      string
	Descending bool
}

// Options control ordering and paging. A zero Limit means no limit.
type Options struct {
	Sort   []SortField
	Limit  int
	Offset int
}

// matchCondition evaluates a condition against node properties.
func matchCondition(props Properties, cond Condition) (bool, error) {
	actual, present := props[cond.Field]
	if !present {
		actual = nil
	}

	switch cond.Op {
	case OpEq:
		return valuesEqual(actual, cond.Value), nil
	case OpNot:
		return !valuesEqual(actual, cond.Value), nil
	case OpIn, OpNotIn:
		list, err := asList(cond.Value)
		if err != nil {
			return false, err
		}
		found := false
		for _, v := range list {
			if valuesEqual(actual, v) {
				found = true
				break
			}
		}
		if cond.Op == OpIn {
			return found, nil
		}
		return !found, nil
	case OpContains, OpStartsWith, OpEndsWith:
		s, ok := actual.(string)
		if !ok {
			return false, nil
		}
		needle := fmt.Sprint(cond.Value)
		switch cond.Op {
		case OpContains:
			return strings.Contains(s, needle), nil
		case OpStartsWith:
			return strings.HasPrefix(s, needle), nil
		default:
			return strings.HasSuffix(s, needle), nil
		}
	case OpLT, OpLTE, OpGT, OpGTE:
		cmp, ok := compareValues(actual, cond.Value)
		if !ok {
			return false, nil
		}
		switch cond.Op {
		case OpLT:
			return cmp < 0, nil
		case OpLTE:
			return cmp <= 0, nil
		case OpGT:
			return cmp > 0, nil
		default:
			return cmp >= 0, nil
		}
	}
	return false, fmt.Errorf("unsupported operator %q", cond.Op)
}

func asList(v any) ([]any, error) {
	if v == nil {
		return nil, nil
	}
	if list, ok := v.([]any); ok {
		return list, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if cmp, ok := compareValues(a, b); ok {
		return cmp == 0
	}
	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ab == bb
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders strings, numbers and times. ok is false when the two
// values are not comparable.
func compareValues(a, b any) (int, bool) {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case time.Time:
		bv, ok := toTime(b)
		if !ok {
			return 0, false
		}
		return av.Compare(bv), true
	}

	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return 0, false
	}
	switch {
	case af < bf:
		return -1, true
	case af > bf:
		return 1, true
	}
	return 0, true
}

func toTime(v any) (time.Time, bool) {
	switch tv := v.(type) {
	case time.Time:
		return tv, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, tv)
		return t, err == nil
	}
	return time.Time{}, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// applyOptions sorts and pages nodes in place of the database.
func applyOptions(nodes []Properties, opts Options) []Properties {
	if len(opts.Sort) > 0 {
		sort.SliceStable(nodes, func(i, j int) bool {
			for _, s := range opts.Sort {
				cmp, ok := compareValues(nodes[i][s.Field], nodes[j][s.Field])
				if !ok || cmp == 0 {
					continue
				}
				if s.Descending {
					return cmp > 0
				}
				return cmp < 0
			}
			return false
		})
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(nodes) {
			return []Properties{}
		}
		nodes = nodes[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(nodes) {
		nodes = nodes[:opts.Limit]
	}
	return nodes
}

func cloneProperties(p Properties) Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
