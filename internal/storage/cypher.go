package storage

import (
	"fmt"
	"strings"
)

// cypher accumulates query parameters and fresh variable names while a
// query is assembled.
type cypher struct {
	params map[string]any
	nextP  int
	nextV  int
}

func newCypher() *cypher {
	return &cypher{params: map[string]any{}}
}

// param registers a value and returns its placeholder.
func (c *cypher) param(v any) string {
	name := fmt.Sprintf("p%d", c.nextP)
	c.nextP++
	c.params[name] = v
	return "$" + name
}

// variable returns an unused node variable name.
func (c *cypher) variable() string {
	name := fmt.Sprintf("m%d", c.nextV)
	c.nextV++
	return name
}

// quote escapes an identifier (label, type or property name).
func quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func nodePattern(variable, label string) string {
	if label == "" {
		return "(" + variable + ")"
	}
	return "(" + variable + ":" + quote(label) + ")"
}

// edgePattern joins two node patterns with a typed relationship in dir,
// seen from left.
func edgePattern(left, relVar, relType string, dir Direction, right string) string {
	rel := "[" + relVar + ":" + quote(relType) + "]"
	if dir == DirectionIn {
		return left + "<-" + rel + "-" + right
	}
	return left + "-" + rel + "->" + right
}

// predicate renders f as a WHERE expression over variable v. An empty
// filter renders as "".
func (c *cypher) predicate(v string, f *Filter) (string, error) {
	if f.IsEmpty() {
		return "", nil
	}

	var parts []string
	for _, cond := range f.Conditions {
		p, err := c.condition(v, cond)
		if err != nil {
			return "", err
		}
		parts = append(parts, p)
	}

	for _, rf := range f.Relations {
		p, err := c.relation(v, rf)
		if err != nil {
			return "", err
		}
		parts = append(parts, p)
	}

	for _, sub := range f.And {
		p, err := c.predicate(v, sub)
		if err != nil {
			return "", err
		}
		if p != "" {
			parts = append(parts, "("+p+")")
		}
	}

	if len(f.Or) > 0 {
		var ors []string
		matchesAll := false
		for _, sub := range f.Or {
			p, err := c.predicate(v, sub)
			if err != nil {
				return "", err
			}
			if p == "" {
				matchesAll = true
				continue
			}
			ors = append(ors, "("+p+")")
		}
		if !matchesAll && len(ors) > 0 {
			parts = append(parts, "("+strings.Join(ors, " OR ")+")")
		}
	}

	return strings.Join(parts, " AND "), nil
}

func (c *cypher) condition(v string, cond Condition) (string, error) {
	prop := v + "." + quote(cond.Field)

	switch cond.Op {
	case OpEq:
		if cond.Value == nil {
			return prop + " IS NULL", nil
		}
		return prop + " = " + c.param(cond.Value), nil
	case OpNot:
		if cond.Value == nil {
			return prop + " IS NOT NULL", nil
		}
		return "(" + prop + " IS NULL OR " + prop + " <> " + c.param(cond.Value) + ")", nil
	case OpIn:
		return prop + " IN " + c.param(cond.Value), nil
	case OpNotIn:
		return "NOT coalesce(" + prop + " IN " + c.param(cond.Value) + ", false)", nil
	case OpContains:
		return prop + " CONTAINS " + c.param(cond.Value), nil
	case OpStartsWith:
		return prop + " STARTS WITH " + c.param(cond.Value), nil
	case OpEndsWith:
		return prop + " ENDS WITH " + c.param(cond.Value), nil
	case OpLT:
		return prop + " < " + c.param(cond.Value), nil
	case OpLTE:
		return prop + " <= " + c.param(cond.Value), nil
	case OpGT:
		return prop + " > " + c.param(cond.Value), nil
	case OpGTE:
		return prop + " >= " + c.param(cond.Value), nil
	}
	return "", fmt.Errorf("unsupported operator %q", cond.Op)
}

func (c *cypher) relation(v string, rf RelationFilter) (string, error) {
	m := c.variable()
	pattern := edgePattern("("+v+")", "", rf.Relation.Type, rf.Relation.Direction, nodePattern(m, rf.Relation.Target))

	inner, err := c.predicate(m, rf.Where)
	if err != nil {
		return "", err
	}

	q := "EXISTS { MATCH " + pattern
	if inner != "" {
		q += " WHERE " + inner
	}
	q += " }"

	if rf.Quantifier == None {
		return "NOT " + q, nil
	}
	return q, nil
}

// paging renders ORDER BY / SKIP / LIMIT for variable v.
func (c *cypher) paging(v string, opts Options) string {
	var b strings.Builder
	if len(opts.Sort) > 0 {
		order := make([]string, 0, len(opts.Sort))
		for _, s := range opts.Sort {
			dir := "ASC"
			if s.Descending {
				dir = "DESC"
			}
			order = append(order, v+"."+quote(s.Field)+" "+dir)
		}
		b.WriteString(" ORDER BY " + strings.Join(order, ", "))
	}
	if opts.Offset > 0 {
		b.WriteString(" SKIP " + c.param(int64(opts.Offset)))
	}
	if opts.Limit > 0 {
		b.WriteString(" LIMIT " + c.param(int64(opts.Limit)))
	}
	return b.String()
}

// whereClause prefixes a non-empty predicate with WHERE.
func whereClause(predicate string) string {
	if predicate == "" {
		return ""
	}
	return " WHERE " + predicate
}
