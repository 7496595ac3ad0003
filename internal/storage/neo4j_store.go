package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog"
)

const constraintViolation = "Neo.ClientError.Schema.ConstraintValidationFailed"

// Neo4jStore implements Store on top of a DBRunner.
type Neo4jStore struct {
	runner DBRunner
	logger zerolog.Logger
}

// NewNeo4jStore creates a store that runs its queries through runner.
func NewNeo4jStore(runner DBRunner, logger zerolog.Logger) *Neo4jStore {
	return &Neo4jStore{
		runner: runner,
		logger: logger.With().Str("component", "neo4j").Logger(),
	}
}

func (s *Neo4jStore) run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	s.logger.Debug().Str("query", query).Msg("cypher")
	res, err := s.runner.Run(ctx, query, params)
	if err != nil {
		var nerr *neo4j.Neo4jError
		if errors.As(err, &nerr) && nerr.Code == constraintViolation {
			return nil, fmt.Errorf("%w: %s", ErrConflict, nerr.Msg)
		}
		return nil, err
	}
	return res, nil
}

func (s *Neo4jStore) read(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	s.logger.Debug().Str("query", query).Msg("cypher")
	return s.runner.Read(ctx, query, params)
}

// Find returns nodes with the label matching where.
func (s *Neo4jStore) Find(ctx context.Context, label string, where *Filter, opts Options) ([]Properties, error) {
	c := newCypher()
	pred, err := c.predicate("n", where)
	if err != nil {
		return nil, err
	}

	query := "MATCH " + nodePattern("n", label) + whereClause(pred) + " RETURN n" + c.paging("n", opts)
	res, err := s.read(ctx, query, c.params)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", label, err)
	}
	return nodesFrom(res, "n")
}

// Count returns the number of nodes with the label matching where.
func (s *Neo4jStore) Count(ctx context.Context, label string, where *Filter) (int, error) {
	c := newCypher()
	pred, err := c.predicate("n", where)
	if err != nil {
		return 0, err
	}

	query := "MATCH " + nodePattern("n", label) + whereClause(pred) + " RETURN count(n) AS count"
	res, err := s.read(ctx, query, c.params)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", label, err)
	}
	return intFrom(res, "count")
}

// Create inserts a node.
func (s *Neo4jStore) Create(ctx context.Context, label, key string, props Properties) (Properties, error) {
	if props[key] == nil {
		return nil, fmt.Errorf("create %s: key property %q is not set", label, key)
	}

	c := newCypher()
	query := "CREATE " + nodePattern("n", label) + " SET n = " + c.param(props) + " RETURN n"
	res, err := s.run(ctx, query, c.params)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", label, err)
	}

	nodes, err := nodesFrom(res, "n")
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("create %s: no node returned", label)
	}
	return nodes[0], nil
}

// Update sets props on every node matching where.
func (s *Neo4jStore) Update(ctx context.Context, label string, where *Filter, props Properties) ([]Properties, error) {
	c := newCypher()
	pred, err := c.predicate("n", where)
	if err != nil {
		return nil, err
	}

	query := "MATCH " + nodePattern("n", label) + whereClause(pred) + " SET n += " + c.param(props) + " RETURN n"
	res, err := s.run(ctx, query, c.params)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", label, err)
	}
	return nodesFrom(res, "n")
}

// Delete removes the matching nodes and their relationships.
func (s *Neo4jStore) Delete(ctx context.Context, label string, where *Filter) (DeleteInfo, error) {
	c := newCypher()
	pred, err := c.predicate("n", where)
	if err != nil {
		return DeleteInfo{}, err
	}

	query := "MATCH " + nodePattern("n", label) + whereClause(pred) +
		" OPTIONAL MATCH (n)-[r]-()" +
		" WITH collect(DISTINCT n) AS nodes, collect(DISTINCT r) AS rels" +
		" FOREACH (x IN rels | DELETE x)" +
		" FOREACH (x IN nodes | DELETE x)" +
		" RETURN size(nodes) AS nodes, size(rels) AS relationships"
	res, err := s.run(ctx, query, c.params)
	if err != nil {
		return DeleteInfo{}, fmt.Errorf("delete %s: %w", label, err)
	}

	nodes, err := intFrom(res, "nodes")
	if err != nil {
		return DeleteInfo{}, err
	}
	rels, err := intFrom(res, "relationships")
	if err != nil {
		return DeleteInfo{}, err
	}
	return DeleteInfo{NodesDeleted: nodes, RelationshipsDeleted: rels}, nil
}

// Merge upserts the node identified by ref.
func (s *Neo4jStore) Merge(ctx context.Context, ref NodeRef, props, onCreate Properties) (Properties, error) {
	if onCreate == nil {
		onCreate = Properties{}
	}
	if props == nil {
		props = Properties{}
	}

	c := newCypher()
	query := "MERGE (n:" + quote(ref.Label) + " {" + quote(ref.Key) + ": " + c.param(ref.ID) + "})" +
		" ON CREATE SET n += " + c.param(onCreate) +
		" SET n += " + c.param(props) +
		" RETURN n"
	res, err := s.run(ctx, query, c.params)
	if err != nil {
		return nil, fmt.Errorf("merge %s: %w", ref.Label, err)
	}

	nodes, err := nodesFrom(res, "n")
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("merge %s: no node returned", ref.Label)
	}
	return nodes[0], nil
}

func (c *cypher) anchor(variable string, ref NodeRef) string {
	return "(" + variable + ":" + quote(ref.Label) + " {" + quote(ref.Key) + ": " + c.param(ref.ID) + "})"
}

// Connect links from to the target nodes matching where.
func (s *Neo4jStore) Connect(ctx context.Context, from NodeRef, rel Relation, where *Filter) (int, error) {
	c := newCypher()
	pred, err := c.predicate("b", where)
	if err != nil {
		return 0, err
	}

	query := "MATCH " + c.anchor("a", from) +
		" MATCH " + nodePattern("b", rel.Target) + whereClause(pred) +
		" WITH a, b"
	if rel.Single {
		query += " LIMIT 1" +
			" OPTIONAL MATCH " + edgePattern("(a)", "old", rel.Type, rel.Direction, nodePattern("", rel.Target)) +
			" DELETE old WITH DISTINCT a, b"
	}
	if rel.InverseSingle {
		query += " OPTIONAL MATCH " + edgePattern("(b)", "prev", rel.Type, rel.Direction.Reverse(), nodePattern("", from.Label)) +
			" DELETE prev WITH DISTINCT a, b"
	}
	query += " MERGE " + edgePattern("(a)", "", rel.Type, rel.Direction, "(b)") +
		" RETURN count(*) AS connected"

	res, err := s.run(ctx, query, c.params)
	if err != nil {
		return 0, fmt.Errorf("connect %s: %w", rel.Type, err)
	}
	return intFrom(res, "connected")
}

// Disconnect removes relationships from from to targets matching where.
func (s *Neo4jStore) Disconnect(ctx context.Context, from NodeRef, rel Relation, where *Filter) (int, error) {
	c := newCypher()
	anchor := c.anchor("a", from)
	pred, err := c.predicate("b", where)
	if err != nil {
		return 0, err
	}

	query := "MATCH " + edgePattern(anchor, "r", rel.Type, rel.Direction, nodePattern("b", rel.Target)) + whereClause(pred) +
		" WITH collect(DISTINCT r) AS rels" +
		" FOREACH (x IN rels | DELETE x)" +
		" RETURN size(rels) AS removed"
	res, err := s.run(ctx, query, c.params)
	if err != nil {
		return 0, fmt.Errorf("disconnect %s: %w", rel.Type, err)
	}
	return intFrom(res, "removed")
}

// Related returns the target nodes linked to from through rel.
func (s *Neo4jStore) Related(ctx context.Context, from NodeRef, rel Relation, where *Filter, opts Options) ([]Properties, error) {
	c := newCypher()
	anchor := c.anchor("a", from)
	pred, err := c.predicate("n", where)
	if err != nil {
		return nil, err
	}

	query := "MATCH " + edgePattern(anchor, "", rel.Type, rel.Direction, nodePattern("n", rel.Target)) + whereClause(pred) +
		" RETURN DISTINCT n" + c.paging("n", opts)
	res, err := s.read(ctx, query, c.params)
	if err != nil {
		return nil, fmt.Errorf("related %s: %w", rel.Type, err)
	}
	return nodesFrom(res, "n")
}

// EnsureKey creates a uniqueness constraint on label.key.
func (s *Neo4jStore) EnsureKey(ctx context.Context, label, key string) error {
	name := quote(fmt.Sprintf("%s_%s_unique", label, key))
	query := "CREATE CONSTRAINT " + name + " IF NOT EXISTS FOR (n:" + quote(label) + ") REQUIRE n." + quote(key) + " IS UNIQUE"
	if _, err := s.run(ctx, query, nil); err != nil {
		return fmt.Errorf("ensure key %s.%s: %w", label, key, err)
	}
	return nil
}

// Ping verifies connectivity.
func (s *Neo4jStore) Ping(ctx context.Context) error {
	if v, ok := s.runner.(interface{ Verify(context.Context) error }); ok {
		return v.Verify(ctx)
	}
	_, err := s.read(ctx, "RETURN 1 AS ok", nil)
	return err
}

// Close closes the underlying driver when the runner owns one.
func (s *Neo4jStore) Close(ctx context.Context) error {
	if c, ok := s.runner.(interface{ Close(context.Context) error }); ok {
		return c.Close(ctx)
	}
	return nil
}

func nodesFrom(res *neo4j.EagerResult, key string) ([]Properties, error) {
	nodes := make([]Properties, 0, len(res.Records))
	for _, record := range res.Records {
		v, ok := record.Get(key)
		if !ok {
			return nil, fmt.Errorf("result has no column %q", key)
		}
		node, ok := v.(neo4j.Node)
		if !ok {
			return nil, fmt.Errorf("column %q is %T, not a node", key, v)
		}
		nodes = append(nodes, fromNeo4j(node.Props))
	}
	return nodes, nil
}

// fromNeo4j converts driver temporal values to time.Time.
func fromNeo4j(props map[string]any) Properties {
	out := make(Properties, len(props))
	for k, v := range props {
		switch tv := v.(type) {
		case neo4j.Time:
			out[k] = tv.Time()
		case neo4j.LocalDateTime:
			out[k] = tv.Time()
		default:
			out[k] = v
		}
	}
	return out
}

func intFrom(res *neo4j.EagerResult, key string) (int, error) {
	if len(res.Records) == 0 {
		return 0, nil
	}
	v, ok := res.Records[0].Get(key)
	if !ok {
		return 0, fmt.Errorf("result has no column %q", key)
	}
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case int:
		return n, nil
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("column %q is %T, not an integer", key, v)
}

var _ Store = (*Neo4jStore)(nil)
