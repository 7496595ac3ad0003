// Package storage provides the graph storage layer for realmgate.
//
// The Store interface is the one database handle shared by the GraphQL
// gateway and the auth gateway. Two backends implement it:
//   - Neo4jStore translates every operation into Cypher and runs it through
//     the official Neo4j Go driver
//   - MemoryStore keeps nodes and edges in a go-memdb database, for local
//     development and tests
//
// Stores are schema-agnostic: labels, key properties and relationship shapes
// are passed in by the caller.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"evalgo.org/realmgate/internal/config"
)

var (
	// ErrNotFound is returned when a node looked up by key does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a node with the same key already exists.
	ErrConflict = errors.New("record already exists")
)

// Properties are the property values of one node.
type Properties = map[string]any

// Direction is the direction of a relationship seen from the node it is declared on.
type Direction string

const (
	DirectionOut Direction = "OUT"
	DirectionIn  Direction = "IN"
)

// Reverse returns the opposite direction.
func (d Direction) Reverse() Direction {
	if d == DirectionOut {
		return DirectionIn
	}
	return DirectionOut
}

// Relation describes one side of a relationship.
type Relation struct {
	// Type is the relationship type (e.g. OWNS)
	Type string

	// Direction is the edge direction seen from the declaring node
	Direction Direction

	// Target is the label of the node on the other end
	Target string

	// TargetKey is the key property of Target nodes
	TargetKey string

	// Single means the declaring node has at most one such edge
	Single bool

	// InverseSingle means a target node has at most one such edge
	InverseSingle bool
}

// NodeRef identifies a single node by label and key property.
type NodeRef struct {
	Label string
	Key   string
	ID    any
}

// DeleteInfo reports what a delete removed.
type DeleteInfo struct {
	NodesDeleted         int `json:"nodesDeleted"`
	RelationshipsDeleted int `json:"relationshipsDeleted"`
}

// Store is the graph store used by every component.
type Store interface {
	// Find returns nodes with the label matching where.
	Find(ctx context.Context, label string, where *Filter, opts Options) ([]Properties, error)

	// Count returns the number of nodes with the label matching where.
	Count(ctx context.Context, label string, where *Filter) (int, error)

	// Create inserts a node. key names the key property, which must be set in props.
	Create(ctx context.Context, label, key string, props Properties) (Properties, error)

	// Update sets props on every node matching where and returns the updated nodes.
	Update(ctx context.Context, label string, where *Filter, props Properties) ([]Properties, error)

	// Delete removes every node matching where together with its relationships.
	Delete(ctx context.Context, label string, where *Filter) (DeleteInfo, error)

	// Merge upserts the node identified by ref. props are written on every call,
	// onCreate only when the node is created.
	Merge(ctx context.Context, ref NodeRef, props, onCreate Properties) (Properties, error)

	// Connect links from to the target nodes matching where and returns the
	// number of relationships created. Single sides replace existing edges.
	Connect(ctx context.Context, from NodeRef, rel Relation, where *Filter) (int, error)

	// Disconnect removes relationships from from to targets matching where.
	Disconnect(ctx context.Context, from NodeRef, rel Relation, where *Filter) (int, error)

	// Related returns the target nodes linked to from through rel.
	Related(ctx context.Context, from NodeRef, rel Relation, where *Filter, opts Options) ([]Properties, error)

	// EnsureKey prepares uniqueness of key for label (constraint or index).
	EnsureKey(ctx context.Context, label, key string) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store.
	Close(ctx context.Context) error
}

// New opens the store selected by the configuration.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Store, error) {
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		logger.Warn().Msg("using in-memory graph store, data is lost on restart")
		store, err := NewMemoryStore()
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.StorageNeo4j, "":
		executor, err := NewNeo4jExecutor(cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database)
		if err != nil {
			return nil, err
		}
		if err := executor.Verify(ctx); err != nil {
			_ = executor.Close(ctx)
			return nil, fmt.Errorf("neo4j is not reachable at %s: %w", cfg.Neo4j.URI, err)
		}
		logger.Info().Str("uri", cfg.Neo4j.URI).Str("database", cfg.Neo4j.Database).Msg("connected to neo4j")
		return NewNeo4jStore(executor, logger), nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
