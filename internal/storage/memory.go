package storage

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-memdb"
)

const (
	tableNode = "node"
	tableEdge = "edge"
)

// nodeRecord is one stored node. Records are never mutated once inserted.
type nodeRecord struct {
	Key   string
	Label string
	Props Properties
}

// edgeRecord is one stored relationship, From and To being node keys.
type edgeRecord struct {
	Key  string
	Type string
	From string
	To   string
}

func memorySchema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableNode: {
				Name: tableNode,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Key"},
					},
					"label": {
						Name:    "label",
						Indexer: &memdb.StringFieldIndex{Field: "Label"},
					},
				},
			},
			tableEdge: {
				Name: tableEdge,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Key"},
					},
					"from": {
						Name:    "from",
						Indexer: &memdb.StringFieldIndex{Field: "From"},
					},
					"to": {
						Name:    "to",
						Indexer: &memdb.StringFieldIndex{Field: "To"},
					},
				},
			},
		},
	}
}

// MemoryStore is a Store kept in process memory.
type MemoryStore struct {
	db *memdb.MemDB
}

// NewMemoryStore creates an empty in-memory graph.
func NewMemoryStore() (*MemoryStore, error) {
	db, err := memdb.NewMemDB(memorySchema())
	if err != nil {
		return nil, fmt.Errorf("failed to create memory store: %w", err)
	}
	return &MemoryStore{db: db}, nil
}

func nodeKey(label string, id any) string {
	return label + "\x00" + fmt.Sprint(id)
}

func edgeKey(relType, from, to string) string {
	return relType + "\x00" + from + "\x00" + to
}

// Find returns nodes with the label matching where.
func (m *MemoryStore) Find(_ context.Context, label string, where *Filter, opts Options) ([]Properties, error) {
	txn := m.db.Txn(false)
	defer txn.Abort()

	records, err := m.matching(txn, label, where)
	if err != nil {
		return nil, err
	}
	return applyOptions(propsOf(records), opts), nil
}

// Count returns the number of matching nodes.
func (m *MemoryStore) Count(_ context.Context, label string, where *Filter) (int, error) {
	txn := m.db.Txn(false)
	defer txn.Abort()

	records, err := m.matching(txn, label, where)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Create inserts a node, failing with ErrConflict on a duplicate key.
func (m *MemoryStore) Create(_ context.Context, label, key string, props Properties) (Properties, error) {
	id := props[key]
	if id == nil {
		return nil, fmt.Errorf("create %s: key property %q is not set", label, key)
	}

	txn := m.db.Txn(true)
	defer txn.Abort()

	k := nodeKey(label, id)
	existing, err := txn.First(tableNode, "id", k)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("create %s %v: %w", label, id, ErrConflict)
	}

	rec := &nodeRecord{Key: k, Label: label, Props: cloneProperties(props)}
	if err := txn.Insert(tableNode, rec); err != nil {
		return nil, err
	}
	txn.Commit()
	return cloneProperties(rec.Props), nil
}

// Update sets props on every matching node.
func (m *MemoryStore) Update(_ context.Context, label string, where *Filter, props Properties) ([]Properties, error) {
	txn := m.db.Txn(true)
	defer txn.Abort()

	records, err := m.matching(txn, label, where)
	if err != nil {
		return nil, err
	}

	out := make([]Properties, 0, len(records))
	for _, rec := range records {
		updated := &nodeRecord{Key: rec.Key, Label: rec.Label, Props: cloneProperties(rec.Props)}
		for k, v := range props {
			updated.Props[k] = v
		}
		if err := txn.Insert(tableNode, updated); err != nil {
			return nil, err
		}
		out = append(out, cloneProperties(updated.Props))
	}
	txn.Commit()
	return out, nil
}

// Delete removes the matching nodes and every relationship touching them.
func (m *MemoryStore) Delete(_ context.Context, label string, where *Filter) (DeleteInfo, error) {
	txn := m.db.Txn(true)
	defer txn.Abort()

	records, err := m.matching(txn, label, where)
	if err != nil {
		return DeleteInfo{}, err
	}

	edges := map[string]*edgeRecord{}
	for _, rec := range records {
		for _, index := range []string{"from", "to"} {
			touching, err := edgesBy(txn, index, rec.Key)
			if err != nil {
				return DeleteInfo{}, err
			}
			for _, e := range touching {
				edges[e.Key] = e
			}
		}
	}

	for _, e := range edges {
		if err := txn.Delete(tableEdge, e); err != nil {
			return DeleteInfo{}, err
		}
	}
	for _, rec := range records {
		if err := txn.Delete(tableNode, rec); err != nil {
			return DeleteInfo{}, err
		}
	}
	txn.Commit()

	return DeleteInfo{NodesDeleted: len(records), RelationshipsDeleted: len(edges)}, nil
}

// Merge upserts the node identified by ref.
func (m *MemoryStore) Merge(_ context.Context, ref NodeRef, props, onCreate Properties) (Properties, error) {
	txn := m.db.Txn(true)
	defer txn.Abort()

	k := nodeKey(ref.Label, ref.ID)
	raw, err := txn.First(tableNode, "id", k)
	if err != nil {
		return nil, err
	}

	var merged Properties
	if raw == nil {
		merged = Properties{ref.Key: ref.ID}
		for key, v := range onCreate {
			merged[key] = v
		}
	} else {
		merged = cloneProperties(raw.(*nodeRecord).Props)
	}
	for key, v := range props {
		merged[key] = v
	}

	rec := &nodeRecord{Key: k, Label: ref.Label, Props: merged}
	if err := txn.Insert(tableNode, rec); err != nil {
		return nil, err
	}
	txn.Commit()
	return cloneProperties(merged), nil
}

// Connect links from to the matching targets. A missing from node connects
// nothing.
func (m *MemoryStore) Connect(_ context.Context, from NodeRef, rel Relation, where *Filter) (int, error) {
	txn := m.db.Txn(true)
	defer txn.Abort()

	fromKey := nodeKey(from.Label, from.ID)
	raw, err := txn.First(tableNode, "id", fromKey)
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return 0, nil
	}

	targets, err := m.matching(txn, rel.Target, where)
	if err != nil {
		return 0, err
	}
	if len(targets) == 0 {
		return 0, nil
	}

	if rel.Single {
		targets = targets[:1]
		if err := deleteEdges(txn, fromKey, rel); err != nil {
			return 0, err
		}
	}

	inverse := Relation{Type: rel.Type, Direction: rel.Direction.Reverse(), Target: from.Label}
	for _, target := range targets {
		if rel.InverseSingle {
			if err := deleteEdges(txn, target.Key, inverse); err != nil {
				return 0, err
			}
		}

		src, dst := fromKey, target.Key
		if rel.Direction == DirectionIn {
			src, dst = dst, src
		}
		edge := &edgeRecord{Key: edgeKey(rel.Type, src, dst), Type: rel.Type, From: src, To: dst}
		if err := txn.Insert(tableEdge, edge); err != nil {
			return 0, err
		}
	}
	txn.Commit()
	return len(targets), nil
}

// Disconnect removes relationships from from to the matching targets.
func (m *MemoryStore) Disconnect(_ context.Context, from NodeRef, rel Relation, where *Filter) (int, error) {
	txn := m.db.Txn(true)
	defer txn.Abort()

	pairs, err := neighbors(txn, nodeKey(from.Label, from.ID), rel)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, p := range pairs {
		ok, err := m.matches(txn, p.node, where)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		if err := txn.Delete(tableEdge, p.edge); err != nil {
			return 0, err
		}
		removed++
	}
	txn.Commit()
	return removed, nil
}

// Related returns the target nodes linked to from through rel.
func (m *MemoryStore) Related(_ context.Context, from NodeRef, rel Relation, where *Filter, opts Options) ([]Properties, error) {
	txn := m.db.Txn(false)
	defer txn.Abort()

	pairs, err := neighbors(txn, nodeKey(from.Label, from.ID), rel)
	if err != nil {
		return nil, err
	}

	var records []*nodeRecord
	seen := map[string]bool{}
	for _, p := range pairs {
		if seen[p.node.Key] {
			continue
		}
		ok, err := m.matches(txn, p.node, where)
		if err != nil {
			return nil, err
		}
		if ok {
			seen[p.node.Key] = true
			records = append(records, p.node)
		}
	}
	return applyOptions(propsOf(records), opts), nil
}

// EnsureKey is a no-op: node keys are unique by construction.
func (m *MemoryStore) EnsureKey(context.Context, string, string) error {
	return nil
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

func (m *MemoryStore) Close(context.Context) error {
	return nil
}

// matching returns the nodes with label that match where.
func (m *MemoryStore) matching(txn *memdb.Txn, label string, where *Filter) ([]*nodeRecord, error) {
	it, err := txn.Get(tableNode, "label", label)
	if err != nil {
		return nil, err
	}

	var out []*nodeRecord
	for obj := it.Next(); obj != nil; obj = it.Next() {
		rec := obj.(*nodeRecord)
		ok, err := m.matches(txn, rec, where)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *MemoryStore) matches(txn *memdb.Txn, rec *nodeRecord, f *Filter) (bool, error) {
	if f.IsEmpty() {
		return true, nil
	}

	for _, cond := range f.Conditions {
		ok, err := matchCondition(rec.Props, cond)
		if err != nil || !ok {
			return false, err
		}
	}

	for _, rf := range f.Relations {
		pairs, err := neighbors(txn, rec.Key, rf.Relation)
		if err != nil {
			return false, err
		}
		found := false
		for _, p := range pairs {
			ok, err := m.matches(txn, p.node, rf.Where)
			if err != nil {
				return false, err
			}
			if ok {
				found = true
				break
			}
		}
		if found != (rf.Quantifier != None) {
			return false, nil
		}
	}

	for _, sub := range f.And {
		ok, err := m.matches(txn, rec, sub)
		if err != nil || !ok {
			return false, err
		}
	}

	if len(f.Or) > 0 {
		matched := false
		for _, sub := range f.Or {
			ok, err := m.matches(txn, rec, sub)
			if err != nil {
				return false, err
			}
			if ok {
				matched = true
				break
			}
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}

type neighbor struct {
	edge *edgeRecord
	node *nodeRecord
}

// neighbors returns the edges of rel at the node with key, paired with the
// node on the other end.
func neighbors(txn *memdb.Txn, key string, rel Relation) ([]neighbor, error) {
	index := "from"
	if rel.Direction == DirectionIn {
		index = "to"
	}

	edges, err := edgesBy(txn, index, key)
	if err != nil {
		return nil, err
	}

	var out []neighbor
	for _, e := range edges {
		if e.Type != rel.Type {
			continue
		}
		other := e.To
		if rel.Direction == DirectionIn {
			other = e.From
		}
		raw, err := txn.First(tableNode, "id", other)
		if err != nil {
			return nil, err
		}
		if raw == nil {
			continue
		}
		node := raw.(*nodeRecord)
		if rel.Target != "" && node.Label != rel.Target {
			continue
		}
		out = append(out, neighbor{edge: e, node: node})
	}
	return out, nil
}

func edgesBy(txn *memdb.Txn, index, key string) ([]*edgeRecord, error) {
	it, err := txn.Get(tableEdge, index, key)
	if err != nil {
		return nil, err
	}
	var out []*edgeRecord
	for obj := it.Next(); obj != nil; obj = it.Next() {
		out = append(out, obj.(*edgeRecord))
	}
	return out, nil
}

func deleteEdges(txn *memdb.Txn, key string, rel Relation) error {
	pairs, err := neighbors(txn, key, rel)
	if err != nil {
		return err
	}
	for _, p := range pairs {
		if err := txn.Delete(tableEdge, p.edge); err != nil {
			return err
		}
	}
	return nil
}

func propsOf(records []*nodeRecord) []Properties {
	out := make([]Properties, 0, len(records))
	for _, rec := range records {
		out = append(out, cloneProperties(rec.Props))
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
