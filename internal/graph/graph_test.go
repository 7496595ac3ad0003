package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalgo.org/realmgate/internal/schema"
	"evalgo.org/realmgate/internal/storage"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func newTestSchema(t *testing.T) (*Schema, *testClock) {
	t.Helper()

	model, err := schema.Default()
	require.NoError(t, err)
	store, err := storage.NewMemoryStore()
	require.NoError(t, err)

	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	seq := 0
	s, err := New(model, store,
		WithClock(clock.Now),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("obj-%d", seq)
		}),
	)
	require.NoError(t, err)
	require.NoError(t, s.EnsureKeys(context.Background()))
	return s, clock
}

// run executes query and returns the data decoded the way a client sees it.
func run(t *testing.T, s *Schema, query string, vars map[string]any) map[string]any {
	t.Helper()
	res := s.Execute(context.Background(), Request{Query: query, Variables: vars})
	require.Empty(t, res.Errors, "unexpected errors: %v", res.Errors)

	raw, err := json.Marshal(res.Data)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func runErr(t *testing.T, s *Schema, query string) string {
	t.Helper()
	res := s.Execute(context.Background(), Request{Query: query})
	require.NotEmpty(t, res.Errors)
	return res.Errors[0].Message
}

const seedMutation = `
mutation {
  createPlayers(input: [
    {id: "p1", name: "Ada", avatar: "https://cdn.example.com/a.png"},
    {id: "p2", name: "Grace"}
  ]) { id }
  createObjects(input: [
    {name: "sword", owner: {connect: {where: {id: "p1"}}}},
    {name: "shield", owner: {connect: {where: {id: "p1"}}}},
    {name: "map"}
  ]) { id name }
}`

func seedGraph(t *testing.T, s *Schema) {
	t.Helper()
	data := run(t, s, seedMutation, nil)
	assert.Equal(t, []any{
		map[string]any{"id": "obj-1", "name": "sword"},
		map[string]any{"id": "obj-2", "name": "shield"},
		map[string]any{"id": "obj-3", "name": "map"},
	}, data["createObjects"])
}

func TestQueryThroughRelationships(t *testing.T) {
	s, _ := newTestSchema(t)
	seedGraph(t, s)

	data := run(t, s, `{
  players(options: {sort: [{name: ASC}]}) {
    id
    name
    owns(options: {sort: [{name: ASC}]}) { name owner { id } }
  }
}`, nil)

	assert.Equal(t, []any{
		map[string]any{"id": "p1", "name": "Ada", "owns": []any{
			map[string]any{"name": "shield", "owner": map[string]any{"id": "p1"}},
			map[string]any{"name": "sword", "owner": map[string]any{"id": "p1"}},
		}},
		map[string]any{"id": "p2", "name": "Grace", "owns": []any{}},
	}, data["players"])
}

func TestObjectsOfMissingOwnerIsEmpty(t *testing.T) {
	s, _ := newTestSchema(t)
	seedGraph(t, s)

	data := run(t, s, `{
  objects(where: {owner: {id: "missing"}}) { id }
  objectsCount(where: {owner: {id: "missing"}})
}`, nil)

	assert.Equal(t, []any{}, data["objects"])
	assert.Equal(t, float64(0), data["objectsCount"])
}

func TestNullWhereFieldsAreIgnored(t *testing.T) {
	s, _ := newTestSchema(t)
	seedGraph(t, s)

	data := run(t, s, `query($where: ObjectWhere) { objectsCount(where: $where) }`,
		map[string]any{"where": map[string]any{"owner": nil, "name": nil}})
	assert.Equal(t, float64(3), data["objectsCount"])

	data = run(t, s, `query($where: ObjectWhere) { objectsCount(where: $where) }`,
		map[string]any{"where": map[string]any{"owner": nil, "name": "map"}})
	assert.Equal(t, float64(1), data["objectsCount"])
}

func TestWhereOperators(t *testing.T) {
	s, _ := newTestSchema(t)
	seedGraph(t, s)

	tests := []struct {
		name  string
		query string
		want  []any
	}{
		{
			name:  "starts with",
			query: `{ objects(where: {name_STARTS_WITH: "s"}, options: {sort: [{name: DESC}]}) { name } }`,
			want:  []any{map[string]any{"name": "sword"}, map[string]any{"name": "shield"}},
		},
		{
			name:  "or",
			query: `{ objects(where: {OR: [{name: "map"}, {name_ENDS_WITH: "ord"}]}, options: {sort: [{name: ASC}]}) { name } }`,
			want:  []any{map[string]any{"name": "map"}, map[string]any{"name": "sword"}},
		},
		{
			name:  "in",
			query: `{ objects(where: {name_IN: ["map", "bow"]}) { name } }`,
			want:  []any{map[string]any{"name": "map"}},
		},
		{
			name:  "without owner",
			query: `{ objects(where: {owner_NOT: {}}) { name } }`,
			want:  []any{map[string]any{"name": "map"}},
		},
		{
			name:  "owns some",
			query: `{ players(where: {owns_SOME: {name: "sword"}}) { id } }`,
			want:  []any{map[string]any{"id": "p1"}},
		},
		{
			name:  "owns none",
			query: `{ players(where: {owns_NONE: {}}) { id } }`,
			want:  []any{map[string]any{"id": "p2"}},
		},
		{
			name:  "paging",
			query: `{ objects(options: {sort: [{name: ASC}], offset: 1, limit: 1}) { name } }`,
			want:  []any{map[string]any{"name": "shield"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := run(t, s, tt.query, nil)
			for _, v := range data {
				assert.Equal(t, tt.want, v)
			}
		})
	}
}

func TestTimestamps(t *testing.T) {
	s, clock := newTestSchema(t)
	created := clock.now

	data := run(t, s, `mutation { createPlayers(input: [{id: "p1", name: "Ada"}]) { createdAt updatedAt } }`, nil)
	assert.Equal(t, []any{map[string]any{
		"createdAt": "2026-03-01T09:00:00Z",
		"updatedAt": "2026-03-01T09:00:00Z",
	}}, data["createPlayers"])

	clock.now = created.Add(90 * time.Minute)
	data = run(t, s, `mutation { updatePlayers(where: {id: "p1"}, update: {name: "Ada L."}) { name createdAt updatedAt } }`, nil)
	assert.Equal(t, []any{map[string]any{
		"name":      "Ada L.",
		"createdAt": "2026-03-01T09:00:00Z",
		"updatedAt": "2026-03-01T10:30:00Z",
	}}, data["updatePlayers"])

	data = run(t, s, `query($since: DateTime) { players(where: {updatedAt_GT: $since}) { id } }`,
		map[string]any{"since": "2026-03-01T10:00:00Z"})
	assert.Equal(t, []any{map[string]any{"id": "p1"}}, data["players"])
}

func TestUpdateRelationships(t *testing.T) {
	s, _ := newTestSchema(t)
	seedGraph(t, s)

	run(t, s, `mutation {
  updateObjects(where: {name: "sword"}, update: {owner: {connect: {where: {id: "p2"}}}}) { id }
}`, nil)
	data := run(t, s, `{ objects(where: {name: "sword"}) { owner { id } } }`, nil)
	assert.Equal(t, []any{map[string]any{"owner": map[string]any{"id": "p2"}}}, data["objects"])

	run(t, s, `mutation {
  updatePlayers(where: {id: "p1"}, update: {owns: {disconnect: [{where: {name: "shield"}}]}}) { id }
}`, nil)
	data = run(t, s, `{ playersCount(where: {owns_SOME: {}}) objects(where: {owner_NOT: {}}, options: {sort: [{name: ASC}]}) { name } }`, nil)
	assert.Equal(t, float64(1), data["playersCount"])
	assert.Equal(t, []any{map[string]any{"name": "map"}, map[string]any{"name": "shield"}}, data["objects"])
}

func TestDelete(t *testing.T) {
	s, _ := newTestSchema(t)
	seedGraph(t, s)

	data := run(t, s, `mutation { deletePlayers(where: {id: "p1"}) { nodesDeleted relationshipsDeleted } }`, nil)
	assert.Equal(t, map[string]any{"nodesDeleted": float64(1), "relationshipsDeleted": float64(2)}, data["deletePlayers"])

	data = run(t, s, `{ objectsCount objects(where: {owner_NOT: {}}) { id } }`, nil)
	assert.Equal(t, float64(3), data["objectsCount"])
	assert.Len(t, data["objects"], 3)
}

func TestErrors(t *testing.T) {
	s, _ := newTestSchema(t)
	seedGraph(t, s)

	assert.Contains(t, runErr(t, s, `mutation { createPlayers(input: [{name: "No Id"}]) { id } }`), "id")
	assert.Contains(t, runErr(t, s, `mutation { createPlayers(input: [{id: "p1", name: "Again"}]) { id } }`), "already exists")
	assert.Contains(t, runErr(t, s, `{ players { accessToken } }`), "accessToken")
	assert.Contains(t, runErr(t, s, `{ players(options: {limit: -1}) { id } }`), "limit")
	assert.Contains(t, runErr(t, s, `mutation { createPlayers(input: [{id: "p9", name: "X", createdAt: "2020-01-01T00:00:00Z"}]) { id } }`), "createdAt")
}

func TestGeneratedInputs(t *testing.T) {
	s, _ := newTestSchema(t)

	data := run(t, s, `{ __type(name: "PlayerWhere") { inputFields { name } } }`, nil)
	var names []string
	for _, f := range data["__type"].(map[string]any)["inputFields"].([]any) {
		names = append(names, f.(map[string]any)["name"].(string))
	}

	assert.Contains(t, names, "id_NOT_IN")
	assert.Contains(t, names, "name_CONTAINS")
	assert.Contains(t, names, "createdAt_LTE")
	assert.Contains(t, names, "owns_SOME")
	assert.Contains(t, names, "owns_NONE")
	assert.Contains(t, names, "AND")
	assert.NotContains(t, names, "accessToken")
	assert.NotContains(t, names, "name_LT")

	data = run(t, s, `{ __type(name: "ObjectWhere") { inputFields { name } } }`, nil)
	names = names[:0]
	for _, f := range data["__type"].(map[string]any)["inputFields"].([]any) {
		names = append(names, f.(map[string]any)["name"].(string))
	}
	assert.Contains(t, names, "owner")
	assert.Contains(t, names, "owner_NOT")
}
