// Package graph derives an executable GraphQL schema from a schema.Model and
// resolves it against a storage.Store.
//
// For every type T with plural ts the schema has:
//
//	query    ts(where: TWhere, options: TOptions): [T!]!
//	query    tsCount(where: TWhere): Int!
//	mutation createTs(input: [TCreateInput!]!): [T!]!
//	mutation updateTs(where: TWhere, update: TUpdateInput): [T!]!
//	mutation deleteTs(where: TWhere): DeleteInfo!
//
// Resolvers return plain property maps, so scalar fields use the default
// graphql-go resolver.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/graphql-go/graphql"
	"github.com/rs/zerolog"

	"evalgo.org/realmgate/internal/schema"
	"evalgo.org/realmgate/internal/storage"
)

// Request is a GraphQL request body.
type Request struct {
	Query         string         `json:"query" query:"query"`
	Variables     map[string]any `json:"variables"`
	OperationName string         `json:"operationName" query:"operationName"`
}

// Schema is an executable GraphQL schema bound to a store.
type Schema struct {
	schema graphql.Schema
	model  *schema.Model
	store  storage.Store
	logger zerolog.Logger

	// keys maps type name -> TWhere key -> meaning
	keys map[string]map[string]whereKey

	now   func() time.Time
	newID func() string
}

// Option configures a Schema.
type Option func(*Schema)

// WithLogger sets the logger used for resolver failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Schema) { s.logger = logger }
}

// WithClock overrides the clock used for @timestamp fields.
func WithClock(now func() time.Time) Option {
	return func(s *Schema) { s.now = now }
}

// WithIDGenerator overrides the generator for autogenerated keys.
func WithIDGenerator(newID func() string) Option {
	return func(s *Schema) { s.newID = newID }
}

// New builds the GraphQL schema for model.
func New(model *schema.Model, store storage.Store, opts ...Option) (*Schema, error) {
	s := &Schema{
		model:  model,
		store:  store,
		logger: zerolog.Nop(),
		keys:   map[string]map[string]whereKey{},
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	b := newBuilder(s)
	gs, err := b.build()
	if err != nil {
		return nil, fmt.Errorf("failed to build graphql schema: %w", err)
	}
	s.schema = gs
	return s, nil
}

// EnsureKeys prepares key uniqueness for every type in the store.
func (s *Schema) EnsureKeys(ctx context.Context) error {
	for _, t := range s.model.Types {
		if err := s.store.EnsureKey(ctx, t.Name, t.Key.Name); err != nil {
			return err
		}
	}
	return nil
}

// Execute runs a request.
func (s *Schema) Execute(ctx context.Context, req Request) *graphql.Result {
	result := graphql.Do(graphql.Params{
		Schema:         s.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        ctx,
	})
	if result.HasErrors() {
		s.logger.Debug().Interface("errors", result.Errors).Str("operation", req.OperationName).Msg("graphql request failed")
	}
	return result
}

// GraphQL returns the underlying graphql-go schema.
func (s *Schema) GraphQL() graphql.Schema {
	return s.schema
}
