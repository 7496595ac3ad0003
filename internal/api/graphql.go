package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"evalgo.org/realmgate/internal/config"
	"evalgo.org/realmgate/internal/graph"
	"evalgo.org/realmgate/internal/metrics"
	"evalgo.org/realmgate/internal/storage"
)

// GraphQLServer serves the generated graph API.
type GraphQLServer struct {
	*Server
	schema *graph.Schema
}

// NewGraphQLServer creates the graph API gateway.
func NewGraphQLServer(cfg *config.Config, schema *graph.Schema, store storage.Store, logger zerolog.Logger, reg *metrics.Registry) *GraphQLServer {
	s := &GraphQLServer{
		Server: newServer("graphql", cfg.GraphQL.Port, cfg, logger, reg),
		schema: schema,
	}

	path := cfg.GraphQL.Path
	s.echo.POST(path, s.handleGraphQL, ValidateContentType)
	s.echo.GET(path, s.handleGraphQL)
	s.echo.GET("/health", s.health(store.Ping, nil))
	if cfg.GraphQL.Playground {
		s.echo.GET("/", echo.WrapHandler(playground.Handler("realmgate", path)))
	}

	return s
}

// handleGraphQL executes a query sent as a JSON body or as URL parameters.
// Execution errors are reported in the result with status 200.
func (s *GraphQLServer) handleGraphQL(c echo.Context) error {
	var req graph.Request

	if c.Request().Method == http.MethodPost {
		if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
			return BadRequestError("invalid request body", err.Error())
		}
	} else {
		req.Query = c.QueryParam("query")
		req.OperationName = c.QueryParam("operationName")
		if raw := c.QueryParam("variables"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &req.Variables); err != nil {
				return BadRequestError("invalid variables", err.Error())
			}
		}
	}

	if strings.TrimSpace(req.Query) == "" {
		return BadRequestError("missing query", "")
	}

	result := s.schema.Execute(c.Request().Context(), req)

	outcome := "ok"
	if result.HasErrors() {
		outcome = "error"
		s.logger.Debug().Interface("errors", result.Errors).Str("operation", req.OperationName).Msg("graphql errors")
	}
	s.metrics.GraphQLOperations.WithLabelValues(outcome).Inc()

	return c.JSON(http.StatusOK, result)
}
