// Package realmgate wires a small game backend out of off-the-shelf parts.
//
// # Overview
//
// Three services share one graph store and can be deployed on their own:
//   - GraphQL gateway: a full query and mutation API generated from the
//     Player/Object schema in internal/schema/schema.graphql
//   - Auth gateway: Discord OAuth login that upserts the Player and opens a
//     cookie session
//   - Chat channel: a WebSocket endpoint that rebroadcasts every message to
//     every connected client
//
// # Architecture
//
//	┌──────────────┐   ┌──────────────┐   ┌──────────────┐
//	│   graphql    │   │     auth     │   │     chat     │
//	│   :3002      │   │    :3003     │   │    :3000     │
//	└──────┬───────┘   └──────┬───────┘   └──────────────┘
//	       │                  │    └──── sessions (memory | redis)
//	┌──────▼──────────────────▼───────┐
//	│   graph store (neo4j | memory)  │
//	└─────────────────────────────────┘
//
// # Usage
//
// Run everything in one process:
//
//	realmgate serve --config configs/config.yaml
//
// Or one service per process:
//
//	realmgate graphql
//	realmgate auth
//	realmgate chat
//
// # Configuration
//
// Configuration can be provided via:
//   - YAML file (config.yaml, configs/config.yaml, ~/.realmgate, /etc/realmgate)
//   - Environment variables (RG_ prefix)
//   - .env file
//
// Example configuration:
//
//	storage:
//	  driver: neo4j
//	neo4j:
//	  uri: bolt://localhost:7687
//	  username: neo4j
//	  password: password
//	discord:
//	  client_id: "1234"
//	  client_secret: "..."
//	  callback_url: http://localhost:3003/auth/discord/callback
//	session:
//	  secret: "..."
//	  store: redis
//	  redis_addr: localhost:6379
//	security:
//	  allowed_origins: ["http://localhost:3001"]
//
// # Endpoints
//
// GraphQL (:3002):
//   - POST /graphql, GET /graphql?query=  - GraphQL
//   - GET  /                              - Playground
//
// Auth (:3003):
//   - GET /auth/discord           - Redirect to Discord
//   - GET /auth/discord/callback  - OAuth callback
//   - GET /auth/success           - Current player (session required)
//   - GET /auth/failure           - Fixed failure response
//   - GET /auth/logout            - Close the session
//
// Chat (:3000):
//   - GET /socket  - WebSocket, frames are {"event": "...", "data": ...}
//
// Every service also serves /health and /metrics.
//
// # Development
//
// Run tests (no database needed, the memory store and miniredis are used):
//
//	go test ./...
//
// Build the binary:
//
//	go build -o realmgate ./cmd/realmgate
package realmgate
