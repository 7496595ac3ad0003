package api

import (
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"evalgo.org/realmgate/internal/chat"
	"evalgo.org/realmgate/internal/config"
	"evalgo.org/realmgate/internal/metrics"
)

// ChatServer serves the WebSocket fan-out channel.
type ChatServer struct {
	*Server
	hub      *chat.Hub
	upgrader *websocket.Upgrader
}

// NewChatServer creates the chat listener. The hub must be running.
func NewChatServer(cfg *config.Config, hub *chat.Hub, logger zerolog.Logger, reg *metrics.Registry) *ChatServer {
	s := &ChatServer{
		Server:   newServer("chat", cfg.Chat.Port, cfg, logger, reg),
		hub:      hub,
		upgrader: chat.NewUpgrader(cfg.Security.AllowedOrigins),
	}

	s.echo.GET(cfg.Chat.Path, s.handleSocket)
	s.echo.GET("/health", s.health(nil, func() map[string]any {
		return map[string]any{"connected_clients": hub.ClientCount()}
	}))

	return s
}

// handleSocket upgrades the connection and hands it to the hub.
func (s *ChatServer) handleSocket(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader already wrote the error response
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return nil
	}

	s.hub.Accept(conn)
	return nil
}
