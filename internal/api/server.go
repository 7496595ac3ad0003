// Package api provides the HTTP servers of realmgate: the GraphQL gateway,
// the auth gateway and the chat channel. Each listens on its own port and
// shares the middleware stack set up here.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"evalgo.org/realmgate/internal/config"
	"evalgo.org/realmgate/internal/logging"
	"evalgo.org/realmgate/internal/metrics"
	"evalgo.org/realmgate/internal/version"
)

// HealthCheck reports whether a component's dependencies are reachable.
type HealthCheck func(ctx context.Context) error

// Server is one component's HTTP listener.
type Server struct {
	component string
	echo      *echo.Echo
	addr      string
	config    *config.Config
	logger    zerolog.Logger
	metrics   *metrics.Registry
}

// newServer creates an echo instance with the shared middleware and the
// /health and /metrics routes.
func newServer(component string, port int, cfg *config.Config, logger zerolog.Logger, reg *metrics.Registry) *Server {
	e := echo.New()

	e.HideBanner = true
	e.HidePort = true
	e.Debug = cfg.Server.Debug
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	logger = logging.Component(logger, component)
	e.HTTPErrorHandler = NewHTTPErrorHandler(logger)

	s := &Server{
		component: component,
		echo:      e,
		addr:      cfg.Server.Address(port),
		config:    cfg,
		logger:    logger,
		metrics:   reg,
	}
	s.setupMiddleware()

	e.GET("/metrics", echo.WrapHandler(reg.Handler()))

	return s
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.RequestID())
	s.echo.Use(s.metrics.Middleware(s.component))
	s.echo.Use(logging.RequestLogger(s.logger))
	s.echo.Use(middleware.Recover())
	s.echo.Use(SecurityHeaders)

	if cors := CORS(s.config.Security); cors != nil {
		s.echo.Use(cors)
	}
	if limiter := RateLimit(s.config.Security); limiter != nil {
		s.echo.Use(limiter)
	}
}

// health answers /health with the component status. check and extra may be nil.
func (s *Server) health(check HealthCheck, extra func() map[string]any) echo.HandlerFunc {
	return func(c echo.Context) error {
		body := map[string]any{
			"status":    "healthy",
			"service":   "realmgate-" + s.component,
			"version":   version.Get().Version,
			"timestamp": time.Now().UTC(),
		}
		if extra != nil {
			for k, v := range extra() {
				body[k] = v
			}
		}

		if check != nil {
			if err := check(c.Request().Context()); err != nil {
				s.logger.Warn().Err(err).Msg("health check failed")
				body["status"] = "unhealthy"
				body["error"] = err.Error()
				return c.JSON(http.StatusServiceUnavailable, body)
			}
		}

		return c.JSON(http.StatusOK, body)
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully within
// server.shutdown_timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("listening")
		err := s.echo.Start(s.addr)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%s server failed: %w", s.component, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error shutting down %s server: %w", s.component, err)
	}
	return <-errCh
}

// ServeHTTP allows Server to implement http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
