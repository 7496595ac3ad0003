package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"evalgo.org/realmgate/internal/auth"
	"evalgo.org/realmgate/internal/config"
	"evalgo.org/realmgate/internal/metrics"
	"evalgo.org/realmgate/internal/storage"
	"evalgo.org/realmgate/models"
)

// Login outcomes reported to the logins_total metric.
const (
	loginSuccess = "success"
	loginRefused = "refused"
	loginError   = "error"
)

// AuthResponse is the body of the success and failure endpoints.
type AuthResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	User    *models.Player `json:"user,omitempty"`
}

var failureResponse = AuthResponse{Success: false, Message: "authentication failed"}

// AuthServer serves the Discord login flow.
type AuthServer struct {
	*Server
	flow     *auth.Flow
	sessions *auth.Middleware
	cookie   config.SessionConfig
}

// NewAuthServer creates the auth gateway. check is used by /health and may be nil.
func NewAuthServer(cfg *config.Config, flow *auth.Flow, sessions *auth.SessionManager, check HealthCheck, logger zerolog.Logger, reg *metrics.Registry) *AuthServer {
	s := &AuthServer{
		Server:   newServer("auth", cfg.Auth.Port, cfg, logger, reg),
		flow:     flow,
		sessions: auth.NewMiddleware(sessions, cfg.Session.CookieName),
		cookie:   cfg.Session,
	}

	s.echo.GET("/health", s.health(check, nil))

	g := s.echo.Group("/auth")
	g.GET("/discord", s.login)
	g.GET("/discord/callback", s.callback)
	g.GET("/success", s.success, s.sessions.RequireSession)
	g.GET("/failure", s.failure)
	g.GET("/logout", s.logout)

	return s
}

// login redirects to the provider's authorize page.
func (s *AuthServer) login(c echo.Context) error {
	redirect, err := s.flow.Begin(c.Request().Context())
	if err != nil {
		return InternalError("failed to start login", err.Error())
	}
	return c.Redirect(http.StatusFound, redirect)
}

// callback completes the login. Refusals redirect to the failure page;
// storage errors answer with the failure body directly.
func (s *AuthServer) callback(c echo.Context) error {
	login, err := s.flow.Complete(
		c.Request().Context(),
		c.QueryParam("state"),
		c.QueryParam("code"),
		c.QueryParam("error"),
	)
	if err != nil {
		if errors.Is(err, auth.ErrProvider) || errors.Is(err, auth.ErrInvalidState) {
			s.logger.Warn().Err(err).Msg("login refused")
			s.metrics.Logins.WithLabelValues(loginRefused).Inc()
			return c.Redirect(http.StatusFound, "/auth/failure")
		}
		s.logger.Error().Err(err).Msg("login failed")
		s.metrics.Logins.WithLabelValues(loginError).Inc()
		return c.JSON(http.StatusInternalServerError, failureResponse)
	}

	c.SetCookie(s.sessionCookie(login.Token, login.ExpiresAt))
	s.metrics.Logins.WithLabelValues(loginSuccess).Inc()
	return c.Redirect(http.StatusFound, "/auth/success")
}

func (s *AuthServer) success(c echo.Context) error {
	playerID, ok := auth.GetPlayerID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, failureResponse)
	}

	player, err := s.flow.Current(c.Request().Context(), playerID)
	if errors.Is(err, storage.ErrNotFound) {
		// the player was deleted while the session was open
		return c.JSON(http.StatusUnauthorized, failureResponse)
	}
	if err != nil {
		return InternalError("failed to load player", err.Error())
	}

	return c.JSON(http.StatusOK, AuthResponse{
		Success: true,
		Message: "user has successfully authenticated",
		User:    player,
	})
}

func (s *AuthServer) failure(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, failureResponse)
}

// logout closes the session and clears the cookie. It succeeds without a session.
func (s *AuthServer) logout(c echo.Context) error {
	if cookie, err := c.Cookie(s.cookie.CookieName); err == nil && cookie.Value != "" {
		if err := s.flow.Logout(c.Request().Context(), cookie.Value); err != nil {
			return InternalError("failed to close session", err.Error())
		}
	}

	c.SetCookie(s.sessionCookie("", time.Unix(0, 0)))
	return c.JSON(http.StatusOK, map[string]string{"message": "logged out"})
}

func (s *AuthServer) sessionCookie(value string, expires time.Time) *http.Cookie {
	cookie := &http.Cookie{
		Name:     s.cookie.CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.cookie.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if value == "" {
		cookie.MaxAge = -1
	}
	return cookie
}
