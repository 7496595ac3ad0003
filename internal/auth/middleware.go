package auth

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ContextKeyClaims is the key for storing session claims in context
const ContextKeyClaims = "claims"

// Middleware guards routes with the session cookie
type Middleware struct {
	sessions   *SessionManager
	cookieName string
}

// NewMiddleware creates a new session middleware
func NewMiddleware(sessions *SessionManager, cookieName string) *Middleware {
	return &Middleware{
		sessions:   sessions,
		cookieName: cookieName,
	}
}

// RequireSession is middleware that requires an open session
func (m *Middleware) RequireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cookie, err := c.Cookie(m.cookieName)
		if err != nil || cookie.Value == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "not logged in")
		}

		claims, err := m.sessions.Validate(c.Request().Context(), cookie.Value)
		if err != nil {
			switch {
			case errors.Is(err, ErrExpiredToken):
				return echo.NewHTTPError(http.StatusUnauthorized, "session has expired")
			case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrSessionRevoked):
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid session")
			default:
				return echo.NewHTTPError(http.StatusInternalServerError, "failed to check session").SetInternal(err)
			}
		}

		c.Set(ContextKeyClaims, claims)

		return next(c)
	}
}

// GetClaims extracts session claims from Echo context
func GetClaims(c echo.Context) (*Claims, bool) {
	claims, ok := c.Get(ContextKeyClaims).(*Claims)
	return claims, ok
}

// GetPlayerID extracts the player ID from session claims in context
func GetPlayerID(c echo.Context) (string, bool) {
	claims, ok := GetClaims(c)
	if !ok {
		return "", false
	}
	return claims.PlayerID, true
}
