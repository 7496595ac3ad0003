package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"evalgo.org/realmgate/internal/config"
)

// ValidateContentType rejects POST bodies that are not JSON.
func ValidateContentType(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Request().Method != http.MethodPost || c.Request().ContentLength == 0 {
			return next(c)
		}

		contentType := c.Request().Header.Get(echo.HeaderContentType)
		if !strings.HasPrefix(contentType, echo.MIMEApplicationJSON) {
			return BadRequestError(
				"Invalid Content-Type",
				"Content-Type must be 'application/json'. Got: "+contentType,
			)
		}

		return next(c)
	}
}

// SecurityHeaders middleware adds security headers to responses
func SecurityHeaders(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := c.Response().Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")

		return next(c)
	}
}

// CORS allows the configured frontend origins to call the API with
// credentials. Nil when no origin is configured.
func CORS(sec config.SecurityConfig) echo.MiddlewareFunc {
	if len(sec.AllowedOrigins) == 0 {
		return nil
	}
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     sec.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		AllowCredentials: true,
	})
}

// RateLimit limits each client IP to sec.RateLimit requests per second.
// Nil when rate limiting is disabled.
func RateLimit(sec config.SecurityConfig) echo.MiddlewareFunc {
	if sec.RateLimit <= 0 {
		return nil
	}
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:  rate.Limit(sec.RateLimit),
			Burst: sec.RateLimit,
		}),
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		},
	})
}
