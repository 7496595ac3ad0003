package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalgo.org/realmgate/internal/config"
)

func TestValidateContentType(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		contentType string
		body        string
		wantErr     bool
	}{
		{"POST with application/json", http.MethodPost, "application/json", `{"query":"{}"}`, false},
		{"POST with charset", http.MethodPost, "application/json; charset=utf-8", `{"query":"{}"}`, false},
		{"POST with text/plain", http.MethodPost, "text/plain", "query", true},
		{"POST with empty body", http.MethodPost, "", "", false},
		{"GET skips validation", http.MethodGet, "text/html", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(tt.method, "/", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set(echo.HeaderContentType, tt.contentType)
			}
			c := e.NewContext(req, httptest.NewRecorder())

			err := ValidateContentType(func(c echo.Context) error { return nil })(c)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, http.StatusBadRequest, apiErr.Code)
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, SecurityHeaders(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
}

func TestCORS(t *testing.T) {
	assert.Nil(t, CORS(config.SecurityConfig{}))

	e := echo.New()
	e.Use(CORS(config.SecurityConfig{AllowedOrigins: []string{"http://localhost:3001"}}))
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	tests := []struct {
		origin    string
		wantAllow string
	}{
		{"http://localhost:3001", "http://localhost:3001"},
		{"http://evil.test", ""},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(echo.HeaderOrigin, tt.origin)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantAllow, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
			if tt.wantAllow != "" {
				assert.Equal(t, "true", rec.Header().Get(echo.HeaderAccessControlAllowCredentials))
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	assert.Nil(t, RateLimit(config.SecurityConfig{}))

	e := echo.New()
	e.Use(RateLimit(config.SecurityConfig{RateLimit: 2}))
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
