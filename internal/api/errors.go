package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// APIError represents a structured API error with HTTP status code.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// NewAPIError creates a new API error.
func NewAPIError(code int, message string, details string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Common error constructors
func BadRequestError(message, details string) *APIError {
	return NewAPIError(http.StatusBadRequest, message, details)
}

func InternalError(message, details string) *APIError {
	return NewAPIError(http.StatusInternalServerError, message, details)
}

// NewHTTPErrorHandler returns an echo error handler that writes APIError
// bodies and logs server errors. Details of 500s are only sent in debug mode.
func NewHTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var apiErr *APIError
		var he *echo.HTTPError
		switch {
		case errors.As(err, &apiErr):
			apiErr = &APIError{Code: apiErr.Code, Message: apiErr.Message, Details: apiErr.Details}
		case errors.As(err, &he):
			apiErr = &APIError{
				Code:    he.Code,
				Message: getHTTPMessage(he.Code),
				Details: fmt.Sprintf("%v", he.Message),
			}
			if he.Internal != nil {
				err = he.Internal
			}
		default:
			apiErr = &APIError{
				Code:    http.StatusInternalServerError,
				Message: getHTTPMessage(http.StatusInternalServerError),
				Details: err.Error(),
			}
		}

		if apiErr.Code >= http.StatusInternalServerError {
			logger.Error().Err(err).
				Str("path", c.Request().URL.Path).
				Int("status", apiErr.Code).
				Msg("request failed")
			if !c.Echo().Debug {
				apiErr.Details = "An internal error occurred. Please try again later."
			}
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(apiErr.Code)
		} else {
			err = c.JSON(apiErr.Code, apiErr)
		}
		if err != nil {
			logger.Error().Err(err).Msg("failed to write error response")
		}
	}
}

// getHTTPMessage returns a user-friendly message for HTTP status codes.
func getHTTPMessage(code int) string {
	messages := map[int]string{
		http.StatusBadRequest:          "Bad request",
		http.StatusUnauthorized:        "Unauthorized",
		http.StatusForbidden:           "Forbidden",
		http.StatusNotFound:            "Resource not found",
		http.StatusMethodNotAllowed:    "Method not allowed",
		http.StatusTooManyRequests:     "Too many requests",
		http.StatusInternalServerError: "Internal server error",
		http.StatusServiceUnavailable:  "Service unavailable",
	}

	if msg, ok := messages[code]; ok {
		return msg
	}
	return http.StatusText(code)
}
