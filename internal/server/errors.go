package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"docqa/internal/core"
)

// handleError writes err as the JSON error body.
func handleError(c echo.Context, err error) error {
	var apiErr *core.APIError
	if errors.As(err, &apiErr) {
		return c.JSON(apiErr.Status, apiErr.ToJSON())
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return c.JSON(httpErr.Code, fromHTTPError(httpErr).ToJSON())
	}

	slog.Error("unhandled request error",
		"error", err,
		"request_id", core.GetRequestID(c.Request().Context()),
	)
	return c.JSON(http.StatusInternalServerError, core.NewInternalError("an unexpected error occurred").ToJSON())
}

// errorHandler is the echo.HTTPErrorHandler for the server.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	_ = handleError(c, err)
}

func fromHTTPError(e *echo.HTTPError) *core.APIError {
	msg := http.StatusText(e.Code)
	if s, ok := e.Message.(string); ok && s != "" {
		msg = s
	}

	typ := "invalid_request_error"
	switch {
	case e.Code == http.StatusNotFound:
		typ = "not_found_error"
	case e.Code == http.StatusMethodNotAllowed:
		typ = "method_not_allowed_error"
	case e.Code == http.StatusRequestEntityTooLarge:
		typ = "payload_too_large_error"
	case e.Code == http.StatusServiceUnavailable:
		typ = "unavailable_error"
	case e.Code >= 500:
		typ = "internal_error"
	}
	return &core.APIError{Status: e.Code, Type: typ, Message: msg}
}
