// Package core provides the shared types, errors and interfaces of the docqa front end.
package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
)

// ErrorType classifies why an upload attempt did not produce a result.
type ErrorType string

const (
	// ErrorTypeNoFileSelected is suppressed locally; it never reaches a callback.
	ErrorTypeNoFileSelected ErrorType = "no_file_selected"
	// ErrorTypeTransport indicates the request never got a response.
	ErrorTypeTransport ErrorType = "transport_failure"
	// ErrorTypeServerRejection indicates a non-2xx response.
	ErrorTypeServerRejection ErrorType = "server_rejection"
	// ErrorTypeBodyParse indicates a 2xx response whose body could not be used.
	ErrorTypeBodyParse ErrorType = "body_parse_failure"
	// ErrorTypeInProgress indicates a submit while another one is in flight.
	ErrorTypeInProgress ErrorType = "submit_in_progress"
)

const (
	// MessageUploadFailed is shown for any server rejection.
	MessageUploadFailed = "Upload failed"
	// MessageFallback is shown when a failure carries no message of its own.
	MessageFallback = "An error occurred"
	// MessageTimedOut is shown when the attempt exceeded its deadline.
	MessageTimedOut = "Upload timed out"
)

// UploadError is the error type produced by uploaders.
type UploadError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code,omitempty"`
	// Detail is the server-provided reason on rejection (not shown by default).
	Detail string `json:"detail,omitempty"`
	Err    error  `json:"-"`
}

// Error implements the error interface
func (e *UploadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Type, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *UploadError) Unwrap() error {
	return e.Err
}

// ErrNoFileSelected is returned by operations that need a selected file.
var ErrNoFileSelected = &UploadError{Type: ErrorTypeNoFileSelected, Message: "no file selected"}

// ErrSubmitInProgress is returned when a submit is already running.
var ErrSubmitInProgress = &UploadError{Type: ErrorTypeInProgress, Message: "an upload is already in progress"}

// NewTransportError wraps a failure to obtain a response.
// The message is the innermost cause, without net/url's "Post <url>:" prefix.
func NewTransportError(err error) *UploadError {
	msg := ""
	if err != nil {
		msg = err.Error()
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Err != nil {
			msg = urlErr.Err.Error()
		}
	}
	return &UploadError{
		Type:    ErrorTypeTransport,
		Message: msg,
		Err:     err,
	}
}

// NewBodyParseError wraps a failure to read or decode a 2xx body.
func NewBodyParseError(message string, err error) *UploadError {
	return &UploadError{
		Type:    ErrorTypeBodyParse,
		Message: message,
		Err:     err,
	}
}

// NewServerRejection builds a rejection from a non-2xx response.
// The body is inspected for a FastAPI {"detail": ...} or {"error":{"message": ...}} reason.
func NewServerRejection(statusCode int, body []byte) *UploadError {
	detail := ""
	if gjson.ValidBytes(body) {
		parsed := gjson.ParseBytes(body)
		switch d := parsed.Get("detail"); {
		case d.Type == gjson.String:
			detail = d.String()
		case d.IsArray():
			detail = d.Get("0.msg").String()
		}
		if detail == "" {
			detail = parsed.Get("error.message").String()
		}
	}
	return &UploadError{
		Type:       ErrorTypeServerRejection,
		Message:    MessageUploadFailed,
		StatusCode: statusCode,
		Detail:     detail,
	}
}

// MessageOptions controls how FailureMessage renders an error.
type MessageOptions struct {
	// SurfaceServerDetail shows the server's rejection reason instead of MessageUploadFailed.
	SurfaceServerDetail bool
}

// FailureMessage converts any upload failure into the single display string
// delivered to a failure callback. It never returns an empty string.
func FailureMessage(err error, opts MessageOptions) string {
	if err == nil {
		return MessageFallback
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return MessageTimedOut
	}

	var uploadErr *UploadError
	if errors.As(err, &uploadErr) {
		switch uploadErr.Type {
		case ErrorTypeServerRejection:
			if opts.SurfaceServerDetail && uploadErr.Detail != "" {
				return uploadErr.Detail
			}
			return MessageUploadFailed
		default:
			if uploadErr.Message != "" {
				return uploadErr.Message
			}
			return MessageFallback
		}
	}

	if msg := err.Error(); msg != "" {
		return msg
	}
	return MessageFallback
}

// APIError is the JSON error shape of the front end's own HTTP endpoints.
type APIError struct {
	Status  int    `json:"-"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ToJSON converts the error to a JSON-compatible map
func (e *APIError) ToJSON() map[string]interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"type":    e.Type,
			"message": e.Message,
		},
	}
}

// NewInvalidRequestError creates a new invalid request error (400)
func NewInvalidRequestError(message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Type: "invalid_request_error", Message: message}
}

// NewPayloadTooLargeError creates a new payload too large error (413)
func NewPayloadTooLargeError(message string) *APIError {
	return &APIError{Status: http.StatusRequestEntityTooLarge, Type: "payload_too_large_error", Message: message}
}

// NewInternalError creates a new internal error (500)
func NewInternalError(message string) *APIError {
	return &APIError{Status: http.StatusInternalServerError, Type: "internal_error", Message: message}
}

// NewUnavailableError creates a new service unavailable error (503)
func NewUnavailableError(message string) *APIError {
	return &APIError{Status: http.StatusServiceUnavailable, Type: "unavailable_error", Message: message}
}
