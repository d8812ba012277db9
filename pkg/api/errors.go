package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// ErrorKind classifies a failed API call.
type ErrorKind string

const (
	KindAuthRequired ErrorKind = "auth_required"
	KindAuthFailed   ErrorKind = "auth_failed"
	KindNotFound     ErrorKind = "not_found"
	KindRateLimited  ErrorKind = "rate_limited"
	KindForbidden    ErrorKind = "forbidden"
	KindBadRequest   ErrorKind = "bad_request"
	KindServerError  ErrorKind = "server_error"
	KindNetwork      ErrorKind = "network"
	KindUnknown      ErrorKind = "unknown"
)

// Exit codes used by bb.
const (
	ExitOK        = 0 // Success
	ExitUsage     = 1 // Invalid arguments or any other failure
	ExitNotFound  = 2 // Resource not found
	ExitAuth      = 3 // Not authenticated or credential rejected
	ExitForbidden = 4 // Access denied
	ExitRateLimit = 5 // Rate limited (429)
	ExitNetwork   = 6 // Connection/DNS/timeout error
	ExitAPI       = 7 // Server returned an error
)

// Error is a failed API call. Network errors carry the transport error in
// Cause; every other kind comes from a non-2xx response.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
	Body    string
	Hint    string
	Cause   error
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Hint)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ExitCode returns the process exit code for this error.
func (e *Error) ExitCode() int {
	switch e.Kind {
	case KindNotFound:
		return ExitNotFound
	case KindAuthRequired, KindAuthFailed:
		return ExitAuth
	case KindForbidden:
		return ExitForbidden
	case KindRateLimited:
		return ExitRateLimit
	case KindNetwork:
		return ExitNetwork
	default:
		return ExitAPI
	}
}

// DecodeError reports a 2xx response whose body could not be decoded.
type DecodeError struct {
	Status int
	Body   string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode response (%d): %v", e.Status, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// errorMessagePaths are tried in order against an error body: Cloud,
// Server, Cloud alternate, then the generic shape.
var errorMessagePaths = []string{
	"error.message",
	"errors.0.message",
	"error.detail",
	"message",
}

// FormatAPIError extracts the user-facing message from an error response body,
// falling back to "API error (<status>): <body>".
func FormatAPIError(status int, body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range errorMessagePaths {
			if r := gjson.GetBytes(body, path); r.Type == gjson.String {
				return r.Str
			}
		}
	}
	return fmt.Sprintf("API error (%d): %s", status, body)
}

// NewStatusError maps a non-2xx response to an Error. A 401 is AuthRequired
// when the request carried no credential and AuthFailed otherwise.
func NewStatusError(status int, body []byte, authenticated bool) *Error {
	e := &Error{
		Status:  status,
		Message: FormatAPIError(status, body),
		Body:    string(body),
	}

	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		e.Kind = KindBadRequest
	case status == http.StatusUnauthorized:
		e.Kind = KindAuthFailed
		if !authenticated {
			e.Kind = KindAuthRequired
		}
		e.Hint = "Run: bb auth login"
	case status == http.StatusForbidden:
		e.Kind = KindForbidden
	case status == http.StatusNotFound:
		e.Kind = KindNotFound
	case status == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
	case status >= 500:
		e.Kind = KindServerError
	default:
		e.Kind = KindUnknown
	}

	return e
}

// NewNetworkError wraps a transport failure.
func NewNetworkError(err error) *Error {
	return &Error{
		Kind:    KindNetwork,
		Message: fmt.Sprintf("network error: %v", err),
		Cause:   err,
	}
}

// ErrAuthRequired is returned for commands that need a stored credential when
// none is present.
func ErrAuthRequired(host string) *Error {
	return &Error{
		Kind:    KindAuthRequired,
		Message: fmt.Sprintf("not logged in to %s", host),
		Hint:    "Run: bb auth login",
	}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// ExitCodeFor returns the exit code for err.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.ExitCode()
	}

	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return ExitAPI
	}

	return ExitUsage
}
