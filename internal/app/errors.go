package app

import "net/http"

// Error codes exposed in API envelopes.
const (
	CodeBadRequest      = "BAD_REQUEST"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeTooManyRequests = "TOO_MANY_REQUESTS"
	CodeInternal        = "INTERNAL_ERROR"
)

// Error is an application error carrying the HTTP status and stable code the
// API envelope exposes. Details holds optional field-level context.
type Error struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *Error) Error() string { return e.Message }

// BadRequest builds a 400 error with optional field details.
func BadRequest(message string, details any) *Error {
	return &Error{Status: http.StatusBadRequest, Code: CodeBadRequest, Message: message, Details: details}
}

// Unauthorized builds a 401 error.
func Unauthorized(message string) *Error {
	return &Error{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: message}
}

// Forbidden builds a 403 error.
func Forbidden(message string) *Error {
	return &Error{Status: http.StatusForbidden, Code: CodeForbidden, Message: message}
}

// NotFound builds a 404 error.
func NotFound(message string) *Error {
	return &Error{Status: http.StatusNotFound, Code: CodeNotFound, Message: message}
}

// Conflict builds a 409 error.
func Conflict(message string) *Error {
	return &Error{Status: http.StatusConflict, Code: CodeConflict, Message: message}
}

// TooManyRequests builds a 429 error.
func TooManyRequests(message string) *Error {
	return &Error{Status: http.StatusTooManyRequests, Code: CodeTooManyRequests, Message: message}
}

// Common cases. Login failures share one message so responses cannot be used
// for account enumeration.
var (
	ErrInvalidCredentials = Unauthorized("Invalid credentials")
	ErrEmailExists        = Conflict("An account with this email already exists")
	ErrSessionRequired    = Unauthorized("Authentication required")
	ErrInvalidRefresh     = Unauthorized("Invalid refresh token")
)
