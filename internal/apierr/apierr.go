// Package apierr implements the gateway's RFC 7807 + semantic-code error
// envelope. Handlers return an *Error (or let a lower layer produce one) and
// a single translation point in internal/httpapi renders it to the wire.
package apierr

import "fmt"

// Error is a structured API failure. It satisfies the error interface so it
// can be returned, wrapped, and matched with errors.As like the teacher's
// auth sentinel errors.
type Error struct {
	// Code is one of the semantic codes from the taxonomy, e.g. VALIDATION_ERROR.
	Code string
	// Status is the HTTP status this error maps to.
	Status int
	// Title is a short, stable summary (RFC 7807 "title").
	Title string
	// Detail is a human-readable, request-specific explanation.
	Detail string
	// Retryable hints that the caller may retry the same request later.
	Retryable bool
	// RetryAfterMs is populated for RATE_LIMIT errors.
	RetryAfterMs int64
	// Fields carries per-field validation errors (loc/msg/type).
	Fields []FieldError
	// cause is the wrapped error, if any.
	cause error
}

// FieldError describes one invalid input field.
type FieldError struct {
	Loc  string `json:"loc"`
	Msg  string `json:"msg"`
	Type string `json:"type"`
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Detail)
	}
	return e.Code
}

// Unwrap exposes the wrapped cause, if any, for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.cause }

// Wrap attaches a lower-level cause to e and returns e for chaining.
func (e *Error) Wrap(cause error) *Error {
	e.cause = cause
	return e
}

// New builds an Error for the given semantic code, status, and detail.
func New(code string, status int, detail string) *Error {
	return &Error{Code: code, Status: status, Title: titleFor(code), Detail: detail}
}

// Validation builds a 422 VALIDATION_ERROR with field-level detail.
func Validation(detail string, fields ...FieldError) *Error {
	return &Error{Code: "VALIDATION_ERROR", Status: 422, Title: titleFor("VALIDATION_ERROR"), Detail: detail, Fields: fields}
}

// RateLimit builds a 429 RATE_LIMIT error carrying the retry hint.
func RateLimit(retryAfterMs int64) *Error {
	return &Error{
		Code:         "RATE_LIMIT",
		Status:       429,
		Title:        titleFor("RATE_LIMIT"),
		Detail:       "Se alcanzó el límite de solicitudes, intenta de nuevo más tarde.",
		Retryable:    true,
		RetryAfterMs: retryAfterMs,
	}
}

// Timeout builds a 504 TIMEOUT error.
func Timeout(detail string) *Error {
	return &Error{Code: "TIMEOUT", Status: 504, Title: titleFor("TIMEOUT"), Detail: detail, Retryable: true}
}

// Internal builds a 500 INTERNAL_ERROR, hiding the cause's message from the
// wire but keeping it available via Unwrap for logging.
func Internal(cause error) *Error {
	return (&Error{
		Code:   "INTERNAL_ERROR",
		Status: 500,
		Title:  titleFor("INTERNAL_ERROR"),
		Detail: "Ocurrió un error interno, intenta de nuevo.",
	}).Wrap(cause)
}

// NotFound builds a 404 NOT_FOUND error.
func NotFound(detail string) *Error {
	return New("NOT_FOUND", 404, detail)
}

// PermissionDenied builds a 403 PERMISSION_DENIED error.
func PermissionDenied(detail string) *Error {
	return New("PERMISSION_DENIED", 403, detail)
}

// Conflict builds a 409 error with the given semantic code.
func Conflict(code, detail string) *Error {
	return New(code, 409, detail)
}

// Gone builds a 410 GONE error, used for kill-switched feature surfaces.
func Gone(detail string) *Error {
	return New("GONE", 410, detail)
}

var titles = map[string]string{
	"VALIDATION_ERROR":          "Validation Failed",
	"INVALID_INPUT":             "Invalid Input",
	"MISSING_FIELD":             "Missing Field",
	"INVALID_FORMAT":            "Invalid Format",
	"INVALID_CREDENTIALS":       "Invalid Credentials",
	"ACCOUNT_INACTIVE":          "Account Inactive",
	"INVALID_TOKEN":             "Invalid Token",
	"INSUFFICIENT_PERMISSIONS":  "Insufficient Permissions",
	"PERMISSION_DENIED":         "Permission Denied",
	"NOT_FOUND":                 "Not Found",
	"TOOL_NOT_FOUND":            "Tool Not Found",
	"USER_NOT_FOUND":            "User Not Found",
	"CONFLICT":                  "Conflict",
	"USERNAME_EXISTS":           "Username Exists",
	"DUPLICATE_EMAIL":           "Duplicate Email",
	"RATE_LIMIT":                "Rate Limit Exceeded",
	"EXECUTION_ERROR":           "Execution Error",
	"TIMEOUT":                   "Timeout",
	"INTERNAL_ERROR":            "Internal Error",
	"GONE":                      "Gone",
}

func titleFor(code string) string {
	if t, ok := titles[code]; ok {
		return t
	}
	return "Error"
}
