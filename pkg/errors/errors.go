// Package errors defines the typed error taxonomy shared by services and the
// HTTP layer. Services return *Error values; responses map the Code onto a
// status and a public message.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"strings"
)

type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeStateConflict     Code = "STATE_CONFLICT"
	CodeDependencyMissing Code = "DEPENDENCY_MISSING"
	CodeIdempotency       Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit         Code = "RATE_LIMIT_EXCEEDED"
	CodeIOFailure         Code = "IO_FAILURE"
	CodeInternal          Code = "INTERNAL_ERROR"
	CodeDependency        Code = "DEPENDENCY_ERROR"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	// ClientFacing codes may return the error's own message to callers.
	ClientFacing bool
}

type metaFlag uint8

const (
	retryable metaFlag = 1 << iota
	withDetails
	clientFacing
)

func meta(status int, public string, flags metaFlag) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      flags&retryable != 0,
		DetailsAllowed: flags&withDetails != 0,
		ClientFacing:   flags&clientFacing != 0,
	}
}

var catalog = map[Code]Metadata{
	CodeValidation:        meta(http.StatusBadRequest, "validation failed", clientFacing|withDetails),
	CodeUnauthorized:      meta(http.StatusUnauthorized, "authentication required", clientFacing),
	CodeForbidden:         meta(http.StatusForbidden, "access denied", clientFacing),
	CodeNotFound:          meta(http.StatusNotFound, "resource not found", clientFacing),
	CodeConflict:          meta(http.StatusConflict, "conflict detected", clientFacing),
	CodeStateConflict:     meta(http.StatusUnprocessableEntity, "state transition disallowed", clientFacing|withDetails),
	CodeDependencyMissing: meta(http.StatusConflict, "required resource missing", clientFacing),
	CodeIdempotency:       meta(http.StatusConflict, "idempotency key reused", clientFacing|withDetails),
	CodeRateLimit:         meta(http.StatusTooManyRequests, "rate limit exceeded", clientFacing),
	CodeIOFailure:         meta(http.StatusInternalServerError, "file operation failed", retryable),
	CodeInternal:          meta(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:        meta(http.StatusServiceUnavailable, "dependency unavailable", retryable|withDetails),
}

// MetadataFor falls back to CodeInternal for codes outside the catalog.
func MetadataFor(code Code) Metadata {
	if m, ok := catalog[code]; ok {
		return m
	}
	return catalog[CodeInternal]
}

// Error is a coded failure with an optional cause and caller-visible details.
// A nil *Error behaves as an internal error with no message.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches code and message to err. A nil err yields a plain New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(string(e.code))
	b.WriteString(": ")
	b.WriteString(e.message)
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

func IsCode(err error, code Code) bool {
	return As(err).codeIs(code)
}

func (e *Error) codeIs(code Code) bool {
	return e != nil && e.code == code
}
