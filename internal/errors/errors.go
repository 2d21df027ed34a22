// Package errors provides the failure taxonomy shared by every data source.
//
// A data-source call ends in a typed payload or exactly one Failure. The only
// errors that cross a data-source boundary without being converted are the
// caller's own context cancellation and deadline errors.
package errors

import (
	"errors"
	"fmt"
)

// Kind identifies a Failure variant.
type Kind int

// Failure kinds. The set is closed.
const (
	KindAPI Kind = iota + 1
	KindIO
	KindJSONParsing
	KindHTMLParsing
	KindSecurity
	KindCustom
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindAPI:
		return "api"
	case KindIO:
		return "io"
	case KindJSONParsing:
		return "json_parsing"
	case KindHTMLParsing:
		return "html_parsing"
	case KindSecurity:
		return "security"
	case KindCustom:
		return "custom"
	case KindUnknown:
		return "unknown"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Failure is implemented only by the variant types in this package.
type Failure interface {
	error
	Kind() Kind
	failure()
}

// APIError is a non-2xx HTTP response. Body holds the raw response body.
type APIError struct {
	Code int
	Body string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api error: status %d", e.Code)
	}
	return fmt.Sprintf("api error: status %d: %s", e.Code, truncate(e.Body, 200))
}

// Kind implements Failure.
func (e *APIError) Kind() Kind {
	return KindAPI
}

func (*APIError) failure() {}

// IOError is a transport or filesystem failure.
type IOError struct {
	Message string
	Cause   error
}

func (e *IOError) Error() string {
	return "io error: " + e.Message
}

// Kind implements Failure.
func (e *IOError) Kind() Kind {
	return KindIO
}

func (e *IOError) Unwrap() error {
	return e.Cause
}

func (*IOError) failure() {}

// JSONParsingError is a malformed or unexpected JSON payload.
type JSONParsingError struct {
	Message string
	Cause   error
}

func (e *JSONParsingError) Error() string {
	return "json parsing error: " + e.Message
}

// Kind implements Failure.
func (e *JSONParsingError) Kind() Kind {
	return KindJSONParsing
}

func (e *JSONParsingError) Unwrap() error {
	return e.Cause
}

func (*JSONParsingError) failure() {}

// HTMLParsingError is an HTML document that does not have the expected structure.
type HTMLParsingError struct {
	Message string
	Cause   error
}

func (e *HTMLParsingError) Error() string {
	return "html parsing error: " + e.Message
}

// Kind implements Failure.
func (e *HTMLParsingError) Kind() Kind {
	return KindHTMLParsing
}

func (e *HTMLParsingError) Unwrap() error {
	return e.Cause
}

func (*HTMLParsingError) failure() {}

// SecurityError covers permission, certificate and key-material problems.
type SecurityError struct {
	Message string
	Cause   error
}

func (e *SecurityError) Error() string {
	return "security error: " + e.Message
}

// Kind implements Failure.
func (e *SecurityError) Kind() Kind {
	return KindSecurity
}

func (e *SecurityError) Unwrap() error {
	return e.Cause
}

func (*SecurityError) failure() {}

// CustomError is a protocol-level failure detected by this code, e.g. a login rejection.
type CustomError struct {
	Message string
}

func (e *CustomError) Error() string {
	return e.Message
}

// Kind implements Failure.
func (e *CustomError) Kind() Kind {
	return KindCustom
}

func (*CustomError) failure() {}

// UnknownError wraps anything the mapper could not classify.
type UnknownError struct {
	Cause error
}

func (e *UnknownError) Error() string {
	if e.Cause == nil {
		return "unknown error"
	}
	return "unknown error: " + e.Cause.Error()
}

// Kind implements Failure.
func (e *UnknownError) Kind() Kind {
	return KindUnknown
}

func (e *UnknownError) Unwrap() error {
	return e.Cause
}

func (*UnknownError) failure() {}

// NewAPIError creates an APIError.
func NewAPIError(code int, body string) *APIError {
	return &APIError{Code: code, Body: body}
}

// NewIOError creates an IOError.
func NewIOError(message string, cause error) *IOError {
	return &IOError{Message: message, Cause: cause}
}

// NewJSONParsingError creates a JSONParsingError.
func NewJSONParsingError(message string, cause error) *JSONParsingError {
	return &JSONParsingError{Message: message, Cause: cause}
}

// NewHTMLParsingError creates an HTMLParsingError.
func NewHTMLParsingError(message string, cause error) *HTMLParsingError {
	return &HTMLParsingError{Message: message, Cause: cause}
}

// NewSecurityError creates a SecurityError.
func NewSecurityError(message string, cause error) *SecurityError {
	return &SecurityError{Message: message, Cause: cause}
}

// NewCustomError creates a CustomError.
func NewCustomError(message string) *CustomError {
	return &CustomError{Message: message}
}

// AsFailure returns the Failure carried by err, if any.
func AsFailure(err error) (Failure, bool) {
	var f Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// KindOf returns the kind of the Failure carried by err, or 0 when there is none.
func KindOf(err error) Kind {
	if f, ok := AsFailure(err); ok {
		return f.Kind()
	}
	return 0
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
