package errors

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// statusCoder is satisfied by transport errors that carry an HTTP response.
type statusCoder interface {
	StatusCode() int
	ResponseBody() string
}

// MapError converts an error raised inside a data source into a Failure.
// Nil stays nil, an existing Failure is returned unchanged and context
// cancellation is passed through untouched so callers can stop cooperatively.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if IsCancellation(err) {
		return err
	}
	if f, ok := AsFailure(err); ok {
		return f
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		return NewAPIError(sc.StatusCode(), sc.ResponseBody())
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return NewJSONParsingError(err.Error(), err)
	}

	if errors.Is(err, fs.ErrPermission) {
		return NewSecurityError(err.Error(), err)
	}
	var unknownAuth x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	var certErr x509.CertificateInvalidError
	if errors.As(err, &unknownAuth) || errors.As(err, &hostErr) || errors.As(err, &certErr) {
		return NewSecurityError(err.Error(), err)
	}

	var netErr net.Error
	var urlErr *url.Error
	var pathErr *fs.PathError
	if errors.As(err, &netErr) || errors.As(err, &urlErr) || errors.As(err, &pathErr) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return NewIOError(err.Error(), err)
	}

	return &UnknownError{Cause: err}
}

// MapContextError maps err like MapError, but passes a cancellation through
// only when ctx itself has ended. A deadline hit while ctx is still live comes
// from a timeout inside the data source and becomes an IOError.
func MapContextError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if IsCancellation(err) && ctx.Err() == nil {
		return NewIOError(err.Error(), err)
	}
	return MapError(err)
}

// IsCancellation reports whether err comes from a canceled or expired context.
// A Failure is never a cancellation, even when its cause is a context error.
func IsCancellation(err error) bool {
	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	_, isFailure := AsFailure(err)
	return !isFailure
}

// UserMessage returns a human-readable message for err.
// Every Failure kind is handled explicitly; non-failures fall back to err.Error().
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if IsCancellation(err) {
		return "request canceled"
	}
	f, ok := AsFailure(err)
	if !ok {
		return err.Error()
	}

	switch v := f.(type) {
	case *APIError:
		if body := strings.TrimSpace(v.Body); body != "" {
			return "server returned " + statusText(v.Code) + ": " + truncate(body, 120)
		}
		return "server returned " + statusText(v.Code)
	case *IOError:
		return "network or storage problem: " + v.Message
	case *JSONParsingError:
		return "unexpected response format: " + v.Message
	case *HTMLParsingError:
		return "unexpected page layout: " + v.Message
	case *SecurityError:
		return "security check failed: " + v.Message
	case *CustomError:
		return v.Message
	case *UnknownError:
		return v.Error()
	}
	return f.Error()
}

func statusText(code int) string {
	return "status " + strconv.Itoa(code)
}
