package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"reflect"
	"testing"
)

type fakeStatusErr struct {
	code int
	body string
}

func (e *fakeStatusErr) Error() string        { return fmt.Sprintf("status %d", e.code) }
func (e *fakeStatusErr) StatusCode() int      { return e.code }
func (e *fakeStatusErr) ResponseBody() string { return e.body }

func TestMapError(t *testing.T) {
	t.Parallel()
	var syntaxErr error = &json.SyntaxError{}
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"status error", fmt.Errorf("get: %w", &fakeStatusErr{code: 401, body: "unauthorized"}), KindAPI},
		{"json syntax", syntaxErr, KindJSONParsing},
		{"json type", &json.UnmarshalTypeError{Value: "string", Type: reflect.TypeOf(0)}, KindJSONParsing},
		{"permission", &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrPermission}, KindSecurity},
		{"path error", &fs.PathError{Op: "open", Path: "/x", Err: errors.New("disk full")}, KindIO},
		{"url error", &url.Error{Op: "Get", URL: "http://x", Err: errors.New("connection refused")}, KindIO},
		{"unexpected eof", io.ErrUnexpectedEOF, KindIO},
		{"existing failure", NewCustomError("keep me"), KindCustom},
		{"anything else", errors.New("mystery"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := MapError(tt.err)
			if KindOf(got) != tt.want {
				t.Errorf("MapError(%v) kind = %v, want %v", tt.err, KindOf(got), tt.want)
			}
		})
	}
}

func TestMapErrorKeepsStatusAndBody(t *testing.T) {
	t.Parallel()
	got := MapError(&fakeStatusErr{code: 503, body: "maintenance"})
	var apiErr *APIError
	if !errors.As(got, &apiErr) {
		t.Fatalf("expected *APIError, got %T", got)
	}
	if apiErr.Code != 503 || apiErr.Body != "maintenance" {
		t.Errorf("got code=%d body=%q", apiErr.Code, apiErr.Body)
	}
}

func TestMapErrorPassesCancellation(t *testing.T) {
	t.Parallel()
	if MapError(nil) != nil {
		t.Error("nil should stay nil")
	}
	for _, err := range []error{
		context.Canceled,
		context.DeadlineExceeded,
		&url.Error{Op: "Get", URL: "http://x", Err: context.Canceled},
	} {
		got := MapError(err)
		if !IsCancellation(got) {
			t.Errorf("MapError(%v) = %v, want cancellation passthrough", err, got)
		}
		if _, ok := AsFailure(got); ok {
			t.Errorf("cancellation must not become a Failure: %v", got)
		}
	}
}

func TestMapContextError(t *testing.T) {
	t.Parallel()
	timeout := &url.Error{Op: "Get", URL: "http://x", Err: context.DeadlineExceeded}

	got := MapContextError(context.Background(), timeout)
	if KindOf(got) != KindIO {
		t.Errorf("timeout under a live context: kind = %v, want io", KindOf(got))
	}
	if IsCancellation(got) {
		t.Error("a Failure wrapping a deadline must not count as cancellation")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got = MapContextError(ctx, context.Canceled)
	if !IsCancellation(got) {
		t.Errorf("MapContextError(done ctx) = %v, want cancellation passthrough", got)
	}

	if MapContextError(context.Background(), nil) != nil {
		t.Error("nil should stay nil")
	}
}

func TestUserMessage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"custom", NewCustomError("login failed"), "login failed"},
		{"api with body", NewAPIError(500, "oops"), "server returned status 500: oops"},
		{"api without body", NewAPIError(404, " "), "server returned status 404"},
		{"html", NewHTMLParsingError("missing table", nil), "unexpected page layout: missing table"},
		{"canceled", context.Canceled, "request canceled"},
		{"plain", errors.New("plain"), "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := UserMessage(tt.err); got != tt.want {
				t.Errorf("UserMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}
