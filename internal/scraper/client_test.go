package scraper

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	domerrors "github.com/garyellow/campuskit/internal/errors"
)

func newTestClient(t *testing.T, opts Options) *Client {
	t.Helper()
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	c, err := NewClient(opts)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestClient_GetJSON(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"data":{"name":"Alice"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, Options{UserAgent: "campuskit-test"})

	var out struct {
		Name string `json:"name"`
	}
	if err := c.GetJSON(context.Background(), srv.URL, "tok", &out); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if out.Name != "Alice" {
		t.Errorf("Name = %q, want Alice", out.Name)
	}
}

func TestClient_StatusError(t *testing.T) {
	t.Parallel()
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	}))
	defer srv.Close()

	c := newTestClient(t, Options{MaxRetries: 3})

	_, err := c.Get(context.Background(), srv.URL)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Expected *StatusError, got %T: %v", err, err)
	}
	if statusErr.StatusCode() != http.StatusNotFound || statusErr.ResponseBody() != "missing" {
		t.Errorf("StatusError = %+v", statusErr)
	}
	if calls != 1 {
		t.Errorf("4xx must not be retried, got %d calls", calls)
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	t.Parallel()
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := newTestClient(t, Options{MaxRetries: 1})

	page, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if page.Text() != "ok" || calls != 2 {
		t.Errorf("Get() body = %q after %d calls", page.Text(), calls)
	}
}

func TestClient_FinalURLAndCookies(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "SESSION", Value: "abc", Path: "/"})
		http.Redirect(w, r, "/landing", http.StatusFound)
	})
	mux.HandleFunc("/landing", func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("SESSION")
		if err != nil || cookie.Value != "abc" {
			http.Error(w, "no session", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte("<html><body><p class=\"x\">hi</p></body></html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, Options{})

	page, err := c.Get(context.Background(), srv.URL+"/start")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if page.FinalURL.Path != "/landing" {
		t.Errorf("FinalURL = %s, want /landing", page.FinalURL)
	}
	doc, err := page.Document()
	if err != nil {
		t.Fatalf("Document() error = %v", err)
	}
	if got := doc.Find("p.x").Text(); got != "hi" {
		t.Errorf("p.x = %q, want hi", got)
	}

	if err := c.ClearCookies(); err != nil {
		t.Fatalf("ClearCookies() error = %v", err)
	}
	u, _ := url.Parse(srv.URL)
	if cookies := c.jar.Cookies(u); len(cookies) != 0 {
		t.Errorf("Expected empty jar after ClearCookies, got %v", cookies)
	}
}

func TestClient_PostFormGzip(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Method = %s, want POST", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		_, _ = gz.Write([]byte("user=" + r.PostForm.Get("username")))
		_ = gz.Close()
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	c := newTestClient(t, Options{})

	page, err := c.PostForm(context.Background(), srv.URL, url.Values{"username": {"s123"}})
	if err != nil {
		t.Fatalf("PostForm() error = %v", err)
	}
	if page.Text() != "user=s123" {
		t.Errorf("body = %q, want user=s123", page.Text())
	}
}

func TestClient_ContextCanceled(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()

	c := newTestClient(t, Options{MaxRetries: 3})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Get(ctx, srv.URL)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestClient_TimeoutIsIOFailure(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, Options{Timeout: 50 * time.Millisecond})

	_, err := c.Get(context.Background(), srv.URL)
	if domerrors.KindOf(err) != domerrors.KindIO {
		t.Fatalf("Expected IO failure for client timeout, got %T: %v", err, err)
	}
	if domerrors.IsCancellation(err) {
		t.Error("Client timeout must not read as caller cancellation")
	}
}

func TestClient_OversizedBodyFails(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("a"), maxBodyBytes+1))
	}))
	defer srv.Close()

	c := newTestClient(t, Options{MaxRetries: 2})

	_, err := c.Get(context.Background(), srv.URL)
	if domerrors.KindOf(err) != domerrors.KindIO {
		t.Fatalf("Expected IO failure for oversized body, got %v", err)
	}

	exact := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("a"), maxBodyBytes))
	}))
	defer exact.Close()

	page, err := c.Get(context.Background(), exact.URL)
	if err != nil {
		t.Fatalf("Body at the limit should be read, got %v", err)
	}
	if len(page.Body) != maxBodyBytes {
		t.Errorf("len(Body) = %d, want %d", len(page.Body), maxBodyBytes)
	}
}

func TestClient_GetJSONMalformed(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"name":`))
	}))
	defer srv.Close()

	c := newTestClient(t, Options{})

	var out map[string]any
	err := c.GetJSON(context.Background(), srv.URL, "", &out)
	if domerrors.KindOf(err) != domerrors.KindJSONParsing {
		t.Errorf("Expected JSON parsing failure, got %v", err)
	}
}
