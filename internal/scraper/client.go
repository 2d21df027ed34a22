// Package scraper provides the shared HTTP client used by every remote data source.
// It owns the cookie jar that carries the SSO session, decodes gzip and legacy
// charsets, unwraps the JSON {data: ...} envelope and exposes HTML as goquery documents.
package scraper

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/corpix/uarand"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	domerrors "github.com/garyellow/campuskit/internal/errors"
)

// maxBodyBytes bounds how much of a response body is read into memory.
// Larger bodies fail instead of being truncated.
const maxBodyBytes = 8 << 20

// Options configures the transport. A Client never changes its options after creation.
type Options struct {
	// InsecureSkipVerify disables TLS certificate verification (self-signed campus hosts).
	InsecureSkipVerify bool
	// ForceIPv4 dials tcp4 only.
	ForceIPv4 bool
	// Timeout bounds a single request including redirects.
	Timeout time.Duration
	// MaxRetries retries 5xx/429 and transport errors with backoff. 0 disables retries.
	MaxRetries int
	// UserAgent overrides the random browser User-Agent.
	UserAgent string
}

// Client is an HTTP client with a persistent cookie jar.
type Client struct {
	httpClient *http.Client
	jar        *sessionJar
	opts       Options
	userAgent  string
}

// Page is a fully read response.
type Page struct {
	// FinalURL is the URL of the last request after following redirects.
	FinalURL *url.URL
	Header   http.Header
	Body     []byte
}

// Text returns the decoded body as a string.
func (p *Page) Text() string {
	return string(p.Body)
}

// Document parses the body as HTML.
func (p *Page) Document() (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	URL  string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.Code, e.URL)
}

// StatusCode returns the HTTP status code.
func (e *StatusError) StatusCode() int {
	return e.Code
}

// ResponseBody returns the raw response body.
func (e *StatusError) ResponseBody() string {
	return e.Body
}

// NewClient creates a client from opts.
func NewClient(opts Options) (*Client, error) {
	jar, err := newSessionJar()
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext:         dialer.DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: opts.InsecureSkipVerify, //nolint:gosec // Opt-in for campus hosts with private CAs
			MinVersion:         tls.VersionTLS12,
		},
	}
	if opts.ForceIPv4 {
		transport.DialContext = func(ctx context.Context, _, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp4", addr)
		}
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = uarand.GetRandom()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
			Jar:       jar,
		},
		jar:       jar,
		opts:      opts,
		userAgent: userAgent,
	}, nil
}

// Options returns the options the client was created with.
func (c *Client) Options() Options {
	return c.opts
}

// ClearCookies drops every stored cookie, ending any SSO session.
func (c *Client) ClearCookies() error {
	return c.jar.Reset()
}

// Get performs a GET request and reads the whole body.
func (c *Client) Get(ctx context.Context, rawURL string) (*Page, error) {
	return c.do(ctx, http.MethodGet, rawURL, "", nil)
}

// PostForm performs a form POST and reads the whole body.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values) (*Page, error) {
	return c.do(ctx, http.MethodPost, rawURL, form.Encode(), http.Header{
		"Content-Type": {"application/x-www-form-urlencoded"},
	})
}

// GetJSON performs a GET request with an optional bearer token and decodes
// the "data" member of the response envelope into out.
func (c *Client) GetJSON(ctx context.Context, rawURL, accessToken string, out any) error {
	header := http.Header{"Accept": {"application/json"}}
	if accessToken != "" {
		header.Set("Authorization", "Bearer "+accessToken)
	}

	page, err := c.do(ctx, http.MethodGet, rawURL, "", header)
	if err != nil {
		return err
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(page.Body, &envelope); err != nil {
		return domerrors.NewJSONParsingError("decode envelope: "+err.Error(), err)
	}
	if len(envelope.Data) == 0 {
		envelope.Data = json.RawMessage("null")
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return domerrors.NewJSONParsingError("decode data: "+err.Error(), err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, rawURL, body string, header http.Header) (*Page, error) {
	var page *Page

	err := RetryWithBackoff(ctx, c.opts.MaxRetries, retryInitialDelay, func() error {
		var reqBody io.Reader
		if body != "" {
			reqBody = strings.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
		if err != nil {
			return Permanent(fmt.Errorf("failed to create request: %w", err))
		}

		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
		req.Header.Set("Accept-Language", "zh-CN,zh-TW;q=0.9,en-US;q=0.8,en;q=0.7")
		req.Header.Set("Accept-Encoding", "gzip")
		for k, v := range header {
			req.Header[k] = v
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return Permanent(ctx.Err())
			}
			// Client.Timeout also surfaces as a deadline error; it is a transport failure.
			return domerrors.NewIOError("request failed: "+err.Error(), err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := readBody(resp)
		if err != nil {
			if ctx.Err() != nil {
				return Permanent(ctx.Err())
			}
			var tooLarge *bodyTooLargeError
			if errors.As(err, &tooLarge) {
				return Permanent(domerrors.NewIOError(err.Error(), err))
			}
			return domerrors.NewIOError(err.Error(), err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			statusErr := &StatusError{URL: rawURL, Code: resp.StatusCode, Body: string(data)}
			switch {
			case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
				return statusErr
			default:
				return Permanent(statusErr)
			}
		}

		page = &Page{FinalURL: resp.Request.URL, Header: resp.Header, Body: data}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// readBody decompresses gzip and converts non-UTF-8 charsets declared in Content-Type.
func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress gzip: %w", err)
		}
		defer func() { _ = gzipReader.Close() }()
		reader = gzipReader
	}

	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil {
		if cs := strings.ToLower(params["charset"]); cs != "" && cs != "utf-8" && cs != "utf8" {
			if enc, err := htmlindex.Get(cs); err == nil {
				reader = transform.NewReader(reader, enc.NewDecoder())
			}
		}
	}

	data, err := io.ReadAll(io.LimitReader(reader, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if len(data) > maxBodyBytes {
		return nil, &bodyTooLargeError{limit: maxBodyBytes}
	}
	return data, nil
}

// bodyTooLargeError reports a response body over the read limit.
type bodyTooLargeError struct {
	limit int
}

func (e *bodyTooLargeError) Error() string {
	return fmt.Sprintf("response body exceeds %d bytes", e.limit)
}
