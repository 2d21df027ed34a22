package labschedule

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"io"
	"net/url"
	"strings"

	domerrors "github.com/garyellow/campuskit/internal/errors"
	"github.com/garyellow/campuskit/internal/logger"
	"github.com/garyellow/campuskit/internal/scraper"
)

// State is a step of the SSO flow.
type State int

const (
	StatePreFlight State = iota
	StateAuthenticated
	StateNeedsLogin
	StateFetch
	StateParse
)

func (s State) String() string {
	switch s {
	case StatePreFlight:
		return "preflight"
	case StateAuthenticated:
		return "authenticated"
	case StateNeedsLogin:
		return "needs_login"
	case StateFetch:
		return "fetch"
	case StateParse:
		return "parse"
	}
	return "unknown"
}

// Login failure messages.
const (
	msgUnknownRedirect = "unknown redirect target"
	msgLoginFailed     = "login failed: bad credentials or system error"
)

// PageClient is the subset of scraper.Client the session drives.
// The client's cookie jar carries the SSO session between steps.
type PageClient interface {
	Get(ctx context.Context, rawURL string) (*scraper.Page, error)
	PostForm(ctx context.Context, rawURL string, form url.Values) (*scraper.Page, error)
	ClearCookies() error
}

// SessionConfig locates the lab system and its SSO.
type SessionConfig struct {
	// ProbeURL is a lab page that redirects to login when unauthenticated.
	ProbeURL string
	// ScheduleURL serves the course table.
	ScheduleURL string
	// TargetHost is the lab host (with port if non-default).
	TargetHost string
	// LoginURL is the CAS login form, including its service parameter.
	LoginURL string
	// PublicKeyURL serves the RSA public key as PEM text.
	PublicKeyURL string
	// LoginMarker appears in URLs of login pages.
	LoginMarker string
	// PasswordPrefix is prepended to the encrypted password.
	PasswordPrefix string
}

// Session runs the SSO flow and fetches the course table.
//
// The cookie jar holds one account's session at a time. Fetches run one at a
// time, and a fetch for a different account drops the cookies before it
// starts, so a caller is only ever served the table its own login produced.
type Session struct {
	client PageClient
	cfg    SessionConfig
	logger *logger.Logger

	sem   chan struct{}
	owner Credentials
}

// NewSession creates a session over client.
func NewSession(client PageClient, cfg SessionConfig, log *logger.Logger) *Session {
	if log == nil {
		log = logger.NewWithWriter("error", io.Discard)
	}
	return &Session{client: client, cfg: cfg, logger: log, sem: make(chan struct{}, 1)}
}

func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) release() {
	<-s.sem
}

// Fetch implements the remote side of the repository: it logs in when needed,
// downloads the course table and parses it.
func (s *Session) Fetch(ctx context.Context, creds Credentials) (map[int][]*Item, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	if s.owner != creds {
		if err := s.reset(); err != nil {
			return nil, err
		}
	}

	state, err := s.PreFlight(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "Lab session preflight done", "state", state.String())

	if state == StateNeedsLogin {
		if creds.Username == "" || creds.Password == "" {
			return nil, domerrors.NewCustomError("username and password are required")
		}
		if err := s.Login(ctx, creds); err != nil {
			if resetErr := s.reset(); resetErr != nil {
				s.logger.WarnContext(ctx, "Failed to drop lab session after failed login", "error", resetErr)
			}
			return nil, err
		}
		s.owner = creds
		s.logger.DebugContext(ctx, "Lab session logged in")
	}

	page, err := s.client.Get(ctx, s.cfg.ScheduleURL)
	if err != nil {
		return nil, domerrors.MapError(err)
	}
	return ParseCourseTable(bytes.NewReader(page.Body))
}

// PreFlight probes the lab system and reports whether a login is needed.
func (s *Session) PreFlight(ctx context.Context) (State, error) {
	page, err := s.client.Get(ctx, s.cfg.ProbeURL)
	if err != nil {
		return StatePreFlight, domerrors.MapError(err)
	}
	if s.onTarget(page.FinalURL) {
		return StateAuthenticated, nil
	}
	body := page.Text()
	if strings.Contains(body, "window.location") || strings.Contains(body, "self.location") {
		return StateNeedsLogin, nil
	}
	return StatePreFlight, domerrors.NewCustomError(msgUnknownRedirect)
}

// Login submits the CAS form with the RSA-encrypted password.
func (s *Session) Login(ctx context.Context, creds Credentials) error {
	loginPage, err := s.client.Get(ctx, s.cfg.LoginURL)
	if err != nil {
		return domerrors.MapError(err)
	}
	doc, err := loginPage.Document()
	if err != nil {
		return domerrors.NewHTMLParsingError("failed to parse login page", err)
	}
	execution, ok := doc.Find(`input[name="execution"]`).First().Attr("value")
	if !ok || execution == "" {
		return domerrors.NewHTMLParsingError("execution token not found on login page", nil)
	}

	keyPage, err := s.client.Get(ctx, s.cfg.PublicKeyURL)
	if err != nil {
		return domerrors.MapError(err)
	}
	key, err := ParsePublicKey(keyPage.Text())
	if err != nil {
		return err
	}
	password, err := EncryptPassword(key, creds.Password, s.cfg.PasswordPrefix)
	if err != nil {
		return err
	}

	result, err := s.client.PostForm(ctx, s.cfg.LoginURL, url.Values{
		"username":  {creds.Username},
		"password":  {password},
		"execution": {execution},
		"_eventId":  {"submit"},
	})
	if err != nil {
		return domerrors.MapError(err)
	}
	if !s.onTarget(result.FinalURL) {
		return domerrors.NewCustomError(msgLoginFailed)
	}
	return nil
}

// Reset drops the SSO session cookies. It waits for a running fetch.
func (s *Session) Reset() error {
	s.sem <- struct{}{}
	defer s.release()
	return s.reset()
}

func (s *Session) reset() error {
	s.owner = Credentials{}
	if err := s.client.ClearCookies(); err != nil {
		return domerrors.MapError(err)
	}
	return nil
}

func (s *Session) onTarget(u *url.URL) bool {
	if u == nil || !strings.EqualFold(u.Host, s.cfg.TargetHost) {
		return false
	}
	return !strings.Contains(strings.ToLower(u.Path+"?"+u.RawQuery), strings.ToLower(s.cfg.LoginMarker))
}

// ParsePublicKey reads an RSA public key from PEM text or bare base64 DER,
// in PKIX or PKCS#1 form.
func ParsePublicKey(text string) (*rsa.PublicKey, error) {
	text = strings.TrimSpace(text)

	var der []byte
	if block, _ := pem.Decode([]byte(text)); block != nil {
		der = block.Bytes
	} else {
		decoded, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(text), ""))
		if err != nil {
			return nil, domerrors.NewSecurityError("public key is neither PEM nor base64", err)
		}
		der = decoded
	}

	if pub, err := x509.ParsePKIXPublicKey(der); err == nil {
		key, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, domerrors.NewSecurityError("public key is not RSA", nil)
		}
		return key, nil
	}
	key, err := x509.ParsePKCS1PublicKey(der)
	if err != nil {
		return nil, domerrors.NewSecurityError("failed to parse public key", err)
	}
	return key, nil
}

// EncryptPassword encrypts password with PKCS#1 v1.5 padding and returns
// prefix + base64(ciphertext).
func EncryptPassword(key *rsa.PublicKey, password, prefix string) (string, error) {
	cipher, err := rsa.EncryptPKCS1v15(rand.Reader, key, []byte(password))
	if err != nil {
		return "", domerrors.NewSecurityError("failed to encrypt password", err)
	}
	return prefix + base64.StdEncoding.EncodeToString(cipher), nil
}
