package labschedule

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domerrors "github.com/garyellow/campuskit/internal/errors"
	"github.com/garyellow/campuskit/internal/filecache"
	"github.com/garyellow/campuskit/internal/scraper"
)

const (
	testPrefix    = "__RSA__"
	testExecution = "e1s1"
	sessionCookie = "lab_session"
)

var testKey = sync.OnceValue(func() *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return key
})

func pkixPEM(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

// campus fakes the lab host and the CAS host.
type campus struct {
	lab, sso *httptest.Server

	loginForm  string
	publicKey  string
	loginPosts atomic.Int32
	tableHits  atomic.Int32
	table      string
}

func newCampus(t *testing.T, opts ...func(*campus)) *campus {
	t.Helper()
	c := &campus{
		loginForm: `<html><body><form method="post"><input type="hidden" name="execution" value="` + testExecution + `"/></form></body></html>`,
		publicKey: pkixPEM(t, testKey()),
		table: courseTable([]string{"3"}, map[string]map[cellPos]string{
			"3": {{1, 3}: tooltip("Operating Systems", "课程编号：CS301", "班级：CS-3A", "地址：Lab 402", "节次：3-4")},
		}),
	}
	for _, opt := range opts {
		opt(c)
	}

	authed := func(r *http.Request) bool {
		cookie, err := r.Cookie(sessionCookie)
		return err == nil && cookie.Value == "ok"
	}

	labMux := http.NewServeMux()
	labMux.HandleFunc("/index", func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		_, _ = w.Write([]byte("<html><body>lab home</body></html>"))
	})
	labMux.HandleFunc("/login", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><script>window.location.href = "` + c.sso.URL + `/cas/login";</script></html>`))
	})
	labMux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ticket") != "ST-1" {
			http.Error(w, "bad ticket", http.StatusForbidden)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "ok", Path: "/"})
		http.Redirect(w, r, "/index", http.StatusFound)
	})
	labMux.HandleFunc("/schedule/course", func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		c.tableHits.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(c.table))
	})
	c.lab = httptest.NewServer(labMux)
	t.Cleanup(c.lab.Close)

	ssoMux := http.NewServeMux()
	ssoMux.HandleFunc("/cas/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			_, _ = w.Write([]byte(c.loginForm))
			return
		}
		c.loginPosts.Add(1)
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("execution") != testExecution || r.PostForm.Get("_eventId") != "submit" {
			_, _ = w.Write([]byte(c.loginForm))
			return
		}
		encoded, ok := strings.CutPrefix(r.PostForm.Get("password"), testPrefix)
		if !ok {
			_, _ = w.Write([]byte(c.loginForm))
			return
		}
		cipher, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		plain, err := rsa.DecryptPKCS1v15(nil, testKey(), cipher)
		if err != nil || r.PostForm.Get("username") != "alice" || string(plain) != "secret" {
			_, _ = w.Write([]byte(c.loginForm))
			return
		}
		http.Redirect(w, r, c.lab.URL+"/callback?ticket=ST-1", http.StatusFound)
	})
	ssoMux.HandleFunc("/cas/v2/getPubKey", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(c.publicKey))
	})
	ssoMux.HandleFunc("/maintenance", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body>Down for maintenance</body></html>"))
	})
	c.sso = httptest.NewServer(ssoMux)
	t.Cleanup(c.sso.Close)

	return c
}

func (c *campus) config() SessionConfig {
	labURL, _ := url.Parse(c.lab.URL)
	return SessionConfig{
		ProbeURL:       c.lab.URL + "/index",
		ScheduleURL:    c.lab.URL + "/schedule/course",
		TargetHost:     labURL.Host,
		LoginURL:       c.sso.URL + "/cas/login",
		PublicKeyURL:   c.sso.URL + "/cas/v2/getPubKey",
		LoginMarker:    "login",
		PasswordPrefix: testPrefix,
	}
}

func newTestClient(t *testing.T) *scraper.Client {
	t.Helper()
	client, err := scraper.NewClient(scraper.Options{Timeout: 5 * time.Second})
	require.NoError(t, err)
	return client
}

var alice = Credentials{Username: "alice", Password: "secret"}

func TestRepository_LoginFetchAndCache(t *testing.T) {
	t.Parallel()
	c := newCampus(t)
	store := filecache.New(t.TempDir())
	repo := NewRepository(newTestClient(t), c.config(), store, 24*time.Hour, nil, nil)
	ctx := context.Background()

	weeks, err := repo.Get(ctx, alice)
	require.NoError(t, err)
	require.Contains(t, weeks, 3)
	require.Len(t, weeks[3], CellsPerWeek)
	require.NotNil(t, weeks[3][1*Weekdays+3])
	assert.Equal(t, "CS301", weeks[3][1*Weekdays+3].CourseCode)
	assert.Equal(t, int32(1), c.loginPosts.Load())
	assert.FileExists(t, store.Root()+"/"+accountDir(alice)+"/week_3.json")

	cached, err := repo.Get(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, weeks, cached)
	assert.Equal(t, int32(1), c.tableHits.Load())

	// The session cookie survives, so a refresh skips the login.
	_, err = repo.Refresh(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int32(1), c.loginPosts.Load())
	assert.Equal(t, int32(2), c.tableHits.Load())
}

func TestRepository_OtherAccountsNeverShareTable(t *testing.T) {
	t.Parallel()
	c := newCampus(t)
	repo := NewRepository(newTestClient(t), c.config(), filecache.New(t.TempDir()), 24*time.Hour, nil, nil)
	ctx := context.Background()

	_, err := repo.Get(ctx, alice)
	require.NoError(t, err)

	// Right username, wrong password: neither alice's cache nor her cookies.
	_, err = repo.Get(ctx, Credentials{Username: "alice", Password: "guess"})
	require.Error(t, err)
	assert.Equal(t, msgLoginFailed, err.Error())

	_, err = repo.Get(ctx, Credentials{Username: "mallory", Password: "secret"})
	require.Error(t, err)
	assert.Equal(t, msgLoginFailed, err.Error())

	// A refresh skips the cache but still cannot ride on alice's cookies.
	_, err = repo.Refresh(ctx, Credentials{Username: "mallory", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, msgLoginFailed, err.Error())

	assert.Equal(t, int32(4), c.loginPosts.Load())
	assert.Equal(t, int32(1), c.tableHits.Load())

	_, err = repo.Get(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int32(1), c.tableHits.Load())
}

func TestSession_SwitchingAccountsLogsInAgain(t *testing.T) {
	t.Parallel()
	c := newCampus(t)
	session := NewSession(newTestClient(t), c.config(), nil)
	ctx := context.Background()

	_, err := session.Fetch(ctx, alice)
	require.NoError(t, err)
	_, err = session.Fetch(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int32(1), c.loginPosts.Load())

	_, err = session.Fetch(ctx, Credentials{Username: "bob", Password: "hunter2"})
	require.Error(t, err)
	assert.Equal(t, domerrors.KindCustom, domerrors.KindOf(err))
	assert.Equal(t, int32(2), c.tableHits.Load())

	_, err = session.Fetch(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int32(3), c.loginPosts.Load())
	assert.Equal(t, int32(3), c.tableHits.Load())
}

func TestRepository_CleanEndsSession(t *testing.T) {
	t.Parallel()
	c := newCampus(t)
	store := filecache.New(t.TempDir())
	repo := NewRepository(newTestClient(t), c.config(), store, 24*time.Hour, nil, nil)
	ctx := context.Background()

	_, err := repo.Get(ctx, alice)
	require.NoError(t, err)

	require.NoError(t, repo.Clean(ctx))
	assert.NoDirExists(t, store.Root()+"/labSchedule")
	require.NoError(t, repo.Clean(ctx))

	_, err = repo.Get(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int32(2), c.loginPosts.Load())
}

func TestSession_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		campus   func(c *campus)
		setup    func(c *campus, cfg *SessionConfig)
		creds    Credentials
		wantKind domerrors.Kind
		wantMsg  string
	}{
		{
			name:     "bad credentials",
			creds:    Credentials{Username: "alice", Password: "wrong"},
			wantKind: domerrors.KindCustom,
			wantMsg:  msgLoginFailed,
		},
		{
			name:     "unknown redirect target",
			setup:    func(c *campus, cfg *SessionConfig) { cfg.ProbeURL = c.sso.URL + "/maintenance" },
			creds:    alice,
			wantKind: domerrors.KindCustom,
			wantMsg:  msgUnknownRedirect,
		},
		{
			name:     "missing execution token",
			campus:   func(c *campus) { c.loginForm = "<html><form></form></html>" },
			creds:    alice,
			wantKind: domerrors.KindHTMLParsing,
		},
		{
			name:     "unparsable public key",
			campus:   func(c *campus) { c.publicKey = "not a key!" },
			creds:    alice,
			wantKind: domerrors.KindSecurity,
		},
		{
			name:     "missing password",
			creds:    Credentials{Username: "alice"},
			wantKind: domerrors.KindCustom,
		},
		{
			name:     "lab table unavailable",
			setup:    func(c *campus, cfg *SessionConfig) { cfg.ScheduleURL = c.lab.URL + "/missing" },
			creds:    alice,
			wantKind: domerrors.KindAPI,
		},
		{
			name:     "broken table",
			campus:   func(c *campus) { c.table = "<html><body>no table</body></html>" },
			creds:    alice,
			wantKind: domerrors.KindHTMLParsing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var opts []func(*campus)
			if tt.campus != nil {
				opts = append(opts, tt.campus)
			}
			c := newCampus(t, opts...)
			cfg := c.config()
			if tt.setup != nil {
				tt.setup(c, &cfg)
			}
			session := NewSession(newTestClient(t), cfg, nil)

			_, err := session.Fetch(context.Background(), tt.creds)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, domerrors.KindOf(err), "err = %v", err)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, err.Error())
			}
		})
	}
}

func TestSession_PreFlight(t *testing.T) {
	t.Parallel()
	c := newCampus(t)
	session := NewSession(newTestClient(t), c.config(), nil)
	ctx := context.Background()

	state, err := session.PreFlight(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateNeedsLogin, state)

	require.NoError(t, session.Login(ctx, alice))

	state, err = session.PreFlight(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, state)

	require.NoError(t, session.Reset())
	state, err = session.PreFlight(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateNeedsLogin, state)
}

func TestSession_Canceled(t *testing.T) {
	t.Parallel()
	c := newCampus(t)
	session := NewSession(newTestClient(t), c.config(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := session.Fetch(ctx, alice)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, domerrors.KindOf(err))
}

func TestParsePublicKey(t *testing.T) {
	t.Parallel()
	key := testKey()
	pkix, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pkcs1 := x509.MarshalPKCS1PublicKey(&key.PublicKey)

	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{"PKIX PEM", string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pkix})), false},
		{"PKCS1 PEM", string(pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: pkcs1})), false},
		{"bare base64", "\n" + base64.StdEncoding.EncodeToString(pkix) + "\n", false},
		{"garbage", "not a key!", true},
		{"valid base64, not a key", base64.StdEncoding.EncodeToString([]byte("hello")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParsePublicKey(tt.text)
			if tt.wantErr {
				assert.Equal(t, domerrors.KindSecurity, domerrors.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.True(t, key.PublicKey.Equal(got))
		})
	}
}

func TestEncryptPassword(t *testing.T) {
	t.Parallel()
	key := testKey()

	got, err := EncryptPassword(&key.PublicKey, "secret", testPrefix)
	require.NoError(t, err)

	encoded, ok := strings.CutPrefix(got, testPrefix)
	require.True(t, ok, "missing prefix in %q", got)
	cipher, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	plain, err := rsa.DecryptPKCS1v15(nil, key, cipher)
	require.NoError(t, err)
	assert.Equal(t, "secret", string(plain))
}
