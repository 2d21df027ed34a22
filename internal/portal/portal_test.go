package portal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domerrors "github.com/garyellow/campuskit/internal/errors"
	"github.com/garyellow/campuskit/internal/filecache"
	"github.com/garyellow/campuskit/internal/scraper"
)

type portalServer struct {
	*httptest.Server
	categoryCalls atomic.Int32
	infoCalls     atomic.Int32
}

func newPortalServer(t *testing.T) *portalServer {
	t.Helper()
	ps := &portalServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/portal/categories", func(w http.ResponseWriter, _ *http.Request) {
		ps.categoryCalls.Add(1)
		_, _ = w.Write([]byte(`{"data":[{"id":1,"name":"News"},{"id":2,"name":"Events"},{"id":3,"name":"Jobs"}]}`))
	})
	mux.HandleFunc("/portal/categories/1/info", func(w http.ResponseWriter, _ *http.Request) {
		ps.infoCalls.Add(1)
		_, _ = w.Write([]byte(`{"data":[{"id":10,"title":"Opening","summary":"Term starts","url":"https://portal.test.edu/10","author":"Office","publishedAt":"2024-09-01T08:00:00Z"}]}`))
	})
	mux.HandleFunc("/portal/categories/2/info", func(w http.ResponseWriter, _ *http.Request) {
		ps.infoCalls.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	})
	mux.HandleFunc("/portal/categories/3/info", func(w http.ResponseWriter, _ *http.Request) {
		ps.infoCalls.Add(1)
		_, _ = w.Write([]byte(`{"data":[]}`))
	})
	ps.Server = httptest.NewServer(mux)
	t.Cleanup(ps.Close)
	return ps
}

func newTestRepository(t *testing.T, baseURL string) (*Repository, *filecache.Store) {
	t.Helper()
	client, err := scraper.NewClient(scraper.Options{Timeout: 5 * time.Second})
	require.NoError(t, err)
	store := filecache.New(t.TempDir())
	repo := NewRepository(client, baseURL, store, Config{CategoryTTL: 12 * time.Hour, InfoTTL: 6 * time.Hour}, nil, nil)
	return repo, store
}

func TestGetAll(t *testing.T) {
	t.Parallel()
	srv := newPortalServer(t)
	repo, _ := newTestRepository(t, srv.URL)

	categories, infos, err := repo.GetAll(context.Background())
	require.NoError(t, err)

	require.Len(t, categories, 3)
	require.Len(t, infos, 3)
	assert.Equal(t, CategoryItem{ID: 1, Name: "News"}, categories[0])
	require.Len(t, infos[0], 1)
	assert.Equal(t, "Opening", infos[0][0].Title)
	assert.Equal(t, time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC), infos[0][0].PublishedAt.UTC())
	assert.Empty(t, infos[1], "failed category must yield an empty slot")
	assert.NotNil(t, infos[1])
	assert.Empty(t, infos[2])
}

func TestGetAll_SecondCallServedFromCache(t *testing.T) {
	t.Parallel()
	srv := newPortalServer(t)
	repo, _ := newTestRepository(t, srv.URL)
	ctx := context.Background()

	_, _, err := repo.GetAll(ctx)
	require.NoError(t, err)
	_, _, err = repo.GetAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(1), srv.categoryCalls.Load())
	// Category 2 failed and was not cached, so only it is fetched again.
	assert.Equal(t, int32(4), srv.infoCalls.Load())
}

func TestGetInfo_APIError(t *testing.T) {
	t.Parallel()
	srv := newPortalServer(t)
	repo, _ := newTestRepository(t, srv.URL)

	_, err := repo.GetInfo(context.Background(), 2)

	var apiErr *domerrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Code)
}

func TestClean(t *testing.T) {
	t.Parallel()
	srv := newPortalServer(t)
	repo, store := newTestRepository(t, srv.URL)
	ctx := context.Background()

	_, _, err := repo.GetAll(ctx)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(store.Root(), "portal", "categories.json"))
	require.NoError(t, err)

	require.NoError(t, repo.Clean(ctx))
	require.NoError(t, repo.Clean(ctx))

	_, err = os.Stat(filepath.Join(store.Root(), "portal"))
	assert.True(t, os.IsNotExist(err))
}
