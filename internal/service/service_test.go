package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/campuskit/internal/scraper"
	"github.com/garyellow/campuskit/internal/storage"
)

func TestRepository_GetAndSearch(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/services", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":[
			{"id":"mail","name":"Mail","text":"Campus Mail","url":"https://mail.test.edu","icon":"mail.png","category":"office","tokenAccept":""},
			{"id":"card","name":"Card","text":"Campus Card","url":"https://card.test.edu","icon":"card.png","category":"life",
			 "tokenAccept":"[{\"tokenType\":\"header\",\"tokenKey\":\"X-Token=abc\"},{\"tokenType\":\"url\",\"tokenKey\":\"ticket\"}]"}
		]}`))
	}))
	defer srv.Close()

	db, err := storage.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	client, err := scraper.NewClient(scraper.Options{Timeout: 5 * time.Second})
	require.NoError(t, err)
	repo := NewRepository(client, srv.URL, db, 12*time.Hour, nil, nil)
	ctx := context.Background()

	items, err := repo.Get(ctx, "tok")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Nil(t, items[0].TokenKeyName)
	assert.Equal(t, &TokenKeyName{HeaderTokenKeyName: "X-Token", URLTokenKeyName: "ticket"}, items[1].TokenKeyName)

	// Served from SQLite on the second read, including the linked token key names.
	cached, err := repo.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, items, cached)
	assert.Equal(t, int32(1), calls.Load())

	found, err := repo.Search(ctx, "tok", "card")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "card", found[0].ID)
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, repo.Clean(ctx))
	_, err = repo.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRepository_ListsStayPerToken(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch r.Header.Get("Authorization") {
		case "Bearer staff":
			_, _ = w.Write([]byte(`{"data":[{"id":"hr","name":"HR","tokenAccept":""}]}`))
		case "Bearer guest":
			_, _ = w.Write([]byte(`{"data":[]}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	db, err := storage.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	client, err := scraper.NewClient(scraper.Options{Timeout: 5 * time.Second})
	require.NoError(t, err)
	repo := NewRepository(client, srv.URL, db, 12*time.Hour, nil, nil)
	ctx := context.Background()

	staff, err := repo.Get(ctx, "staff")
	require.NoError(t, err)
	require.Len(t, staff, 1)

	// An empty list is a valid answer and is cached like any other.
	for i := 0; i < 2; i++ {
		guest, err := repo.Get(ctx, "guest")
		require.NoError(t, err)
		assert.Empty(t, guest)
	}
	assert.Equal(t, int32(2), calls.Load())

	_, err = repo.Get(ctx, "expired")
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())

	staff, err = repo.Get(ctx, "staff")
	require.NoError(t, err)
	assert.Equal(t, "hr", staff[0].ID)
	assert.Equal(t, int32(3), calls.Load())
}
