package schedule

import (
	"context"
	"time"

	"github.com/garyellow/campuskit/internal/filecache"
)

const cacheDir = "schedule"

// Cache stores one JSON file per requested range under
// schedule/<token key>/, so each token only sees its own ranges.
type Cache struct {
	store *filecache.Store
	ttl   time.Duration
}

// NewCache creates a schedule cache.
func NewCache(store *filecache.Store, ttl time.Duration) *Cache {
	return &Cache{store: store, ttl: ttl}
}

func rangeFile(q Query) string {
	return cacheDir + "/" + filecache.Key(q.AccessToken) + "/" + q.Start.Format(dateLayout) + "-" + q.End.Format(dateLayout) + ".json"
}

// Get returns the cached grid for q's exact range.
func (c *Cache) Get(_ context.Context, q Query) ([]*Item, bool, error) {
	return filecache.Read[[]*Item](c.store, rangeFile(q), c.ttl)
}

// Save stores the grid for q's range.
func (c *Cache) Save(_ context.Context, q Query, items []*Item) error {
	return filecache.Write(c.store, rangeFile(q), items)
}

// Clean removes every cached range.
func (c *Cache) Clean(context.Context) error {
	return c.store.Remove(cacheDir)
}
