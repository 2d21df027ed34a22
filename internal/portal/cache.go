package portal

import (
	"context"
	"time"

	"github.com/garyellow/campuskit/internal/filecache"
)

const (
	cacheDir       = "portal"
	categoriesFile = cacheDir + "/categories.json"
)

// Cache stores portal data as JSON files under portal/.
type Cache struct {
	store       *filecache.Store
	categoryTTL time.Duration
	infoTTL     time.Duration
}

// Clean removes the whole portal directory.
func (c *Cache) Clean(context.Context) error {
	return c.store.Remove(cacheDir)
}

type categoryCache struct{ *Cache }

func (c categoryCache) Get(_ context.Context, _ struct{}) ([]CategoryItem, bool, error) {
	return filecache.Read[[]CategoryItem](c.store, categoriesFile, c.categoryTTL)
}

func (c categoryCache) Save(_ context.Context, _ struct{}, items []CategoryItem) error {
	return filecache.Write(c.store, categoriesFile, items)
}

type infoCache struct{ *Cache }

func (c infoCache) Get(_ context.Context, categoryID int) ([]InfoItem, bool, error) {
	return filecache.Read[[]InfoItem](c.store, infoFile(categoryID), c.infoTTL)
}

func (c infoCache) Save(_ context.Context, categoryID int, items []InfoItem) error {
	return filecache.Write(c.store, infoFile(categoryID), items)
}
