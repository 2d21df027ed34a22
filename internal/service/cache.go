package service

import (
	"context"
	"time"

	domerrors "github.com/garyellow/campuskit/internal/errors"
	"github.com/garyellow/campuskit/internal/filecache"
	"github.com/garyellow/campuskit/internal/storage"
)

// Cache stores one service list per access token in SQLite. Rows are keyed
// by a digest of the token, never the token itself.
type Cache struct {
	db  *storage.DB
	ttl time.Duration
}

// NewCache creates a service cache.
func NewCache(db *storage.DB, ttl time.Duration) *Cache {
	return &Cache{db: db, ttl: ttl}
}

// Get returns the list cached for accessToken.
func (c *Cache) Get(ctx context.Context, accessToken string) ([]Item, bool, error) {
	rows, ok, err := c.db.GetServices(ctx, filecache.Key(accessToken), c.ttl)
	if err != nil || !ok {
		return nil, false, storageFailure(err)
	}

	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		item := Item{
			ID:          row.ID,
			Name:        row.Name,
			Text:        row.Text,
			URL:         row.URL,
			Icon:        row.Icon,
			Category:    row.Category,
			TokenAccept: row.TokenAccept,
		}
		if row.TokenKeyName != nil {
			item.TokenKeyName = &TokenKeyName{
				HeaderTokenKeyName: row.TokenKeyName.Header,
				URLTokenKeyName:    row.TokenKeyName.URL,
			}
		}
		items = append(items, item)
	}
	return items, true, nil
}

// Save replaces the list cached for accessToken.
func (c *Cache) Save(ctx context.Context, accessToken string, items []Item) error {
	rows := make([]storage.Service, 0, len(items))
	for _, item := range items {
		row := storage.Service{
			ID:          item.ID,
			Name:        item.Name,
			Text:        item.Text,
			URL:         item.URL,
			Icon:        item.Icon,
			Category:    item.Category,
			TokenAccept: item.TokenAccept,
		}
		if item.TokenKeyName != nil {
			row.TokenKeyName = &storage.TokenKeyName{
				Header: item.TokenKeyName.HeaderTokenKeyName,
				URL:    item.TokenKeyName.URLTokenKeyName,
			}
		}
		rows = append(rows, row)
	}
	return storageFailure(c.db.SaveServices(ctx, filecache.Key(accessToken), rows))
}

// Clean drops the lists of every token.
func (c *Cache) Clean(ctx context.Context) error {
	return storageFailure(c.db.DeleteServices(ctx))
}

// storageFailure reports database errors as IO failures.
func storageFailure(err error) error {
	if err == nil || domerrors.IsCancellation(err) {
		return err
	}
	return domerrors.NewIOError(err.Error(), err)
}
