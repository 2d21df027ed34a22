// Package portal serves campus portal news: a list of categories and the
// articles published under each of them.
package portal

import (
	"context"
	"fmt"
	"time"

	"github.com/garyellow/campuskit/internal/filecache"
	"github.com/garyellow/campuskit/internal/logger"
	"github.com/garyellow/campuskit/internal/metrics"
	"github.com/garyellow/campuskit/internal/repository"
)

// Module is the label used in logs and metrics.
const Module = "portal"

// CategoryItem is a news category.
type CategoryItem struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// InfoItem is one article inside a category.
type InfoItem struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	URL         string    `json:"url"`
	Author      string    `json:"author"`
	PublishedAt time.Time `json:"published_at"`
}

// JSONClient performs authenticated JSON requests against the campus API.
type JSONClient interface {
	GetJSON(ctx context.Context, rawURL, accessToken string, out any) error
}

// Config holds the portal TTLs.
type Config struct {
	CategoryTTL time.Duration
	InfoTTL     time.Duration
}

// Repository reads portal data cache-first.
type Repository struct {
	categories *repository.CacheFirst[struct{}, []CategoryItem]
	info       *repository.CacheFirst[int, []InfoItem]
	store      *filecache.Store
	log        *logger.Logger
}

// NewRepository wires the portal caches and remotes.
func NewRepository(client JSONClient, apiBaseURL string, store *filecache.Store, cfg Config, m *metrics.Metrics, log *logger.Logger) *Repository {
	remote := &Remote{client: client, baseURL: apiBaseURL}
	cache := &Cache{store: store, categoryTTL: cfg.CategoryTTL, infoTTL: cfg.InfoTTL}
	return &Repository{
		categories: repository.New[struct{}, []CategoryItem](categoryCache{cache}, categoryRemote{remote}, repository.Options{
			Module: Module, Metrics: m, Logger: log,
		}),
		info: repository.New[int, []InfoItem](infoCache{cache}, infoRemote{remote}, repository.Options{
			Module: Module, Metrics: m, Logger: log,
		}),
		store: store,
		log:   log,
	}
}

// GetCategories returns the category list.
func (r *Repository) GetCategories(ctx context.Context) ([]CategoryItem, error) {
	return r.categories.Get(ctx, struct{}{})
}

// GetInfo returns the articles of one category.
func (r *Repository) GetInfo(ctx context.Context, categoryID int) ([]InfoItem, error) {
	return r.info.Get(ctx, categoryID)
}

// GetAll returns the categories and, at the same index, each category's articles.
// Categories are fetched one after another; a category whose articles fail to
// load gets an empty slot instead of failing the whole call.
func (r *Repository) GetAll(ctx context.Context) ([]CategoryItem, [][]InfoItem, error) {
	categories, err := r.GetCategories(ctx)
	if err != nil {
		return nil, nil, err
	}

	infos := make([][]InfoItem, len(categories))
	for i, category := range categories {
		items, err := r.GetInfo(ctx, category.ID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			if r.log != nil {
				r.log.WithModule(Module).WithError(err).
					WithField("category_id", category.ID).
					WarnContext(ctx, "Skipping category with failed info fetch")
			}
			infos[i] = []InfoItem{}
			continue
		}
		infos[i] = items
	}
	return categories, infos, nil
}

// Clean removes every cached portal file.
func (r *Repository) Clean(ctx context.Context) error {
	return r.categories.Clean(ctx)
}

func infoFile(categoryID int) string {
	return fmt.Sprintf("%s/info_%d.json", cacheDir, categoryID)
}
