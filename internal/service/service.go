// Package service serves the list of campus services reachable through SSO,
// including which request field each service expects the access token in.
package service

import (
	"context"
	"time"

	"github.com/garyellow/campuskit/internal/logger"
	"github.com/garyellow/campuskit/internal/metrics"
	"github.com/garyellow/campuskit/internal/repository"
	"github.com/garyellow/campuskit/internal/storage"
)

// Module is the label used in logs and metrics.
const Module = "service"

// Item is one campus service.
type Item struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Text        string `json:"text"`
	URL         string `json:"url"`
	Icon        string `json:"icon"`
	Category    string `json:"category"`
	TokenAccept string `json:"token_accept"`
	// TokenKeyName is nil when the service does not accept a token.
	TokenKeyName *TokenKeyName `json:"token_key_name,omitempty"`
}

// TokenKeyName names the header and/or query parameter that carries the token.
type TokenKeyName struct {
	HeaderTokenKeyName string `json:"header_token_key_name,omitempty"`
	URLTokenKeyName    string `json:"url_token_key_name,omitempty"`
}

// JSONClient performs authenticated JSON requests against the campus API.
type JSONClient interface {
	GetJSON(ctx context.Context, rawURL, accessToken string, out any) error
}

// Repository reads the service list cache-first.
type Repository struct {
	repo *repository.CacheFirst[string, []Item]
}

// NewRepository wires the SQLite cache and the remote.
func NewRepository(client JSONClient, apiBaseURL string, db *storage.DB, ttl time.Duration, m *metrics.Metrics, log *logger.Logger) *Repository {
	return &Repository{
		repo: repository.New[string, []Item](
			NewCache(db, ttl),
			NewRemote(client, apiBaseURL),
			repository.Options{Module: Module, Metrics: m, Logger: log},
		),
	}
}

// Get returns the service list visible to accessToken's owner.
func (r *Repository) Get(ctx context.Context, accessToken string) ([]Item, error) {
	return r.repo.Get(ctx, accessToken)
}

// Search returns the services matching query, reusing the cached list.
func (r *Repository) Search(ctx context.Context, accessToken, query string) ([]Item, error) {
	items, err := r.Get(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return Filter(items, query), nil
}

// Clean empties the service tables.
func (r *Repository) Clean(ctx context.Context) error {
	return r.repo.Clean(ctx)
}
