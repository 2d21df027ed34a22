// Package personal serves the signed-in student's profile.
package personal

import (
	"context"
	"time"

	domerrors "github.com/garyellow/campuskit/internal/errors"
	"github.com/garyellow/campuskit/internal/filecache"
	"github.com/garyellow/campuskit/internal/logger"
	"github.com/garyellow/campuskit/internal/metrics"
	"github.com/garyellow/campuskit/internal/repository"
)

// Module is the label used in logs and metrics.
const Module = "personal"

const cacheDir = "personal"

// infoFile is personal/<token key>/info.json.
func infoFile(accessToken string) string {
	return cacheDir + "/" + filecache.Key(accessToken) + "/info.json"
}

// Info is the student profile.
type Info struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	StudentNumber string `json:"student_number"`
	Department    string `json:"department"`
	Major         string `json:"major"`
	ClassName     string `json:"class_name"`
	Grade         string `json:"grade"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	AvatarURL     string `json:"avatar_url"`
}

type infoDTO struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	StudentNumber string `json:"studentNumber"`
	Department    string `json:"department"`
	Major         string `json:"major"`
	ClassName     string `json:"className"`
	Grade         string `json:"grade"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	AvatarURL     string `json:"avatarUrl"`
}

// JSONClient performs authenticated JSON requests against the campus API.
type JSONClient interface {
	GetJSON(ctx context.Context, rawURL, accessToken string, out any) error
}

// Remote fetches the profile from the campus API.
type Remote struct {
	client  JSONClient
	baseURL string
}

// NewRemote creates a profile remote.
func NewRemote(client JSONClient, apiBaseURL string) *Remote {
	return &Remote{client: client, baseURL: apiBaseURL}
}

// Fetch loads the profile of the token's owner.
func (r *Remote) Fetch(ctx context.Context, accessToken string) (*Info, error) {
	var dto *infoDTO
	if err := r.client.GetJSON(ctx, r.baseURL+"/personal/info", accessToken, &dto); err != nil {
		return nil, domerrors.MapError(err)
	}
	if dto == nil {
		return nil, domerrors.NewJSONParsingError("personal info payload is null", nil)
	}
	info := Info(*dto)
	return &info, nil
}

// Cache stores one profile per access token.
type Cache struct {
	store *filecache.Store
	ttl   time.Duration
}

// NewCache creates a profile cache.
func NewCache(store *filecache.Store, ttl time.Duration) *Cache {
	return &Cache{store: store, ttl: ttl}
}

// Get returns the profile cached for accessToken.
func (c *Cache) Get(_ context.Context, accessToken string) (*Info, bool, error) {
	return filecache.Read[*Info](c.store, infoFile(accessToken), c.ttl)
}

// Save stores the profile of accessToken's owner.
func (c *Cache) Save(_ context.Context, accessToken string, info *Info) error {
	return filecache.Write(c.store, infoFile(accessToken), info)
}

// Clean removes the personal directory.
func (c *Cache) Clean(context.Context) error {
	return c.store.Remove(cacheDir)
}

// Repository reads the profile cache-first. An unreadable cache file is
// skipped in favor of the remote instead of failing the read.
type Repository struct {
	repo *repository.CacheFirst[string, *Info]
}

// NewRepository wires the profile cache and remote.
func NewRepository(client JSONClient, apiBaseURL string, store *filecache.Store, ttl time.Duration, m *metrics.Metrics, log *logger.Logger) *Repository {
	return &Repository{
		repo: repository.New[string, *Info](
			NewCache(store, ttl),
			NewRemote(client, apiBaseURL),
			repository.Options{Module: Module, Policy: repository.BypassCacheErrors, Metrics: m, Logger: log},
		),
	}
}

// Get returns the profile of accessToken's owner.
func (r *Repository) Get(ctx context.Context, accessToken string) (*Info, error) {
	return r.repo.Get(ctx, accessToken)
}

// Refresh skips the cache and reloads the profile.
func (r *Repository) Refresh(ctx context.Context, accessToken string) (*Info, error) {
	return r.repo.Refresh(ctx, accessToken)
}

// Clean removes the cached profile.
func (r *Repository) Clean(ctx context.Context) error {
	return r.repo.Clean(ctx)
}
