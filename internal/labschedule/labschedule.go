// Package labschedule scrapes the lab course table behind the campus CAS SSO.
//
// The whole multi-week table is fetched in one session and cached as one unit:
// a single stale or missing week invalidates every week.
package labschedule

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/garyellow/campuskit/internal/filecache"
	"github.com/garyellow/campuskit/internal/logger"
	"github.com/garyellow/campuskit/internal/metrics"
	"github.com/garyellow/campuskit/internal/repository"
)

// Module is the label used in logs and metrics.
const Module = "lab_schedule"

const cacheDir = "labSchedule"

// Item is one course occupying a lab slot.
type Item struct {
	CourseName string `json:"course_name"`
	CourseCode string `json:"course_code"`
	ClassName  string `json:"class_name"`
	Location   string `json:"location"`
	Section    string `json:"section"`
}

// Credentials are the SSO account.
type Credentials struct {
	Username string
	Password string
}

// String omits the password.
func (c Credentials) String() string {
	return c.Username
}

// Cache stores one labSchedule/<account key>/week_<n>.json file per week.
// The account key is derived from both username and password, so a wrong
// password never reads another login's table.
type Cache struct {
	store *filecache.Store
	ttl   time.Duration
}

// NewCache creates a lab schedule cache.
func NewCache(store *filecache.Store, ttl time.Duration) *Cache {
	return &Cache{store: store, ttl: ttl}
}

func accountDir(creds Credentials) string {
	return cacheDir + "/" + filecache.SecretKey(creds.Username, creds.Password)
}

// Get returns every week cached for creds.
func (c *Cache) Get(_ context.Context, creds Credentials) (map[int][]*Item, bool, error) {
	files, ok, err := filecache.ReadDir[[]*Item](c.store, accountDir(creds), c.ttl)
	if err != nil || !ok {
		return nil, false, err
	}
	weeks := make(map[int][]*Item, len(files))
	for name, cells := range files {
		week, ok := weekFromFile(name)
		if !ok {
			continue
		}
		weeks[week] = cells
	}
	if len(weeks) == 0 {
		return nil, false, nil
	}
	return weeks, true, nil
}

// Save replaces the weeks cached for creds atomically.
func (c *Cache) Save(_ context.Context, creds Credentials, weeks map[int][]*Item) error {
	files := make(map[string][]*Item, len(weeks))
	for week, cells := range weeks {
		files[weekFile(week)] = cells
	}
	return filecache.WriteDir(c.store, accountDir(creds), files)
}

// Clean removes the labSchedule directory for every account.
func (c *Cache) Clean(context.Context) error {
	return c.store.Remove(cacheDir)
}

func weekFile(week int) string {
	return "week_" + strconv.Itoa(week) + ".json"
}

func weekFromFile(name string) (int, bool) {
	digits, ok := strings.CutPrefix(strings.TrimSuffix(name, ".json"), "week_")
	if !ok {
		return 0, false
	}
	week, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return week, true
}

// Repository reads the lab schedule cache-first and owns the SSO session.
type Repository struct {
	repo    *repository.CacheFirst[Credentials, map[int][]*Item]
	session *Session
}

// NewRepository wires the lab schedule cache and session.
func NewRepository(client PageClient, cfg SessionConfig, store *filecache.Store, ttl time.Duration, m *metrics.Metrics, log *logger.Logger) *Repository {
	session := NewSession(client, cfg, log)
	return &Repository{
		repo: repository.New[Credentials, map[int][]*Item](
			NewCache(store, ttl),
			session,
			repository.Options{Module: Module, Metrics: m, Logger: log},
		),
		session: session,
	}
}

// Get returns week number -> 42 cells.
func (r *Repository) Get(ctx context.Context, creds Credentials) (map[int][]*Item, error) {
	return r.repo.Get(ctx, creds)
}

// Refresh skips the cache and scrapes the table again.
func (r *Repository) Refresh(ctx context.Context, creds Credentials) (map[int][]*Item, error) {
	return r.repo.Refresh(ctx, creds)
}

// Clean removes the cached weeks and ends the SSO session.
func (r *Repository) Clean(ctx context.Context) error {
	if err := r.repo.Clean(ctx); err != nil {
		return err
	}
	return r.session.Reset()
}
