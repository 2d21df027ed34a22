// Package schedule serves a student's class schedule as a fixed grid of
// five slots per day.
package schedule

import (
	"context"
	"fmt"
	"math"
	"time"

	domerrors "github.com/garyellow/campuskit/internal/errors"

	"github.com/garyellow/campuskit/internal/filecache"
	"github.com/garyellow/campuskit/internal/logger"
	"github.com/garyellow/campuskit/internal/metrics"
	"github.com/garyellow/campuskit/internal/repository"
)

// Module is the label used in logs and metrics.
const Module = "schedule"

// dateLayout is the wire and cache-key format of a calendar day.
const dateLayout = "2006-01-02"

// SlotsPerDay is the number of fixed slots in one day.
const SlotsPerDay = 5

// MaxRangeDays bounds the days one query may span.
const MaxRangeDays = 366

// slotStarts are the fixed slot start times, in grid order.
var slotStarts = [SlotsPerDay]string{"08:00", "10:00", "14:00", "16:00", "19:00"}

// Item is one scheduled class.
type Item struct {
	Title          string    `json:"title"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	Address        string    `json:"address"`
	Remark         string    `json:"remark"`
	StartDateLabel string    `json:"start_date_label"`
	EndDateLabel   string    `json:"end_date_label"`
}

// Query selects the inclusive day range [Start, End] for the owner of
// AccessToken. Cached ranges are kept apart per token.
type Query struct {
	AccessToken string
	Start       time.Time
	End         time.Time
}

// JSONClient performs authenticated JSON requests against the campus API.
type JSONClient interface {
	GetJSON(ctx context.Context, rawURL, accessToken string, out any) error
}

// Repository reads schedules cache-first.
type Repository struct {
	repo *repository.CacheFirst[Query, []*Item]
}

// NewRepository wires the schedule cache and remote.
func NewRepository(client JSONClient, apiBaseURL string, store *filecache.Store, ttl time.Duration, m *metrics.Metrics, log *logger.Logger) *Repository {
	return &Repository{
		repo: repository.New[Query, []*Item](
			NewCache(store, ttl),
			NewRemote(client, apiBaseURL),
			repository.Options{Module: Module, Metrics: m, Logger: log},
		),
	}
}

// Get returns len(days)*5 slots for [start, end]; an empty slot is nil.
func (r *Repository) Get(ctx context.Context, accessToken string, start, end time.Time) ([]*Item, error) {
	if err := ValidateRange(start, end); err != nil {
		return nil, err
	}
	return r.repo.Get(ctx, Query{AccessToken: accessToken, Start: start, End: end})
}

// Refresh refetches [start, end] regardless of the cache.
func (r *Repository) Refresh(ctx context.Context, accessToken string, start, end time.Time) ([]*Item, error) {
	if err := ValidateRange(start, end); err != nil {
		return nil, err
	}
	return r.repo.Refresh(ctx, Query{AccessToken: accessToken, Start: start, End: end})
}

// Clean removes every cached schedule range.
func (r *Repository) Clean(ctx context.Context) error {
	return r.repo.Clean(ctx)
}

// ValidateRange rejects an inverted range or one longer than MaxRangeDays.
func ValidateRange(start, end time.Time) error {
	start = truncateDay(start)
	end = truncateDay(end)
	if end.Before(start) {
		return domerrors.NewCustomError("end date is before start date")
	}
	// Sub saturates for far-apart dates, which still lands above the cap.
	if days := int(math.Round(end.Sub(start).Hours()/24)) + 1; days > MaxRangeDays {
		return domerrors.NewCustomError(fmt.Sprintf("date range spans %d days, at most %d allowed", days, MaxRangeDays))
	}
	return nil
}

// Days returns the calendar days of [start, end] in order.
func Days(start, end time.Time) []time.Time {
	start = truncateDay(start)
	end = truncateDay(end)

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
