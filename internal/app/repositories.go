package app

import (
	"context"
	"errors"

	"github.com/garyellow/campuskit/internal/config"
	"github.com/garyellow/campuskit/internal/filecache"
	"github.com/garyellow/campuskit/internal/labschedule"
	"github.com/garyellow/campuskit/internal/logger"
	"github.com/garyellow/campuskit/internal/metrics"
	"github.com/garyellow/campuskit/internal/personal"
	"github.com/garyellow/campuskit/internal/portal"
	"github.com/garyellow/campuskit/internal/schedule"
	"github.com/garyellow/campuskit/internal/scraper"
	"github.com/garyellow/campuskit/internal/service"
	"github.com/garyellow/campuskit/internal/storage"
)

// Repositories bundles every domain repository.
type Repositories struct {
	Portal      *portal.Repository
	Schedule    *schedule.Repository
	LabSchedule *labschedule.Repository
	Service     *service.Repository
	Personal    *personal.Repository
}

// NewRepositories wires every domain against the shared client and stores.
func NewRepositories(cfg *config.Config, client *scraper.Client, store *filecache.Store, db *storage.DB, m *metrics.Metrics, log *logger.Logger) *Repositories {
	return &Repositories{
		Portal: portal.NewRepository(client, cfg.APIBaseURL, store, portal.Config{
			CategoryTTL: cfg.TTL.PortalCategory,
			InfoTTL:     cfg.TTL.PortalInfo,
		}, m, log),
		Schedule: schedule.NewRepository(client, cfg.APIBaseURL, store, cfg.TTL.Schedule, m, log),
		LabSchedule: labschedule.NewRepository(client, labschedule.SessionConfig{
			ProbeURL:       cfg.LabProbeURL,
			ScheduleURL:    cfg.LabScheduleURL,
			TargetHost:     cfg.LabTargetHost,
			LoginURL:       cfg.SSOLoginURL,
			PublicKeyURL:   cfg.SSOPublicKeyURL,
			LoginMarker:    cfg.SSOLoginMarker,
			PasswordPrefix: cfg.SSOPasswordPrefix,
		}, store, cfg.TTL.LabSchedule, m, log),
		Service:  service.NewRepository(client, cfg.APIBaseURL, db, cfg.TTL.Service, m, log),
		Personal: personal.NewRepository(client, cfg.APIBaseURL, store, cfg.TTL.Personal, m, log),
	}
}

// ScraperOptions maps the scraper settings of cfg to client options.
func ScraperOptions(cfg *config.Config) scraper.Options {
	return scraper.Options{
		InsecureSkipVerify: cfg.ScraperInsecureSkipVerify,
		ForceIPv4:          cfg.ScraperForceIPv4,
		Timeout:            cfg.ScraperTimeout,
		MaxRetries:         cfg.ScraperMaxRetries,
		UserAgent:          cfg.ScraperUserAgent,
	}
}

// Clean wipes every domain cache and the SSO session (logout).
// Every store is attempted even if an earlier one fails.
func (r *Repositories) Clean(ctx context.Context) error {
	return errors.Join(
		r.Portal.Clean(ctx),
		r.Schedule.Clean(ctx),
		r.LabSchedule.Clean(ctx),
		r.Service.Clean(ctx),
		r.Personal.Clean(ctx),
	)
}
