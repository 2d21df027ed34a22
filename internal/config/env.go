// Package config defines environment variable keys for configuration.
package config

//nolint:gosec,revive // Environment variable keys are not credentials and do not need per-const comments.
const (
	// Server
	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	// Data
	EnvDataDir    = "DATA_DIR"
	EnvAPIBaseURL = "API_BASE_URL"

	// Scraper
	EnvScraperTimeout            = "SCRAPER_TIMEOUT"
	EnvScraperMaxRetries         = "SCRAPER_MAX_RETRIES"
	EnvScraperInsecureSkipVerify = "SCRAPER_INSECURE_SKIP_VERIFY"
	EnvScraperForceIPv4          = "SCRAPER_FORCE_IPV4"
	EnvScraperUserAgent          = "SCRAPER_USER_AGENT"

	// Lab schedule and SSO
	EnvLabProbeURL       = "LAB_PROBE_URL"
	EnvLabScheduleURL    = "LAB_SCHEDULE_URL"
	EnvLabTargetHost     = "LAB_TARGET_HOST"
	EnvSSOLoginURL       = "SSO_LOGIN_URL"
	EnvSSOPublicKeyURL   = "SSO_PUBLIC_KEY_URL"
	EnvSSOLoginMarker    = "SSO_LOGIN_MARKER"
	EnvSSOPasswordPrefix = "SSO_PASSWORD_PREFIX"
	EnvLabLoginBurst     = "LAB_LOGIN_BURST"
	EnvLabLoginRefill    = "LAB_LOGIN_REFILL"

	// Cache TTLs
	EnvPortalCategoryTTL = "PORTAL_CATEGORY_TTL"
	EnvPortalInfoTTL     = "PORTAL_INFO_TTL"
	EnvScheduleTTL       = "SCHEDULE_TTL"
	EnvLabScheduleTTL    = "LAB_SCHEDULE_TTL"
	EnvServiceTTL        = "SERVICE_TTL"
	EnvPersonalTTL       = "PERSONAL_TTL"

	// Metrics endpoint
	EnvMetricsUsername = "METRICS_USERNAME"
	EnvMetricsPassword = "METRICS_PASSWORD"

	// Cache administration
	EnvAdminToken = "ADMIN_TOKEN"

	// Sentry Feature
	EnvSentryDSN         = "SENTRY_DSN"
	EnvSentryEnvironment = "SENTRY_ENVIRONMENT"

	// Better Stack Feature
	EnvBetterStackToken = "BETTERSTACK_TOKEN"
)
