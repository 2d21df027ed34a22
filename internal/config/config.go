// Package config provides application configuration management.
// It loads settings from environment variables (and an optional .env file)
// into an immutable Config built once at startup.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server Configuration
	Port     string
	LogLevel string

	// Data Configuration
	DataDir    string // Root for the file caches and the SQLite database
	APIBaseURL string // Base URL of the campus JSON API

	// Scraper Configuration
	ScraperTimeout            time.Duration
	ScraperMaxRetries         int // 0 disables retries
	ScraperInsecureSkipVerify bool
	ScraperForceIPv4          bool
	ScraperUserAgent          string // Empty = random browser User-Agent

	// Lab schedule / SSO
	LabProbeURL       string
	LabScheduleURL    string
	LabTargetHost     string
	SSOLoginURL       string
	SSOPublicKeyURL   string
	SSOLoginMarker    string
	SSOPasswordPrefix string
	LabLoginBurst     int           // Login attempts allowed per username before throttling
	LabLoginRefill    time.Duration // Time to regain one login attempt

	// Cache TTLs
	TTL CacheTTLs

	// Metrics endpoint Basic Auth; enabled when the password is set
	MetricsUsername string
	MetricsPassword string

	// Bearer token for DELETE /api/cache; empty disables the route
	AdminToken string

	// Sentry
	SentryDSN         string
	SentryEnvironment string

	// Better Stack
	BetterStackToken string
}

// CacheTTLs groups the validity window of every domain cache.
type CacheTTLs struct {
	PortalCategory time.Duration
	PortalInfo     time.Duration
	Schedule       time.Duration
	LabSchedule    time.Duration
	Service        time.Duration
	Personal       time.Duration
}

// Load reads configuration from environment variables
// It attempts to load .env file first, then reads from env vars
func Load() (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnv(EnvPort, "10000"),
		LogLevel: getEnv(EnvLogLevel, "info"),

		DataDir:    getEnv(EnvDataDir, getDefaultDataDir()),
		APIBaseURL: strings.TrimRight(getEnv(EnvAPIBaseURL, "https://api.campus.example.edu"), "/"),

		ScraperTimeout:            getDurationEnv(EnvScraperTimeout, ScraperRequest),
		ScraperMaxRetries:         getIntEnv(EnvScraperMaxRetries, 0),
		ScraperInsecureSkipVerify: getBoolEnv(EnvScraperInsecureSkipVerify, false),
		ScraperForceIPv4:          getBoolEnv(EnvScraperForceIPv4, false),
		ScraperUserAgent:          getEnv(EnvScraperUserAgent, ""),

		LabProbeURL:       getEnv(EnvLabProbeURL, "https://lab.campus.example.edu/index"),
		LabScheduleURL:    getEnv(EnvLabScheduleURL, "https://lab.campus.example.edu/schedule/course"),
		LabTargetHost:     getEnv(EnvLabTargetHost, "lab.campus.example.edu"),
		SSOLoginURL:       getEnv(EnvSSOLoginURL, "https://sso.campus.example.edu/cas/login"),
		SSOPublicKeyURL:   getEnv(EnvSSOPublicKeyURL, "https://sso.campus.example.edu/cas/v2/getPubKey"),
		SSOLoginMarker:    getEnv(EnvSSOLoginMarker, "login"),
		SSOPasswordPrefix: getEnv(EnvSSOPasswordPrefix, "__RSA__"),
		LabLoginBurst:     getIntEnv(EnvLabLoginBurst, 5),
		LabLoginRefill:    getDurationEnv(EnvLabLoginRefill, time.Minute),

		TTL: CacheTTLs{
			PortalCategory: getDurationEnv(EnvPortalCategoryTTL, 12*time.Hour),
			PortalInfo:     getDurationEnv(EnvPortalInfoTTL, 6*time.Hour),
			Schedule:       getDurationEnv(EnvScheduleTTL, 6*time.Hour),
			LabSchedule:    getDurationEnv(EnvLabScheduleTTL, 24*time.Hour),
			Service:        getDurationEnv(EnvServiceTTL, 12*time.Hour),
			Personal:       getDurationEnv(EnvPersonalTTL, 24*time.Hour),
		},

		MetricsUsername: getEnv(EnvMetricsUsername, "prometheus"),
		MetricsPassword: getEnv(EnvMetricsPassword, ""),

		AdminToken: getEnv(EnvAdminToken, ""),

		SentryDSN:         getEnv(EnvSentryDSN, ""),
		SentryEnvironment: getEnv(EnvSentryEnvironment, "production"),

		BetterStackToken: getEnv(EnvBetterStackToken, ""),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if required configuration values are set
func (c *Config) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("DATA_DIR is required"))
	}
	if c.ScraperTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SCRAPER_TIMEOUT must be positive, got %v", c.ScraperTimeout))
	}
	if c.ScraperMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("SCRAPER_MAX_RETRIES cannot be negative, got %d", c.ScraperMaxRetries))
	}
	if c.LabTargetHost == "" {
		errs = append(errs, errors.New("LAB_TARGET_HOST is required"))
	}
	if c.SSOLoginMarker == "" {
		errs = append(errs, errors.New("SSO_LOGIN_MARKER is required"))
	}
	if c.LabLoginBurst < 1 {
		errs = append(errs, fmt.Errorf("LAB_LOGIN_BURST must be at least 1, got %d", c.LabLoginBurst))
	}
	if c.LabLoginRefill <= 0 {
		errs = append(errs, fmt.Errorf("LAB_LOGIN_REFILL must be positive, got %v", c.LabLoginRefill))
	}

	for key, raw := range map[string]string{
		EnvAPIBaseURL:      c.APIBaseURL,
		EnvLabProbeURL:     c.LabProbeURL,
		EnvLabScheduleURL:  c.LabScheduleURL,
		EnvSSOLoginURL:     c.SSOLoginURL,
		EnvSSOPublicKeyURL: c.SSOPublicKeyURL,
	} {
		if err := validateURL(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}

	for key, ttl := range map[string]time.Duration{
		EnvPortalCategoryTTL: c.TTL.PortalCategory,
		EnvPortalInfoTTL:     c.TTL.PortalInfo,
		EnvScheduleTTL:       c.TTL.Schedule,
		EnvLabScheduleTTL:    c.TTL.LabSchedule,
		EnvServiceTTL:        c.TTL.Service,
		EnvPersonalTTL:       c.TTL.Personal,
	} {
		if ttl <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", key, ttl))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv retrieves integer environment variable with fallback to default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getBoolEnv retrieves boolean environment variable with fallback to default value
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getDurationEnv retrieves duration environment variable with fallback to default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getDefaultDataDir returns platform-specific default data directory
func getDefaultDataDir() string {
	if runtime.GOOS == "windows" {
		return "./data"
	}
	return "/data"
}

// MetricsAuthEnabled reports whether /metrics requires Basic Auth.
func (c *Config) MetricsAuthEnabled() bool {
	return c.MetricsPassword != ""
}

// SQLitePath returns the full path to the SQLite database file
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "campus.db")
}

// CacheDir returns the root directory of the JSON file caches
func (c *Config) CacheDir() string {
	return filepath.Join(c.DataDir, "cache")
}
