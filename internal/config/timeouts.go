// Package config provides centralized timeout constants for the application.
//
// Campus endpoints and the SSO server can be slow during enrollment peaks,
// so the scraper timeout is generous. Server timeouts bound the gateway.
package config

import "time"

// HTTP server timeouts
const (
	// ServerHTTPRead is the HTTP server read timeout. Requests carry small JSON bodies.
	ServerHTTPRead = 10 * time.Second

	// ServerHTTPWrite is the HTTP server write timeout.
	// Must cover a full SSO login plus the lab-schedule fetch.
	ServerHTTPWrite = 90 * time.Second

	// ServerHTTPIdle is the HTTP server idle timeout for keep-alive connections.
	ServerHTTPIdle = 120 * time.Second

	// ReadinessCheck bounds the dependency checks behind /readyz.
	ReadinessCheck = 3 * time.Second
)

// Scraper timeouts
const (
	// ScraperRequest is the timeout for a single HTTP request to campus endpoints.
	ScraperRequest = 30 * time.Second

	// ScraperRetryInitial is the initial delay before retrying a failed request.
	// Uses exponential backoff: 1s -> 2s -> 4s -> ...
	ScraperRetryInitial = 1 * time.Second

	// ScraperRetryMax caps a single backoff delay.
	ScraperRetryMax = 10 * time.Second
)

// Database timeouts
const (
	// DatabaseBusyTimeout is SQLite busy_timeout pragma value.
	DatabaseBusyTimeout = 5 * time.Second

	// DatabaseConnMaxLifetime is the maximum lifetime of database connections.
	DatabaseConnMaxLifetime = time.Hour
)

// Search
const (
	// SearchDebounce is how long the service search waits for the query to settle.
	SearchDebounce = 300 * time.Millisecond
)

// Rate limiting
const (
	// RateLimiterCleanup is how often idle per-user login buckets are dropped.
	RateLimiterCleanup = 5 * time.Minute
)

// Graceful shutdown
const (
	// GracefulShutdown is the timeout for graceful server shutdown.
	// Allows in-flight requests to complete before forceful termination.
	GracefulShutdown = 30 * time.Second
)
