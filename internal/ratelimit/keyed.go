package ratelimit

import (
	"sync"
	"time"

	"github.com/garyellow/campuskit/internal/metrics"
)

// KeyedConfig configures a KeyedLimiter instance.
type KeyedConfig struct {
	// Name labels the limiter in metrics (e.g. "lab_login").
	Name string

	// Burst is the bucket capacity per key.
	Burst float64
	// RefillRate is tokens per second per key.
	RefillRate float64

	// CleanupPeriod is how often idle keys are dropped.
	CleanupPeriod time.Duration

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// KeyedLimiter keeps one token bucket per key (account name, client IP)
// and drops buckets that have refilled completely.
type KeyedLimiter struct {
	mu      sync.Mutex
	entries map[string]*Limiter
	config  KeyedConfig
	now     func() time.Time
	stopCh  chan struct{}
	stopped sync.Once
}

// NewKeyedLimiter creates a per-key limiter and starts its cleanup loop.
// Call Stop to end the loop.
func NewKeyedLimiter(cfg KeyedConfig) *KeyedLimiter {
	kl := &KeyedLimiter{
		entries: make(map[string]*Limiter),
		config:  cfg,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	if cfg.CleanupPeriod > 0 {
		go kl.cleanupLoop()
	}
	return kl
}

// Allow consumes a token for key. An empty key is never limited.
func (kl *KeyedLimiter) Allow(key string) bool {
	if key == "" {
		return true
	}

	kl.mu.Lock()
	entry, ok := kl.entries[key]
	if !ok {
		entry = newWithClock(kl.config.Burst, kl.config.RefillRate, kl.now)
		kl.entries[key] = entry
	}
	kl.mu.Unlock()

	if entry.Allow() {
		return true
	}
	kl.config.Metrics.RecordRateLimitDrop(kl.config.Name)
	return false
}

// RetryAfter estimates how long key must wait for its next token.
func (kl *KeyedLimiter) RetryAfter(key string) time.Duration {
	kl.mu.Lock()
	entry, ok := kl.entries[key]
	kl.mu.Unlock()
	if !ok || kl.config.RefillRate <= 0 {
		return 0
	}

	missing := 1 - entry.Available()
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / kl.config.RefillRate * float64(time.Second))
}

// ActiveCount returns the number of tracked keys.
func (kl *KeyedLimiter) ActiveCount() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.entries)
}

// cleanup drops idle keys.
func (kl *KeyedLimiter) cleanup() {
	kl.mu.Lock()
	for key, entry := range kl.entries {
		if entry.IsFull() {
			delete(kl.entries, key)
		}
	}
	active := len(kl.entries)
	kl.mu.Unlock()

	kl.config.Metrics.SetRateLimitKeys(kl.config.Name, active)
}

func (kl *KeyedLimiter) cleanupLoop() {
	ticker := time.NewTicker(kl.config.CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-kl.stopCh:
			return
		case <-ticker.C:
			kl.cleanup()
		}
	}
}

// Stop ends the cleanup loop. Safe to call multiple times.
func (kl *KeyedLimiter) Stop() {
	kl.stopped.Do(func() { close(kl.stopCh) })
}
