// Package resilience implements the failure-recovery primitives shared by
// every provider: per-provider cooldown tracking, a short-lived
// availability-check cache, and the retry strategy.
package resilience

import (
	"log/slog"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// DefaultAvailabilityTTL bounds how long a real availability probe result
// is trusted. It is deliberately shorter than typical rate-limit cooldowns.
const DefaultAvailabilityTTL = 30 * time.Second

// RateLimiter tracks per-provider cooldowns and caches availability-probe
// results. State is process-wide and safe for concurrent use.
type RateLimiter struct {
	mu           sync.Mutex
	limitedUntil map[string]time.Time

	availability *cache.Cache

	logger *slog.Logger
	now    func() time.Time
}

// NewRateLimiter creates a limiter whose availability cache expires after
// availabilityTTL. A non-positive TTL falls back to the default.
func NewRateLimiter(availabilityTTL time.Duration, logger *slog.Logger) *RateLimiter {
	if availabilityTTL <= 0 {
		availabilityTTL = DefaultAvailabilityTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		limitedUntil: make(map[string]time.Time),
		availability: cache.New(availabilityTTL, 2*availabilityTTL),
		logger:       logger,
		now:          time.Now,
	}
}

// SetRateLimit records that provider must not be called for wait.
func (rl *RateLimiter) SetRateLimit(provider string, wait time.Duration) {
	if wait <= 0 {
		return
	}
	until := rl.now().Add(wait)

	rl.mu.Lock()
	rl.limitedUntil[provider] = until
	rl.mu.Unlock()

	// A rate-limited provider is known unavailable for the cooldown, so the
	// probe cache can answer negatively without a network call.
	rl.availability.Set(provider, false, wait)

	rl.logger.Debug("rate limit recorded", "provider", provider, "until", until)
}

// IsRateLimited reports whether provider is inside a cooldown window.
// Expired entries are pruned on read.
func (rl *RateLimiter) IsRateLimited(provider string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	until, ok := rl.limitedUntil[provider]
	if !ok {
		return false
	}
	if !rl.now().Before(until) {
		delete(rl.limitedUntil, provider)
		return false
	}
	return true
}

// CachedAvailability returns a cached probe result. ok=false means "unknown,
// run a real probe" and is distinct from a cached negative result.
func (rl *RateLimiter) CachedAvailability(provider string) (available bool, ok bool) {
	v, found := rl.availability.Get(provider)
	if !found {
		return false, false
	}
	b, isBool := v.(bool)
	if !isBool {
		// Unexpected shape, drop it and treat as unknown.
		rl.availability.Delete(provider)
		return false, false
	}
	return b, true
}

// SetAvailability stores the result of a real availability probe.
func (rl *RateLimiter) SetAvailability(provider string, available bool) {
	rl.availability.Set(provider, available, cache.DefaultExpiration)
}

// Reset clears all state for one provider. Used by tests and by forced
// provider switches.
func (rl *RateLimiter) Reset(provider string) {
	rl.mu.Lock()
	delete(rl.limitedUntil, provider)
	rl.mu.Unlock()
	rl.availability.Delete(provider)
}
