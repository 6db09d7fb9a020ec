package provider

import (
	"log/slog"
	"time"

	"github.com/scriptloom/llmrelay/pkg/types"
)

// RateLimiter is the cooldown and availability-cache surface providers
// consult before touching the network.
type RateLimiter interface {
	// SetRateLimit records that the provider must not be called for wait.
	SetRateLimit(provider string, wait time.Duration)
	// IsRateLimited reports whether the provider is inside a cooldown.
	IsRateLimited(provider string) bool
	// CachedAvailability returns the cached availability-probe result.
	// The second return value is false when no fresh cached value exists;
	// callers must then run a real probe.
	CachedAvailability(provider string) (available bool, ok bool)
	// SetAvailability stores the result of a real availability probe.
	SetAvailability(provider string, available bool)
}

// ModelCache is the discovery cache surface providers use to avoid
// re-fetching model lists on every call.
type ModelCache interface {
	// Get returns the cached model list, or ok=false on a miss.
	Get(provider string) (models []types.Model, ok bool)
	// Set stores a freshly discovered model list.
	Set(provider string, models []types.Model)
}

// Deps carries the shared services injected into every provider. Fields may
// be nil; providers degrade to uncached, unthrottled behavior.
type Deps struct {
	Limiter RateLimiter
	Models  ModelCache
	Logger  *slog.Logger
}

// LoggerOrDefault returns the configured logger or slog.Default().
func (d Deps) LoggerOrDefault() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
