package llmrelay

import (
	"log/slog"
	"time"

	"github.com/scriptloom/llmrelay/pkg/provider"
)

// ClientConfig holds all configuration for the client. Credentials and
// endpoints are supplied here by the caller; the client never reads the
// environment or configuration files itself.
type ClientConfig struct {
	// Providers are the backends to construct, in configuration order.
	Providers []provider.Config

	// Preferred is tried first on every request. Empty means "first
	// configured provider".
	Preferred provider.Identity

	// FallbackOrder is the ordered chain walked after the preferred
	// provider. Empty means "configuration order of Providers".
	FallbackOrder []provider.Identity

	// Timeout applies to each outbound HTTP call.
	Timeout time.Duration

	// Retry budget per provider: MaxRetries attempts in total.
	MaxRetries     int
	BaseRetryDelay time.Duration
	MaxRetryDelay  time.Duration

	// AvailabilityTTL bounds the availability-check cache. It is
	// independent of (and shorter than) rate-limit cooldowns.
	AvailabilityTTL time.Duration

	// CacheDir is where per-provider model lists are persisted. Empty
	// disables the file tier.
	CacheDir string
	// CacheTTL bounds both tiers of the model discovery cache.
	CacheTTL time.Duration

	// DebugMode attaches stack traces and timestamps to aggregated
	// fallback errors.
	DebugMode bool

	Logger *slog.Logger
}

// Option is a function that configures the Client.
type Option func(*ClientConfig)

// defaultConfig returns sensible defaults.
func defaultConfig() *ClientConfig {
	return &ClientConfig{
		Timeout:         30 * time.Second,
		MaxRetries:      3,
		BaseRetryDelay:  time.Second,
		MaxRetryDelay:   30 * time.Second,
		AvailabilityTTL: 30 * time.Second,
		CacheTTL:        time.Hour,
		Logger:          slog.Default(),
	}
}

// WithProvider adds a provider configuration.
//
// Example:
//
//	llmrelay.WithProvider(provider.Config{
//	    Identity: provider.IdentityOpenAICompatible,
//	    APIKey:   os.Getenv("OPENAI_API_KEY"),
//	})
func WithProvider(cfg provider.Config) Option {
	return func(c *ClientConfig) {
		c.Providers = append(c.Providers, cfg)
	}
}

// WithPreferredProvider sets the provider tried first on every request.
func WithPreferredProvider(identity provider.Identity) Option {
	return func(c *ClientConfig) {
		c.Preferred = identity
	}
}

// WithFallbackOrder sets the ordered chain walked when the preferred
// provider fails or is unavailable.
func WithFallbackOrder(order ...provider.Identity) Option {
	return func(c *ClientConfig) {
		c.FallbackOrder = order
	}
}

// WithTimeout sets the per-call HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *ClientConfig) {
		c.Timeout = timeout
	}
}

// WithRetry configures the per-provider retry budget: maxRetries attempts
// in total, exponential backoff between baseDelay and maxDelay.
func WithRetry(maxRetries int, baseDelay, maxDelay time.Duration) Option {
	return func(c *ClientConfig) {
		c.MaxRetries = maxRetries
		c.BaseRetryDelay = baseDelay
		c.MaxRetryDelay = maxDelay
	}
}

// WithAvailabilityTTL sets how long availability-probe results are trusted.
func WithAvailabilityTTL(ttl time.Duration) Option {
	return func(c *ClientConfig) {
		c.AvailabilityTTL = ttl
	}
}

// WithCacheDir enables the file tier of the model discovery cache.
func WithCacheDir(dir string) Option {
	return func(c *ClientConfig) {
		c.CacheDir = dir
	}
}

// WithCacheTTL sets the model discovery cache TTL for both tiers.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *ClientConfig) {
		c.CacheTTL = ttl
	}
}

// WithDebugMode enables rich debug payloads on aggregated fallback errors.
// Off by default to avoid leaking internals.
func WithDebugMode(enabled bool) Option {
	return func(c *ClientConfig) {
		c.DebugMode = enabled
	}
}

// WithLogger sets the structured logger used across the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *ClientConfig) {
		c.Logger = logger
	}
}
