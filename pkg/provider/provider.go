// Package provider defines the public interface for LLM provider adapters.
// Each backend family (OpenAI-compatible endpoints, the GitHub Models
// gateway, Claude-style message APIs) implements this interface to handle
// request transformation, transport, and error mapping.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/scriptloom/llmrelay/pkg/types"
)

// Identity is the stable token identifying a backend family. It is used as
// a map key throughout the client and never changes for a given family.
type Identity string

// Built-in provider identities.
const (
	IdentityClaudeCode       Identity = "claude_code"
	IdentityGitHubModels     Identity = "github_models"
	IdentityOpenAICompatible Identity = "openai_compatible"
)

// String implements fmt.Stringer.
func (i Identity) String() string { return string(i) }

// Provider is the capability contract every backend adapter implements.
// All methods are safe for concurrent use.
type Provider interface {
	// Identity returns the stable identity of this backend family.
	Identity() Identity

	// Complete runs a chat completion against the backend.
	Complete(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error)

	// Embed produces embedding vectors. Backends without an embeddings
	// endpoint return a non-retryable invalid-request error.
	Embed(ctx context.Context, req *types.EmbeddingRequest) (*types.EmbeddingResponse, error)

	// ListModels returns the backend's current model list.
	ListModels(ctx context.Context) ([]types.Model, error)

	// IsAvailable reports whether the provider can accept a request right
	// now. It must consult the rate limiter and the availability cache
	// before issuing any real probe, and must return false without a
	// network call when credentials are absent.
	IsAvailable(ctx context.Context) bool

	// Close releases the provider's underlying resources.
	Close() error
}

// Config holds the construction parameters for one provider instance.
// Credentials are resolved by the caller; this package never reads the
// environment or configuration files itself.
type Config struct {
	Identity Identity
	APIKey   string
	BaseURL  string
	Headers  map[string]string
	Timeout  time.Duration

	// RPM caps outbound requests per minute on the client side. Zero
	// disables the throttle.
	RPM int

	// SingleFlight serializes outbound calls through a capacity-1
	// admission gate, for backends that reject concurrent requests.
	SingleFlight bool
}

// String implements fmt.Stringer with the API key redacted.
func (c Config) String() string {
	return fmt.Sprintf("provider.Config{Identity:%s, BaseURL:%s, APIKey:%s, Timeout:%s}",
		c.Identity, c.BaseURL, RedactSecret(c.APIKey), c.Timeout)
}

// RedactSecret masks a credential for logging, keeping a short prefix so
// operators can tell configured keys apart.
func RedactSecret(secret string) string {
	if secret == "" {
		return "<unset>"
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "****"
}

// Factory creates a provider instance from configuration.
type Factory func(cfg Config, deps Deps) (Provider, error)
