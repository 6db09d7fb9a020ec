// Package llmrelay is a resilient client layer over interchangeable LLM
// backends. Callers obtain chat completions and embedding vectors without
// knowing which backend answered: requests walk a configured fallback
// chain, each provider attempt is retried with exponential backoff, rate
// limits put providers on cooldown, and discovered model lists are cached
// in memory and on disk.
//
// Basic usage:
//
//	client, err := llmrelay.New(
//	    llmrelay.WithProvider(llmrelay.ProviderConfig{
//	        Identity: llmrelay.IdentityOpenAICompatible,
//	        APIKey:   os.Getenv("OPENAI_API_KEY"),
//	    }),
//	    llmrelay.WithProvider(llmrelay.ProviderConfig{
//	        Identity: llmrelay.IdentityClaudeCode,
//	        APIKey:   os.Getenv("ANTHROPIC_API_KEY"),
//	    }),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	resp, err := client.Complete(ctx, &llmrelay.CompletionRequest{
//	    Messages: []llmrelay.Message{{Role: "user", Content: "Hello!"}},
//	})
package llmrelay

import (
	"github.com/scriptloom/llmrelay/internal/metrics"
	"github.com/scriptloom/llmrelay/pkg/errors"
	"github.com/scriptloom/llmrelay/pkg/provider"
	"github.com/scriptloom/llmrelay/pkg/types"
)

// Version is the current version of llmrelay.
const Version = "1.0.0"

// Re-export core request/response types for convenience, so callers can use
// llmrelay.CompletionRequest instead of types.CompletionRequest.
type (
	// CompletionRequest is a unified chat completion request.
	CompletionRequest = types.CompletionRequest

	// CompletionResponse is a unified chat completion response.
	CompletionResponse = types.CompletionResponse

	// Message is a single chat message.
	Message = types.Message

	// Choice is a single completion choice.
	Choice = types.Choice

	// Usage contains token usage statistics for the request.
	Usage = types.Usage

	// EmbeddingRequest is a unified embedding request.
	EmbeddingRequest = types.EmbeddingRequest

	// EmbeddingResponse is a unified embedding response.
	EmbeddingResponse = types.EmbeddingResponse

	// EmbeddingInput is a single string or batch of strings to embed.
	EmbeddingInput = types.EmbeddingInput

	// Model describes a model advertised by a provider.
	Model = types.Model

	// Identity is the stable token identifying a backend family.
	Identity = provider.Identity

	// ProviderConfig holds the construction parameters for one provider.
	ProviderConfig = provider.Config

	// LLMError is the standardized provider error.
	LLMError = errors.LLMError

	// RetryExhaustedError is raised when one provider's retry budget ran out.
	RetryExhaustedError = errors.RetryExhaustedError

	// FallbackError aggregates the failure of an entire fallback chain.
	FallbackError = errors.FallbackError

	// MetricsSnapshot is a point-in-time copy of client metrics.
	MetricsSnapshot = metrics.Snapshot
)

// Built-in provider identities.
const (
	IdentityClaudeCode       = provider.IdentityClaudeCode
	IdentityGitHubModels     = provider.IdentityGitHubModels
	IdentityOpenAICompatible = provider.IdentityOpenAICompatible
)

// Model capability tags.
const (
	CapabilityChat       = types.CapabilityChat
	CapabilityCompletion = types.CapabilityCompletion
	CapabilityEmbedding  = types.CapabilityEmbedding
)
