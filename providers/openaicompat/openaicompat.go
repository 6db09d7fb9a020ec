// Package openaicompat implements the provider adapter for any
// OpenAI-compatible HTTP endpoint. It serves as the reference
// implementation for the other adapters.
package openaicompat

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	llmerrors "github.com/scriptloom/llmrelay/pkg/errors"
	"github.com/scriptloom/llmrelay/pkg/provider"
	"github.com/scriptloom/llmrelay/pkg/types"
)

// DefaultBaseURL is used when the configuration does not name an endpoint.
const DefaultBaseURL = "https://api.openai.com/v1"

// probeTimeout bounds the real availability check.
const probeTimeout = 5 * time.Second

// Provider implements the OpenAI-compatible adapter.
type Provider struct {
	cfg    provider.Config
	caller *provider.HTTPCaller
	deps   provider.Deps
}

// New creates a provider from configuration. It implements provider.Factory.
func New(cfg provider.Config, deps provider.Deps) (provider.Provider, error) {
	if cfg.Identity == "" {
		cfg.Identity = provider.IdentityOpenAICompatible
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	headers := map[string]string{
		"Authorization": "Bearer " + cfg.APIKey,
	}
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	p := &Provider{cfg: cfg, deps: deps}
	p.caller = provider.NewHTTPCaller(cfg, headers, deps.Limiter, p.mapError)
	return p, nil
}

// Identity returns the stable identity of this backend family.
func (p *Provider) Identity() provider.Identity {
	return p.cfg.Identity
}

// completionBody is the wire form of a chat completion request.
type completionBody struct {
	Model       string                `json:"model"`
	Messages    []types.Message       `json:"messages"`
	Temperature *float64              `json:"temperature,omitempty"`
	MaxTokens   int                   `json:"max_tokens,omitempty"`
	Format      *types.ResponseFormat `json:"response_format,omitempty"`
}

// Complete runs a chat completion.
func (p *Provider) Complete(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error) {
	body := completionBody{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Format:      req.Format,
	}
	if req.System != "" {
		body.Messages = append([]types.Message{{Role: types.RoleSystem, Content: req.System}}, body.Messages...)
	}

	var resp types.CompletionResponse
	if err := p.caller.Do(ctx, http.MethodPost, "/chat/completions", body, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		resp.ID = uuid.NewString()
	}
	resp.Provider = p.cfg.Identity.String()
	return &resp, nil
}

// Embed produces embedding vectors.
func (p *Provider) Embed(ctx context.Context, req *types.EmbeddingRequest) (*types.EmbeddingResponse, error) {
	body := struct {
		Model      string               `json:"model"`
		Input      types.EmbeddingInput `json:"input"`
		Dimensions int                  `json:"dimensions,omitempty"`
	}{
		Model:      req.Model,
		Input:      req.Input,
		Dimensions: req.Dimensions,
	}

	var resp types.EmbeddingResponse
	if err := p.caller.Do(ctx, http.MethodPost, "/embeddings", body, &resp); err != nil {
		return nil, err
	}
	resp.Provider = p.cfg.Identity.String()
	return &resp, nil
}

// ListModels returns the backend's model list, via discovery caching.
func (p *Provider) ListModels(ctx context.Context) ([]types.Model, error) {
	name := p.cfg.Identity.String()
	if p.deps.Models != nil {
		if models, ok := p.deps.Models.Get(name); ok {
			return models, nil
		}
	}

	var listing struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := p.caller.Do(ctx, http.MethodGet, "/models", nil, &listing); err != nil {
		return nil, err
	}

	models := make([]types.Model, 0, len(listing.Data))
	for _, m := range listing.Data {
		models = append(models, types.Model{
			ID:           m.ID,
			Name:         m.ID,
			Provider:     name,
			Capabilities: inferCapabilities(m.ID),
		})
	}

	if p.deps.Models != nil {
		p.deps.Models.Set(name, models)
	}
	return models, nil
}

// IsAvailable reports whether the provider can accept a request right now.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	if p.cfg.APIKey == "" {
		return false
	}
	name := p.cfg.Identity.String()
	if p.deps.Limiter != nil {
		if p.deps.Limiter.IsRateLimited(name) {
			return false
		}
		if available, ok := p.deps.Limiter.CachedAvailability(name); ok {
			return available
		}
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	_, err := p.ListModels(probeCtx)
	available := err == nil

	if p.deps.Limiter != nil {
		p.deps.Limiter.SetAvailability(name, available)
	}
	if !available {
		p.deps.LoggerOrDefault().Debug("availability probe failed", "provider", name, "error", err)
	}
	return available
}

// Close releases the provider's underlying resources.
func (p *Provider) Close() error {
	return p.caller.Close()
}

// mapError converts an OpenAI-style error response to a standardized error.
func (p *Provider) mapError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}

	message := "unknown error"
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	name := p.cfg.Identity.String()
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return llmerrors.NewAuthenticationError(name, "", message)
	case statusCode == http.StatusTooManyRequests:
		return llmerrors.NewRateLimitError(name, "", message)
	case statusCode == http.StatusNotFound:
		return llmerrors.NewNotFoundError(name, "", message)
	case statusCode == http.StatusRequestTimeout:
		return llmerrors.NewTimeoutError(name, "", message)
	case statusCode == http.StatusServiceUnavailable:
		return llmerrors.NewServiceUnavailableError(name, "", message)
	case statusCode >= 500:
		return llmerrors.NewInternalError(name, "", message)
	default:
		return llmerrors.NewInvalidRequestError(name, "", message)
	}
}

// inferCapabilities synthesizes a capability set when the backend's listing
// does not carry one. Embedding models are recognizable by id.
func inferCapabilities(id string) []string {
	lower := strings.ToLower(id)
	if strings.Contains(lower, "embed") {
		return []string{types.CapabilityEmbedding}
	}
	return []string{types.CapabilityChat, types.CapabilityCompletion}
}
