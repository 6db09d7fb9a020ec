// Package githubmodels implements the provider adapter for the GitHub
// Models inference gateway. The gateway speaks an OpenAI-compatible dialect
// for inference but publishes its model catalog on a separate route.
package githubmodels

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

// DefaultBaseURL is the GitHub Models gateway root.
const DefaultBaseURL = "https://models.github.ai"

const probeTimeout = 5 * time.Second

// Provider implements the GitHub Models adapter.
type Provider struct {
	cfg    provider.Config
	caller *provider.HTTPCaller
	deps   provider.Deps
}

// New creates a provider from configuration. It implements provider.Factory.
func New(cfg provider.Config, deps provider.Deps) (provider.Provider, error) {
	if cfg.Identity == "" {
		cfg.Identity = provider.IdentityGitHubModels
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	headers := map[string]string{
		"Authorization": "Bearer " + cfg.APIKey,
		"Accept":        "application/vnd.github+json",
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

// Complete runs a chat completion through the inference route.
func (p *Provider) Complete(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error) {
	body := struct {
		Model       string                `json:"model"`
		Messages    []types.Message       `json:"messages"`
		Temperature *float64              `json:"temperature,omitempty"`
		MaxTokens   int                   `json:"max_tokens,omitempty"`
		Format      *types.ResponseFormat `json:"response_format,omitempty"`
	}{
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
	if err := p.caller.Do(ctx, http.MethodPost, "/inference/chat/completions", body, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		resp.ID = uuid.NewString()
	}
	resp.Provider = p.cfg.Identity.String()
	return &resp, nil
}

// Embed produces embedding vectors through the inference route.
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
	if err := p.caller.Do(ctx, http.MethodPost, "/inference/embeddings", body, &resp); err != nil {
		return nil, err
	}
	resp.Provider = p.cfg.Identity.String()
	return &resp, nil
}

// catalogEntry is one model in the gateway's public catalog.
type catalogEntry struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
	Limits       struct {
		MaxInputTokens  int `json:"max_input_tokens"`
		MaxOutputTokens int `json:"max_output_tokens"`
	} `json:"limits"`
}

// ListModels returns the catalog, via discovery caching.
func (p *Provider) ListModels(ctx context.Context) ([]types.Model, error) {
	name := p.cfg.Identity.String()
	if p.deps.Models != nil {
		if models, ok := p.deps.Models.Get(name); ok {
			return models, nil
		}
	}

	var catalog []catalogEntry
	if err := p.caller.Do(ctx, http.MethodGet, "/catalog/models", nil, &catalog); err != nil {
		return nil, err
	}

	models := make([]types.Model, 0, len(catalog))
	for _, e := range catalog {
		caps := e.Capabilities
		if len(caps) == 0 {
			caps = inferCapabilities(e.ID)
		}
		models = append(models, types.Model{
			ID:              e.ID,
			Name:            e.Name,
			Provider:        name,
			Capabilities:    caps,
			ContextWindow:   e.Limits.MaxInputTokens,
			MaxOutputTokens: e.Limits.MaxOutputTokens,
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

// mapError converts a gateway error response to a standardized error.
// The gateway mixes OpenAI-style {"error": {...}} bodies with GitHub-style
// {"message": ...} bodies depending on which layer rejected the request.
func (p *Provider) mapError(statusCode int, body []byte) error {
	var openaiStyle struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	var githubStyle struct {
		Message string `json:"message"`
	}

	message := "unknown error"
	if err := json.Unmarshal(body, &openaiStyle); err == nil && openaiStyle.Error.Message != "" {
		message = openaiStyle.Error.Message
	} else if err := json.Unmarshal(body, &githubStyle); err == nil && githubStyle.Message != "" {
		message = githubStyle.Message
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

func inferCapabilities(id string) []string {
	if strings.Contains(strings.ToLower(id), "embed") {
		return []string{types.CapabilityEmbedding}
	}
	return []string{types.CapabilityChat, types.CapabilityCompletion}
}
