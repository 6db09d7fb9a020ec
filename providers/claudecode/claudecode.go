// Package claudecode implements the provider adapter for Claude-style
// message APIs. The backend family has no embeddings endpoint; Embed
// returns a non-retryable error so the fallback handler moves on.
package claudecode

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

const (
	// DefaultBaseURL is the default API endpoint.
	DefaultBaseURL = "https://api.anthropic.com"

	// apiVersion pins the message API revision.
	apiVersion = "2023-06-01"

	// defaultMaxTokens is sent when the caller leaves MaxTokens unset,
	// since the message API requires an explicit cap.
	defaultMaxTokens = 4096
)

const probeTimeout = 5 * time.Second

// Provider implements the Claude-style adapter.
type Provider struct {
	cfg    provider.Config
	caller *provider.HTTPCaller
	deps   provider.Deps
}

// New creates a provider from configuration. It implements provider.Factory.
func New(cfg provider.Config, deps provider.Deps) (provider.Provider, error) {
	if cfg.Identity == "" {
		cfg.Identity = provider.IdentityClaudeCode
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	headers := map[string]string{
		"x-api-key":         cfg.APIKey,
		"anthropic-version": apiVersion,
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

// messageBody is the wire form of a message request.
type messageBody struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Messages    []types.Message `json:"messages"`
	System      string          `json:"system,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

// messageResponse is the wire form of a message response.
type messageResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete runs a chat completion against the message API.
func (p *Provider) Complete(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error) {
	body := messageBody{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		System:      req.System,
		Temperature: req.Temperature,
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = defaultMaxTokens
	}

	// The message API takes system prompts out of band: system-role
	// messages move into the system field, in order.
	for _, m := range req.Messages {
		if m.Role == types.RoleSystem {
			if body.System != "" {
				body.System += "\n"
			}
			body.System += m.Content
			continue
		}
		body.Messages = append(body.Messages, m)
	}

	var wire messageResponse
	if err := p.caller.Do(ctx, http.MethodPost, "/v1/messages", body, &wire); err != nil {
		return nil, err
	}

	var content strings.Builder
	for _, block := range wire.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	resp := &types.CompletionResponse{
		ID:    wire.ID,
		Model: wire.Model,
		Choices: []types.Choice{{
			Index:        0,
			Message:      types.Message{Role: types.RoleAssistant, Content: content.String()},
			FinishReason: mapStopReason(wire.StopReason),
		}},
		Usage: types.Usage{
			PromptTokens:     wire.Usage.InputTokens,
			CompletionTokens: wire.Usage.OutputTokens,
			TotalTokens:      wire.Usage.InputTokens + wire.Usage.OutputTokens,
		},
		Provider: p.cfg.Identity.String(),
	}
	if resp.ID == "" {
		resp.ID = uuid.NewString()
	}
	return resp, nil
}

// Embed is unsupported by this backend family.
func (p *Provider) Embed(ctx context.Context, req *types.EmbeddingRequest) (*types.EmbeddingResponse, error) {
	return nil, llmerrors.NewInvalidRequestError(
		p.cfg.Identity.String(), req.Model, "embeddings are not supported by this backend")
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
			ID          string `json:"id"`
			DisplayName string `json:"display_name"`
		} `json:"data"`
	}
	if err := p.caller.Do(ctx, http.MethodGet, "/v1/models", nil, &listing); err != nil {
		return nil, err
	}

	models := make([]types.Model, 0, len(listing.Data))
	for _, m := range listing.Data {
		models = append(models, types.Model{
			ID:           m.ID,
			Name:         m.DisplayName,
			Provider:     name,
			Capabilities: []string{types.CapabilityChat, types.CapabilityCompletion},
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

// mapError converts a message-API error response to a standardized error.
func (p *Provider) mapError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
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
	case statusCode == 529: // anthropic "overloaded_error"
		return llmerrors.NewServiceUnavailableError(name, "", message)
	case statusCode == http.StatusServiceUnavailable:
		return llmerrors.NewServiceUnavailableError(name, "", message)
	case statusCode >= 500:
		return llmerrors.NewInternalError(name, "", message)
	default:
		return llmerrors.NewInvalidRequestError(name, "", message)
	}
}

// mapStopReason normalizes message-API stop reasons onto the unified
// finish_reason vocabulary.
func mapStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	default:
		return reason
	}
}
