package llmrelay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/scriptloom/llmrelay/internal/discovery"
	"github.com/scriptloom/llmrelay/internal/fallback"
	"github.com/scriptloom/llmrelay/internal/metrics"
	"github.com/scriptloom/llmrelay/internal/resilience"
	llmerrors "github.com/scriptloom/llmrelay/pkg/errors"
	"github.com/scriptloom/llmrelay/pkg/provider"
	"github.com/scriptloom/llmrelay/pkg/types"
	"github.com/scriptloom/llmrelay/providers"
)

// DefaultTemperature is applied when a completion request leaves
// Temperature unset.
const DefaultTemperature = 0.7

// selectionKey identifies one cached model auto-selection. Keyed by provider
// identity plus capability so two differently-configured instances of the
// same implementation type never share a selection.
type selectionKey struct {
	identity   provider.Identity
	capability string
}

// Client is the public façade over the provider chain. It owns the
// registry, fallback handler, retry strategy, and metrics for its lifetime.
//
// Client is safe for concurrent use by multiple goroutines.
type Client struct {
	config    *ClientConfig
	providers map[provider.Identity]provider.Provider
	order     []provider.Identity

	limiter *resilience.RateLimiter
	models  *discovery.Cache
	retrier *resilience.Retrier
	stats   *metrics.Collector
	handler *fallback.Handler
	logger  *slog.Logger

	mu        sync.RWMutex
	current   provider.Identity
	selection map[selectionKey]string
}

// New creates a client with the given options. At least one provider must
// be configured. Providers already constructed are closed again when a
// later constructor fails.
func New(opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Client{
		config:    cfg,
		providers: make(map[provider.Identity]provider.Provider, len(cfg.Providers)),
		limiter:   resilience.NewRateLimiter(cfg.AvailabilityTTL, cfg.Logger),
		models:    discovery.New(cfg.CacheDir, cfg.CacheTTL, cfg.Logger),
		retrier:   resilience.NewRetrier(cfg.MaxRetries, cfg.BaseRetryDelay, cfg.MaxRetryDelay, cfg.Logger),
		stats:     metrics.NewCollector(),
		logger:    cfg.Logger,
		selection: make(map[selectionKey]string),
	}

	deps := provider.Deps{
		Limiter: c.limiter,
		Models:  c.models,
		Logger:  cfg.Logger,
	}
	for _, pcfg := range cfg.Providers {
		if pcfg.Timeout <= 0 {
			pcfg.Timeout = cfg.Timeout
		}
		p, err := providers.Create(pcfg, deps)
		if err != nil {
			c.closeProviders()
			return nil, fmt.Errorf("create provider %s: %w", pcfg.Identity, err)
		}
		if _, exists := c.providers[p.Identity()]; exists {
			c.closeProviders()
			_ = p.Close()
			return nil, fmt.Errorf("duplicate provider identity: %s", p.Identity())
		}
		c.providers[p.Identity()] = p
		c.order = append(c.order, p.Identity())
	}

	if len(cfg.FallbackOrder) == 0 {
		cfg.FallbackOrder = c.order
	}
	c.current = cfg.Preferred
	if c.current == "" {
		c.current = c.order[0]
	}
	if _, ok := c.providers[c.current]; !ok {
		c.closeProviders()
		return nil, fmt.Errorf("preferred provider %s is not configured", c.current)
	}

	c.handler = fallback.NewHandler(c, cfg.Logger, cfg.DebugMode, c.stats.RecordFallbackChain)

	cfg.Logger.Info("llmrelay client initialized",
		"providers", len(c.providers),
		"preferred", c.current,
		"fallback_order", cfg.FallbackOrder,
	)
	return c, nil
}

// Get implements fallback.Registry.
func (c *Client) Get(identity provider.Identity) (provider.Provider, bool) {
	p, ok := c.providers[identity]
	return p, ok
}

// Complete runs a chat completion. When the request names no model, one is
// auto-selected per provider; when it pins a provider, fallback is bypassed
// entirely.
func (c *Client) Complete(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	attempt := func(ctx context.Context, p provider.Provider) (*types.CompletionResponse, error) {
		return c.attemptComplete(ctx, p, req)
	}

	if req.Provider != "" {
		p, err := c.pinned(ctx, provider.Identity(req.Provider))
		if err != nil {
			return nil, err
		}
		return attempt(ctx, p)
	}
	return fallback.Execute(ctx, c.handler, c.CurrentProvider(), c.config.FallbackOrder, attempt)
}

// CompleteText is shorthand for a single-user-message completion.
func (c *Client) CompleteText(ctx context.Context, text string) (*types.CompletionResponse, error) {
	return c.Complete(ctx, &types.CompletionRequest{
		Messages: []types.Message{{Role: types.RoleUser, Content: text}},
	})
}

// Embed produces embedding vectors with the same fallback semantics as
// Complete.
func (c *Client) Embed(ctx context.Context, req *types.EmbeddingRequest) (*types.EmbeddingResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}
	if err := req.Input.Validate(); err != nil {
		return nil, err
	}

	attempt := func(ctx context.Context, p provider.Provider) (*types.EmbeddingResponse, error) {
		return c.attemptEmbed(ctx, p, req)
	}

	if req.Provider != "" {
		p, err := c.pinned(ctx, provider.Identity(req.Provider))
		if err != nil {
			return nil, err
		}
		return attempt(ctx, p)
	}
	return fallback.Execute(ctx, c.handler, c.CurrentProvider(), c.config.FallbackOrder, attempt)
}

// EmbedText is shorthand for embedding a single string.
func (c *Client) EmbedText(ctx context.Context, text string) (*types.EmbeddingResponse, error) {
	return c.Embed(ctx, &types.EmbeddingRequest{Input: types.NewEmbeddingInput(text)})
}

// ListModels returns the models of one provider, or of every configured
// provider when identity is empty. It never fails: a provider whose
// discovery errors contributes an empty list.
func (c *Client) ListModels(ctx context.Context, identity provider.Identity) []types.Model {
	targets := c.order
	if identity != "" {
		targets = []provider.Identity{identity}
	}

	var out []types.Model
	for _, id := range targets {
		p, ok := c.providers[id]
		if !ok {
			continue
		}
		models, err := p.ListModels(ctx)
		if err != nil {
			c.logger.Warn("model discovery failed", "provider", id, "error", err)
			continue
		}
		out = append(out, models...)
	}
	if out == nil {
		out = []types.Model{}
	}
	return out
}

// GetProviderForModel returns the identity of the first configured provider
// advertising modelID, in fallback order.
func (c *Client) GetProviderForModel(ctx context.Context, modelID string) (provider.Identity, bool) {
	for _, id := range c.config.FallbackOrder {
		p, ok := c.providers[id]
		if !ok {
			continue
		}
		models, err := p.ListModels(ctx)
		if err != nil {
			continue
		}
		for _, m := range models {
			if m.ID == modelID {
				return id, true
			}
		}
	}
	return "", false
}

// SwitchProvider changes the preferred provider for subsequent requests.
func (c *Client) SwitchProvider(identity provider.Identity) error {
	if _, ok := c.providers[identity]; !ok {
		return fmt.Errorf("provider %s is not configured", identity)
	}
	c.mu.Lock()
	c.current = identity
	c.mu.Unlock()
	c.logger.Info("preferred provider switched", "provider", identity)
	return nil
}

// CurrentProvider returns the preferred provider identity.
func (c *Client) CurrentProvider() provider.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Metrics returns a point-in-time snapshot of the client's counters and
// recorded fallback chains.
func (c *Client) Metrics() metrics.Snapshot {
	return c.stats.Snapshot()
}

// Close releases every provider's underlying resources. It is safe to call
// on all exit paths, including after a partial failure.
func (c *Client) Close() error {
	err := c.closeProviders()
	c.logger.Info("llmrelay client closed")
	return err
}

func (c *Client) closeProviders() error {
	var errs []error
	for id, p := range c.providers {
		if closeErr := p.Close(); closeErr != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, closeErr))
		}
	}
	return errors.Join(errs...)
}

// pinned resolves an explicit provider override: the provider must be
// configured and available, and no fallback happens on its behalf.
func (c *Client) pinned(ctx context.Context, identity provider.Identity) (provider.Provider, error) {
	p, ok := c.providers[identity]
	if !ok {
		return nil, fmt.Errorf("provider %s is not configured", identity)
	}
	if !p.IsAvailable(ctx) {
		return nil, llmerrors.NewServiceUnavailableError(identity.String(), "",
			"provider is unavailable and the request pinned it explicitly")
	}
	return p, nil
}

// attemptComplete is the retry-wrapped single-provider completion attempt
// used by both the fallback path and the pinned path.
func (c *Client) attemptComplete(ctx context.Context, p provider.Provider, req *types.CompletionRequest) (*types.CompletionResponse, error) {
	local := *req
	if local.Temperature == nil {
		t := DefaultTemperature
		local.Temperature = &t
	}
	if local.Model == "" {
		model, err := c.selectModel(ctx, p, types.CapabilityChat)
		if err != nil {
			return nil, err
		}
		local.Model = model
	}
	name := p.Identity().String()
	return resilience.Do(ctx, c.retrier, name, c.stats, func(ctx context.Context) (*types.CompletionResponse, error) {
		return p.Complete(ctx, &local)
	})
}

// attemptEmbed mirrors attemptComplete for embeddings.
func (c *Client) attemptEmbed(ctx context.Context, p provider.Provider, req *types.EmbeddingRequest) (*types.EmbeddingResponse, error) {
	local := *req
	if local.Model == "" {
		model, err := c.selectModel(ctx, p, types.CapabilityEmbedding)
		if err != nil {
			return nil, err
		}
		local.Model = model
	}
	name := p.Identity().String()
	return resilience.Do(ctx, c.retrier, name, c.stats, func(ctx context.Context) (*types.EmbeddingResponse, error) {
		return p.Embed(ctx, &local)
	})
}

// selectModel auto-selects a model for one provider and capability: prefer
// a model advertising the capability, else the first listed. The choice is
// cached per (identity, capability) for the life of the client.
func (c *Client) selectModel(ctx context.Context, p provider.Provider, capability string) (string, error) {
	key := selectionKey{identity: p.Identity(), capability: capability}

	c.mu.RLock()
	model, ok := c.selection[key]
	c.mu.RUnlock()
	if ok {
		return model, nil
	}

	models, err := p.ListModels(ctx)
	if err != nil {
		return "", fmt.Errorf("discover models for %s: %w", p.Identity(), err)
	}
	if len(models) == 0 {
		return "", fmt.Errorf("provider %s advertises no models", p.Identity())
	}

	selected := models[0].ID
	for _, m := range models {
		if m.HasCapability(capability) || (capability == types.CapabilityChat && m.HasCapability(types.CapabilityCompletion)) {
			selected = m.ID
			break
		}
	}

	c.mu.Lock()
	c.selection[key] = selected
	c.mu.Unlock()

	c.logger.Debug("model auto-selected",
		"provider", p.Identity(), "capability", capability, "model", selected)
	return selected, nil
}
