// Package fallback walks an ordered provider chain for one request,
// delegating each candidate to a retry-wrapped attempt function and
// aggregating failures. The handler never retries a provider itself; retry
// is applied inside the attempt closure, once per provider.
package fallback

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	llmerrors "github.com/scriptloom/llmrelay/pkg/errors"
	"github.com/scriptloom/llmrelay/pkg/provider"
)

// Registry resolves a provider identity to its constructed instance.
type Registry interface {
	Get(identity provider.Identity) (provider.Provider, bool)
}

// ChainReporter receives the realized fallback chain of one top-level
// request: every registered candidate considered, in order, regardless of
// outcome.
type ChainReporter func(chain []string)

// Handler owns the traversal policy for a fallback chain.
type Handler struct {
	registry Registry
	logger   *slog.Logger
	debug    bool
	onChain  ChainReporter
}

// NewHandler creates a handler. onChain may be nil.
func NewHandler(registry Registry, logger *slog.Logger, debugMode bool, onChain ChainReporter) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry: registry,
		logger:   logger,
		debug:    debugMode,
		onChain:  onChain,
	}
}

// Attempt runs one request against a single provider. It is expected to
// apply the retry strategy internally.
type Attempt[T any] func(ctx context.Context, p provider.Provider) (T, error)

// Execute walks the deduplicated chain (preferred first, then order) and
// returns the first successful response. Candidates absent from the
// registry are skipped silently; unavailable candidates are skipped with no
// error recorded. When every candidate is skipped or fails, the result is a
// single *errors.FallbackError.
func Execute[T any](ctx context.Context, h *Handler, preferred provider.Identity, order []provider.Identity, attempt Attempt[T]) (T, error) {
	var zero T

	candidates := traversalOrder(preferred, order)

	var (
		chain     []string
		attempted []string
		provErrs  map[string]string
		debugInfo map[string]llmerrors.DebugEntry
	)

	for _, identity := range candidates {
		p, ok := h.registry.Get(identity)
		if !ok {
			h.logger.Debug("provider not configured, skipping", "provider", identity)
			continue
		}

		name := identity.String()
		chain = append(chain, name)

		if !p.IsAvailable(ctx) {
			h.logger.Debug("provider unavailable, skipping", "provider", name)
			continue
		}

		result, err := attempt(ctx, p)
		if err == nil {
			if h.onChain != nil {
				h.onChain(chain)
			}
			if len(chain) > 1 {
				h.logger.Info("request resolved via fallback", "provider", name, "chain", chain)
			}
			return result, nil
		}

		h.logger.Warn("provider attempt failed, trying next", "provider", name, "error", err)
		attempted = append(attempted, name)
		if provErrs == nil {
			provErrs = make(map[string]string)
		}
		provErrs[name] = err.Error()
		if h.debug {
			if debugInfo == nil {
				debugInfo = make(map[string]llmerrors.DebugEntry)
			}
			debugInfo[name] = llmerrors.DebugEntry{
				Timestamp: time.Now(),
				Stack:     string(debug.Stack()),
			}
		}
	}

	if h.onChain != nil {
		h.onChain(chain)
	}
	return zero, &llmerrors.FallbackError{
		AttemptedProviders: attempted,
		ProviderErrors:     provErrs,
		FallbackChain:      chain,
		DebugInfo:          debugInfo,
	}
}

// traversalOrder builds the deduplicated candidate list: preferred provider
// first when set, then the configured order, skipping repeats.
func traversalOrder(preferred provider.Identity, order []provider.Identity) []provider.Identity {
	seen := make(map[provider.Identity]bool, len(order)+1)
	out := make([]provider.Identity, 0, len(order)+1)
	if preferred != "" {
		seen[preferred] = true
		out = append(out, preferred)
	}
	for _, identity := range order {
		if identity == "" || seen[identity] {
			continue
		}
		seen[identity] = true
		out = append(out, identity)
	}
	return out
}
