// Package providers provides a unified registry for all built-in provider
// implementations. It allows automatic provider creation from configuration.
package providers

import (
	"fmt"
	"sync"

	"github.com/scriptloom/llmrelay/pkg/provider"
	"github.com/scriptloom/llmrelay/providers/claudecode"
	"github.com/scriptloom/llmrelay/providers/githubmodels"
	"github.com/scriptloom/llmrelay/providers/openaicompat"
)

var (
	registry     = make(map[provider.Identity]provider.Factory)
	registryOnce sync.Once
	registryMu   sync.RWMutex
)

// Register registers a provider factory for the given identity.
func Register(identity provider.Identity, factory provider.Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[identity] = factory
}

// Get returns the factory for the given identity.
func Get(identity provider.Identity) (provider.Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[identity]
	return f, ok
}

// Create constructs a provider instance from configuration.
func Create(cfg provider.Config, deps provider.Deps) (provider.Provider, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Identity]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider identity: %s (available: %v)", cfg.Identity, List())
	}
	return factory(cfg, deps)
}

// List returns all registered provider identities.
func List() []provider.Identity {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]provider.Identity, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// RegisterBuiltins registers all built-in provider factories.
// This is called automatically on first use.
func RegisterBuiltins() {
	registryOnce.Do(func() {
		Register(provider.IdentityOpenAICompatible, openaicompat.New)
		Register(provider.IdentityGitHubModels, githubmodels.New)
		Register(provider.IdentityClaudeCode, claudecode.New)
	})
}

func init() {
	RegisterBuiltins()
}
