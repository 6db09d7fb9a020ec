// Package metrics counts per-provider outcomes and records realized
// fallback chains. Counters are cheap enough to update on every attempt and
// safe to read at any time without blocking in-flight requests.
package metrics

import (
	"sync"
	"sync/atomic"
)

// counters holds the per-provider atomics.
type counters struct {
	successes atomic.Int64
	failures  atomic.Int64
	retries   atomic.Int64
}

// ProviderStats is a point-in-time snapshot of one provider's counters.
type ProviderStats struct {
	Successes int64 `json:"successes"`
	Failures  int64 `json:"failures"`
	Retries   int64 `json:"retries"`
}

// Snapshot is a point-in-time copy of all collected metrics.
type Snapshot struct {
	Providers      map[string]ProviderStats `json:"providers"`
	FallbackChains [][]string               `json:"fallback_chains"`
}

// Collector accumulates client metrics for the life of one client.
// It is never persisted.
type Collector struct {
	mu        sync.RWMutex
	providers map[string]*counters
	chains    [][]string
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		providers: make(map[string]*counters),
	}
}

func (c *Collector) forProvider(provider string) *counters {
	c.mu.RLock()
	ctr, ok := c.providers[provider]
	c.mu.RUnlock()
	if ok {
		return ctr
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ctr, ok = c.providers[provider]; ok {
		return ctr
	}
	ctr = &counters{}
	c.providers[provider] = ctr
	return ctr
}

// RecordSuccess counts one successful attempt.
func (c *Collector) RecordSuccess(provider string) {
	c.forProvider(provider).successes.Add(1)
	attemptsTotal.WithLabelValues(provider, "success").Inc()
}

// RecordFailure counts one failed attempt.
func (c *Collector) RecordFailure(provider string) {
	c.forProvider(provider).failures.Add(1)
	attemptsTotal.WithLabelValues(provider, "failure").Inc()
}

// RecordRetry counts one scheduled retry.
func (c *Collector) RecordRetry(provider string) {
	c.forProvider(provider).retries.Add(1)
	retriesTotal.WithLabelValues(provider).Inc()
}

// RecordFallbackChain logs the ordered list of providers actually attempted
// for one top-level request.
func (c *Collector) RecordFallbackChain(chain []string) {
	if len(chain) == 0 {
		return
	}
	copied := make([]string, len(chain))
	copy(copied, chain)

	c.mu.Lock()
	c.chains = append(c.chains, copied)
	c.mu.Unlock()

	fallbackDepth.Observe(float64(len(copied)))
}

// Snapshot returns a copy of all counters and recorded chains.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		Providers:      make(map[string]ProviderStats, len(c.providers)),
		FallbackChains: make([][]string, len(c.chains)),
	}
	for name, ctr := range c.providers {
		snap.Providers[name] = ProviderStats{
			Successes: ctr.successes.Load(),
			Failures:  ctr.failures.Load(),
			Retries:   ctr.retries.Load(),
		}
	}
	for i, chain := range c.chains {
		copied := make([]string, len(chain))
		copy(copied, chain)
		snap.FallbackChains[i] = copied
	}
	return snap
}
