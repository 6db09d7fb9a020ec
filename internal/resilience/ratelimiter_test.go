package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimitWindow(t *testing.T) {
	rl := NewRateLimiter(time.Minute, nil)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	assert.False(t, rl.IsRateLimited("claude_code"))

	rl.SetRateLimit("claude_code", 30*time.Second)
	assert.True(t, rl.IsRateLimited("claude_code"))
	assert.False(t, rl.IsRateLimited("openai_compatible"), "cooldowns are per provider")

	now = now.Add(29 * time.Second)
	assert.True(t, rl.IsRateLimited("claude_code"))

	now = now.Add(2 * time.Second)
	assert.False(t, rl.IsRateLimited("claude_code"), "cooldown expired")
	assert.False(t, rl.IsRateLimited("claude_code"), "expired entry is pruned")
}

func TestSetRateLimitIgnoresNonPositiveWait(t *testing.T) {
	rl := NewRateLimiter(time.Minute, nil)
	rl.SetRateLimit("p", 0)
	assert.False(t, rl.IsRateLimited("p"))
}

func TestAvailabilityCacheTriState(t *testing.T) {
	rl := NewRateLimiter(time.Minute, nil)

	// Unknown is distinct from known-unavailable.
	_, ok := rl.CachedAvailability("p")
	assert.False(t, ok, "no cached value yet")

	rl.SetAvailability("p", false)
	available, ok := rl.CachedAvailability("p")
	assert.True(t, ok)
	assert.False(t, available, "known unavailable, not unknown")

	rl.SetAvailability("p", true)
	available, ok = rl.CachedAvailability("p")
	assert.True(t, ok)
	assert.True(t, available)
}

func TestAvailabilityCacheExpires(t *testing.T) {
	rl := NewRateLimiter(20*time.Millisecond, nil)

	rl.SetAvailability("p", true)
	_, ok := rl.CachedAvailability("p")
	assert.True(t, ok)

	time.Sleep(30 * time.Millisecond)
	_, ok = rl.CachedAvailability("p")
	assert.False(t, ok, "cache entry expired")
}

func TestRateLimitSeedsNegativeAvailability(t *testing.T) {
	rl := NewRateLimiter(time.Minute, nil)

	rl.SetRateLimit("p", 30*time.Second)
	available, ok := rl.CachedAvailability("p")
	assert.True(t, ok)
	assert.False(t, available)
}

func TestReset(t *testing.T) {
	rl := NewRateLimiter(time.Minute, nil)
	rl.SetRateLimit("p", time.Hour)
	rl.SetAvailability("p", false)

	rl.Reset("p")
	assert.False(t, rl.IsRateLimited("p"))
	_, ok := rl.CachedAvailability("p")
	assert.False(t, ok)
}
