package discovery

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptloom/llmrelay/pkg/types"
)

func testModels(provider string) []types.Model {
	return []types.Model{
		{ID: "alpha", Provider: provider, Capabilities: []string{types.CapabilityChat}},
		{ID: "embed-small", Provider: provider, Capabilities: []string{types.CapabilityEmbedding}},
	}
}

func TestSetThenGet(t *testing.T) {
	ClearAllMemory()
	c := New(t.TempDir(), time.Hour, nil)

	c.Set("openai_compatible", testModels("openai_compatible"))

	got, ok := c.Get("openai_compatible")
	require.True(t, ok)
	assert.Equal(t, testModels("openai_compatible"), got)
}

func TestGetMissingProvider(t *testing.T) {
	ClearAllMemory()
	c := New(t.TempDir(), time.Hour, nil)

	_, ok := c.Get("nope")
	assert.False(t, ok)
}

func TestExpiredEntryIsEvicted(t *testing.T) {
	ClearAllMemory()
	c := New(t.TempDir(), time.Hour, nil)

	now := time.Now()
	c.now = func() time.Time { return now }
	c.Set("p", testModels("p"))

	c.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, ok := c.Get("p")
	assert.False(t, ok)

	// The expired memory entry is gone; the stale file is also past TTL,
	// so a second lookup stays a miss.
	memory.Lock()
	_, inMemory := memory.entries["p"]
	memory.Unlock()
	assert.False(t, inMemory)
	_, ok = c.Get("p")
	assert.False(t, ok)
}

func TestMalformedMemoryEntryIsEvicted(t *testing.T) {
	ClearAllMemory()
	c := New("", time.Hour, nil)

	memory.Lock()
	memory.entries["p"] = entry{Timestamp: 0, Models: nil}
	memory.Unlock()

	_, ok := c.Get("p")
	assert.False(t, ok)

	memory.Lock()
	_, inMemory := memory.entries["p"]
	memory.Unlock()
	assert.False(t, inMemory, "malformed entry must be evicted")
}

func TestFileTierRepopulatesMemory(t *testing.T) {
	ClearAllMemory()
	dir := t.TempDir()
	c := New(dir, time.Hour, nil)
	c.Set("p", testModels("p"))

	// A fresh process sees an empty memory tier but a populated file tier.
	ClearAllMemory()
	got, ok := c.Get("p")
	require.True(t, ok)
	assert.Equal(t, testModels("p"), got)

	memory.Lock()
	_, inMemory := memory.entries["p"]
	memory.Unlock()
	assert.True(t, inMemory, "file hit must repopulate the memory tier")
}

func TestCorruptFileIsACacheMiss(t *testing.T) {
	ClearAllMemory()
	dir := t.TempDir()
	c := New(dir, time.Hour, nil)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "p.json"), []byte("{not json"), 0o644))
	_, ok := c.Get("p")
	assert.False(t, ok)
}

func TestMalformedFileIsACacheMiss(t *testing.T) {
	ClearAllMemory()
	dir := t.TempDir()
	c := New(dir, time.Hour, nil)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "p.json"), []byte(`{"models": null}`), 0o644))
	_, ok := c.Get("p")
	assert.False(t, ok)
}

func TestPersistFailureKeepsMemoryTier(t *testing.T) {
	ClearAllMemory()

	// Point the file tier at a path that cannot become a directory.
	blocked := filepath.Join(t.TempDir(), "blocked")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0o644))
	c := New(filepath.Join(blocked, "cache"), time.Hour, nil)

	c.Set("p", testModels("p"))

	got, ok := c.Get("p")
	require.True(t, ok, "memory tier survives persistence failure")
	assert.Equal(t, testModels("p"), got)
}

func TestNoPartialFileOnDisk(t *testing.T) {
	ClearAllMemory()
	dir := t.TempDir()
	c := New(dir, time.Hour, nil)

	c.Set("p", testModels("p"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "only the renamed destination file remains")
	assert.Equal(t, "p.json", entries[0].Name())
}

func TestClearRemovesBothTiers(t *testing.T) {
	ClearAllMemory()
	dir := t.TempDir()
	c := New(dir, time.Hour, nil)
	c.Set("p", testModels("p"))

	c.Clear("p")

	_, ok := c.Get("p")
	assert.False(t, ok)
	_, err := os.Stat(filepath.Join(dir, "p.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestClearAllMemoryLeavesFiles(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, time.Hour, nil)
	c.Set("p", testModels("p"))

	ClearAllMemory()

	_, err := os.Stat(filepath.Join(dir, "p.json"))
	assert.NoError(t, err, "file tier untouched")

	got, ok := c.Get("p")
	require.True(t, ok, "file tier still serves the entry")
	assert.Equal(t, testModels("p"), got)
}

func TestMemoryTierIsSharedAcrossInstances(t *testing.T) {
	ClearAllMemory()
	a := New("", time.Hour, nil)
	b := New("", time.Hour, nil)

	a.Set("p", testModels("p"))
	got, ok := b.Get("p")
	require.True(t, ok)
	assert.Equal(t, testModels("p"), got)
}
