package fallback

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmerrors "github.com/scriptloom/llmrelay/pkg/errors"
	"github.com/scriptloom/llmrelay/pkg/provider"
	"github.com/scriptloom/llmrelay/pkg/types"
)

// fakeProvider implements provider.Provider for handler tests. Complete and
// Embed are unused; the handler exercises attempts through closures.
type fakeProvider struct {
	identity  provider.Identity
	available bool
}

func (f *fakeProvider) Identity() provider.Identity { return f.identity }
func (f *fakeProvider) IsAvailable(context.Context) bool {
	return f.available
}
func (f *fakeProvider) Complete(context.Context, *types.CompletionRequest) (*types.CompletionResponse, error) {
	panic("not used")
}
func (f *fakeProvider) Embed(context.Context, *types.EmbeddingRequest) (*types.EmbeddingResponse, error) {
	panic("not used")
}
func (f *fakeProvider) ListModels(context.Context) ([]types.Model, error) { return nil, nil }
func (f *fakeProvider) Close() error                                      { return nil }

// mapRegistry implements Registry over a plain map.
type mapRegistry map[provider.Identity]provider.Provider

func (r mapRegistry) Get(identity provider.Identity) (provider.Provider, bool) {
	p, ok := r[identity]
	return p, ok
}

func registryOf(entries ...*fakeProvider) mapRegistry {
	r := make(mapRegistry, len(entries))
	for _, e := range entries {
		r[e.identity] = e
	}
	return r
}

func TestTraversalOrderDeduplicates(t *testing.T) {
	got := traversalOrder("a", []provider.Identity{"a", "b", "c", "b", ""})
	assert.Equal(t, []provider.Identity{"a", "b", "c"}, got)
}

func TestTraversalOrderWithoutPreferred(t *testing.T) {
	got := traversalOrder("", []provider.Identity{"b", "c"})
	assert.Equal(t, []provider.Identity{"b", "c"}, got)
}

func TestExecuteReturnsFirstSuccess(t *testing.T) {
	reg := registryOf(
		&fakeProvider{identity: "a", available: true},
		&fakeProvider{identity: "b", available: true},
	)
	var chains [][]string
	h := NewHandler(reg, nil, false, func(chain []string) { chains = append(chains, chain) })

	calls := []string{}
	got, err := Execute(context.Background(), h, "a", []provider.Identity{"a", "b"},
		func(_ context.Context, p provider.Provider) (string, error) {
			calls = append(calls, p.Identity().String())
			return "response-from-" + p.Identity().String(), nil
		})

	require.NoError(t, err)
	assert.Equal(t, "response-from-a", got)
	assert.Equal(t, []string{"a"}, calls, "later candidates never tried")
	require.Len(t, chains, 1)
	assert.Equal(t, []string{"a"}, chains[0])
}

func TestExecuteFallsThroughFailures(t *testing.T) {
	reg := registryOf(
		&fakeProvider{identity: "a", available: true},
		&fakeProvider{identity: "b", available: true},
		&fakeProvider{identity: "c", available: true},
	)
	var chains [][]string
	h := NewHandler(reg, nil, false, func(chain []string) { chains = append(chains, chain) })

	got, err := Execute(context.Background(), h, "a", []provider.Identity{"a", "b", "c"},
		func(_ context.Context, p provider.Provider) (string, error) {
			if p.Identity() == "c" {
				return "ok", nil
			}
			return "", llmerrors.NewInternalError(p.Identity().String(), "", "boom")
		})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	require.Len(t, chains, 1)
	assert.Equal(t, []string{"a", "b", "c"}, chains[0], "chain records every considered candidate")
}

func TestExecuteSkipsUnregisteredSilently(t *testing.T) {
	reg := registryOf(&fakeProvider{identity: "c", available: true})
	h := NewHandler(reg, nil, false, nil)

	got, err := Execute(context.Background(), h, "", []provider.Identity{"a", "b", "c"},
		func(_ context.Context, p provider.Provider) (string, error) {
			return "ok", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestExecuteSkipsUnavailableWithoutError(t *testing.T) {
	reg := registryOf(
		&fakeProvider{identity: "a", available: false},
		&fakeProvider{identity: "b", available: true},
	)
	h := NewHandler(reg, nil, false, nil)

	attempted := []string{}
	got, err := Execute(context.Background(), h, "a", []provider.Identity{"a", "b"},
		func(_ context.Context, p provider.Provider) (string, error) {
			attempted = append(attempted, p.Identity().String())
			return "ok", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, []string{"b"}, attempted, "unavailable provider only availability-checked")
}

func TestExecuteAggregatesTotalFailure(t *testing.T) {
	reg := registryOf(
		&fakeProvider{identity: "a", available: true},
		&fakeProvider{identity: "b", available: false},
		&fakeProvider{identity: "c", available: true},
	)
	h := NewHandler(reg, nil, false, nil)

	_, err := Execute(context.Background(), h, "a", []provider.Identity{"a", "b", "c"},
		func(_ context.Context, p provider.Provider) (string, error) {
			return "", llmerrors.NewInternalError(p.Identity().String(), "", "down")
		})

	var fbErr *llmerrors.FallbackError
	require.ErrorAs(t, err, &fbErr)
	assert.Equal(t, []string{"a", "c"}, fbErr.AttemptedProviders, "only invoked providers carry errors")
	assert.Equal(t, []string{"a", "b", "c"}, fbErr.FallbackChain)
	assert.Contains(t, fbErr.ProviderErrors["a"], "down")
	assert.Contains(t, fbErr.ProviderErrors["c"], "down")
	assert.NotContains(t, fbErr.ProviderErrors, "b")
	assert.Nil(t, fbErr.DebugInfo, "debug payload only in debug mode")
}

func TestExecuteAllSkipped(t *testing.T) {
	reg := registryOf(&fakeProvider{identity: "a", available: false})
	h := NewHandler(reg, nil, false, nil)

	_, err := Execute(context.Background(), h, "a", []provider.Identity{"a", "missing"},
		func(_ context.Context, p provider.Provider) (string, error) {
			t.Fatal("attempt must not run")
			return "", nil
		})

	var fbErr *llmerrors.FallbackError
	require.ErrorAs(t, err, &fbErr)
	assert.Empty(t, fbErr.AttemptedProviders)
	assert.Equal(t, []string{"a"}, fbErr.FallbackChain)
	assert.Contains(t, err.Error(), "all providers failed")
}

func TestExecuteDebugModeAttachesPayload(t *testing.T) {
	reg := registryOf(&fakeProvider{identity: "a", available: true})
	h := NewHandler(reg, nil, true, nil)

	_, err := Execute(context.Background(), h, "a", nil,
		func(_ context.Context, p provider.Provider) (string, error) {
			return "", llmerrors.NewInternalError("a", "", "down")
		})

	var fbErr *llmerrors.FallbackError
	require.ErrorAs(t, err, &fbErr)
	require.Contains(t, fbErr.DebugInfo, "a")
	assert.NotEmpty(t, fbErr.DebugInfo["a"].Stack)
	assert.False(t, fbErr.DebugInfo["a"].Timestamp.IsZero())
}
