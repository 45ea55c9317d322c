package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	return NewRegistry(
		map[Capability]*CapabilityConfig{
			CapabilityDrafting: {
				Preferred: []string{"big-model"},
				Fallback:  []string{"small-model"},
			},
			CapabilityFast: {
				Preferred: []string{"small-model"},
			},
		},
		map[string]*EndpointConfig{
			"big-model":   {Provider: "anthropic", Model: "claude-sonnet-4"},
			"small-model": {Provider: "ollama", URL: "http://localhost:11434/v1", Model: "llama3.2"},
		},
	)
}

func TestResolve(t *testing.T) {
	r := newTestRegistry()

	assert.Equal(t, "big-model", r.Resolve(CapabilityDrafting))
	assert.Equal(t, "small-model", r.Resolve(CapabilityFast))
	assert.Equal(t, "default", r.Resolve(CapabilityChat), "unconfigured capability falls to default")
}

func TestGetFallbackChain(t *testing.T) {
	r := newTestRegistry()

	assert.Equal(t, []string{"big-model", "small-model"}, r.GetFallbackChain(CapabilityDrafting))
	assert.Equal(t, []string{"small-model"}, r.GetFallbackChain(CapabilityFast))
	assert.Equal(t, []string{"default"}, r.GetFallbackChain(CapabilityEditing))
}

func TestForPhase(t *testing.T) {
	r := newTestRegistry()

	assert.Equal(t, "big-model", r.ForPhase("writing"))
	assert.Equal(t, "big-model", r.ForPhase("no-such-phase"), "unknown phases default to drafting")
	assert.Equal(t, []string{"big-model", "small-model"}, r.GetFallbackChainForPhase("writing"))
}

func TestGetEndpoint(t *testing.T) {
	r := newTestRegistry()

	ep := r.GetEndpoint("big-model")
	require.NotNil(t, ep)
	assert.Equal(t, "anthropic", ep.Provider)

	assert.Nil(t, r.GetEndpoint("missing"))
}

func TestSetters(t *testing.T) {
	r := newTestRegistry()

	r.SetCapability(CapabilityChat, &CapabilityConfig{Preferred: []string{"chat-model"}})
	assert.Equal(t, "chat-model", r.Resolve(CapabilityChat))

	r.SetEndpoint("chat-model", &EndpointConfig{Provider: "openai", Model: "gpt-4o"})
	require.NotNil(t, r.GetEndpoint("chat-model"))

	r.SetDefault("small-model")
	assert.Equal(t, "small-model", r.Resolve(CapabilityResearch))
}

func TestListCapabilitiesAndEndpoints(t *testing.T) {
	r := newTestRegistry()

	assert.ElementsMatch(t, []Capability{CapabilityDrafting, CapabilityFast}, r.ListCapabilities())
	assert.ElementsMatch(t, []string{"big-model", "small-model"}, r.ListEndpoints())
}

func TestDefaultRegistryCoversAllPhases(t *testing.T) {
	r := NewDefaultRegistry()

	for phase := range PhaseCapabilities {
		model := r.ForPhase(phase)
		require.NotEmpty(t, model, phase)
		assert.NotNil(t, r.GetEndpoint(model), "phase %s resolves to a configured endpoint", phase)
	}
}

func TestRegistryJSONRoundTrip(t *testing.T) {
	r := newTestRegistry()

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var restored Registry
	require.NoError(t, json.Unmarshal(data, &restored))

	assert.Equal(t, "big-model", restored.Resolve(CapabilityDrafting))
	assert.Equal(t, []string{"big-model", "small-model"}, restored.GetFallbackChain(CapabilityDrafting))
	require.NotNil(t, restored.GetEndpoint("small-model"))
	assert.Equal(t, "llama3.2", restored.GetEndpoint("small-model").Model)
}
