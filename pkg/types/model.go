package types

// Model capabilities.
const (
	CapabilityChat       = "chat"
	CapabilityCompletion = "completion"
	CapabilityEmbedding  = "embedding"
)

// Model describes a model advertised by a provider's discovery endpoint.
// Instances are immutable once returned.
type Model struct {
	ID              string   `json:"id"`
	Name            string   `json:"name,omitempty"`
	Provider        string   `json:"provider"`
	Capabilities    []string `json:"capabilities,omitempty"`
	ContextWindow   int      `json:"context_window,omitempty"`
	MaxOutputTokens int      `json:"max_output_tokens,omitempty"`
}

// HasCapability reports whether the model advertises the given capability.
func (m Model) HasCapability(capability string) bool {
	for _, c := range m.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}
