// Package types defines the unified request and response types shared by all
// provider adapters. Requests are expressed once in this package and each
// adapter maps them onto its backend's wire format.
package types

import (
	"fmt"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat requests a structured output format from the backend.
type ResponseFormat struct {
	Type string `json:"type"` // "text" or "json_object"
}

// CompletionRequest is a unified chat completion request.
type CompletionRequest struct {
	// Model may be empty, in which case the client auto-selects one for the
	// target provider.
	Model       string          `json:"model,omitempty"`
	Messages    []Message       `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	System      string          `json:"-"`
	Format      *ResponseFormat `json:"response_format,omitempty"`

	// Provider pins the request to a single provider identity, bypassing
	// fallback entirely. Empty means "use the configured chain".
	Provider string `json:"-"`
}

// Validate checks the request for structural problems before any network call.
func (r *CompletionRequest) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("messages is required")
	}
	for i, m := range r.Messages {
		if m.Role == "" {
			return fmt.Errorf("message %d: role is required", i)
		}
	}
	return nil
}

// Choice is a single completion choice.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// Usage reports token consumption for a request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionResponse is a unified chat completion response.
type CompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`

	// Provider is the identity of the backend that actually answered.
	Provider string `json:"provider,omitempty"`
}

// Text returns the content of the first choice, or "" when there is none.
func (r *CompletionResponse) Text() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}
