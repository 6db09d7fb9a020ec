package types

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// EmbeddingInput represents the input for an embedding request.
// It supports either a single string or an array of strings, with custom
// JSON marshaling to keep the wire format identical to the OpenAI API.
type EmbeddingInput struct {
	Text  *string  `json:"-"`
	Texts []string `json:"-"`
}

// NewEmbeddingInput wraps a single string.
func NewEmbeddingInput(text string) EmbeddingInput {
	return EmbeddingInput{Text: &text}
}

// NewEmbeddingInputs wraps a batch of strings.
func NewEmbeddingInputs(texts []string) EmbeddingInput {
	return EmbeddingInput{Texts: texts}
}

// UnmarshalJSON implements custom JSON unmarshaling.
func (e *EmbeddingInput) UnmarshalJSON(data []byte) error {
	e.Text = nil
	e.Texts = nil

	if bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("input cannot be null")
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		e.Text = &s
		return nil
	}

	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		e.Texts = ss
		return nil
	}

	return fmt.Errorf("input must be string or []string")
}

// MarshalJSON implements custom JSON marshaling.
// It enforces that exactly one field is set.
func (e EmbeddingInput) MarshalJSON() ([]byte, error) {
	if e.Text != nil && e.Texts != nil {
		return nil, fmt.Errorf("embedding input must set exactly one field")
	}
	if e.Text != nil {
		return json.Marshal(*e.Text)
	}
	if e.Texts != nil {
		return json.Marshal(e.Texts)
	}
	return nil, fmt.Errorf("embedding input is empty")
}

// Validate checks whether the input is non-empty.
func (e *EmbeddingInput) Validate() error {
	if e.Text != nil {
		if *e.Text == "" {
			return fmt.Errorf("input cannot be empty")
		}
		return nil
	}
	if e.Texts != nil {
		if len(e.Texts) == 0 {
			return fmt.Errorf("input list cannot be empty")
		}
		for i, s := range e.Texts {
			if s == "" {
				return fmt.Errorf("input list contains empty string at index %d", i)
			}
		}
		return nil
	}
	return fmt.Errorf("input is required")
}

// Count returns the number of inputs in the request.
func (e *EmbeddingInput) Count() int {
	if e.Text != nil {
		return 1
	}
	return len(e.Texts)
}

// EmbeddingRequest is a unified embedding request.
type EmbeddingRequest struct {
	Model      string         `json:"model,omitempty"`
	Input      EmbeddingInput `json:"input"`
	Dimensions int            `json:"dimensions,omitempty"`

	// Provider pins the request to a single provider identity.
	Provider string `json:"-"`
}

// Embedding is a single embedding vector with its position in the batch.
type Embedding struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// EmbeddingResponse is a unified embedding response. Data is ordered by
// input index.
type EmbeddingResponse struct {
	Model string      `json:"model"`
	Data  []Embedding `json:"data"`
	Usage Usage       `json:"usage"`

	// Provider is the identity of the backend that actually answered.
	Provider string `json:"provider,omitempty"`
}
