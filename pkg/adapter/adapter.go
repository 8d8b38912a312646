package adapter

import "context"

// Adapter defines the interface for LLM provider adapters backing responders.
type Adapter interface {
	// Generate sends a request to the model and returns its completion.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Name returns the adapter's identifier.
	Name() string

	// Models returns the list of supported models.
	Models() []string
}

// Request is a single-turn completion request.
type Request struct {
	Model     string
	System    string
	Prompt    string
	MaxTokens int
}

// maxTokens returns the requested budget or the provider default.
func (r Request) maxTokens() int {
	if r.MaxTokens <= 0 {
		return 4096
	}
	return r.MaxTokens
}
