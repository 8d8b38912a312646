package responder

import (
	"context"

	"github.com/zen-systems/finroute/pkg/answer"
)

// Query is what a responder is asked to answer.
type Query struct {
	Text         string
	Jurisdiction string
	Language     string
	Model        string
}

// Responder answers a query on behalf of the responder described by d.
// Any downstream problem (network, malformed output, quota) is returned as an error.
type Responder interface {
	Invoke(ctx context.Context, d Descriptor, q Query) (*answer.Answer, error)
}

// Contribution is one responder's answer fed into synthesis.
type Contribution struct {
	ResponderID string          `json:"responder_id"`
	Name        string          `json:"name"`
	Text        string          `json:"text"`
	Sources     []answer.Source `json:"sources,omitempty"`
}

// SynthesisRequest carries the collected contributions in caller order.
type SynthesisRequest struct {
	Query         string
	Language      string
	Model         string
	Contributions []Contribution
}

// Synthesizer merges several contributions into one answer.
type Synthesizer interface {
	Synthesize(ctx context.Context, d Descriptor, req SynthesisRequest) (*answer.Answer, error)
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(ctx context.Context, d Descriptor, q Query) (*answer.Answer, error)

// Invoke calls f.
func (f ResponderFunc) Invoke(ctx context.Context, d Descriptor, q Query) (*answer.Answer, error) {
	return f(ctx, d, q)
}

// SynthesizerFunc adapts a function to the Synthesizer interface.
type SynthesizerFunc func(ctx context.Context, d Descriptor, req SynthesisRequest) (*answer.Answer, error)

// Synthesize calls f.
func (f SynthesizerFunc) Synthesize(ctx context.Context, d Descriptor, req SynthesisRequest) (*answer.Answer, error) {
	return f(ctx, d, req)
}
