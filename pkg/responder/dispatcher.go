package responder

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/zen-systems/finroute/pkg/adapter"
	"github.com/zen-systems/finroute/pkg/answer"
)

// ModelResolver maps a model alias to a concrete model id.
type ModelResolver func(model string) string

// Dispatcher invokes responders through an LLM adapter, or through a
// RemoteClient when the descriptor has an endpoint. It implements both
// Responder and Synthesizer.
type Dispatcher struct {
	adapters       map[string]adapter.Adapter
	defaultAdapter string
	resolve        ModelResolver
	remote         *RemoteClient
	maxTokens      int
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDefaultAdapter sets the adapter used when a descriptor names none.
func WithDefaultAdapter(name string) DispatcherOption {
	return func(d *Dispatcher) {
		d.defaultAdapter = name
	}
}

// WithModelResolver sets the alias resolver applied to every model name.
func WithModelResolver(fn ModelResolver) DispatcherOption {
	return func(d *Dispatcher) {
		if fn != nil {
			d.resolve = fn
		}
	}
}

// WithRemoteClient sets the client used for endpoint-backed responders.
func WithRemoteClient(c *RemoteClient) DispatcherOption {
	return func(d *Dispatcher) {
		if c != nil {
			d.remote = c
		}
	}
}

// WithMaxTokens caps the completion length requested from adapters.
func WithMaxTokens(n int) DispatcherOption {
	return func(d *Dispatcher) {
		d.maxTokens = n
	}
}

// NewDispatcher creates a dispatcher over the named adapters.
func NewDispatcher(adapters map[string]adapter.Adapter, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		adapters: adapters,
		resolve:  func(m string) string { return m },
		remote:   NewRemoteClient(0),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.defaultAdapter == "" {
		d.defaultAdapter = firstAdapter(adapters)
	}
	return d
}

// Invoke answers q as the responder described by desc.
func (d *Dispatcher) Invoke(ctx context.Context, desc Descriptor, q Query) (*answer.Answer, error) {
	q.Language = NormalizeLanguage(q.Language, LanguageFrench)
	if q.Model == "" {
		q.Model = desc.Model
	}
	q.Model = d.resolve(q.Model)

	if desc.Remote() {
		return d.remote.Invoke(ctx, desc, q)
	}

	a, err := d.generate(ctx, desc, SystemPrompt(desc, q.Language), QueryPrompt(q.Text, q.Jurisdiction), q.Model)
	if err != nil {
		return nil, err
	}
	a.Language = q.Language
	if q.Jurisdiction != "" {
		a.Metadata["jurisdiction"] = q.Jurisdiction
	}
	return a, nil
}

// Synthesize merges req.Contributions as the responder described by desc.
func (d *Dispatcher) Synthesize(ctx context.Context, desc Descriptor, req SynthesisRequest) (*answer.Answer, error) {
	if len(req.Contributions) == 0 {
		return nil, fmt.Errorf("nothing to synthesize")
	}
	req.Language = NormalizeLanguage(req.Language, LanguageFrench)
	model := req.Model
	if model == "" {
		model = desc.Model
	}
	model = d.resolve(model)
	prompt := SynthesisPrompt(req)

	if desc.Remote() {
		return d.remote.Invoke(ctx, desc, Query{Text: prompt, Language: req.Language, Model: model})
	}

	a, err := d.generate(ctx, desc, SystemPrompt(desc, req.Language), prompt, model)
	if err != nil {
		return nil, err
	}
	a.Language = req.Language
	a.Metadata["contributions"] = fmt.Sprintf("%d", len(req.Contributions))
	return a, nil
}

func (d *Dispatcher) generate(ctx context.Context, desc Descriptor, system, prompt, model string) (*answer.Answer, error) {
	name := desc.Adapter
	if name == "" {
		name = d.defaultAdapter
	}
	a, ok := d.adapters[name]
	if !ok {
		return nil, fmt.Errorf("responder %s: adapter %q not configured", desc.ID, name)
	}
	if model == "" {
		if models := a.Models(); len(models) > 0 {
			model = models[0]
		}
	}

	resp, err := a.Generate(ctx, adapter.Request{
		Model:     model,
		System:    system,
		Prompt:    prompt,
		MaxTokens: d.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("responder %s: %w", desc.ID, err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return nil, fmt.Errorf("responder %s: empty completion from %s", desc.ID, name)
	}

	out := answer.New(desc.ID, resp.Content, resp.Model, nil)
	out.Metadata["adapter"] = resp.Adapter
	if resp.Usage != nil {
		out.Metadata["total_tokens"] = fmt.Sprintf("%d", resp.Usage.TotalTokens)
	}
	return out, nil
}

func firstAdapter(adapters map[string]adapter.Adapter) string {
	if _, ok := adapters["mock"]; ok && len(adapters) == 1 {
		return "mock"
	}
	names := make([]string, 0, len(adapters))
	for name := range adapters {
		if name != "mock" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "mock"
	}
	sort.Strings(names)
	return names[0]
}
