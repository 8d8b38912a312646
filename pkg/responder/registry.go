package responder

import (
	"context"
	"fmt"
	"sync"
)

// Provider supplies the current set of descriptors, for example a configuration
// store. Order is significant: it is the registry order used for tie-breaks.
type Provider interface {
	ListResponders(ctx context.Context) ([]Descriptor, error)
}

// StaticProvider serves a fixed list of descriptors.
type StaticProvider []Descriptor

// ListResponders returns the fixed list.
func (p StaticProvider) ListResponders(context.Context) ([]Descriptor, error) {
	out := make([]Descriptor, len(p))
	for i, d := range p {
		out[i] = d.clone()
	}
	return out, nil
}

// Registry holds the live snapshot of responder descriptors in insertion order.
// Readers always see a complete snapshot; Reload swaps it atomically.
type Registry struct {
	provider Provider

	mu          sync.RWMutex
	descriptors []Descriptor
	index       map[string]int
}

// NewRegistry creates a registry with a fixed set of descriptors.
func NewRegistry(descriptors ...Descriptor) *Registry {
	r := &Registry{}
	r.replace(descriptors)
	return r
}

// NewRegistryFromProvider creates a registry and loads it from p.
func NewRegistryFromProvider(ctx context.Context, p Provider) (*Registry, error) {
	r := &Registry{provider: p}
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads descriptors from the provider. Without a provider it is a no-op.
func (r *Registry) Reload(ctx context.Context) error {
	if r.provider == nil {
		return nil
	}
	descriptors, err := r.provider.ListResponders(ctx)
	if err != nil {
		return fmt.Errorf("failed to list responders: %w", err)
	}
	return r.Replace(descriptors)
}

// Replace swaps the snapshot. Duplicate ids are rejected.
func (r *Registry) Replace(descriptors []Descriptor) error {
	seen := make(map[string]bool, len(descriptors))
	for _, d := range descriptors {
		if d.ID == "" {
			return fmt.Errorf("responder descriptor without id")
		}
		if seen[d.ID] {
			return fmt.Errorf("duplicate responder id %q", d.ID)
		}
		seen[d.ID] = true
	}
	r.replace(descriptors)
	return nil
}

func (r *Registry) replace(descriptors []Descriptor) {
	snapshot := make([]Descriptor, 0, len(descriptors))
	index := make(map[string]int, len(descriptors))
	for _, d := range descriptors {
		if _, dup := index[d.ID]; dup {
			continue
		}
		index[d.ID] = len(snapshot)
		snapshot = append(snapshot, d.clone())
	}

	r.mu.Lock()
	r.descriptors = snapshot
	r.index = index
	r.mu.Unlock()
}

// Get returns the descriptor for id.
func (r *Registry) Get(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[id]
	if !ok {
		return Descriptor{}, false
	}
	return r.descriptors[i].clone(), true
}

// List returns every descriptor in registry order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, len(r.descriptors))
	for i, d := range r.descriptors {
		out[i] = d.clone()
	}
	return out
}

// Active returns the active descriptors in registry order.
func (r *Registry) Active() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Descriptor
	for _, d := range r.descriptors {
		if d.Active {
			out = append(out, d.clone())
		}
	}
	return out
}

// Len returns the number of descriptors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.descriptors)
}
