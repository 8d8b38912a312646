package gate

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"
)

// Registry owns one FailureGate per responder id. Gates are created lazily and
// live for the lifetime of the registry.
type Registry struct {
	config       Config
	now          func() time.Time
	logf         func(format string, args ...any)
	onTransition func(Transition)

	mu    sync.RWMutex
	gates map[string]*FailureGate
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithLogger sets the log function used by the registry and its gates.
func WithLogger(logf func(format string, args ...any)) Option {
	return func(r *Registry) {
		r.logf = logf
	}
}

// WithTransitionHook registers a callback invoked after every state change.
// The callback runs outside the gate lock.
func WithTransitionHook(hook func(Transition)) Option {
	return func(r *Registry) {
		r.onTransition = hook
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config, opts ...Option) *Registry {
	r := &Registry{
		config: cfg.normalized(),
		now:    time.Now,
		logf:   log.Printf,
		gates:  make(map[string]*FailureGate),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the thresholds applied to new gates.
func (r *Registry) Config() Config {
	return r.config
}

// Get returns the gate for id, creating it on first use.
func (r *Registry) Get(id string) *FailureGate {
	r.mu.RLock()
	if g, ok := r.gates[id]; ok {
		r.mu.RUnlock()
		return g
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gates[id]; ok {
		return g
	}
	g := newFailureGate(id, r.config, r.now, r.logf, r.onTransition)
	r.gates[id] = g
	return g
}

// Call runs fn through the gate for id.
func (r *Registry) Call(ctx context.Context, id string, fn func(ctx context.Context) error) error {
	return r.Get(id).Call(ctx, fn)
}

// Reset closes the gate for id. It reports false when no gate exists yet.
func (r *Registry) Reset(id string) bool {
	r.mu.RLock()
	g, ok := r.gates[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	g.Reset()
	return true
}

// ResetAll closes every gate.
func (r *Registry) ResetAll() {
	r.mu.RLock()
	gates := make([]*FailureGate, 0, len(r.gates))
	for _, g := range r.gates {
		gates = append(gates, g)
	}
	r.mu.RUnlock()

	for _, g := range gates {
		g.Reset()
	}
}

// Snapshot returns the state of the gate for id, if it exists.
func (r *Registry) Snapshot(id string) (Snapshot, bool) {
	r.mu.RLock()
	g, ok := r.gates[id]
	r.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	return g.Snapshot(), true
}

// Snapshots returns every gate's state ordered by responder id.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	out := make([]Snapshot, 0, len(r.gates))
	for _, g := range r.gates {
		out = append(out, g.Snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ResponderID < out[j].ResponderID
	})
	return out
}
