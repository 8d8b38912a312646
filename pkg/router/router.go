package router

import (
	"log"

	"github.com/zen-systems/finroute/pkg/config"
	"github.com/zen-systems/finroute/pkg/responder"
)

// Router classifies a query and selects the responder to serve it.
type Router struct {
	classifier *IntentClassifier
	selector   *Selector
	registry   *responder.Registry
	debug      bool
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithDebug enables debug logging of selection scores.
func WithDebug(debug bool) RouterOption {
	return func(r *Router) {
		r.debug = debug
	}
}

// NewRouter creates a router over the registry with health from h.
func NewRouter(cfg *config.OrchestrationConfig, registry *responder.Registry, h HealthSource, opts ...RouterOption) *Router {
	r := &Router{
		classifier: NewIntentClassifier(cfg),
		selector:   NewSelector(h),
		registry:   registry,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Classify runs only the intent classifier.
func (r *Router) Classify(query string) *IntentAnalysis {
	return r.classifier.Classify(query)
}

// Route classifies query and selects a responder. A non-empty jurisdiction
// overrides the detected one.
func (r *Router) Route(query, jurisdiction string) *Decision {
	analysis := r.classifier.Classify(query)
	if jurisdiction == "" {
		jurisdiction = analysis.Jurisdiction
	}
	sel := r.selector.Select(analysis.SuggestedResponders, jurisdiction, r.registry)

	if r.debug {
		if sel.Widened {
			log.Printf("[router] no active responder in %v; widened to all active", analysis.SuggestedResponders)
		}
		for _, sc := range sel.Scores {
			log.Printf("[router] score %s=%.2f (priority=%d affinity=%.0f health=%.2f latency=%.0f remote=%.0f)",
				sc.ResponderID, sc.Total, sc.Priority, sc.Affinity, sc.Health, sc.Latency, sc.Remote)
		}
	}
	return &Decision{Analysis: analysis, Jurisdiction: jurisdiction, Selection: sel}
}

// Select exposes the selector over the router's registry.
func (r *Router) Select(candidateIDs []string, jurisdiction string) *Selection {
	return r.selector.Select(candidateIDs, jurisdiction, r.registry)
}

// Registry returns the responder registry the router selects from.
func (r *Router) Registry() *responder.Registry {
	return r.registry
}

// Selector returns the selector, for callers that score alternates.
func (r *Router) Selector() *Selector {
	return r.selector
}
