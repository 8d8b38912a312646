package fallback

import (
	"github.com/zen-systems/finroute/pkg/responder"
	"github.com/zen-systems/finroute/pkg/router"
)

// Policy chooses an alternate responder when the primary one fails.
type Policy struct {
	selector *router.Selector
}

// NewPolicy creates a policy that scores alternates with selector.
func NewPolicy(selector *router.Selector) *Policy {
	if selector == nil {
		selector = router.NewSelector(nil)
	}
	return &Policy{selector: selector}
}

// ChooseFallback returns an active responder other than failedID, or nil.
// The remaining suggestions are scored without jurisdiction; when none remain
// the first other active responder in registry order is used.
func (p *Policy) ChooseFallback(failedID string, suggestedIDs []string, registry *responder.Registry) *responder.Descriptor {
	var remaining []string
	for _, id := range suggestedIDs {
		if id != failedID {
			remaining = append(remaining, id)
		}
	}

	if len(remaining) > 0 {
		sel := p.selector.Select(remaining, "", registry)
		if sel.Chosen != nil && sel.Chosen.ID != failedID {
			return sel.Chosen
		}
	}

	for _, d := range registry.Active() {
		if d.ID != failedID {
			d := d
			return &d
		}
	}
	return nil
}
