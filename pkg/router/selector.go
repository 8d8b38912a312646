package router

import (
	"sort"

	"github.com/zen-systems/finroute/pkg/health"
	"github.com/zen-systems/finroute/pkg/responder"
)

const (
	affinityBonus  = 5.0
	healthWeight   = 10.0
	slowThreshold  = 30.0
	slowPenalty    = -3.0
	stallThreshold = 60.0
	stallPenalty   = -5.0
	remotePenalty  = -2.0
)

// HealthSource supplies per-responder health at selection time.
type HealthSource interface {
	Snapshot(id string) (health.Snapshot, bool)
}

// HealthFunc adapts a function to HealthSource.
type HealthFunc func(id string) (health.Snapshot, bool)

// Snapshot calls f.
func (f HealthFunc) Snapshot(id string) (health.Snapshot, bool) {
	return f(id)
}

// Selector scores candidate responders and picks the best one.
type Selector struct {
	health HealthSource
}

// NewSelector creates a selector. A nil source means health is always unknown.
func NewSelector(h HealthSource) *Selector {
	return &Selector{health: h}
}

// Select picks the highest scoring active responder among candidateIDs. When no
// candidate is active it widens to every active responder in the registry.
// Ties go to the responder that comes first in registry order.
func (s *Selector) Select(candidateIDs []string, jurisdiction string, registry *responder.Registry) *Selection {
	active := registry.Active()

	wanted := make(map[string]bool, len(candidateIDs))
	for _, id := range candidateIDs {
		wanted[id] = true
	}
	var pool []responder.Descriptor
	for _, d := range active {
		if wanted[d.ID] {
			pool = append(pool, d)
		}
	}

	sel := &Selection{}
	if len(pool) == 0 {
		pool = active
		sel.Widened = true
	}
	if len(pool) == 0 {
		return sel
	}

	type scored struct {
		desc  responder.Descriptor
		score Score
	}
	ranked := make([]scored, 0, len(pool))
	for _, d := range pool {
		ranked = append(ranked, scored{desc: d, score: s.score(d, jurisdiction)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score.Total > ranked[j].score.Total
	})

	chosen := ranked[0].desc
	sel.Chosen = &chosen
	for _, r := range ranked {
		sel.Scores = append(sel.Scores, r.score)
	}
	return sel
}

// score computes the selection score of d. Health contributes nothing when unknown.
func (s *Selector) score(d responder.Descriptor, jurisdiction string) Score {
	sc := Score{ResponderID: d.ID, Priority: d.StaticPriority}
	if jurisdiction != "" && d.HasAffinity(jurisdiction) {
		sc.Affinity = affinityBonus
	}
	if s.health != nil {
		if snap, ok := s.health.Snapshot(d.ID); ok {
			sc.HealthKnown = true
			sc.Health = snap.SuccessRatePercent / 100 * healthWeight
			switch {
			case snap.AvgResponseTimeSeconds > stallThreshold:
				sc.Latency = stallPenalty
			case snap.AvgResponseTimeSeconds > slowThreshold:
				sc.Latency = slowPenalty
			}
		}
	}
	if !d.IsLocal {
		sc.Remote = remotePenalty
	}
	sc.Total = float64(sc.Priority) + sc.Affinity + sc.Health + sc.Latency + sc.Remote
	return sc
}
