package router

import "github.com/zen-systems/finroute/pkg/responder"

// IntentMatch records which keywords triggered an intent.
type IntentMatch struct {
	Tag      string   `json:"tag"`
	Keywords []string `json:"keywords"`
}

// IntentAnalysis is the classification of one query.
type IntentAnalysis struct {
	DetectedIntents       []string      `json:"detected_intents"`
	Jurisdiction          string        `json:"jurisdiction,omitempty"`
	SuggestedResponders   []string      `json:"suggested_responders"`
	RequiresCollaboration bool          `json:"requires_collaboration"`
	Matches               []IntentMatch `json:"matches,omitempty"`
}

// HasIntent reports whether tag was detected.
func (a *IntentAnalysis) HasIntent(tag string) bool {
	if a == nil {
		return false
	}
	for _, t := range a.DetectedIntents {
		if t == tag {
			return true
		}
	}
	return false
}

// Score is the breakdown of one candidate's selection score.
type Score struct {
	ResponderID string  `json:"responder_id"`
	Total       float64 `json:"total"`
	Priority    int     `json:"priority"`
	Affinity    float64 `json:"affinity,omitempty"`
	Health      float64 `json:"health,omitempty"`
	Latency     float64 `json:"latency,omitempty"`
	Remote      float64 `json:"remote,omitempty"`
	HealthKnown bool    `json:"health_known"`
}

// Selection is the outcome of scoring a candidate set. Chosen is nil when no
// active responder exists.
type Selection struct {
	Chosen  *responder.Descriptor `json:"chosen,omitempty"`
	Scores  []Score               `json:"scores,omitempty"`
	Widened bool                  `json:"widened,omitempty"`
}

// Decision captures the full routing decision for a query.
type Decision struct {
	Analysis     *IntentAnalysis `json:"analysis"`
	Jurisdiction string          `json:"jurisdiction,omitempty"`
	Selection    *Selection      `json:"selection"`
}
