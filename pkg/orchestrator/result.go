package orchestrator

import (
	"time"

	"github.com/zen-systems/finroute/pkg/answer"
	"github.com/zen-systems/finroute/pkg/responder"
	"github.com/zen-systems/finroute/pkg/router"
)

// Mode tells how a result was produced.
type Mode string

const (
	ModeRouted        Mode = "routed"
	ModeCollaboration Mode = "collaboration"
)

// Failure records one responder that did not contribute.
type Failure struct {
	ResponderID string        `json:"responder_id"`
	Reason      FailureReason `json:"reason"`
	Error       string        `json:"error,omitempty"`
}

// Result is returned for every request. Answer is always set; a degraded result
// carries a FailureReason explaining why. An answer from a fallback responder
// keeps the primary's failure reason.
type Result struct {
	RequestID           string                   `json:"request_id"`
	Mode                Mode                     `json:"mode"`
	Answer              *answer.Answer           `json:"answer"`
	SelectedResponderID string                   `json:"selected_responder_id,omitempty"`
	UsedFallback        bool                     `json:"used_fallback"`
	OriginalResponderID string                   `json:"original_responder_id,omitempty"`
	FailureReason       FailureReason            `json:"failure_reason,omitempty"`
	FailureDetail       string                   `json:"failure_detail,omitempty"`
	IntentAnalysis      *router.IntentAnalysis   `json:"intent_analysis,omitempty"`
	Scores              []router.Score           `json:"scores,omitempty"`
	Jurisdiction        string                   `json:"jurisdiction,omitempty"`
	Language            string                   `json:"language"`
	RespondersInvolved  []string                 `json:"responders_involved,omitempty"`
	Contributions       []responder.Contribution `json:"contributions,omitempty"`
	Failures            []Failure                `json:"failures,omitempty"`
	Duration            time.Duration            `json:"duration"`
}

// Degraded reports whether the result carries a failure reason.
func (r *Result) Degraded() bool {
	return r.FailureReason != ReasonNone
}

// Canned reports whether the answer is a pre-registered response.
func (r *Result) Canned() bool {
	return r.Answer != nil && r.Answer.Canned
}
