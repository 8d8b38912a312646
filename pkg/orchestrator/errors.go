package orchestrator

import (
	"errors"
	"fmt"

	"github.com/zen-systems/finroute/pkg/gate"
)

var (
	// ErrNoResponderAvailable means no active responder could serve the request.
	ErrNoResponderAvailable = errors.New("no responder available")
	// ErrSynthesisFailure means contributions were collected but could not be merged.
	ErrSynthesisFailure = errors.New("synthesis failed")
)

// InvocationError wraps a failed responder call.
type InvocationError struct {
	ResponderID string
	Err         error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("responder %s failed: %v", e.ResponderID, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// PanicError is a responder call that panicked.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("responder panicked: %v", e.Value)
}

// FailureReason classifies why a result is degraded.
type FailureReason string

const (
	ReasonNone                 FailureReason = ""
	ReasonGateOpen             FailureReason = "gate_open"
	ReasonInvocationError      FailureReason = "responder_invocation_error"
	ReasonNoResponderAvailable FailureReason = "no_responder_available"
	ReasonSynthesisFailure     FailureReason = "synthesis_failure"
	// ReasonCanceled means the caller gave up before an answer was produced.
	ReasonCanceled             FailureReason = "canceled"
)

// ReasonFor maps an error to its failure reason.
func ReasonFor(err error) FailureReason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, gate.ErrOpen):
		return ReasonGateOpen
	case errors.Is(err, ErrNoResponderAvailable):
		return ReasonNoResponderAvailable
	case errors.Is(err, ErrSynthesisFailure):
		return ReasonSynthesisFailure
	default:
		return ReasonInvocationError
	}
}
