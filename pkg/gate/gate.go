// Package gate isolates failing responders behind per-responder failure gates.
//
// A gate starts closed. After FailureThreshold consecutive failures it opens and
// rejects calls with ErrOpen without invoking them. Once RecoveryTimeout has
// elapsed since the last failure, the next call is admitted as a single trial
// (half-open): success closes the gate, failure reopens it.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// State is the position of a gate in its state machine.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON and YAML output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrOpen is returned when a gate rejects a call without invoking it.
var ErrOpen = errors.New("failure gate open")

// OpenError carries the responder id and the time left before the next trial.
type OpenError struct {
	ResponderID string
	RetryIn     time.Duration
}

func (e *OpenError) Error() string {
	if e.RetryIn > 0 {
		return fmt.Sprintf("failure gate open for %s (retry in %s)", e.ResponderID, e.RetryIn.Round(time.Second))
	}
	return fmt.Sprintf("failure gate open for %s (trial in flight)", e.ResponderID)
}

// Is makes errors.Is(err, ErrOpen) hold for every OpenError.
func (e *OpenError) Is(target error) bool {
	return target == ErrOpen
}

// Config sets the gate thresholds.
type Config struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// DefaultConfig returns the standard thresholds: 5 failures, 60s recovery.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = def.FailureThreshold
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = def.RecoveryTimeout
	}
	return c
}

// Transition describes a state change of one gate. Seq increases by one with
// every change of the same gate; hooks run outside the gate lock and may see
// transitions of one gate out of order, so consumers that keep the latest state
// compare Seq.
type Transition struct {
	ResponderID string
	From        State
	To          State
	At          time.Time
	Seq         uint64
}

// Snapshot is a point-in-time copy of a gate's state.
type Snapshot struct {
	ResponderID         string    `json:"responder_id"`
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFailure         time.Time `json:"last_failure,omitempty"`
}

// FailureGate guards calls to a single responder.
type FailureGate struct {
	id           string
	config       Config
	now          func() time.Time
	logf         func(format string, args ...any)
	onTransition func(Transition)

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	lastFailure         time.Time
	trialing            bool
	seq                 uint64
}

func newFailureGate(id string, cfg Config, now func() time.Time, logf func(string, ...any), hook func(Transition)) *FailureGate {
	if now == nil {
		now = time.Now
	}
	if logf == nil {
		logf = log.Printf
	}
	return &FailureGate{
		id:           id,
		config:       cfg.normalized(),
		now:          now,
		logf:         logf,
		onTransition: hook,
		state:        StateClosed,
	}
}

// NewFailureGate creates a standalone gate. Most callers should go through a Registry.
func NewFailureGate(id string, cfg Config) *FailureGate {
	return newFailureGate(id, cfg, nil, nil, nil)
}

// Call runs fn through the gate. When the gate rejects the call fn is not
// invoked and the returned error matches ErrOpen. Otherwise fn's error is
// returned unchanged after the gate has recorded the outcome.
//
// A ctx that is already done is returned without admitting the call. An error
// caused by ctx ending during fn belongs to the caller and is not counted
// against the responder. A panic in fn is recorded as a failure and re-raised.
func (g *FailureGate) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	trial, err := g.admit()
	if err != nil {
		return err
	}

	done := false
	defer func() {
		if done {
			return
		}
		r := recover()
		if r == nil {
			g.record(errors.New("call exited without returning"), trial)
			return
		}
		g.record(fmt.Errorf("panic: %v", r), trial)
		panic(r)
	}()
	callErr := fn(ctx)
	done = true

	if callerEnded(ctx, callErr) {
		g.release(trial)
		return callErr
	}
	g.record(callErr, trial)
	return callErr
}

// callerEnded reports whether err only reflects the end of ctx.
func callerEnded(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	ctxErr := ctx.Err()
	return ctxErr != nil && errors.Is(err, ctxErr)
}

// Execute is Call for functions that return a value.
func Execute[T any](ctx context.Context, g *FailureGate, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := g.Call(ctx, func(ctx context.Context) error {
		var callErr error
		result, callErr = fn(ctx)
		return callErr
	})
	return result, err
}

// admit decides whether a call may proceed. trial is true when the call is the
// half-open trial.
func (g *FailureGate) admit() (trial bool, err error) {
	g.mu.Lock()
	var transitions []Transition
	defer func() {
		g.mu.Unlock()
		g.emit(transitions)
	}()

	switch g.state {
	case StateClosed:
		return false, nil
	case StateOpen:
		elapsed := g.now().Sub(g.lastFailure)
		if elapsed >= g.config.RecoveryTimeout {
			transitions = append(transitions, g.setState(StateHalfOpen))
			g.trialing = true
			g.logf("[gate] %s half-open: admitting trial after %s", g.id, elapsed.Round(time.Millisecond))
			return true, nil
		}
		return false, &OpenError{ResponderID: g.id, RetryIn: g.config.RecoveryTimeout - elapsed}
	case StateHalfOpen:
		if !g.trialing {
			g.trialing = true
			return true, nil
		}
		return false, &OpenError{ResponderID: g.id}
	default:
		return false, fmt.Errorf("unknown gate state %d for %s", g.state, g.id)
	}
}

func (g *FailureGate) record(err error, trial bool) {
	g.mu.Lock()
	var transitions []Transition
	defer func() {
		g.mu.Unlock()
		g.emit(transitions)
	}()

	switch g.state {
	case StateClosed:
		if err == nil {
			g.consecutiveFailures = 0
			return
		}
		g.consecutiveFailures++
		g.lastFailure = g.now()
		if g.consecutiveFailures >= g.config.FailureThreshold {
			transitions = append(transitions, g.setState(StateOpen))
			g.logf("[gate] %s opened after %d consecutive failures: %v", g.id, g.consecutiveFailures, err)
		}
	case StateHalfOpen:
		// Results of calls admitted before the gate opened do not decide the trial.
		if !trial {
			return
		}
		g.trialing = false
		if err == nil {
			g.consecutiveFailures = 0
			transitions = append(transitions, g.setState(StateClosed))
			g.logf("[gate] %s closed: trial succeeded", g.id)
			return
		}
		g.lastFailure = g.now()
		transitions = append(transitions, g.setState(StateOpen))
		g.logf("[gate] %s reopened: trial failed: %v", g.id, err)
	case StateOpen:
		if err != nil {
			g.consecutiveFailures++
			g.lastFailure = g.now()
		}
	}
}

// release frees an admitted call without recording an outcome. A released
// half-open trial lets the next call try again.
func (g *FailureGate) release(trial bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if trial && g.state == StateHalfOpen {
		g.trialing = false
	}
}

// setState must be called with g.mu held.
func (g *FailureGate) setState(to State) Transition {
	g.seq++
	t := Transition{ResponderID: g.id, From: g.state, To: to, At: g.now(), Seq: g.seq}
	g.state = to
	return t
}

func (g *FailureGate) emit(transitions []Transition) {
	if g.onTransition == nil {
		return
	}
	for _, t := range transitions {
		g.onTransition(t)
	}
}

// Reset returns the gate to closed and zeroes the failure counter.
func (g *FailureGate) Reset() {
	g.mu.Lock()
	var transitions []Transition
	if g.state != StateClosed {
		transitions = append(transitions, g.setState(StateClosed))
	}
	g.consecutiveFailures = 0
	g.lastFailure = time.Time{}
	g.trialing = false
	g.mu.Unlock()

	g.emit(transitions)
	g.logf("[gate] %s manually reset", g.id)
}

// State returns the current state.
func (g *FailureGate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Snapshot returns a copy of the gate's state.
func (g *FailureGate) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Snapshot{
		ResponderID:         g.id,
		State:               g.state,
		ConsecutiveFailures: g.consecutiveFailures,
		LastFailure:         g.lastFailure,
	}
}
