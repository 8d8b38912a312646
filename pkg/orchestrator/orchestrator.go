package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/zen-systems/finroute/pkg/answer"
	"github.com/zen-systems/finroute/pkg/fallback"
	"github.com/zen-systems/finroute/pkg/gate"
	"github.com/zen-systems/finroute/pkg/health"
	"github.com/zen-systems/finroute/pkg/responder"
	"github.com/zen-systems/finroute/pkg/router"
)

// Orchestrator routes queries to responders behind per-responder failure gates,
// falling back to an alternate responder or a canned answer. It never returns
// an error to its caller; degraded outcomes are described on the Result.
type Orchestrator struct {
	router      *router.Router
	gates       *gate.Registry
	responders  responder.Responder
	synthesizer responder.Synthesizer
	fallback    *fallback.Policy
	canned      *fallback.CannedRegistry

	observers health.Observers
	monitor   *health.Monitor
	metrics   *health.Metrics

	synthesizerID string
	language      string
	maxParallel   int
	collabTimeout time.Duration

	now  func() time.Time
	logf func(format string, args ...any)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSynthesizer sets the merge capability and the default synthesizer responder id.
func WithSynthesizer(s responder.Synthesizer, defaultID string) Option {
	return func(o *Orchestrator) {
		o.synthesizer = s
		o.synthesizerID = defaultID
	}
}

// WithCanned replaces the canned-response registry.
func WithCanned(c *fallback.CannedRegistry) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.canned = c
		}
	}
}

// WithFallbackPolicy replaces the fallback policy.
func WithFallbackPolicy(p *fallback.Policy) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.fallback = p
		}
	}
}

// WithMonitor records invocations into m and uses it for status reports.
func WithMonitor(m *health.Monitor) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.monitor = m
			o.observers = append(o.observers, m)
		}
	}
}

// WithObserver adds an invocation observer, such as the history store.
func WithObserver(obs health.Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// WithMetrics records Prometheus metrics.
func WithMetrics(m *health.Metrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
			o.observers = append(o.observers, m)
		}
	}
}

// WithLanguage sets the default answer language.
func WithLanguage(lang string) Option {
	return func(o *Orchestrator) {
		o.language = responder.NormalizeLanguage(lang, responder.LanguageFrench)
	}
}

// WithMaxParallel bounds concurrent responder calls during collaboration.
func WithMaxParallel(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxParallel = n
		}
	}
}

// WithCollaborationTimeout bounds a whole collaboration fan-out.
func WithCollaborationTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.collabTimeout = d
		}
	}
}

// WithClock overrides the clock used to time invocations.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets a logger for orchestration events.
func WithLogger(logf func(format string, args ...any)) Option {
	return func(o *Orchestrator) {
		if logf != nil {
			o.logf = logf
		}
	}
}

// New creates an orchestrator. responders performs the actual calls; rt
// classifies and selects over its registry; gates isolate failing responders.
func New(rt *router.Router, gates *gate.Registry, responders responder.Responder, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		router:        rt,
		gates:         gates,
		responders:    responders,
		fallback:      fallback.NewPolicy(rt.Selector()),
		canned:        fallback.NewCannedRegistry(responder.LanguageFrench),
		language:      responder.LanguageFrench,
		maxParallel:   4,
		collabTimeout: 2 * time.Minute,
		now:           time.Now,
		logf:          log.Printf,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ProcessOptions carries per-request overrides.
type ProcessOptions struct {
	Jurisdiction string
	Language     string
	Model        string
}

// Process answers query with the best available responder.
func (o *Orchestrator) Process(ctx context.Context, query string, opts ProcessOptions) *Result {
	start := o.now()
	res := &Result{
		RequestID: uuid.NewString(),
		Mode:      ModeRouted,
		Language:  responder.NormalizeLanguage(opts.Language, o.language),
	}
	defer func() { res.Duration = o.now().Sub(start) }()

	decision := o.router.Route(query, opts.Jurisdiction)
	res.IntentAnalysis = decision.Analysis
	res.Jurisdiction = decision.Jurisdiction
	res.Scores = decision.Selection.Scores

	chosen := decision.Selection.Chosen
	if chosen == nil {
		o.logf("[orchestrator] %s: no active responder", res.RequestID)
		return o.degrade(res, fallback.KeyNoResponders, ErrNoResponderAvailable)
	}

	q := responder.Query{
		Text:         query,
		Jurisdiction: decision.Jurisdiction,
		Language:     res.Language,
		Model:        opts.Model,
	}
	res.RespondersInvolved = append(res.RespondersInvolved, chosen.ID)
	ans, err := o.invoke(ctx, res.RequestID, *chosen, q)
	if err == nil {
		res.Answer = ans
		res.SelectedResponderID = chosen.ID
		return res
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		o.logf("[orchestrator] %s: caller gave up: %v", res.RequestID, ctxErr)
		if !errors.Is(err, ctxErr) {
			res.Failures = append(res.Failures, failureOf(chosen.ID, err))
		}
		return o.degradeWith(res, unavailableKey(*chosen), ReasonCanceled, ctxErr)
	}
	o.logf("[orchestrator] %s: %s failed: %v", res.RequestID, chosen.ID, err)
	res.Failures = append(res.Failures, failureOf(chosen.ID, err))

	alt := o.fallback.ChooseFallback(chosen.ID, decision.Analysis.SuggestedResponders, o.router.Registry())
	if alt == nil {
		return o.degrade(res, unavailableKey(*chosen), err)
	}

	o.logf("[orchestrator] %s: falling back from %s to %s", res.RequestID, chosen.ID, alt.ID)
	o.metrics.IncFallback(chosen.ID, alt.ID)
	res.UsedFallback = true
	res.OriginalResponderID = chosen.ID
	res.RespondersInvolved = append(res.RespondersInvolved, alt.ID)

	ans, altErr := o.invoke(ctx, res.RequestID, *alt, q)
	if altErr == nil {
		res.Answer = ans
		res.SelectedResponderID = alt.ID
		res.FailureReason = ReasonFor(err)
		res.FailureDetail = err.Error()
		return res
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		o.logf("[orchestrator] %s: caller gave up during fallback: %v", res.RequestID, ctxErr)
		if !errors.Is(altErr, ctxErr) {
			res.Failures = append(res.Failures, failureOf(alt.ID, altErr))
		}
		return o.degradeWith(res, unavailableKey(*chosen), ReasonCanceled, ctxErr)
	}
	o.logf("[orchestrator] %s: fallback %s failed: %v", res.RequestID, alt.ID, altErr)
	res.Failures = append(res.Failures, failureOf(alt.ID, altErr))
	return o.degrade(res, unavailableKey(*chosen), altErr)
}

// unavailableKey picks the canned answer for a failed primary responder.
func unavailableKey(primary responder.Descriptor) string {
	if primary.Remote() {
		return fallback.KeyRemoteUnreachable
	}
	return fallback.KeyServiceUnavailable
}

// invoke asks d to answer q through d's gate.
func (o *Orchestrator) invoke(ctx context.Context, requestID string, d responder.Descriptor, q responder.Query) (*answer.Answer, error) {
	return o.call(ctx, requestID, d.ID, func(ctx context.Context) (*answer.Answer, error) {
		return o.responders.Invoke(ctx, d, q)
	})
}

// call runs fn through the gate of id and reports the outcome to observers.
// Calls rejected by an open gate never reached the responder and are not
// observed. Neither are calls cut short by the caller's ctx. A panic in fn is
// returned as a *PanicError.
func (o *Orchestrator) call(ctx context.Context, requestID, id string, fn func(ctx context.Context) (*answer.Answer, error)) (*answer.Answer, error) {
	start := o.now()
	ans, err := gate.Execute(ctx, o.gates.Get(id), func(ctx context.Context) (a *answer.Answer, err error) {
		defer func() {
			if r := recover(); r != nil {
				o.logf("[orchestrator] %s panicked: %v\n%s", id, r, debug.Stack())
				a, err = nil, &PanicError{Value: r}
			}
		}()
		a, err = fn(ctx)
		if err != nil {
			return nil, err
		}
		if err := a.Validate(); err != nil {
			return nil, err
		}
		return a, nil
	})
	if errors.Is(err, gate.ErrOpen) {
		o.metrics.ObserveRejected(id)
		return nil, err
	}
	if ctxErr := ctx.Err(); err != nil && ctxErr != nil && errors.Is(err, ctxErr) {
		return nil, err
	}

	inv := health.Invocation{
		ResponderID: id,
		RequestID:   requestID,
		Success:     err == nil,
		Duration:    o.now().Sub(start),
		At:          start,
	}
	if err != nil {
		inv.Error = err.Error()
	}
	o.observers.ObserveInvocation(inv)

	if err != nil {
		return nil, &InvocationError{ResponderID: id, Err: err}
	}
	return ans, nil
}

// degrade fills res with a canned answer for key and the reason derived from cause.
func (o *Orchestrator) degrade(res *Result, key string, cause error) *Result {
	return o.degradeWith(res, key, ReasonFor(cause), cause)
}

func (o *Orchestrator) degradeWith(res *Result, key string, reason FailureReason, cause error) *Result {
	res.Answer = o.canned.Answer(key, res.Language)
	res.SelectedResponderID = ""
	res.FailureReason = reason
	if cause != nil {
		res.FailureDetail = cause.Error()
	}
	o.metrics.IncCanned(string(reason))
	return res
}

func failureOf(id string, err error) Failure {
	return Failure{ResponderID: id, Reason: ReasonFor(err), Error: err.Error()}
}

// Router returns the router used for classification and selection.
func (o *Orchestrator) Router() *router.Router {
	return o.router
}

// Reload re-reads the responder registry from its provider.
func (o *Orchestrator) Reload(ctx context.Context) error {
	if err := o.router.Registry().Reload(ctx); err != nil {
		return fmt.Errorf("reload responders: %w", err)
	}
	o.logf("[orchestrator] reloaded %d responders", o.router.Registry().Len())
	return nil
}

// ResetGate closes the gate of id. It reports whether the gate existed.
func (o *Orchestrator) ResetGate(id string) bool {
	return o.gates.Reset(id)
}

// ResetAllGates closes every gate.
func (o *Orchestrator) ResetAllGates() {
	o.gates.ResetAll()
	o.logf("[orchestrator] reset all gates")
}

// ResetHealth clears recorded health for id, or for every responder when id is
// empty. It reports whether anything was cleared.
func (o *Orchestrator) ResetHealth(id string) bool {
	if o.monitor == nil {
		return false
	}
	if id == "" {
		o.monitor.ResetAll()
		return true
	}
	_, ok := o.monitor.Stats(id)
	o.monitor.Reset(id)
	return ok
}

// Gates returns a snapshot of every gate created so far.
func (o *Orchestrator) Gates() []gate.Snapshot {
	return o.gates.Snapshots()
}
