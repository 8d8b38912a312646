package health

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zen-systems/finroute/pkg/gate"
)

const namespace = "finroute"

// Metrics exposes Prometheus collectors for routing activity. A nil *Metrics is
// a valid no-op.
type Metrics struct {
	invocations    *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	gateState      *prometheus.GaugeVec
	fallbacks      *prometheus.CounterVec
	canned         *prometheus.CounterVec
	collaborations *prometheus.CounterVec

	gateMu  sync.Mutex
	gateSeq map[string]uint64
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// DefaultMetrics returns collectors registered with the global registry, created once.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs Metrics on reg. Collectors already registered under
// the same name are reused; any other registration error panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "responder",
			Name:      "invocations_total",
			Help:      "Responder invocations by outcome.",
		}, []string{"responder", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "responder",
			Name:      "invocation_duration_seconds",
			Help:      "Time spent in responder invocations.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"responder"}),
		gateState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "state",
			Help:      "Failure gate state per responder (0 closed, 1 half open, 2 open).",
		}, []string{"responder"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "fallbacks_total",
			Help:      "Fallbacks from a failed responder to an alternate.",
		}, []string{"from", "to"}),
		canned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "canned_responses_total",
			Help:      "Canned answers returned, by failure reason.",
		}, []string{"reason"}),
		collaborations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collaboration",
			Name:      "runs_total",
			Help:      "Collaboration runs by outcome.",
		}, []string{"outcome"}),
	}

	m.invocations = register(reg, m.invocations)
	m.duration = register(reg, m.duration)
	m.gateState = register(reg, m.gateState)
	m.fallbacks = register(reg, m.fallbacks)
	m.canned = register(reg, m.canned)
	m.collaborations = register(reg, m.collaborations)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObserveInvocation counts the call and records its latency.
func (m *Metrics) ObserveInvocation(inv Invocation) {
	if m == nil {
		return
	}
	outcome := "success"
	if !inv.Success {
		outcome = "failure"
	}
	m.invocations.WithLabelValues(inv.ResponderID, outcome).Inc()
	m.duration.WithLabelValues(inv.ResponderID).Observe(inv.Duration.Seconds())
}

// ObserveTransition updates the gate state gauge. Register it with gate.WithTransitionHook.
// A transition older than the last one applied for the same responder is ignored.
func (m *Metrics) ObserveTransition(t gate.Transition) {
	if m == nil {
		return
	}
	m.gateMu.Lock()
	defer m.gateMu.Unlock()
	if t.Seq != 0 {
		if last, ok := m.gateSeq[t.ResponderID]; ok && t.Seq <= last {
			return
		}
		if m.gateSeq == nil {
			m.gateSeq = make(map[string]uint64)
		}
		m.gateSeq[t.ResponderID] = t.Seq
	}
	m.gateState.WithLabelValues(t.ResponderID).Set(gateValue(t.To))
}

// ObserveRejected counts a call refused by an open gate.
func (m *Metrics) ObserveRejected(responderID string) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(responderID, "rejected").Inc()
}

// IncFallback counts a fallback between two responders.
func (m *Metrics) IncFallback(from, to string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(from, to).Inc()
}

// IncCanned counts a canned answer for the given failure reason.
func (m *Metrics) IncCanned(reason string) {
	if m == nil {
		return
	}
	m.canned.WithLabelValues(reason).Inc()
}

// IncCollaboration counts a collaboration run by outcome.
func (m *Metrics) IncCollaboration(outcome string) {
	if m == nil {
		return
	}
	m.collaborations.WithLabelValues(outcome).Inc()
}

func gateValue(s gate.State) float64 {
	switch s {
	case gate.StateOpen:
		return 2
	case gate.StateHalfOpen:
		return 1
	default:
		return 0
	}
}
