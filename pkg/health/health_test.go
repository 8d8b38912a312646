package health

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/finroute/pkg/gate"
)

func TestSnapshotAbsentUntilFirstInvocation(t *testing.T) {
	m := NewMonitor()
	_, ok := m.Snapshot("TaxAgent")
	assert.False(t, ok)

	m.ObserveInvocation(Invocation{ResponderID: "TaxAgent", Success: true, Duration: 2 * time.Second})
	snap, ok := m.Snapshot("TaxAgent")
	require.True(t, ok)
	assert.Equal(t, 100.0, snap.SuccessRatePercent)
	assert.InDelta(t, 2.0, snap.AvgResponseTimeSeconds, 1e-9)
}

func TestSnapshotAveragesSuccessfulCallsOnly(t *testing.T) {
	m := NewMonitor()
	m.ObserveInvocation(Invocation{ResponderID: "A", Success: true, Duration: 1 * time.Second})
	m.ObserveInvocation(Invocation{ResponderID: "A", Success: true, Duration: 3 * time.Second})
	m.ObserveInvocation(Invocation{ResponderID: "A", Success: false, Duration: 90 * time.Second, Error: "timeout"})
	m.ObserveInvocation(Invocation{ResponderID: "A", Success: false, Error: "quota"})

	snap, ok := m.Snapshot("A")
	require.True(t, ok)
	assert.Equal(t, 50.0, snap.SuccessRatePercent)
	assert.InDelta(t, 2.0, snap.AvgResponseTimeSeconds, 1e-9)

	stats, ok := m.Stats("A")
	require.True(t, ok)
	assert.Equal(t, 4, stats.RequestCount)
	assert.Equal(t, 2, stats.ErrorCount)
	assert.Equal(t, time.Second, stats.MinResponse)
	assert.Equal(t, 3*time.Second, stats.MaxResponse)
	assert.Len(t, stats.RecentErrors, 2)
}

func TestAllFailuresHaveZeroLatency(t *testing.T) {
	m := NewMonitor()
	m.ObserveInvocation(Invocation{ResponderID: "A", Success: false, Duration: time.Minute})

	snap, ok := m.Snapshot("A")
	require.True(t, ok)
	assert.Zero(t, snap.SuccessRatePercent)
	assert.Zero(t, snap.AvgResponseTimeSeconds)
}

func TestRecentErrorsAreBounded(t *testing.T) {
	m := NewMonitor()
	for i := 0; i < 15; i++ {
		m.ObserveInvocation(Invocation{ResponderID: "A", Error: fmt.Sprintf("err-%d", i)})
	}
	stats, _ := m.Stats("A")
	require.Len(t, stats.RecentErrors, 10)
	assert.Equal(t, "err-5", stats.RecentErrors[0].Error)
	assert.Equal(t, "err-14", stats.RecentErrors[9].Error)
}

func TestSystemStatusLevels(t *testing.T) {
	m := NewMonitor()
	assert.Equal(t, StatusHealthy, m.System().Status)

	for i := 0; i < 8; i++ {
		m.ObserveInvocation(Invocation{ResponderID: "A", Success: true})
	}
	m.ObserveInvocation(Invocation{ResponderID: "B", Success: false})
	m.ObserveInvocation(Invocation{ResponderID: "B", Success: false})
	sys := m.System()
	assert.Equal(t, 10, sys.TotalRequests)
	assert.Equal(t, 2, sys.RespondersSeen)
	assert.Equal(t, StatusDegraded, sys.Status)

	m.ObserveInvocation(Invocation{ResponderID: "B", Success: false})
	assert.Equal(t, StatusUnhealthy, m.System().Status)
}

func TestReset(t *testing.T) {
	m := NewMonitor()
	m.ObserveInvocation(Invocation{ResponderID: "A", Success: true})
	m.ObserveInvocation(Invocation{ResponderID: "B", Success: true})

	m.Reset("A")
	_, ok := m.Snapshot("A")
	assert.False(t, ok)
	_, ok = m.Snapshot("B")
	assert.True(t, ok)

	m.ResetAll()
	assert.Empty(t, m.All())
}

func TestObserversFanOut(t *testing.T) {
	a, b := NewMonitor(), NewMonitor()
	Observers{a, nil, b}.ObserveInvocation(Invocation{ResponderID: "X", Success: true})

	_, okA := a.Snapshot("X")
	_, okB := b.Snapshot("X")
	assert.True(t, okA)
	assert.True(t, okB)
}

func TestMetricsCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := MustNewMetrics(reg)

	m.ObserveInvocation(Invocation{ResponderID: "TaxAgent", Success: true, Duration: time.Second})
	m.ObserveInvocation(Invocation{ResponderID: "TaxAgent", Success: false})
	m.ObserveRejected("TaxAgent")
	m.ObserveTransition(gate.Transition{ResponderID: "TaxAgent", From: gate.StateClosed, To: gate.StateOpen})
	m.IncFallback("TaxAgent", "AccountantAgent")
	m.IncCanned("no_responder_available")
	m.IncCollaboration("synthesized")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.invocations.WithLabelValues("TaxAgent", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.invocations.WithLabelValues("TaxAgent", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.invocations.WithLabelValues("TaxAgent", "rejected")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.gateState.WithLabelValues("TaxAgent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fallbacks.WithLabelValues("TaxAgent", "AccountantAgent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.canned.WithLabelValues("no_responder_available")))

	again := MustNewMetrics(reg)
	again.IncCanned("no_responder_available")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.canned.WithLabelValues("no_responder_available")),
		"second construction reuses the registered collectors")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveInvocation(Invocation{ResponderID: "A"})
	m.ObserveTransition(gate.Transition{ResponderID: "A"})
	m.IncCanned("x")
}

func TestStaleTransitionDoesNotOverwriteGauge(t *testing.T) {
	m := MustNewMetrics(prometheus.NewRegistry())

	m.ObserveTransition(gate.Transition{ResponderID: "TaxAgent", From: gate.StateClosed, To: gate.StateOpen, Seq: 1})
	m.ObserveTransition(gate.Transition{ResponderID: "TaxAgent", From: gate.StateHalfOpen, To: gate.StateClosed, Seq: 3})
	m.ObserveTransition(gate.Transition{ResponderID: "TaxAgent", From: gate.StateOpen, To: gate.StateHalfOpen, Seq: 2})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.gateState.WithLabelValues("TaxAgent")))

	m.ObserveTransition(gate.Transition{ResponderID: "AuditAgent", From: gate.StateClosed, To: gate.StateOpen, Seq: 1})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.gateState.WithLabelValues("AuditAgent")))
}
