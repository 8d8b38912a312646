package health

import (
	"sort"
	"sync"
	"time"
)

const maxRecentErrors = 10

// Invocation is one completed responder call.
type Invocation struct {
	ResponderID string        `json:"responder_id"`
	RequestID   string        `json:"request_id,omitempty"`
	Success     bool          `json:"success"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
	At          time.Time     `json:"at"`
}

// Observer receives completed invocations.
type Observer interface {
	ObserveInvocation(inv Invocation)
}

// Observers fans an invocation out to several observers.
type Observers []Observer

// ObserveInvocation forwards inv to each non-nil observer.
func (o Observers) ObserveInvocation(inv Invocation) {
	for _, obs := range o {
		if obs != nil {
			obs.ObserveInvocation(inv)
		}
	}
}

// Snapshot is the health summary consumed by responder selection.
type Snapshot struct {
	SuccessRatePercent     float64 `json:"success_rate_percent"`
	AvgResponseTimeSeconds float64 `json:"avg_response_time_seconds"`
}

// ErrorRecord is a recent failure kept for diagnostics.
type ErrorRecord struct {
	At    time.Time `json:"at"`
	Error string    `json:"error"`
}

// Stats is the detailed per-responder view.
type Stats struct {
	ResponderID  string        `json:"responder_id"`
	RequestCount int           `json:"request_count"`
	ErrorCount   int           `json:"error_count"`
	Snapshot     Snapshot      `json:"snapshot"`
	MinResponse  time.Duration `json:"min_response"`
	MaxResponse  time.Duration `json:"max_response"`
	LastRequest  time.Time     `json:"last_request"`
	RecentErrors []ErrorRecord `json:"recent_errors,omitempty"`
}

// Overall system status levels.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// SystemStats summarizes every responder.
type SystemStats struct {
	Status         string        `json:"status"`
	Uptime         time.Duration `json:"uptime"`
	TotalRequests  int           `json:"total_requests"`
	TotalErrors    int           `json:"total_errors"`
	ErrorRatePct   float64       `json:"error_rate_percent"`
	RespondersSeen int           `json:"responders_seen"`
}

type responderStats struct {
	requests     int
	errors       int
	totalSuccess time.Duration
	minSuccess   time.Duration
	maxSuccess   time.Duration
	lastRequest  time.Time
	recentErrors []ErrorRecord
}

// Monitor aggregates invocation outcomes per responder. It is safe for
// concurrent use.
type Monitor struct {
	mu      sync.RWMutex
	stats   map[string]*responderStats
	started time.Time
	now     func() time.Time
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		stats:   make(map[string]*responderStats),
		started: time.Now(),
		now:     time.Now,
	}
}

// ObserveInvocation records one call outcome.
func (m *Monitor) ObserveInvocation(inv Invocation) {
	if inv.ResponderID == "" {
		return
	}
	at := inv.At
	if at.IsZero() {
		at = m.now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.stats[inv.ResponderID]
	if !ok {
		s = &responderStats{}
		m.stats[inv.ResponderID] = s
	}
	s.requests++
	s.lastRequest = at
	if inv.Success {
		s.totalSuccess += inv.Duration
		if s.minSuccess == 0 || inv.Duration < s.minSuccess {
			s.minSuccess = inv.Duration
		}
		if inv.Duration > s.maxSuccess {
			s.maxSuccess = inv.Duration
		}
		return
	}
	s.errors++
	if inv.Error != "" {
		s.recentErrors = append(s.recentErrors, ErrorRecord{At: at, Error: inv.Error})
		if len(s.recentErrors) > maxRecentErrors {
			s.recentErrors = s.recentErrors[len(s.recentErrors)-maxRecentErrors:]
		}
	}
}

// Snapshot returns the health summary for id. The second value is false until
// the responder has been invoked at least once.
func (m *Monitor) Snapshot(id string) (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stats[id]
	if !ok || s.requests == 0 {
		return Snapshot{}, false
	}
	return s.snapshot(), true
}

// Stats returns the detailed view for id.
func (m *Monitor) Stats(id string) (Stats, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stats[id]
	if !ok {
		return Stats{}, false
	}
	return s.export(id), true
}

// All returns detailed stats for every observed responder, sorted by id.
func (m *Monitor) All() []Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Stats, 0, len(m.stats))
	for id, s := range m.stats {
		out = append(out, s.export(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResponderID < out[j].ResponderID })
	return out
}

// System returns the aggregate status: unhealthy above 20% errors, degraded above 10%.
func (m *Monitor) System() SystemStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := SystemStats{Uptime: m.now().Sub(m.started), RespondersSeen: len(m.stats)}
	for _, s := range m.stats {
		out.TotalRequests += s.requests
		out.TotalErrors += s.errors
	}
	if out.TotalRequests > 0 {
		out.ErrorRatePct = float64(out.TotalErrors) / float64(out.TotalRequests) * 100
	}
	switch {
	case out.ErrorRatePct > 20:
		out.Status = StatusUnhealthy
	case out.ErrorRatePct > 10:
		out.Status = StatusDegraded
	default:
		out.Status = StatusHealthy
	}
	return out
}

// Reset forgets everything recorded for id.
func (m *Monitor) Reset(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stats, id)
}

// ResetAll forgets every responder and restarts the uptime clock.
func (m *Monitor) ResetAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = make(map[string]*responderStats)
	m.started = m.now()
}

func (s *responderStats) snapshot() Snapshot {
	var snap Snapshot
	if s.requests > 0 {
		snap.SuccessRatePercent = float64(s.requests-s.errors) / float64(s.requests) * 100
	}
	if ok := s.requests - s.errors; ok > 0 {
		snap.AvgResponseTimeSeconds = (s.totalSuccess / time.Duration(ok)).Seconds()
	}
	return snap
}

func (s *responderStats) export(id string) Stats {
	return Stats{
		ResponderID:  id,
		RequestCount: s.requests,
		ErrorCount:   s.errors,
		Snapshot:     s.snapshot(),
		MinResponse:  s.minSuccess,
		MaxResponse:  s.maxSuccess,
		LastRequest:  s.lastRequest,
		RecentErrors: append([]ErrorRecord(nil), s.recentErrors...),
	}
}
