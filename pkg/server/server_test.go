package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/finroute/pkg/adapter"
	"github.com/zen-systems/finroute/pkg/config"
	"github.com/zen-systems/finroute/pkg/gate"
	"github.com/zen-systems/finroute/pkg/health"
	"github.com/zen-systems/finroute/pkg/orchestrator"
	"github.com/zen-systems/finroute/pkg/responder"
	"github.com/zen-systems/finroute/pkg/router"
	"github.com/zen-systems/finroute/pkg/store"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestServer(t *testing.T) (*Server, *adapter.MockAdapter) {
	t.Helper()
	cfg := config.DefaultOrchestrationConfig()
	return buildServer(t, cfg, responder.StaticProvider(cfg.Descriptors()))
}

// newStoreServer backs the registry with a SQLite store seeded from the defaults.
func newStoreServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	cfg := config.DefaultOrchestrationConfig()
	st, err := store.NewStore(filepath.Join(t.TempDir(), "finroute.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.ImportResponders(context.Background(), cfg.Descriptors()))

	s, _ := buildServer(t, cfg, st, WithStore(st))
	return s, st
}

func buildServer(t *testing.T, cfg *config.OrchestrationConfig, provider responder.Provider, opts ...Option) (*Server, *adapter.MockAdapter) {
	t.Helper()
	mock := adapter.NewMockAdapterWithResponses(map[string]string{
		"Synthesize": "merged answer",
	}, "mock response:")

	promReg := prometheus.NewRegistry()
	metrics := health.MustNewMetrics(promReg)
	monitor := health.NewMonitor()
	quiet := func(string, ...any) {}
	gates := gate.NewRegistry(cfg.GateSettings(), gate.WithLogger(quiet), gate.WithTransitionHook(metrics.ObserveTransition))
	dispatcher := responder.NewDispatcher(map[string]adapter.Adapter{"mock": mock})
	reg, err := responder.NewRegistryFromProvider(context.Background(), provider)
	require.NoError(t, err)

	orch := orchestrator.New(router.NewRouter(cfg, reg, monitor), gates, dispatcher,
		orchestrator.WithSynthesizer(dispatcher, cfg.Synthesizer),
		orchestrator.WithMonitor(monitor),
		orchestrator.WithMetrics(metrics),
		orchestrator.WithLogger(quiet),
	)
	return New(orch, append([]Option{WithGatherer(promReg)}, opts...)...), mock
}

func do(t *testing.T, s *Server, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	rec, env := do(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
}

func TestQueryRoutesToTaxResponder(t *testing.T) {
	s, mock := newTestServer(t)

	rec, env := do(t, s, http.MethodPost, "/v1/query", QueryRequest{
		Query:        "What is my TPS filing deadline?",
		Jurisdiction: "CA-QC",
		Language:     "en",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)

	var res orchestrator.Result
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "TaxAgent", res.SelectedResponderID)
	assert.Equal(t, "CA-QC", res.Jurisdiction)
	require.NotNil(t, res.Answer)
	assert.Contains(t, res.Answer.Text, "[Jurisdiction: CA-QC]")

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].System, "Tax Expert")
}

func TestQueryDegradedIsStillOK(t *testing.T) {
	s, mock := newTestServer(t)
	boom := errors.New("quota exceeded")
	mock.FailNext(boom, boom)

	rec, env := do(t, s, http.MethodPost, "/v1/query", QueryRequest{Query: "TPS", Language: "en"})
	require.Equal(t, http.StatusOK, rec.Code)

	var res orchestrator.Result
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.True(t, res.UsedFallback)
	assert.Equal(t, orchestrator.ReasonInvocationError, res.FailureReason)
	require.NotNil(t, res.Answer)
	assert.True(t, res.Answer.Canned)
}

func TestQueryRejectsMissingQuery(t *testing.T) {
	s, _ := newTestServer(t)
	rec, env := do(t, s, http.MethodPost, "/v1/query", map[string]string{"language": "en"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "invalid request")
}

func TestCollaborate(t *testing.T) {
	s, _ := newTestServer(t)

	rec, env := do(t, s, http.MethodPost, "/v1/collaborate", CollaborateRequest{
		QueryRequest: QueryRequest{Query: "TPS audit", Language: "en"},
		Responders:   []string{"TaxAgent", "AuditAgent"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var res orchestrator.Result
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, orchestrator.ModeCollaboration, res.Mode)
	assert.Equal(t, "ReporterAgent", res.SelectedResponderID)
	assert.Equal(t, "merged answer", res.Answer.Text)
	require.Len(t, res.Contributions, 2)
	assert.Equal(t, "TaxAgent", res.Contributions[0].ResponderID)
}

func TestCollaborateRequiresResponders(t *testing.T) {
	s, _ := newTestServer(t)
	rec, _ := do(t, s, http.MethodPost, "/v1/collaborate", map[string]any{"query": "q"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClassify(t *testing.T) {
	s, mock := newTestServer(t)

	rec, env := do(t, s, http.MethodPost, "/v1/classify", QueryRequest{Query: "prévision budget et audit"})
	require.Equal(t, http.StatusOK, rec.Code)

	var decision router.Decision
	require.NoError(t, json.Unmarshal(env.Data, &decision))
	require.NotNil(t, decision.Analysis)
	assert.True(t, decision.Analysis.RequiresCollaboration)
	assert.Empty(t, mock.Calls(), "classification never invokes a responder")
}

func TestRespondersAndReload(t *testing.T) {
	s, _ := newTestServer(t)

	rec, env := do(t, s, http.MethodGet, "/v1/responders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var descs []responder.Descriptor
	require.NoError(t, json.Unmarshal(env.Data, &descs))
	require.Len(t, descs, 6)
	assert.Equal(t, "AccountantAgent", descs[0].ID)

	rec, env = do(t, s, http.MethodPost, "/v1/responders/reload", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
}

func TestGatesAndReset(t *testing.T) {
	s, _ := newTestServer(t)

	rec, _ := do(t, s, http.MethodPost, "/v1/gates/TaxAgent/reset", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "no gate before first use")

	do(t, s, http.MethodPost, "/v1/query", QueryRequest{Query: "TPS"})

	rec, env := do(t, s, http.MethodGet, "/v1/gates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var gates []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &gates))
	require.Len(t, gates, 1)
	assert.Equal(t, "TaxAgent", gates[0]["responder_id"])
	assert.Equal(t, "closed", gates[0]["state"])

	rec, _ = do(t, s, http.MethodPost, "/v1/gates/TaxAgent/reset", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, http.MethodPost, "/v1/query", QueryRequest{Query: "TPS"})

	rec, env := do(t, s, http.MethodGet, "/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var rep map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &rep))
	assert.EqualValues(t, 6, rep["total"])
	assert.EqualValues(t, 6, rep["active"])
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, http.MethodPost, "/v1/query", QueryRequest{Query: "TPS"})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `finroute_responder_invocations_total{outcome="success",responder="TaxAgent"} 1`)
}

func TestResponderAdminNeedsStore(t *testing.T) {
	s, _ := newTestServer(t)

	rec, env := do(t, s, http.MethodPost, "/v1/responders/TaxAgent/active", map[string]bool{"active": false})
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Contains(t, env.Error, "db_path")
}

func TestResponderAdminLifecycle(t *testing.T) {
	s, st := newStoreServer(t)
	reg := s.orch.Router().Registry()

	rec, env := do(t, s, http.MethodPost, "/v1/responders", map[string]any{
		"id":            "PayrollAgent",
		"name":          "Payroll",
		"kind":          "accounting",
		"priority":      6,
		"jurisdictions": []string{"CA-ON"},
	})
	require.Equal(t, http.StatusOK, rec.Code, env.Error)
	d, found := reg.Get("PayrollAgent")
	require.True(t, found, "registry reloads after upsert")
	assert.Equal(t, 6, d.StaticPriority)
	assert.True(t, d.Active)

	rec, _ = do(t, s, http.MethodPut, "/v1/responders/PayrollAgent", map[string]any{"kind": "accounting", "priority": 2})
	require.Equal(t, http.StatusOK, rec.Code)
	d, _ = reg.Get("PayrollAgent")
	assert.Equal(t, 2, d.StaticPriority)

	rec, _ = do(t, s, http.MethodPut, "/v1/responders/PayrollAgent", map[string]any{"id": "Other", "kind": "tax"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, s, http.MethodPost, "/v1/responders", map[string]any{"id": "Bad", "kind": "astrology"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, s, http.MethodPost, "/v1/responders/TaxAgent/active", map[string]bool{"active": false})
	require.Equal(t, http.StatusOK, rec.Code)
	d, _ = reg.Get("TaxAgent")
	assert.False(t, d.Active)

	rec, _ = do(t, s, http.MethodPost, "/v1/responders/TaxAgent/active", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, s, http.MethodDelete, "/v1/responders/PayrollAgent", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	_, found = reg.Get("PayrollAgent")
	assert.False(t, found)

	rec, _ = do(t, s, http.MethodDelete, "/v1/responders/PayrollAgent", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	stored, err := st.ListResponders(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 6)
}

func TestResetAllGatesRoute(t *testing.T) {
	s, mock := newTestServer(t)
	boom := errors.New("quota exceeded")
	for i := 0; i < 5; i++ {
		mock.FailNext(boom, boom)
		do(t, s, http.MethodPost, "/v1/query", QueryRequest{Query: "TPS"})
	}
	snaps := s.orch.Gates()
	require.NotEmpty(t, snaps)
	assert.Equal(t, gate.StateOpen, snaps[len(snaps)-1].State)

	rec, _ := do(t, s, http.MethodPost, "/v1/gates/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	for _, snap := range s.orch.Gates() {
		assert.Equal(t, gate.StateClosed, snap.State, snap.ResponderID)
	}
}

func TestResetHealthRoute(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, http.MethodPost, "/v1/query", QueryRequest{Query: "TPS"})

	rec, _ := do(t, s, http.MethodPost, "/v1/metrics/reset?id=Ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, s, http.MethodPost, "/v1/metrics/reset?id=TaxAgent", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rep := s.orch.Status()
	for _, r := range rep.Responders {
		assert.Nil(t, r.Health, r.Descriptor.ID)
	}

	rec, _ = do(t, s, http.MethodPost, "/v1/metrics/reset", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
