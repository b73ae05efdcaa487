package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric returns the first sample of family name whose labels include
// every pair in labels.
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			got := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue next
				}
			}
			return m
		}
	}
	return nil
}

func Test_Metrics_EndpointServesRegistry(t *testing.T) {
	t.Parallel()
	e := newTestServer(t)
	e.do(t, http.MethodGet, "/health", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
	if !strings.Contains(w.Body.String(), "agentrag_http_requests_total") {
		t.Error("expected agentrag_http_requests_total in exposition")
	}
}

func Test_Metrics_HTTPRequestsByRouteAndCode(t *testing.T) {
	t.Parallel()
	e := newTestServer(t)

	e.do(t, http.MethodGet, "/api/v1/jobs/missing", nil)
	e.do(t, http.MethodGet, "/api/v1/jobs/missing", nil)

	m := findMetric(t, e.reg, "agentrag_http_requests_total", map[string]string{
		"method":  http.MethodGet,
		"handler": "jobs_get",
		"code":    "404",
	})
	if m == nil {
		t.Fatal("agentrag_http_requests_total{handler=\"jobs_get\",code=\"404\"} not found")
	}
	if v := m.GetCounter().GetValue(); v != 2 {
		t.Errorf("want counter=2, got %v", v)
	}
}

func Test_Metrics_ExecutionOutcomes(t *testing.T) {
	t.Parallel()
	e := newTestServer(t)
	a := e.createAgent(t, map[string]any{"name": "helper", "system_instruction": "Be brief."})

	e.do(t, http.MethodPost, "/api/v1/agents/execute", map[string]any{"agent_id": a.ID, "query": "hi"})
	e.do(t, http.MethodPost, "/api/v1/agents/execute", map[string]any{"agent_id": "ghost", "query": "hi"})
	e.do(t, http.MethodPost, "/api/v1/agents/execute/stream", map[string]any{"agent_id": a.ID, "query": "hi"})

	for _, tc := range []struct {
		mode, outcome string
	}{
		{modeOneShot, "ok"},
		{modeOneShot, "error"},
		{modeStream, "ok"},
	} {
		m := findMetric(t, e.reg, "agentrag_agent_executions_total", map[string]string{"mode": tc.mode, "outcome": tc.outcome})
		if m == nil || m.GetCounter().GetValue() != 1 {
			t.Errorf("executions_total{mode=%q,outcome=%q}: want 1, got %v", tc.mode, tc.outcome, m)
		}
	}
}

func Test_Metrics_ActiveStreamsReturnsToZero(t *testing.T) {
	t.Parallel()
	e := newTestServer(t)

	e.do(t, http.MethodGet, "/api/v1/jobs/missing/stream", nil)

	m := findMetric(t, e.reg, "agentrag_sse_active_streams", map[string]string{"kind": streamJob})
	if m == nil {
		t.Fatal("agentrag_sse_active_streams{kind=\"job\"} not found")
	}
	if v := m.GetGauge().GetValue(); v != 0 {
		t.Errorf("want gauge=0 after the stream closed, got %v", v)
	}
}
