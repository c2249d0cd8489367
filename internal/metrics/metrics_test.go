package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecording(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, func() int { return 3 })

	m.Refresh("ok")
	m.CacheLookup(true)
	m.CacheLookup(false)
	m.CacheLookup(false)
	m.GateDecision(false)

	if got := testutil.ToFloat64(m.Refreshes.WithLabelValues("ok")); got != 1 {
		t.Errorf("Refreshes{ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")); got != 2 {
		t.Errorf("CacheLookups{miss} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.GateDecisions.WithLabelValues("deny")); got != 1 {
		t.Errorf("GateDecisions{deny} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CacheEntries); got != 3 {
		t.Errorf("CacheEntries = %v, want 3", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Refresh("ok")
	m.CacheLookup(true)
	m.IdentityFetch("error")
	m.GateDecision(true)
	m.PipelineFailure("store")
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New(NewRegistry(), nil)
	m.IdentityFetch("ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "dashboard_identity_fetches_total") {
		t.Error("identity fetch counter missing from exposition")
	}
}
