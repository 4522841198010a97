package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Oshkosh1922/edens-gates/supabase/client"
)

func TestObserveVote(t *testing.T) {
	m := New()
	m.ObserveVote("recorded", 20*time.Millisecond)
	m.ObserveVote("recorded", 0)
	m.ObserveVote("transfer_failed", time.Second)

	if got := testutil.ToFloat64(m.votes.WithLabelValues("recorded")); got != 2 {
		t.Fatalf("recorded = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.votes.WithLabelValues("transfer_failed")); got != 1 {
		t.Fatalf("transfer_failed = %v, want 1", got)
	}
}

func TestBreakerAndReconcile(t *testing.T) {
	m := New()
	m.BreakerChanged(client.BreakerClosed, client.BreakerOpen)
	if got := testutil.ToFloat64(m.breakerState); got != 1 {
		t.Fatalf("breaker gauge = %v", got)
	}
	m.ObserveReconcile("recorded")
	if got := testutil.ToFloat64(m.reconciled.WithLabelValues("recorded")); got != 1 {
		t.Fatalf("reconciled = %v", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.RecordHTTPRequest("api", "GET", "/api/founders", "200", 5*time.Millisecond)
	m.SetAdapters(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`edens_gates_http_requests_total{method="GET",path="/api/founders",service="api",status="200"} 1`,
		`edens_gates_wallet_adapters 3`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
