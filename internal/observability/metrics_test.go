package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestWrapCountsRequests(t *testing.T) {
	m := New(prometheus.NewRegistry())

	h := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("POST", "/webhook", nil))
	}

	got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("POST", "403"))
	if got != 3 {
		t.Errorf("requests_total = %v, want 3", got)
	}
}

func TestWrapDefaultsToOK(t *testing.T) {
	m := New(prometheus.NewRegistry())

	h := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Handler writes no explicit status.
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "200"))
	if got != 1 {
		t.Errorf("requests_total = %v, want 1", got)
	}
}

func TestRejectedByReason(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Rejected(ReasonSignature)
	m.Rejected(ReasonSignature)
	m.Rejected(ReasonParse)

	if got := testutil.ToFloat64(m.rejectedTotal.WithLabelValues(ReasonSignature)); got != 2 {
		t.Errorf("rejected_total{signature} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.rejectedTotal.WithLabelValues(ReasonParse)); got != 1 {
		t.Errorf("rejected_total{parse} = %v, want 1", got)
	}
}
