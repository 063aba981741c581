// Package observability exposes Prometheus metrics for the receive path.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Rejection reasons recorded on the receive path.
const (
	ReasonSignature = "signature"
	ReasonParse     = "parse"
	ReasonLength    = "length"
	ReasonTooLarge  = "too_large"
	ReasonRead      = "read"
)

// Metrics holds the receiver's Prometheus collectors.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rejectedTotal   *prometheus.CounterVec
}

// New registers the receiver metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hooksink",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests processed.",
		}, []string{"method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hooksink",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Request processing latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
		rejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hooksink",
			Subsystem: "webhook",
			Name:      "rejected_total",
			Help:      "Deliveries rejected on the receive path, by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.requestsTotal, m.requestDuration, m.rejectedTotal)
	return m
}

// Rejected records a rejected delivery.
func (m *Metrics) Rejected(reason string) {
	m.rejectedTotal.WithLabelValues(reason).Inc()
}

// Wrap instruments an http.Handler with request count and latency metrics.
// Paths are not used as labels: the receiver accepts POSTs on any path, so
// a path label would be unbounded.
func (m *Metrics) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		status := strconv.Itoa(rw.status)
		m.requestsTotal.WithLabelValues(r.Method, status).Inc()
		m.requestDuration.WithLabelValues(r.Method, status).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush passes through so SSE streaming keeps working behind the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
