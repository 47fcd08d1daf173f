// Package metrics defines the gateway's Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	// Login metrics
	Logins        *prometheus.CounterVec
	LoginDuration prometheus.Histogram

	// Token cache lookups by source (memory, store, miss)
	TokenLookups *prometheus.CounterVec

	// Vendor API metrics
	VendorCalls   *prometheus.CounterVec
	VendorLatency *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		Logins: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chargegw_logins_total",
				Help: "Total number of vendor login attempts by result",
			},
			[]string{"result"},
		),
		LoginDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chargegw_login_duration_seconds",
				Help:    "Duration of vendor login attempts",
				Buckets: []float64{1, 2.5, 5, 10, 20, 30, 45, 60},
			},
		),
		TokenLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chargegw_token_lookups_total",
				Help: "Token lookups by where the token was found",
			},
			[]string{"source"},
		),
		VendorCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chargegw_vendor_calls_total",
				Help: "Total number of vendor API calls by operation and status code",
			},
			[]string{"operation", "status"},
		),
		VendorLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chargegw_vendor_call_duration_seconds",
				Help:    "Latency of vendor API calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// NewNop returns Metrics registered on a private registry, for callers that
// do not expose them.
func NewNop() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// RecordLogin records a finished login attempt. result is "success" or the
// authentication failure kind.
func (m *Metrics) RecordLogin(result string, duration time.Duration) {
	m.Logins.WithLabelValues(result).Inc()
	m.LoginDuration.Observe(duration.Seconds())
}

// RecordTokenLookup records where ValidToken found its token.
func (m *Metrics) RecordTokenLookup(source string) {
	m.TokenLookups.WithLabelValues(source).Inc()
}

// RecordVendorCall records a vendor API call. status is the HTTP status code
// as a string, or "error" when no response was received.
func (m *Metrics) RecordVendorCall(operation, status string, duration time.Duration) {
	m.VendorCalls.WithLabelValues(operation, status).Inc()
	m.VendorLatency.WithLabelValues(operation).Observe(duration.Seconds())
}
