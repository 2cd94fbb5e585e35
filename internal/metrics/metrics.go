// Package metrics instruments the key management core with Prometheus
// collectors registered on an explicit registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "keyshare"

// Metrics groups every collector of the core.
type Metrics struct {
	Registry *prometheus.Registry

	KDFDuration       prometheus.Histogram
	KDFPending        prometheus.Gauge
	KDFWorkerRestarts prometheus.Counter
	KDFFailures       *prometheus.CounterVec
	AuthFailures      *prometheus.CounterVec
	FlowOutcomes      *prometheus.CounterVec
}

// New creates collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		KDFDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "kdf",
			Name:      "derivation_seconds",
			Help:      "Argon2id derivation wall time.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		KDFPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "kdf",
			Name:      "pending_requests",
			Help:      "Derivations submitted to the offload worker and not yet answered.",
		}),
		KDFWorkerRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "kdf",
			Name:      "worker_restarts_total",
			Help:      "Offload workers torn down after a channel failure.",
		}),
		KDFFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "kdf",
			Name:      "failures_total",
			Help:      "Failed derivations by reason.",
		}, []string{"reason"}),
		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aead",
			Name:      "authentication_failures_total",
			Help:      "AES-GCM open failures by share role.",
		}, []string{"share"}),
		FlowOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "outcomes_total",
			Help:      "Finished enrollment, recovery and unlock runs.",
		}, []string{"flow", "outcome"}),
	}
	m.Registry.MustRegister(
		m.KDFDuration,
		m.KDFPending,
		m.KDFWorkerRestarts,
		m.KDFFailures,
		m.AuthFailures,
		m.FlowOutcomes,
	)
	return m
}

// OrNew returns m, or a fresh unscraped set when m is nil.
func OrNew(m *Metrics) *Metrics {
	if m != nil {
		return m
	}
	return New()
}
