package hierarchy

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes Prometheus collectors for hierarchy operations.
type Metrics struct {
	cycleRejections   prometheus.Counter
	integrityFailures prometheus.Counter
}

// NewMetrics registers hierarchy collectors against the provided registerer.
// A nil registerer falls back to the Prometheus default.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	cycleRejections := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_hierarchy_cycle_rejections_total",
		Help: "Edge insertions rejected because they would close a cycle.",
	})
	integrityFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_hierarchy_integrity_failures_total",
		Help: "Cycles met while resolving permissions from the stored graph.",
	})
	registerer.MustRegister(cycleRejections, integrityFailures)
	return &Metrics{cycleRejections: cycleRejections, integrityFailures: integrityFailures}
}

// CycleRejected counts one edge insertion refused by the cycle check.
func (m *Metrics) CycleRejected() {
	if m == nil {
		return
	}
	m.cycleRejections.Inc()
}

// IntegrityFailure counts one cycle met during resolution.
func (m *Metrics) IntegrityFailure() {
	if m == nil {
		return
	}
	m.integrityFailures.Inc()
}
