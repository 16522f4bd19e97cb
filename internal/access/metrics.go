package access

import "github.com/prometheus/client_golang/prometheus"

const (
	decisionAllow = "allow"
	decisionDeny  = "deny"
	decisionError = "error"
)

// Metrics tracks evaluator decisions and resolver cache effectiveness.
type Metrics struct {
	checks      *prometheus.CounterVec
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
}

// NewMetrics registers the access collectors on the given registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meridian_access_checks_total",
			Help: "Permission checks evaluated, labelled by decision.",
		}, []string{"decision"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meridian_authz_cache_hits_total",
			Help: "Permission resolutions served from the Redis cache.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meridian_authz_cache_misses_total",
			Help: "Permission resolutions that fell through to the resolver.",
		}),
	}
	registerer.MustRegister(m.checks, m.cacheHits, m.cacheMisses)
	return m
}

// Check counts one evaluator decision.
func (m *Metrics) Check(decision string) {
	if m == nil {
		return
	}
	m.checks.WithLabelValues(decision).Inc()
}

// CacheHit counts one resolution served from cache.
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

// CacheMiss counts one resolution recomputed by the inner resolver.
func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}
