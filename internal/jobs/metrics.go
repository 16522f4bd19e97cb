package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs              *prometheus.CounterVec
	failures          *prometheus.CounterVec
	duration          *prometheus.HistogramVec
	integrityFailures prometheus.Counter
	activeGrants      prometheus.Gauge
	lapsedGrants      prometheus.Gauge
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddIntegrityFailures counts cycles found in the stored role hierarchy.
func (m *Metrics) AddIntegrityFailures(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.integrityFailures.Add(float64(count))
}

// SetActiveGrants records how many temporary privileges are currently
// effective.
func (m *Metrics) SetActiveGrants(n int64) {
	if m == nil {
		return
	}
	m.activeGrants.Set(float64(n))
}

// SetLapsedUnrevoked records grants past their window that still await an
// explicit revocation.
func (m *Metrics) SetLapsedUnrevoked(n int64) {
	if m == nil {
		return
	}
	m.lapsedGrants.Set(float64(n))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meridian_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	integrityFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_hierarchy_integrity_failures_total",
		Help: "Cycles detected in the stored role hierarchy.",
	})
	activeGrants := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meridian_privileges_active_grants",
		Help: "Temporary privileges currently inside their validity window.",
	})
	lapsedGrants := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meridian_privileges_lapsed_unrevoked",
		Help: "Temporary privileges past their window that were never revoked.",
	})
	registerer.MustRegister(runs, failures, duration, integrityFailures, activeGrants, lapsedGrants)
	return &Metrics{
		runs:              runs,
		failures:          failures,
		duration:          duration,
		integrityFailures: integrityFailures,
		activeGrants:      activeGrants,
		lapsedGrants:      lapsedGrants,
	}
}
