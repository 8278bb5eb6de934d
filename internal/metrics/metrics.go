// Package metrics defines the Prometheus collectors exported by the data API.
//
// A nil *Metrics is valid and records nothing, so components accept one
// unconditionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pgdbapi"

// Metric names.
const (
	MetricCalls            = "calls_total"
	MetricCallDuration     = "call_duration_seconds"
	MetricRetries          = "retries_total"
	MetricFallbacks        = "fallbacks_total"
	MetricSchemaRefreshes  = "schema_refreshes_total"
	MetricSchemaVersion    = "schema_version"
	MetricPoolAcquireWait  = "pool_acquire_wait_seconds"
	MetricPoolExhaustions  = "pool_exhaustions_total"
	MetricPoolAcquiredConn = "pool_acquired_connections"
)

// Refresh outcomes used as the "result" label.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// UnresolvedOperation labels fallbacks the backend could not resolve, so
// arbitrary caller-supplied names do not create new series.
const UnresolvedOperation = "unresolved"

// Metrics bundles every collector. Construct with New.
type Metrics struct {
	Calls           *prometheus.CounterVec
	CallDuration    *prometheus.HistogramVec
	Retries         *prometheus.CounterVec
	Fallbacks       *prometheus.CounterVec
	SchemaRefreshes *prometheus.CounterVec
	SchemaVersion   prometheus.Gauge
	PoolAcquireWait prometheus.Histogram
	PoolExhaustions prometheus.Counter
	PoolAcquired    prometheus.Gauge
}

// New creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricCalls,
			Help:      "Wrapped data API calls by operation and outcome.",
		}, []string{"operation", "result"}),
		CallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      MetricCallDuration,
			Help:      "Wall time of wrapped calls including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricRetries,
			Help:      "Retries after transient errors by operation and error kind.",
		}, []string{"operation", "kind"}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricFallbacks,
			Help:      "Operations routed to the fallback backend.",
		}, []string{"operation"}),
		SchemaRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricSchemaRefreshes,
			Help:      "Schema refresh cycles by result.",
		}, []string{"result"}),
		SchemaVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      MetricSchemaVersion,
			Help:      "Version of the currently published schema snapshot.",
		}),
		PoolAcquireWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      MetricPoolAcquireWait,
			Help:      "Time spent waiting for a pooled connection.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		PoolExhaustions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricPoolExhaustions,
			Help:      "Acquisitions that timed out on a saturated pool.",
		}),
		PoolAcquired: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      MetricPoolAcquiredConn,
			Help:      "Connections currently leased.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Calls, m.CallDuration, m.Retries, m.Fallbacks,
			m.SchemaRefreshes, m.SchemaVersion,
			m.PoolAcquireWait, m.PoolExhaustions, m.PoolAcquired,
		)
	}
	return m
}

// ObserveCall records one completed wrapped call.
func (m *Metrics) ObserveCall(operation string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	m.Calls.WithLabelValues(operation, result).Inc()
	m.CallDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// IncRetry counts a retry of operation after an error of the given kind.
func (m *Metrics) IncRetry(operation, kind string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(operation, kind).Inc()
}

// IncFallback counts a fallback resolution. Callers pass UnresolvedOperation
// for names the backend lacks.
func (m *Metrics) IncFallback(operation string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(operation).Inc()
}

// ObserveSchemaRefresh records a refresh cycle and, on success, the new version.
func (m *Metrics) ObserveSchemaRefresh(version uint64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.SchemaRefreshes.WithLabelValues(ResultFailure).Inc()
		return
	}
	m.SchemaRefreshes.WithLabelValues(ResultSuccess).Inc()
	m.SchemaVersion.Set(float64(version))
}

// ObserveAcquire records how long a pool acquisition waited.
func (m *Metrics) ObserveAcquire(wait time.Duration, exhausted bool) {
	if m == nil {
		return
	}
	m.PoolAcquireWait.Observe(wait.Seconds())
	if exhausted {
		m.PoolExhaustions.Inc()
	}
}

// SetAcquired publishes the number of leased connections.
func (m *Metrics) SetAcquired(n int32) {
	if m == nil {
		return
	}
	m.PoolAcquired.Set(float64(n))
}
