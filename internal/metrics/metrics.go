package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps Prometheus collectors for power-sentinel.
type Metrics struct {
	registry                 *prometheus.Registry
	heartbeatsTotal          prometheus.Counter
	invalidKeysTotal         prometheus.Counter
	transitionsTotal         *prometheus.CounterVec
	powerStatusGauge         prometheus.Gauge
	lastHeartbeatGauge       prometheus.Gauge
	scheduleRefreshesTotal   prometheus.Counter
	scheduleRefreshErrsTotal prometheus.Counter
	cycleDurationSeconds     prometheus.Histogram
}

// New initializes a Metrics registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		heartbeatsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "power_sentinel_heartbeats_total",
			Help: "Total accepted heartbeat pings.",
		}),
		invalidKeysTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "power_sentinel_invalid_keys_total",
			Help: "Total heartbeats rejected for a bad secret key.",
		}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "power_sentinel_transitions_total",
			Help: "Total observed power transitions by direction.",
		}, []string{"type"}),
		powerStatusGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "power_sentinel_power_status",
			Help: "Current power status: 1 up, 0 down, -1 unknown.",
		}),
		lastHeartbeatGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "power_sentinel_last_heartbeat_timestamp",
			Help: "Unix timestamp of the most recent accepted heartbeat.",
		}),
		scheduleRefreshesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "power_sentinel_schedule_refreshes_total",
			Help: "Total successful schedule refresh cycles.",
		}),
		scheduleRefreshErrsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "power_sentinel_schedule_refresh_errors_total",
			Help: "Total schedule refresh cycles that failed on every source.",
		}),
		cycleDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "power_sentinel_cycle_duration_seconds",
			Help:    "Duration of timeout-check cycles in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	m.powerStatusGauge.Set(-1)

	registry.MustRegister(
		m.heartbeatsTotal,
		m.invalidKeysTotal,
		m.transitionsTotal,
		m.powerStatusGauge,
		m.lastHeartbeatGauge,
		m.scheduleRefreshesTotal,
		m.scheduleRefreshErrsTotal,
		m.cycleDurationSeconds,
	)

	return m
}

// Handler returns a Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncHeartbeats increments the accepted heartbeat counter.
func (m *Metrics) IncHeartbeats() {
	if m == nil {
		return
	}
	m.heartbeatsTotal.Inc()
}

// IncInvalidKeys increments the rejected heartbeat counter.
func (m *Metrics) IncInvalidKeys() {
	if m == nil {
		return
	}
	m.invalidKeysTotal.Inc()
}

// IncTransitions increments the transition counter for the given direction.
func (m *Metrics) IncTransitions(direction string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(direction).Inc()
}

// SetPowerStatus sets the power status gauge: 1 up, 0 down, -1 unknown.
func (m *Metrics) SetPowerStatus(value float64) {
	if m == nil {
		return
	}
	m.powerStatusGauge.Set(value)
}

// SetLastHeartbeatTimestamp records the most recent accepted heartbeat time.
func (m *Metrics) SetLastHeartbeatTimestamp(t time.Time) {
	if m == nil {
		return
	}
	m.lastHeartbeatGauge.Set(float64(t.Unix()))
}

// IncScheduleRefreshes increments the successful refresh counter.
func (m *Metrics) IncScheduleRefreshes() {
	if m == nil {
		return
	}
	m.scheduleRefreshesTotal.Inc()
}

// IncScheduleRefreshErrors increments the failed refresh counter.
func (m *Metrics) IncScheduleRefreshErrors() {
	if m == nil {
		return
	}
	m.scheduleRefreshErrsTotal.Inc()
}

// ObserveCycleDuration records the duration of a completed timeout-check cycle.
func (m *Metrics) ObserveCycleDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.cycleDurationSeconds.Observe(duration.Seconds())
}
