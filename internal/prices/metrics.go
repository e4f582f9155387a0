package prices

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the service's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	lookups       *prometheus.CounterVec
	fetches       *prometheus.CounterVec
	sweeps        prometheus.Counter
	sweepDuration prometheus.Histogram
	saveErrors    prometheus.Counter
	entries       prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockprices_lookups_total",
			Help: "Per-symbol lookups by outcome",
		}, []string{"outcome"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockprices_upstream_fetches_total",
			Help: "Upstream quote fetches by caller and result",
		}, []string{"caller", "result"}),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockprices_sweeps_total",
			Help: "Completed refresher sweeps",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stockprices_sweep_duration_seconds",
			Help:    "Wall time of one refresher sweep",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		saveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockprices_cache_save_errors_total",
			Help: "Failed cache snapshot writes",
		}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stockprices_cache_entries",
			Help: "Symbols held in the cache",
		}),
	}
	reg.MustRegister(m.lookups, m.fetches, m.sweeps, m.sweepDuration, m.saveErrors, m.entries)
	return m
}

func (m *Metrics) lookup(outcome string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(outcome).Inc()
}

// fetch records one upstream lookup; result is ok, error or throttled.
func (m *Metrics) fetch(caller, result string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(caller, result).Inc()
}

func (m *Metrics) sweep(d time.Duration) {
	if m == nil {
		return
	}
	m.sweeps.Inc()
	m.sweepDuration.Observe(d.Seconds())
}

func (m *Metrics) saved(err error, entries int) {
	if m == nil {
		return
	}
	if err != nil {
		m.saveErrors.Inc()
	}
	m.entries.Set(float64(entries))
}
