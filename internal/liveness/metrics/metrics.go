package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Transitions    *prometheus.CounterVec
	SweepConflicts prometheus.Counter
	SweepDuration  prometheus.Histogram
	SweepVaults    prometheus.Gauge
	Heartbeats     prometheus.Counter
}

func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "keepsake_liveness_transitions_total",
			Help: "Vault status transitions by source and target status",
		}, []string{"from", "to"}),
		SweepConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "keepsake_liveness_sweep_conflicts_total",
			Help: "Sweep updates skipped because the vault changed concurrently",
		}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "keepsake_liveness_sweep_duration_seconds",
			Help:    "Duration of a full liveness sweep",
			Buckets: prometheus.DefBuckets,
		}),
		SweepVaults: f.NewGauge(prometheus.GaugeOpts{
			Name: "keepsake_liveness_sweep_vaults",
			Help: "Vaults examined by the most recent sweep",
		}),
		Heartbeats: f.NewCounter(prometheus.CounterOpts{
			Name: "keepsake_liveness_heartbeats_total",
			Help: "Heartbeats accepted",
		}),
	}
}

func (m *Metrics) IncrementTransition(from, to string) {
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncrementSweepConflicts() {
	m.SweepConflicts.Inc()
}

func (m *Metrics) ObserveSweep(seconds float64, vaults int) {
	m.SweepDuration.Observe(seconds)
	m.SweepVaults.Set(float64(vaults))
}

func (m *Metrics) IncrementHeartbeats() {
	m.Heartbeats.Inc()
}
