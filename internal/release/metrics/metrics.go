package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	DecryptAttempts  *prometheus.CounterVec
	DecryptDuration  prometheus.Histogram
	TokensIssued     prometheus.Counter
	AnomaliesTotal   prometheus.Counter
	FanOutFailures   prometheus.Counter
	UnlocksRequested prometheus.Counter
}

func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DecryptAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "keepsake_release_decrypt_attempts_total",
			Help: "Decryption attempts by outcome",
		}, []string{"outcome"}),
		DecryptDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "keepsake_release_decrypt_duration_seconds",
			Help:    "Time spent deriving keys and decrypting vault payloads",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		TokensIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "keepsake_release_tokens_issued_total",
			Help: "Release tokens issued",
		}),
		AnomaliesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "keepsake_release_anomalies_total",
			Help: "Clients that crossed the failed-decryption threshold",
		}),
		FanOutFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "keepsake_release_fanout_failures_total",
			Help: "Shipment or notification failures during release fan-out",
		}),
		UnlocksRequested: f.NewCounter(prometheus.CounterOpts{
			Name: "keepsake_release_unlocks_requested_total",
			Help: "Self-service unlock requests accepted",
		}),
	}
}

func (m *Metrics) IncrementDecrypt(outcome string) {
	m.DecryptAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveDecryptDuration(seconds float64) {
	m.DecryptDuration.Observe(seconds)
}

func (m *Metrics) IncrementTokensIssued() {
	m.TokensIssued.Inc()
}

func (m *Metrics) IncrementAnomalies() {
	m.AnomaliesTotal.Inc()
}

func (m *Metrics) IncrementFanOutFailures() {
	m.FanOutFailures.Inc()
}

func (m *Metrics) IncrementUnlocksRequested() {
	m.UnlocksRequested.Inc()
}
