package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.IncrementTransition("ACTIVE", "PENDING_VERIFICATION")
	m.IncrementTransition("ACTIVE", "PENDING_VERIFICATION")
	m.IncrementSweepConflicts()
	m.ObserveSweep(0.25, 12)

	assert.InDelta(t, 2, testutil.ToFloat64(m.Transitions.WithLabelValues("ACTIVE", "PENDING_VERIFICATION")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SweepConflicts), 0)
	assert.InDelta(t, 12, testutil.ToFloat64(m.SweepVaults), 0)
}
