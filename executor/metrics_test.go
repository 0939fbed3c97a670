package executor

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	done := m.begin()
	assert.InDelta(t, 1, testutil.ToFloat64(m.inFlight), 0)
	done()
	assert.InDelta(t, 0, testutil.ToFloat64(m.inFlight), 0)

	m.observe("python", OutcomeSuccess, time.Second)
	m.observe("python", OutcomeSuccess, 2*time.Second)
	m.observe("", OutcomeInvalid, 0)
	m.cleanupFailed()

	assert.InDelta(t, 2, testutil.ToFloat64(m.executions.WithLabelValues("python", OutcomeSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.executions.WithLabelValues("", OutcomeInvalid)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.cleanupFailures), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.begin()()
		m.observe("python", OutcomeFailure, time.Second)
		m.cleanupFailed()
	})
}
