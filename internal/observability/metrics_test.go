package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordAllocation("OK")
	m.RecordAllocation("OK")
	m.RecordAllocation("CAPACITY_EXCEEDED")
	m.RecordConflict("capacity-exceeded")
	m.RecordRequest("/api/v1/allocations", "POST", 201, 5*time.Millisecond)
	m.CacheFallback("get")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.allocations.WithLabelValues("OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.allocations.WithLabelValues("CAPACITY_EXCEEDED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconcilerConflict.WithLabelValues("capacity-exceeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/v1/allocations", "POST", "201")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheFallbacks.WithLabelValues("get")))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordAllocation("OK")
		m.RecordReconcilerRun("ok")
		m.CacheHit()
		m.RecordError("/", "GET", "X")
	})
}
