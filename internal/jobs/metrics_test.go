package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("ledger:reconcile").End(nil))
	boom := errors.New("boom")
	assert.Equal(t, boom, m.Track("ledger:reconcile").End(boom))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger:reconcile", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger:reconcile", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("ledger:reconcile")))
}

func TestCountersIgnoreEmptyInput(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddUnbalanced(0)
	m.AddUnbalanced(2)
	m.AddChartGaps([]string{"equity", "expense"})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.unbalanced))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.chartGaps.WithLabelValues("equity")))

	var nilMetrics *Metrics
	nilMetrics.AddUnbalanced(3)
	assert.NoError(t, nilMetrics.Track("x").End(nil))
}
