package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReporterFields(t *testing.T) {
	c := NewCounter("packets")
	c.Inc()
	c.Inc()
	g := NewGauge("tables")
	g.Set(5)

	fields := NewReporter(0, []*Counter{c}, []*Gauge{g}, zap.NewNop()).Fields()
	require.Len(t, fields, 2)
	assert.Equal(t, "packets", fields[0].Key)
	assert.Equal(t, int64(2), fields[0].Integer)
	assert.Equal(t, "tables", fields[1].Key)
	assert.Equal(t, int64(5), fields[1].Integer)
}

func TestNewMetrics_IsolatedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.PacketsTotal.WithLabelValues("rows").Inc()
	m.ErrorsTotal.WithLabelValues("unknown_table").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PacketsTotal.WithLabelValues("rows")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("unknown_table")))
	assert.NotPanics(t, func() { NewMetrics(prometheus.NewRegistry()) })
}
