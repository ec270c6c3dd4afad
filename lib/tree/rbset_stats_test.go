package tree

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/benz9527/xset/lib/infra"
)

func findMetric(rm *metricdata.ResourceMetrics, scope, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		if sm.Scope.Name != scope {
			continue
		}
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func sumInt64(data metricdata.Aggregation, attrs ...attribute.KeyValue) int64 {
	sum, ok := data.(metricdata.Sum[int64])
	if !ok {
		return -1
	}
	total := int64(0)
	for _, dp := range sum.DataPoints {
		if hasAttrs(dp.Attributes, attrs...) {
			total += dp.Value
		}
	}
	return total
}

func hasAttrs(set attribute.Set, attrs ...attribute.KeyValue) bool {
	for _, kv := range attrs {
		if v, ok := set.Value(kv.Key); !ok || v != kv.Value {
			return false
		}
	}
	return true
}

func gaugeInt64(data metricdata.Aggregation, attrs ...attribute.KeyValue) []int64 {
	gauge, ok := data.(metricdata.Gauge[int64])
	if !ok {
		return nil
	}
	values := make([]int64, 0, len(gauge.DataPoints))
	for _, dp := range gauge.DataPoints {
		if hasAttrs(dp.Attributes, attrs...) {
			values = append(values, dp.Value)
		}
	}
	return values
}

func TestRBSetStats(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	otel.SetMeterProvider(mp)
	defer func() {
		_ = mp.Shutdown(context.Background())
	}()

	set := NewRBSet[int](WithRBSetStats[int]("stats-test"))
	for i := 0; i < 100; i++ {
		set.Insert(i)
	}
	for i := 0; i < 50; i++ {
		set.Remove(i)
	}
	// Duplicates and misses never change the element count.
	set.Insert(99)
	set.Remove(-1)
	require.True(t, set.Contains(75))

	rm := metricdata.ResourceMetrics{}
	require.NoError(t, reader.Collect(context.Background(), &rm))
	scope := RBSetStatsName + "/stats-test"

	m, ok := findMetric(&rm, scope, "rbset.element.count")
	require.True(t, ok)
	require.Equal(t, int64(50), sumInt64(m.Data))

	m, ok = findMetric(&rm, scope, "rbset.element.len")
	require.True(t, ok)
	require.Equal(t, []int64{50}, gaugeInt64(m.Data, attribute.String("rbset.name", "stats-test")))

	m, ok = findMetric(&rm, scope, "rbset.rotation.count")
	require.True(t, ok)
	require.Greater(t, sumInt64(m.Data, attribute.String("rbset.rotate.direction", "left")), int64(0))
	require.GreaterOrEqual(t, sumInt64(m.Data, attribute.String("rbset.rotate.direction", "right")), int64(0))

	m, ok = findMetric(&rm, scope, "rbset.fixup.loop.count")
	require.True(t, ok)
	require.GreaterOrEqual(t, sumInt64(m.Data, attribute.String("rbset.fixup.op", "insert")), int64(99))
	require.Greater(t, sumInt64(m.Data, attribute.String("rbset.fixup.op", "remove")), int64(0))

	m, ok = findMetric(&rm, scope, "rbset.search.depth")
	require.True(t, ok)
	hist, ok := m.Data.(metricdata.Histogram[int64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	// 99 inserts past the root, 50 + 1 removes and 1 lookup descend.
	require.Equal(t, uint64(99+1+50+1+1), hist.DataPoints[0].Count)
	maxDepth, defined := hist.DataPoints[0].Max.Value()
	require.True(t, defined)
	require.LessOrEqual(t, maxDepth, int64(2*7))
}

func TestRBSetStats_Disabled(t *testing.T) {
	var stats *rbSetStats
	require.NotPanics(t, func() {
		stats.RecordElementCount(1)
		stats.IncreaseRotationCount(Left)
		stats.IncreaseFixupCount(opInsert, 3)
		stats.RecordSearchDepth(4)
		require.NoError(t, stats.Unregister())
	})
	set := newRBSet[int](nil)
	require.Nil(t, set.stats)
}

func TestRBSetStats_SharedNameAndRelease(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	otel.SetMeterProvider(mp)
	defer func() {
		_ = mp.Shutdown(context.Background())
	}()

	setA := newRBSet[int](infra.NaturalOrder[int](), WithRBSetStats[int]("shared"))
	setB := newRBSet[int](infra.NaturalOrder[int](), WithRBSetStats[int]("shared"))
	require.NotEqual(t, setA.stats.id, setB.stats.id)
	for i := 0; i < 10; i++ {
		setA.Insert(i)
	}
	setB.Insert(1)

	idA := attribute.Int64("rbset.id", setA.stats.id)
	idB := attribute.Int64("rbset.id", setB.stats.id)
	scope := RBSetStatsName + "/shared"

	rm := metricdata.ResourceMetrics{}
	require.NoError(t, reader.Collect(context.Background(), &rm))
	m, ok := findMetric(&rm, scope, "rbset.element.len")
	require.True(t, ok)
	require.Equal(t, []int64{10}, gaugeInt64(m.Data, idA))
	require.Equal(t, []int64{1}, gaugeInt64(m.Data, idB))
	m, ok = findMetric(&rm, scope, "rbset.element.count")
	require.True(t, ok)
	require.Equal(t, int64(10), sumInt64(m.Data, idA))
	require.Equal(t, int64(1), sumInt64(m.Data, idB))
	require.Equal(t, int64(11), sumInt64(m.Data))

	// Release detaches the gauge callback, the other set keeps reporting.
	setA.Release()
	require.Nil(t, setA.stats)
	setA.Insert(42)
	require.Equal(t, int64(1), setA.Len())

	rm = metricdata.ResourceMetrics{}
	require.NoError(t, reader.Collect(context.Background(), &rm))
	m, ok = findMetric(&rm, scope, "rbset.element.len")
	require.True(t, ok)
	require.Empty(t, gaugeInt64(m.Data, idA))
	require.Equal(t, []int64{1}, gaugeInt64(m.Data, idB))
	m, ok = findMetric(&rm, scope, "rbset.element.count")
	require.True(t, ok)
	require.Equal(t, int64(0), sumInt64(m.Data, idA))
	require.Equal(t, int64(1), sumInt64(m.Data, idB))
}
