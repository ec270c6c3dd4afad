package tree

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	RBSetStatsName = "xset/rbset"
)

const (
	rbSetNameAttrKey      = "rbset.name"
	rbSetIDAttrKey        = "rbset.id"
	rbSetRotateDirAttrKey = "rbset.rotate.direction"
	rbSetFixupOpAttrKey   = "rbset.fixup.op"
)

type rebalanceOp string

const (
	opInsert rebalanceOp = "insert"
	opRemove rebalanceOp = "remove"
)

// Sets sharing a stats name are told apart by the id.
var rbSetStatsID atomic.Int64

type rbSetStats struct {
	id               int64
	instanceAttrs    metric.MeasurementOption
	rotateLeftAttrs  metric.MeasurementOption
	rotateRightAttrs metric.MeasurementOption
	fixupInsertAttrs metric.MeasurementOption
	fixupRemoveAttrs metric.MeasurementOption

	elementCount   metric.Int64UpDownCounter
	elementGauge   metric.Int64ObservableGauge
	rotationCount  metric.Int64Counter
	fixupLoopCount metric.Int64Counter
	searchDepths   metric.Int64Histogram
	gaugeReg       metric.Registration
}

func (stats *rbSetStats) RecordElementCount(delta int64) {
	if stats == nil {
		return
	}
	stats.elementCount.Add(context.Background(), delta, stats.instanceAttrs)
}

func (stats *rbSetStats) IncreaseRotationCount(dir RBDirection) {
	if stats == nil {
		return
	}
	switch dir {
	case Left:
		stats.rotationCount.Add(context.Background(), 1, stats.rotateLeftAttrs)
	case Right:
		stats.rotationCount.Add(context.Background(), 1, stats.rotateRightAttrs)
	default:
	}
}

// IncreaseFixupCount records how many levels a rebalance pass walked.
func (stats *rbSetStats) IncreaseFixupCount(op rebalanceOp, loops int64) {
	if stats == nil || loops <= 0 {
		return
	}
	switch op {
	case opInsert:
		stats.fixupLoopCount.Add(context.Background(), loops, stats.fixupInsertAttrs)
	case opRemove:
		stats.fixupLoopCount.Add(context.Background(), loops, stats.fixupRemoveAttrs)
	default:
	}
}

func (stats *rbSetStats) RecordSearchDepth(depth int64) {
	if stats == nil {
		return
	}
	stats.searchDepths.Record(context.Background(), depth, stats.instanceAttrs)
}

// Unregister detaches the length gauge callback from the meter, so the
// meter provider no longer references the set.
func (stats *rbSetStats) Unregister() error {
	if stats == nil || stats.gaugeReg == nil {
		return nil
	}
	err := stats.gaugeReg.Unregister()
	stats.gaugeReg = nil
	return err
}

func rbSetStatsAttrs(kvs ...attribute.KeyValue) metric.MeasurementOption {
	return metric.WithAttributeSet(attribute.NewSet(kvs...))
}

// The gauge callback runs on the reader's goroutine, so it only
// touches the atomic element counter and never walks the tree.
func newRBSetStats(name string, count *int64) *rbSetStats {
	meterName := fmt.Sprintf("%s/%s", RBSetStatsName, name)
	meter := otel.Meter(meterName)
	id := rbSetStatsID.Add(1)
	nameAttr, idAttr := attribute.String(rbSetNameAttrKey, name), attribute.Int64(rbSetIDAttrKey, id)
	stats := &rbSetStats{
		id:               id,
		instanceAttrs:    rbSetStatsAttrs(nameAttr, idAttr),
		rotateLeftAttrs:  rbSetStatsAttrs(nameAttr, idAttr, attribute.String(rbSetRotateDirAttrKey, "left")),
		rotateRightAttrs: rbSetStatsAttrs(nameAttr, idAttr, attribute.String(rbSetRotateDirAttrKey, "right")),
		fixupInsertAttrs: rbSetStatsAttrs(nameAttr, idAttr, attribute.String(rbSetFixupOpAttrKey, string(opInsert))),
		fixupRemoveAttrs: rbSetStatsAttrs(nameAttr, idAttr, attribute.String(rbSetFixupOpAttrKey, string(opRemove))),
		elementCount: lo.Must[metric.Int64UpDownCounter](meter.
			Int64UpDownCounter(
				"rbset.element.count",
				metric.WithDescription("The number of elements in the rbset."),
			),
		),
		elementGauge: lo.Must[metric.Int64ObservableGauge](meter.
			Int64ObservableGauge(
				"rbset.element.len",
				metric.WithDescription("The current length of the rbset."),
			),
		),
		rotationCount: lo.Must[metric.Int64Counter](meter.
			Int64Counter(
				"rbset.rotation.count",
				metric.WithDescription("The number of rotations performed by the rebalancing."),
			),
		),
		fixupLoopCount: lo.Must[metric.Int64Counter](meter.
			Int64Counter(
				"rbset.fixup.loop.count",
				metric.WithDescription("The number of levels walked by the insert and remove rebalancing."),
			),
		),
		searchDepths: lo.Must[metric.Int64Histogram](meter.
			Int64Histogram(
				"rbset.search.depth",
				metric.WithDescription("The number of nodes visited by a search descent."),
			),
		),
	}
	gauge, attrs := stats.elementGauge, stats.instanceAttrs
	stats.gaugeReg = lo.Must[metric.Registration](meter.RegisterCallback(
		func(ctx context.Context, ob metric.Observer) error {
			ob.ObserveInt64(gauge, atomic.LoadInt64(count), attrs)
			return nil
		},
		gauge,
	))
	return stats
}
