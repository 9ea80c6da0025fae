package sequencer

import (
	"context"

	"github.com/akumuli/sequencer/pkg/model"
	"github.com/akumuli/sequencer/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Metrics is the telemetry instrumentation a Sequencer emits on top of its
// raw pkg/stats counters: an outcome counter tagged by Add's resulting
// Status, a histogram of the run count merged at each checkpoint, and spans
// bracketing the checkpoint and merge transitions.
type Metrics interface {
	telemetry.ComponentMetrics

	// RecordAddOutcome records the Status an Add call resolved to.
	RecordAddOutcome(ctx context.Context, status model.Status)

	// RecordMergeBatch records how many runs a single Merge call drained.
	RecordMergeBatch(ctx context.Context, runCount int)

	// StartCheckpointSpan brackets a checkpoint transition.
	StartCheckpointSpan(ctx context.Context, checkpoint uint64) (context.Context, trace.Span)

	// StartMergeSpan brackets a Merge call.
	StartMergeSpan(ctx context.Context) (context.Context, trace.Span)
}

type sequencerMetrics struct {
	tel telemetry.Telemetry
}

// NewMetrics builds a Metrics backed by tel. A nil tel yields a working,
// fully no-op instrumentation rather than requiring callers to check for
// telemetry being configured.
func NewMetrics(tel telemetry.Telemetry) Metrics {
	if tel == nil {
		tel = telemetry.NewNoop()
	}
	return &sequencerMetrics{tel: tel}
}

func (m *sequencerMetrics) RecordAddOutcome(ctx context.Context, status model.Status) {
	m.tel.RecordCounter(ctx, "sequencer.add.outcome", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentSequencer),
		attribute.String(telemetry.AttrStatus, status.String()),
	)
}

func (m *sequencerMetrics) RecordMergeBatch(ctx context.Context, runCount int) {
	m.tel.RecordHistogram(ctx, "sequencer.merge.batch_size", float64(runCount),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentSequencer),
	)
}

func (m *sequencerMetrics) StartCheckpointSpan(ctx context.Context, checkpoint uint64) (context.Context, trace.Span) {
	return m.tel.StartSpan(ctx, "sequencer.checkpoint",
		attribute.String(telemetry.AttrComponent, telemetry.ComponentSequencer),
		attribute.String(telemetry.AttrOperationType, telemetry.OpTypeCheckpoint),
		attribute.Int64("sequencer.checkpoint.id", int64(checkpoint)),
	)
}

func (m *sequencerMetrics) StartMergeSpan(ctx context.Context) (context.Context, trace.Span) {
	return m.tel.StartSpan(ctx, "sequencer.merge",
		attribute.String(telemetry.AttrComponent, telemetry.ComponentSequencer),
		attribute.String(telemetry.AttrOperationType, telemetry.OpTypeMerge),
	)
}

// Close satisfies telemetry.ComponentMetrics. The underlying Telemetry's
// own Shutdown is owned by whoever constructed it, not by this wrapper.
func (m *sequencerMetrics) Close() error {
	return nil
}
