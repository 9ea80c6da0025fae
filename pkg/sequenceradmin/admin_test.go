package sequenceradmin

import (
	"context"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/akumuli/sequencer/pkg/cursor"
	"github.com/akumuli/sequencer/pkg/model"
	"github.com/akumuli/sequencer/pkg/page"
	"github.com/akumuli/sequencer/pkg/sequencer"
	"github.com/akumuli/sequencer/pkg/stats"
)

func TestStatsReturnsCollectorSnapshot(t *testing.T) {
	collector := stats.NewCollector()
	collector.TrackOperation(stats.OpAdd)

	srv := NewServer(sequencer.NewSequencer(100, page.NewHandle("p0")), collector, nil)

	st, err := srv.Stats(context.Background(), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if _, ok := st.Fields["add_ops"]; !ok {
		t.Fatalf("expected add_ops field in stats struct, got %v", st.Fields)
	}
}

func TestTriggerCheckpointDrainsForcedCheckpoint(t *testing.T) {
	seq := sequencer.NewSequencer(100, page.NewHandle("p0"))
	w, err := seq.AcquireWriter()
	if err != nil {
		t.Fatalf("AcquireWriter: %v", err)
	}
	if status, _ := w.Add(model.NewInlineValue(10, 1, 1.5)); status != model.StatusSuccess {
		t.Fatalf("Add: expected success, got %s", status)
	}

	var drained []cursor.Item
	srv := NewServer(seq, stats.NewCollector(), func(item cursor.Item) {
		drained = append(drained, item)
	})

	resp, err := srv.TriggerCheckpoint(context.Background(), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("TriggerCheckpoint: %v", err)
	}
	if resp.GetValue() != 1 {
		t.Fatalf("checkpoint id = %d, want 1", resp.GetValue())
	}
	if len(drained) != 1 || drained[0].Value.Key.ParamID != 1 {
		t.Fatalf("drained = %v, want one item with param id 1", drained)
	}
}

func TestTriggerCheckpointReportsUnavailableWhenBusy(t *testing.T) {
	seq := sequencer.NewSequencer(100, page.NewHandle("p0"))
	// Manually force the first checkpoint so the second attempt collides
	// with an un-merged Ready Set and reports Busy.
	_, token := seq.ForceCheckpoint()
	if !token.Owns() {
		t.Fatalf("expected the first ForceCheckpoint to acquire the lock")
	}

	srv := NewServer(seq, stats.NewCollector(), nil)
	_, err := srv.TriggerCheckpoint(context.Background(), &emptypb.Empty{})
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("err = %v, want codes.Unavailable", err)
	}
	token.Release()
}
