package ingest

import (
	"testing"

	"github.com/akumuli/sequencer/pkg/cursor"
	"github.com/akumuli/sequencer/pkg/model"
	"github.com/akumuli/sequencer/pkg/page"
	"github.com/akumuli/sequencer/pkg/sequencer"
	"github.com/akumuli/sequencer/pkg/stats"
)

func TestDrainerForwardsMergedValues(t *testing.T) {
	seq := sequencer.NewSequencer(100, page.NewHandle("p0"))
	w, err := seq.AcquireWriter()
	if err != nil {
		t.Fatalf("AcquireWriter: %v", err)
	}
	if status, _ := w.Add(model.NewInlineValue(10, 7, 2.5)); status != model.StatusSuccess {
		t.Fatalf("Add: expected success, got %s", status)
	}

	var drained []cursor.Item
	drainer := NewDrainer(seq, stats.NewCollector(), nil, func(item cursor.Item) {
		drained = append(drained, item)
	})

	_, token := seq.ForceCheckpoint()
	if !token.Owns() {
		t.Fatalf("expected ForceCheckpoint to acquire the progress lock")
	}
	drainer.Drain(token)

	if len(drained) != 1 || drained[0].Value.Key.ParamID != 7 {
		t.Fatalf("drained = %v, want one item with param id 7", drained)
	}
}

func TestDrainerSkipsOnEmptyReadySet(t *testing.T) {
	seq := sequencer.NewSequencer(100, page.NewHandle("p0"))
	called := false
	drainer := NewDrainer(seq, stats.NewCollector(), nil, func(item cursor.Item) {
		called = true
	})

	_, token := seq.ForceCheckpoint()
	drainer.Drain(token)

	if called {
		t.Fatalf("onItem should not be invoked when the Ready Set is empty")
	}
}
