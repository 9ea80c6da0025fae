package ingest

import (
	"github.com/akumuli/sequencer/pkg/cursor"
	"github.com/akumuli/sequencer/pkg/logging"
	"github.com/akumuli/sequencer/pkg/model"
	"github.com/akumuli/sequencer/pkg/sequencer"
	"github.com/akumuli/sequencer/pkg/stats"
)

// ItemHandler receives each value a drained checkpoint's merge emits, in
// the order the Merge Engine produces it.
type ItemHandler func(cursor.Item)

// Drainer runs the Merge Engine against a checkpoint's Ready Set whenever
// an ingest connection's write triggers one, off the connection's own
// goroutine so a slow downstream consumer never blocks the socket that
// happened to cross the window boundary.
type Drainer struct {
	seq    *sequencer.Sequencer
	stats  stats.Collector
	logger logging.Logger
	onItem ItemHandler
}

// NewDrainer builds a Drainer bound to seq. onItem may be nil to discard
// merge output once it has been counted.
func NewDrainer(seq *sequencer.Sequencer, statsCollector stats.Collector, logger logging.Logger, onItem ItemHandler) *Drainer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Drainer{seq: seq, stats: statsCollector, logger: logger, onItem: onItem}
}

// Drain merges the Ready Set token guards and forwards every emitted value
// to onItem. It runs synchronously with respect to its caller but is
// intended to be invoked from its own goroutine by callers that must not
// block on it (see ingest.Handler).
func (d *Drainer) Drain(token sequencer.LockToken) {
	cur := cursor.NewChannelCursor(64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		var bytesOut uint64
		for item := range cur.Items() {
			if item.Done {
				break
			}
			if item.Err != model.StatusSuccess {
				d.logger.Warn("ingest: checkpoint merge reported error, status=%s", item.Err)
				break
			}
			bytesOut += valueSize(item.Value)
			if d.onItem != nil {
				d.onItem(item)
			}
		}
		if d.stats != nil && bytesOut > 0 {
			d.stats.TrackBytes(true, bytesOut)
		}
	}()

	d.seq.Merge(token, cur, nil)
	<-done
}

// valueSize estimates the wire size of a merged value for the output byte
// counter: two uint64 key fields plus an 8-byte payload, regardless of
// which payload kind is set.
func valueSize(v model.Value) uint64 {
	return 24
}
