package sequencer

import (
	"context"

	"github.com/akumuli/sequencer/pkg/model"
	"github.com/akumuli/sequencer/pkg/stats"
)

// Writer is the exclusive capability through which values are added to,
// and a Sequencer's window is closed against. Exactly one Writer exists
// per Sequencer, obtained once via AcquireWriter; this is what enforces
// the single-writer ingest model at the type level rather than by
// runtime convention.
type Writer struct {
	seq *Sequencer
}

// Add inserts v if its timestamp is not a late write. The returned
// LockToken Owns the progress lock exactly when Add triggered a
// checkpoint that completed successfully; that token, and only that
// token, may be passed to Sequencer.Merge.
func (w *Writer) Add(v model.Value) (model.Status, LockToken) {
	status, token := w.seq.checkTimestamp(v.Key.Timestamp)
	w.seq.metrics.RecordAddOutcome(context.Background(), status)

	if status != model.StatusSuccess {
		if w.seq.stats != nil {
			switch status {
			case model.StatusLateWrite:
				w.seq.stats.TrackOperation(stats.OpAddLate)
			case model.StatusBusy:
				w.seq.stats.TrackOperation(stats.OpAddBusy)
			}
		}
		return status, token
	}

	w.seq.insert(v)
	if w.seq.stats != nil {
		w.seq.stats.TrackOperation(stats.OpAdd)
	}
	return status, token
}

// Close moves every active run to the Ready Set, leaving the Run Set
// empty. The returned token Owns the progress lock when Close acquired
// it; a caller that finds Owns false should retry, mirroring a busy
// checkpoint.
func (w *Writer) Close() LockToken {
	owns := w.seq.makeClose()
	if w.seq.stats != nil {
		w.seq.stats.TrackOperation(stats.OpClose)
	}
	return LockToken{seq: w.seq, owns: owns}
}
