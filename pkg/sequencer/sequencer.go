// Package sequencer implements the windowed ingestion core: the Sequencer
// holds the active Run Set and the Ready Set it hands off to the Merge
// Engine at checkpoint time, and exposes add/close/merge/search as the
// four operations a caller drives it through.
package sequencer

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/akumuli/sequencer/pkg/cursor"
	"github.com/akumuli/sequencer/pkg/logging"
	"github.com/akumuli/sequencer/pkg/merge"
	"github.com/akumuli/sequencer/pkg/model"
	"github.com/akumuli/sequencer/pkg/page"
	"github.com/akumuli/sequencer/pkg/runlock"
	"github.com/akumuli/sequencer/pkg/sortedrun"
	"github.com/akumuli/sequencer/pkg/stats"
	"github.com/akumuli/sequencer/pkg/telemetry"
)

// Sequencer owns the active Run Set, the Ready Set, and the progress-lock
// state machine that coordinates checkpoint, merge, and search against a
// single window of a single page. All mutation of the Run Set happens
// through the Writer capability obtained via AcquireWriter; Search is safe
// to call from any number of concurrent goroutines.
type Sequencer struct {
	windowSize uint64
	pageHandle page.Handle

	// topTimestamp and checkpoint are only ever touched by the Writer, so
	// they need no lock of their own; runs/ready are protected from
	// concurrent readers by runLocks, and swapped wholesale only while
	// progress is held.
	topTimestamp uint64
	checkpoint   uint64
	runs         []*sortedrun.Run
	ready        []*sortedrun.Run

	runLocks *runlock.Table
	progress sync.Mutex

	writerTaken atomic.Bool

	stats   stats.Collector
	logger  logging.Logger
	metrics Metrics
}

// Option configures a Sequencer at construction time.
type Option func(*Sequencer)

// WithRunLockSize overrides the default Run Lock Table stripe count. size
// must be a power of two.
func WithRunLockSize(size int) Option {
	return func(s *Sequencer) { s.runLocks = runlock.New(size) }
}

// WithStats attaches a statistics collector.
func WithStats(c stats.Collector) Option {
	return func(s *Sequencer) { s.stats = c }
}

// WithLogger overrides the default logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Sequencer) { s.logger = l }
}

// WithTelemetry attaches a telemetry sink. The Sequencer emits an outcome
// counter per Add, a batch-size histogram per Merge, and spans around the
// checkpoint and merge transitions; without this option those instruments
// record against a no-op sink.
func WithTelemetry(tel telemetry.Telemetry) Option {
	return func(s *Sequencer) { s.metrics = NewMetrics(tel) }
}

// NewSequencer creates a Sequencer bound to a single downstream page. It
// panics if windowSize is zero; a zero window is a construction-time
// programmer error, not a runtime condition.
func NewSequencer(windowSize uint64, ph page.Handle, opts ...Option) *Sequencer {
	if windowSize == 0 {
		panic(ErrInvalidWindowSize)
	}
	s := &Sequencer{
		windowSize: windowSize,
		pageHandle: ph,
		runLocks:   runlock.New(runlock.DefaultSize),
		logger:     logging.Default(),
		metrics:    NewMetrics(nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AcquireWriter hands out the single Writer capability this Sequencer will
// ever issue. A second call returns ErrWriterAlreadyTaken.
func (s *Sequencer) AcquireWriter() (*Writer, error) {
	if !s.writerTaken.CompareAndSwap(false, true) {
		return nil, ErrWriterAlreadyTaken
	}
	return &Writer{seq: s}, nil
}

func (s *Sequencer) getCheckpoint(ts uint64) uint64 {
	return ts / s.windowSize
}

func (s *Sequencer) getTimestamp(cp uint64) uint64 {
	return cp * s.windowSize
}

// checkTimestamp decides whether ts is a late write, triggers a checkpoint
// if ts has crossed into a new window, and reports whether the progress
// lock was acquired in the process. Mirrors the original check_timestamp_
// exactly, including the asymmetry where topTimestamp advances on a Busy
// outcome but not on a LateWrite one.
func (s *Sequencer) checkTimestamp(ts uint64) (model.Status, LockToken) {
	if ts < s.topTimestamp {
		delta := s.topTimestamp - ts
		if delta > s.windowSize {
			return model.StatusLateWrite, LockToken{seq: s, owns: false}
		}
		return model.StatusSuccess, LockToken{seq: s, owns: false}
	}

	status := model.StatusSuccess
	owns := false
	point := s.getCheckpoint(ts)
	if point > s.checkpoint {
		owns = s.makeCheckpoint(point, false)
		if !owns {
			status = model.StatusBusy
		}
	}
	s.topTimestamp = ts
	return status, LockToken{seq: s, owns: owns}
}

// makeCheckpoint attempts to acquire the progress lock and, on success,
// moves every run (or run prefix) whose last key no longer falls in the
// active window into the Ready Set. It reports whether the lock was
// acquired; on failure it is a no-op, per spec: a checkpoint already in
// flight is reported as Busy rather than queued. A forced checkpoint moves
// every value below the start of newCheckpoint's window instead of only
// those below the start of the outgoing window.
func (s *Sequencer) makeCheckpoint(newCheckpoint uint64, forced bool) bool {
	if !s.progress.TryLock() {
		return false
	}

	_, span := s.metrics.StartCheckpointSpan(context.Background(), newCheckpoint)
	defer span.End()

	s.runLocks.LockAll()
	oldTop := s.getTimestamp(s.checkpoint)
	if forced {
		oldTop = s.getTimestamp(newCheckpoint)
	}
	s.checkpoint = newCheckpoint

	if len(s.ready) != 0 {
		panic("sequencer: invariant broken: ready set non-empty at checkpoint")
	}

	boundary := model.Key{Timestamp: oldTop, ParamID: model.MaxParamID}
	newRuns := make([]*sortedrun.Run, 0, len(s.runs))
	for _, run := range s.runs {
		idx := run.LowerBound(boundary)
		switch {
		case idx == 0:
			// Every value is newer than the outgoing window; the run
			// stays active untouched.
			newRuns = append(newRuns, run)
		case idx == run.Len():
			// Every value is older than the outgoing window; the whole
			// run moves to the Ready Set.
			s.ready = append(s.ready, run)
		default:
			prefix, suffix := run.Split(idx)
			s.ready = append(s.ready, prefix)
			newRuns = append(newRuns, suffix)
		}
	}
	s.runs = newRuns
	s.runLocks.UnlockAll()

	if s.stats != nil {
		s.stats.TrackCheckpoint()
		s.stats.TrackActiveRuns(uint64(len(s.runs)))
	}
	return true
}

// makeClose attempts to acquire the progress lock and, on success, moves
// every active run to the Ready Set wholesale, leaving the Run Set empty.
func (s *Sequencer) makeClose() bool {
	if !s.progress.TryLock() {
		return false
	}

	if len(s.ready) != 0 {
		panic("sequencer: invariant broken: ready set non-empty at close")
	}

	s.runLocks.LockAll()
	s.ready = append(s.ready, s.runs...)
	s.runLocks.UnlockAll()
	s.runs = nil

	if s.stats != nil {
		s.stats.TrackActiveRuns(0)
	}
	return true
}

// insert appends v to the run whose internal ascending order it extends,
// starting a new run when no existing run qualifies. Runs are kept in
// roughly descending order by last key as a locality heuristic only (see
// the Run Set's no-global-ordering invariant); a local inversion costs an
// extra run, never correctness.
func (s *Sequencer) insert(v model.Value) {
	ix := s.findInsertRun(v.Key)
	if ix == len(s.runs) {
		r := sortedrun.New()
		r.Append(v)
		s.runs = append(s.runs, r)
	} else {
		s.runLocks.Lock(uint64(ix))
		s.runs[ix].Append(v)
		s.runLocks.Unlock(uint64(ix))
	}

	if s.stats != nil {
		s.stats.TrackActiveRuns(uint64(len(s.runs)))
	}
}

// findInsertRun returns the index of the run whose last key is the
// closest one not exceeding key, so appending v there preserves that
// run's ascending order. It returns len(s.runs) when no run qualifies.
func (s *Sequencer) findInsertRun(key model.Key) int {
	best := -1
	for i, r := range s.runs {
		last, ok := r.Last()
		if !ok || last.Key.Compare(key) > 0 {
			continue
		}
		if best == -1 {
			best = i
			continue
		}
		bestLast, _ := s.runs[best].Last()
		if last.Key.Compare(bestLast.Key) > 0 {
			best = i
		}
	}
	if best == -1 {
		return len(s.runs)
	}
	return best
}

// ForceCheckpoint checkpoints the Sequencer one window ahead of its
// current checkpoint immediately, without waiting for a write to cross
// that boundary. This is an administrative operation (the admin surface
// is the only caller) rather than part of the Writer-gated ingest path:
// an operator may want to flush the active Run Set on a quiet page
// rather than wait for enough traffic to advance the checkpoint
// naturally. Every active value below the start of the new checkpoint's
// window moves to the Ready Set. It reports the new checkpoint id and a
// LockToken exactly like Add/Close: Owns is false (equivalent to Busy)
// when a checkpoint or merge is already in flight, and the token must be
// passed to Merge exactly as a Writer's would be.
func (s *Sequencer) ForceCheckpoint() (checkpoint uint64, token LockToken) {
	next := s.checkpoint + 1
	owns := s.makeCheckpoint(next, true)
	return next, LockToken{seq: s, owns: owns}
}

// Merge drains the Ready Set into cur via the Merge Engine, in forward
// (ascending) order. token must be the one returned by the Add or Close
// call that triggered the checkpoint; Merge releases it on every path,
// matching the original's RAII-scoped progress lock.
func (s *Sequencer) Merge(token LockToken, cur cursor.Cursor, caller cursor.Caller) {
	if !token.owns {
		cur.SetError(caller, model.StatusBusy)
		return
	}
	defer token.Release()

	if len(s.ready) == 0 {
		cur.SetError(caller, model.StatusNoData)
		return
	}

	_, span := s.metrics.StartMergeSpan(context.Background())
	defer span.End()
	s.metrics.RecordMergeBatch(context.Background(), len(s.ready))

	merge.Merge(merge.Forward, s.ready, s.pageHandle, cur, caller)
	s.ready = nil

	if s.stats != nil {
		s.stats.TrackOperation(stats.OpMerge)
		s.stats.TrackMerge()
	}
	cur.Complete(caller)
}

// Search filters every active run against query and emits the matches, in
// query.Direction order, to cur. It blocks until any in-flight checkpoint
// or merge releases the progress lock, per spec: unlike Add and Close,
// Search always waits rather than reporting Busy.
func (s *Sequencer) Search(query Query, cur cursor.Cursor, caller cursor.Caller) {
	s.progress.Lock()
	defer s.progress.Unlock()

	if len(s.ready) != 0 {
		panic("sequencer: invariant broken: ready set non-empty at search")
	}

	pred := query.ParamPred
	if pred == nil {
		pred = MatchAll
	}

	filtered := make([]*sortedrun.Run, 0, len(s.runs))
	for ix, run := range s.runs {
		s.runLocks.Lock(uint64(ix))
		filtered = append(filtered, filterRun(run, query, pred))
		s.runLocks.Unlock(uint64(ix))
	}

	merge.Merge(query.Direction, filtered, s.pageHandle, cur, caller)

	if s.stats != nil {
		s.stats.TrackOperation(stats.OpSearch)
	}
	cur.Complete(caller)
}

// filterRun returns a new run holding only the values of run that fall
// strictly between query's bounds and satisfy pred, per spec §6/§9's
// exclusive-both-ends predicate.
func filterRun(run *sortedrun.Run, query Query, pred ParamPredicate) *sortedrun.Run {
	out := sortedrun.New()
	for i := 0; i < run.Len(); i++ {
		v := run.At(i)
		ts := v.Key.Timestamp
		if ts > query.LowerBound && ts < query.UpperBound && pred(v.Key.ParamID) {
			out.Append(v)
		}
	}
	return out
}
