// Package sortedrun implements the Sorted Run: an append-only,
// monotone-by-key buffer of model.Value. All synchronization over a run's
// contents is external (see pkg/runlock); SortedRun itself assumes a
// single mutator at a time.
package sortedrun

import "github.com/akumuli/sequencer/pkg/model"

// Run is a dynamic-length ordered sequence of Values. The invariant
// `r[i].Key <= r[i+1].Key` holds for every adjacent pair; the caller is
// responsible for only ever appending keys that preserve it.
type Run struct {
	values []model.Value
}

// New creates an empty Run.
func New() *Run {
	return &Run{}
}

// NewFromSlice wraps an already-sorted slice without copying. The caller
// must guarantee the slice is sorted by key.
func NewFromSlice(values []model.Value) *Run {
	return &Run{values: values}
}

// Append adds v to the tail of the run. The caller must ensure
// v.Key >= the run's current last key.
func (r *Run) Append(v model.Value) {
	r.values = append(r.values, v)
}

// Len returns the number of values in the run.
func (r *Run) Len() int {
	return len(r.values)
}

// At returns the value at index i.
func (r *Run) At(i int) model.Value {
	return r.values[i]
}

// Last returns the run's last value and true, or the zero value and false
// if the run is empty.
func (r *Run) Last() (model.Value, bool) {
	if len(r.values) == 0 {
		return model.Value{}, false
	}
	return r.values[len(r.values)-1], true
}

// Empty reports whether the run holds no values.
func (r *Run) Empty() bool {
	return len(r.values) == 0
}

// LowerBound returns the index of the first value whose key is >= key,
// or Len() if no such value exists.
func (r *Run) LowerBound(key model.Key) int {
	lo, hi := 0, len(r.values)
	for lo < hi {
		mid := (lo + hi) / 2
		if r.values[mid].Key.Less(key) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Split partitions the run at index pos into [0,pos) and [pos,len). Both
// halves are independently valid Runs and share no backing array mutation
// going forward (the prefix is copied so later appends to either half
// cannot corrupt the other).
func (r *Run) Split(pos int) (prefix, suffix *Run) {
	pre := make([]model.Value, pos)
	copy(pre, r.values[:pos])
	suf := make([]model.Value, len(r.values)-pos)
	copy(suf, r.values[pos:])
	return &Run{values: pre}, &Run{values: suf}
}

// ForwardIterator returns an iterator that walks the run head to tail.
func (r *Run) ForwardIterator() *Iterator {
	return &Iterator{run: r, pos: 0, dir: 1}
}

// BackwardIterator returns an iterator that walks the run tail to head.
func (r *Run) BackwardIterator() *Iterator {
	return &Iterator{run: r, pos: len(r.values) - 1, dir: -1}
}

// Iterator is a forward- or backward-walking cursor over a Run's values.
// It does not support concurrent mutation of the underlying run.
type Iterator struct {
	run *Run
	pos int
	dir int
}

// Valid reports whether the iterator is positioned at an in-range value.
func (it *Iterator) Valid() bool {
	return it.pos >= 0 && it.pos < len(it.run.values)
}

// Value returns the value at the iterator's current position.
func (it *Iterator) Value() model.Value {
	return it.run.values[it.pos]
}

// Advance moves the iterator one step in its configured direction.
func (it *Iterator) Advance() {
	it.pos += it.dir
}
