// Package merge implements the k-way merge used both at checkpoint flush
// and at query time: a direction-parameterized heap merge over a set of
// sorted runs, emitting into a Cursor.
package merge

import (
	"container/heap"

	"github.com/akumuli/sequencer/pkg/cursor"
	"github.com/akumuli/sequencer/pkg/model"
	"github.com/akumuli/sequencer/pkg/sortedrun"
)

// Direction selects ascending or descending emission order.
type Direction int

const (
	// Forward yields ascending (timestamp, param_id).
	Forward Direction = iota
	// Backward yields descending (timestamp, param_id).
	Backward
)

// runIterator is the minimal surface Merge needs from a sortedrun.Iterator.
type runIterator interface {
	Valid() bool
	Value() model.Value
	Advance()
}

// heapItem pairs a run's current head value with its run index. Ties on
// key are broken by run index so merges over identical input are
// deterministic across calls, per spec §4.C.
type heapItem struct {
	value model.Value
	run   int
}

type runHeap struct {
	items     []heapItem
	backward  bool
}

func (h *runHeap) Len() int { return len(h.items) }

func (h *runHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	cmp := a.value.Key.Compare(b.value.Key)
	if cmp == 0 {
		return a.run < b.run
	}
	if h.backward {
		return cmp > 0
	}
	return cmp < 0
}

func (h *runHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *runHeap) Push(x any) { h.items = append(h.items, x.(heapItem)) }

func (h *runHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// Merge performs a k-way merge of runs in the requested direction, pushing
// each value to cur via Put alongside page. It does not mutate runs; the
// per-run iterator is reversed for Backward so each run is consumed
// tail-to-head.
func Merge(direction Direction, runs []*sortedrun.Run, page cursor.PageRef, cur cursor.Cursor, caller cursor.Caller) {
	iters := make([]runIterator, len(runs))
	for i, r := range runs {
		if direction == Forward {
			iters[i] = r.ForwardIterator()
		} else {
			iters[i] = r.BackwardIterator()
		}
	}

	h := &runHeap{backward: direction == Backward}
	for i, it := range iters {
		if it.Valid() {
			h.items = append(h.items, heapItem{value: it.Value(), run: i})
			it.Advance()
		}
	}
	heap.Init(h)

	for h.Len() > 0 {
		top := heap.Pop(h).(heapItem)
		cur.Put(caller, top.value, page)
		it := iters[top.run]
		if it.Valid() {
			heap.Push(h, heapItem{value: it.Value(), run: top.run})
			it.Advance()
		}
	}
}
