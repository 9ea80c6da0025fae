// Package runlock implements the Run Lock Table: a fixed-size array of
// single-bit spinlocks striped over run indices. It exists so a checkpoint
// can cheaply quiesce every run (lock_all) without paying for one mutex per
// run, at the cost of conservative overlocking when two distinct run
// indices collide on the same stripe.
package runlock

import (
	"sync/atomic"
	"time"
)

const (
	// DefaultSize is the default number of stripes. It must stay a power
	// of two so masking, not modulo, can compute a stripe index.
	DefaultSize = 64

	// BusyCount is the number of test-and-set spins attempted before a
	// contended lock falls back to sleep backoff.
	BusyCount = 1000

	// MaxBackoff caps the sleep backoff applied while a stripe stays
	// contended past BusyCount spins.
	MaxBackoff = 16 * time.Millisecond
)

// Table is a striped spinlock array indexed by runIndex & (size-1).
type Table struct {
	flags []atomic.Bool
	mask  uint64
}

// New creates a Table with the given number of stripes. size must be a
// power of two; New panics otherwise; a misconfigured stripe count is
// a programmer error, not a runtime condition.
func New(size int) *Table {
	if size <= 0 || size&(size-1) != 0 {
		panic("runlock: size must be a power of two")
	}
	return &Table{
		flags: make([]atomic.Bool, size),
		mask:  uint64(size - 1),
	}
}

func (t *Table) index(runIndex uint64) uint64 {
	return runIndex & t.mask
}

// Lock acquires the stripe guarding runIndex. It spins up to BusyCount
// iterations, then switches to a bounded exponential sleep backoff capped
// at MaxBackoff.
func (t *Table) Lock(runIndex uint64) {
	slot := &t.flags[t.index(runIndex)]
	spins := 0
	backoff := time.Millisecond
	for {
		if !slot.Swap(true) {
			return
		}
		if spins < BusyCount {
			spins++
			continue
		}
		time.Sleep(backoff)
		if backoff < MaxBackoff {
			backoff *= 2
			if backoff > MaxBackoff {
				backoff = MaxBackoff
			}
		}
	}
}

// Unlock releases the stripe guarding runIndex.
func (t *Table) Unlock(runIndex uint64) {
	t.flags[t.index(runIndex)].Store(false)
}

// LockAll acquires every stripe, in index order, used by checkpoint and
// close to quiesce all concurrent readers.
func (t *Table) LockAll() {
	for i := range t.flags {
		t.Lock(uint64(i))
	}
}

// UnlockAll releases every stripe, in index order.
func (t *Table) UnlockAll() {
	for i := range t.flags {
		t.Unlock(uint64(i))
	}
}

// Size returns the number of stripes in the table.
func (t *Table) Size() int {
	return len(t.flags)
}
